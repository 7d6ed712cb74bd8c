// Package http exposes the operational surface of the worker: health and
// readiness probes, Prometheus metrics, and pipeline counters. The engine
// itself is stream-driven; nothing here mutates state.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/securebank/scoring-engine/internal/application"
	"github.com/securebank/scoring-engine/internal/metrics"
)

// ReadinessCheck reports whether a named dependency can serve traffic.
type ReadinessCheck struct {
	Name  string
	Probe func(context.Context) error
}

type Handler struct {
	stats  *application.Stats
	checks []ReadinessCheck
}

func NewHandler(stats *application.Stats, checks ...ReadinessCheck) *Handler {
	return &Handler{stats: stats, checks: checks}
}

func NewRouter(handler *Handler, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", handler.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stats", handler.getStats)
	})
	return r
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.checks {
		if err := check.Probe(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "NOT_READY", check.Name+": "+err.Error())
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) getStats(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.stats.Snapshot())
}
