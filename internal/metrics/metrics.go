// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Outcome label values for the processed-records counter.
const (
	OutcomeSuccess      = "success"
	OutcomeDuplicate    = "duplicate"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeUnresolved   = "unresolved"
)

type Metrics struct {
	Registry *prometheus.Registry

	RecordsProcessed   *prometheus.CounterVec
	FraudDetected      prometheus.Counter
	RiskScore          prometheus.Histogram
	TransactionAmount  prometheus.Histogram
	ProfileConflicts   prometheus.Counter
	ProcessingDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,
		RecordsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "securebank",
			Subsystem: "scoring",
			Name:      "records_total",
			Help:      "Stream records by terminal outcome.",
		}, []string{"outcome"}),
		FraudDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "securebank",
			Subsystem: "scoring",
			Name:      "fraud_detected_total",
			Help:      "Transactions flagged as fraud.",
		}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "securebank",
			Subsystem: "scoring",
			Name:      "risk_score",
			Help:      "Risk score distribution.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		TransactionAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "securebank",
			Subsystem: "scoring",
			Name:      "transaction_amount",
			Help:      "Processed transaction amounts.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		ProfileConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "securebank",
			Subsystem: "scoring",
			Name:      "profile_conflicts_total",
			Help:      "Optimistic-concurrency conflicts on profile updates.",
		}),
		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "securebank",
			Subsystem: "scoring",
			Name:      "processing_duration_seconds",
			Help:      "End-to-end per-record processing time.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.RecordsProcessed, m.FraudDetected, m.RiskScore,
		m.TransactionAmount, m.ProfileConflicts, m.ProcessingDuration)
	return m
}
