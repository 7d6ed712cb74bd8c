package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/securebank/scoring-engine/internal/metrics"
	"github.com/securebank/scoring-engine/internal/ports"
)

type DispatcherConfig struct {
	// PartitionQueueSize is the per-partition buffer between the fetch
	// loop and the partition worker. A full buffer blocks fetching,
	// which is the backpressure signal.
	PartitionQueueSize int
}

// Dispatcher pulls records from the source and fans them out to one worker
// per partition. Workers process their partition's records sequentially in
// arrival order; partitions run concurrently. A failing record is resolved
// as dead-lettered (or deliberately left unresolved) without blocking the
// records behind it.
type Dispatcher struct {
	cfg         DispatcherConfig
	source      ports.RecordSource
	pipeline    *Pipeline
	coordinator *Coordinator
	logger      *slog.Logger
	metrics     *metrics.Metrics
	stats       *Stats

	mu      sync.Mutex
	workers map[int]chan ports.Record
	wg      sync.WaitGroup
}

func NewDispatcher(cfg DispatcherConfig, source ports.RecordSource, pipeline *Pipeline, coordinator *Coordinator, logger *slog.Logger, m *metrics.Metrics, stats *Stats) *Dispatcher {
	if cfg.PartitionQueueSize <= 0 {
		cfg.PartitionQueueSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Dispatcher{
		cfg:         cfg,
		source:      source,
		pipeline:    pipeline,
		coordinator: coordinator,
		logger:      logger,
		metrics:     m,
		stats:       stats,
		workers:     make(map[int]chan ports.Record),
	}
}

// Run fetches until the context is done, then drains: every partition worker
// finishes its in-flight record before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.drain()
	for {
		rec, err := d.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			d.logger.ErrorContext(ctx, "fetch failed", "error", err)
			if !sleepContext(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}

		select {
		case d.workerChannel(ctx, rec.Partition) <- rec:
		case <-ctx.Done():
			// The record was fetched but not handed off; it stays
			// uncommitted and will be redelivered.
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) workerChannel(ctx context.Context, partition int) chan ports.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, ok := d.workers[partition]
	if !ok {
		ch = make(chan ports.Record, d.cfg.PartitionQueueSize)
		d.workers[partition] = ch
		d.wg.Add(1)
		go d.runWorker(ctx, partition, ch)
	}
	return ch
}

func (d *Dispatcher) runWorker(ctx context.Context, partition int, ch chan ports.Record) {
	defer d.wg.Done()
	logger := d.logger.With("partition", partition)
	for {
		var rec ports.Record
		var ok bool
		select {
		case rec, ok = <-ch:
			if !ok {
				return
			}
		case <-ctx.Done():
			// Drop queued records; they are uncommitted and will be
			// redelivered. The in-flight record, if any, already
			// completed.
			return
		}
		d.handle(ctx, logger, rec)
	}
}

func (d *Dispatcher) handle(ctx context.Context, logger *slog.Logger, rec ports.Record) {
	start := time.Now()
	result, outcome := d.coordinator.Run(ctx, rec.Value, func(procCtx context.Context) (ProcessResult, error) {
		return d.pipeline.Process(procCtx, rec.Value)
	})

	d.stats.record(outcome, result)
	if d.metrics != nil {
		d.metrics.RecordsProcessed.WithLabelValues(outcome.String()).Inc()
		d.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}

	switch outcome {
	case OutcomeUnresolved:
		// Not terminal: the partition checkpoint must not advance
		// past this record.
		logger.WarnContext(ctx, "record left unresolved",
			"offset", rec.Offset)
	default:
		if err := d.source.Resolve(context.WithoutCancel(ctx), rec); err != nil {
			// Commit failure only widens the redelivery window;
			// the idempotency gate absorbs the replays.
			logger.ErrorContext(ctx, "checkpoint resolve failed",
				"offset", rec.Offset, "error", err)
		}
	}

	logger.InfoContext(ctx, "record handled",
		"offset", rec.Offset,
		"outcome", outcome.String(),
		"transaction_id", result.Scored.TransactionID,
	)
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
