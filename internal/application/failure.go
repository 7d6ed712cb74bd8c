package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

// Outcome is the terminal (or deliberately non-terminal) disposition of one
// record.
type Outcome int

const (
	// OutcomeSuccess: scored and committed on this delivery.
	OutcomeSuccess Outcome = iota
	// OutcomeDuplicate: already committed by an earlier delivery.
	OutcomeDuplicate
	// OutcomeDeadLettered: permanently failed; a DeadLetterEntry exists
	// and the checkpoint may advance past the record.
	OutcomeDeadLettered
	// OutcomeUnresolved: no terminal disposition (shutdown mid-retry or
	// dead-letter publish failure); the record must be redelivered.
	OutcomeUnresolved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDeadLettered:
		return "dead_lettered"
	default:
		return "unresolved"
	}
}

type CoordinatorConfig struct {
	// MaxAttempts bounds deliveries of a record to the pipeline before a
	// transient failure escalates to permanent.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Coordinator classifies pipeline errors, retries transient failures with
// exponential backoff, and routes permanent failures to the dead-letter
// sink so the record's partition can move on.
type Coordinator struct {
	cfg         CoordinatorConfig
	deadLetters ports.DeadLetterSink
	logger      *slog.Logger
	nowFn       func() time.Time
	sleepFn     func(context.Context, time.Duration) bool
}

func NewCoordinator(cfg CoordinatorConfig, deadLetters ports.DeadLetterSink, logger *slog.Logger) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:         cfg,
		deadLetters: deadLetters,
		logger:      logger,
		nowFn:       time.Now,
		sleepFn:     sleepContext,
	}
}

// Run drives one record to a terminal outcome. Each processing attempt runs
// on a shutdown-shielded context so an in-flight attempt completes (store
// calls keep their own timeouts); the backoff between attempts aborts on
// shutdown, leaving the record unresolved for redelivery.
func (c *Coordinator) Run(ctx context.Context, raw []byte, process func(context.Context) (ProcessResult, error)) (ProcessResult, Outcome) {
	var firstFailure time.Time

	for attempt := 1; ; attempt++ {
		result, err := process(context.WithoutCancel(ctx))
		if err == nil {
			if result.Duplicate {
				return result, OutcomeDuplicate
			}
			return result, OutcomeSuccess
		}

		now := c.nowFn().UTC()
		if firstFailure.IsZero() {
			firstFailure = now
		}
		kind := classify(err)

		if kind == domain.ErrorKindTransientStore && attempt < c.cfg.MaxAttempts {
			c.logger.WarnContext(ctx, "transient failure, retrying",
				"attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "error", err)
			if !c.sleepFn(ctx, c.backoff(attempt)) {
				return ProcessResult{}, OutcomeUnresolved
			}
			continue
		}

		if kind == domain.ErrorKindTransientStore {
			// Retry budget exhausted: escalate to permanent.
			c.logger.ErrorContext(ctx, "transient failure escalated after retries",
				"attempts", attempt, "error", err)
		}
		entry := domain.DeadLetterEntry{
			ID:            uuid.NewString(),
			RawPayload:    raw,
			ErrorKind:     kind,
			ErrorDetail:   err.Error(),
			AttemptCount:  attempt,
			FirstFailedAt: firstFailure,
			LastFailedAt:  now,
		}
		if publishErr := c.deadLetters.Publish(context.WithoutCancel(ctx), entry); publishErr != nil {
			c.logger.ErrorContext(ctx, "dead letter publish failed, leaving record unresolved",
				"error_kind", kind, "error", publishErr)
			return ProcessResult{}, OutcomeUnresolved
		}
		c.logger.ErrorContext(ctx, "record dead-lettered",
			"error_kind", kind, "attempts", attempt, "error", err)
		return ProcessResult{}, OutcomeDeadLettered
	}
}

func (c *Coordinator) backoff(attempt int) time.Duration {
	delay := c.cfg.BaseDelay << (attempt - 1)
	if delay > c.cfg.MaxDelay || delay <= 0 {
		delay = c.cfg.MaxDelay
	}
	return delay
}

// classify maps an error into the taxonomy. Unknown errors classify as
// transient: retrying is safe under the idempotency gate, while a wrong
// permanent classification loses the record to the DLQ.
func classify(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return domain.ErrorKindValidation
	case errors.Is(err, domain.ErrPermanentStore):
		return domain.ErrorKindPermanentStore
	default:
		return domain.ErrorKindTransientStore
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
