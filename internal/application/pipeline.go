// Package application wires the processing pipeline: validation, scoring,
// persistence, and the failure handling around them.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/metrics"
	"github.com/securebank/scoring-engine/internal/ports"
	"github.com/securebank/scoring-engine/internal/scoring"
)

type PipelineConfig struct {
	// StoreTimeout bounds every individual store call; an expired call is
	// a transient failure.
	StoreTimeout time.Duration

	// ProfileUpdateAttempts bounds the optimistic-concurrency retry loop.
	ProfileUpdateAttempts int

	WindowLimits domain.WindowLimits
}

// Pipeline processes one raw record end to end: parse and validate, score
// against the customer's profile snapshot, commit the scored transaction
// (idempotency gate), apply the profile update under optimistic concurrency,
// and append to the archive best-effort.
type Pipeline struct {
	cfg          PipelineConfig
	engine       *scoring.Engine
	profiles     ports.ProfileStore
	cache        ports.ProfileCache
	transactions ports.TransactionStore
	archive      ports.ArchiveSink
	logger       *slog.Logger
	metrics      *metrics.Metrics
	nowFn        func() time.Time
}

type PipelineDeps struct {
	Config       PipelineConfig
	Engine       *scoring.Engine
	Profiles     ports.ProfileStore
	Cache        ports.ProfileCache // optional
	Transactions ports.TransactionStore
	Archive      ports.ArchiveSink
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

func NewPipeline(deps PipelineDeps) *Pipeline {
	cfg := deps.Config
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.ProfileUpdateAttempts <= 0 {
		cfg.ProfileUpdateAttempts = 5
	}
	if cfg.WindowLimits.MaxAge <= 0 {
		cfg.WindowLimits.MaxAge = 24 * time.Hour
	}
	if cfg.WindowLimits.MaxEntries <= 0 {
		cfg.WindowLimits.MaxEntries = 100
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:          cfg,
		engine:       deps.Engine,
		profiles:     deps.Profiles,
		cache:        deps.Cache,
		transactions: deps.Transactions,
		archive:      deps.Archive,
		logger:       logger,
		metrics:      deps.Metrics,
		nowFn:        nowFn,
	}
}

// ProcessResult reports what one successful Process call did.
type ProcessResult struct {
	// Duplicate is set when the record had already been committed and
	// this delivery was a no-op (beyond recovery checks).
	Duplicate bool
	Scored    domain.ScoredTransaction
}

// Process runs one raw record through the pipeline. Errors carry the
// taxonomy sentinels (domain.ErrValidation, domain.ErrTransientStore,
// domain.ErrPermanentStore) for the failure coordinator.
func (p *Pipeline) Process(ctx context.Context, raw []byte) (ProcessResult, error) {
	txn, err := domain.ParseTransaction(raw)
	if err != nil {
		return ProcessResult{}, err
	}

	profile, hasProfile, err := p.profileForScoring(ctx, txn.CustomerID)
	if err != nil {
		return ProcessResult{}, err
	}

	result := p.engine.Score(scoring.Input{
		Transaction: txn,
		Profile:     profile,
		HasProfile:  hasProfile,
		Window:      profile.Window,
	})
	now := p.nowFn().UTC()
	st := domain.ScoredTransaction{
		TransactionID: txn.TransactionID,
		CustomerID:    txn.CustomerID,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		MerchantID:    txn.MerchantID,
		Timestamp:     txn.Timestamp,
		RiskScore:     result.RiskScore,
		IsFraud:       result.IsFraud,
		FraudReasons:  result.Indicators,
		ProcessedAt:   now,
	}

	err = p.withStoreTimeout(ctx, func(ctx context.Context) error {
		return p.transactions.InsertScored(ctx, st)
	})
	if errors.Is(err, domain.ErrDuplicateTransaction) {
		return p.recoverDuplicate(ctx, txn)
	}
	if err != nil {
		return ProcessResult{}, err
	}

	if err := p.updateProfile(ctx, txn, result, now); err != nil {
		return ProcessResult{}, err
	}

	p.appendArchive(ctx, txn, raw, now)
	p.observe(st)
	return ProcessResult{Scored: st}, nil
}

// profileForScoring reads the customer's snapshot, serving from cache when
// possible. An absent profile is a first-time customer, not an error.
func (p *Pipeline) profileForScoring(ctx context.Context, customerID string) (domain.CustomerProfile, bool, error) {
	if p.cache != nil {
		if cached, hit, err := p.cache.Get(ctx, customerID); err == nil && hit {
			return cached, true, nil
		} else if err != nil {
			p.logger.WarnContext(ctx, "profile cache read failed", "customer_id", customerID, "error", err)
		}
	}
	profile, err := p.getProfile(ctx, customerID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewProfile(customerID, p.nowFn().UTC()), false, nil
	}
	if err != nil {
		return domain.CustomerProfile{}, false, err
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, profile); err != nil {
			p.logger.WarnContext(ctx, "profile cache write failed", "customer_id", customerID, "error", err)
		}
	}
	return profile, true, nil
}

// updateProfile is the optimistic-concurrency loop: read the store of
// record, recompute the aggregate, submit guarded by the version read. A
// conflict means another worker got there first; re-read and recompute.
func (p *Pipeline) updateProfile(ctx context.Context, txn domain.Transaction, result domain.ScoringResult, now time.Time) error {
	for attempt := 0; attempt < p.cfg.ProfileUpdateAttempts; attempt++ {
		profile, err := p.getProfile(ctx, txn.CustomerID)
		expectedVersion := int64(0)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			profile = domain.NewProfile(txn.CustomerID, now)
		case err != nil:
			return err
		default:
			expectedVersion = profile.Version
		}

		next := domain.ApplyTransaction(profile, txn, result, p.cfg.WindowLimits, now)
		var newVersion int64
		err = p.withStoreTimeout(ctx, func(ctx context.Context) error {
			var applyErr error
			newVersion, applyErr = p.profiles.ApplyUpdate(ctx, next, expectedVersion)
			return applyErr
		})
		if errors.Is(err, domain.ErrVersionConflict) {
			if p.metrics != nil {
				p.metrics.ProfileConflicts.Inc()
			}
			// The cached snapshot just lost a race; drop it rather than
			// serving it to the next scoring read.
			if p.cache != nil {
				if cacheErr := p.cache.Invalidate(ctx, txn.CustomerID); cacheErr != nil {
					p.logger.WarnContext(ctx, "profile cache invalidate failed", "customer_id", txn.CustomerID, "error", cacheErr)
				}
			}
			continue
		}
		if err != nil {
			return err
		}

		next.Version = newVersion
		if p.cache != nil {
			if err := p.cache.Set(ctx, next); err != nil {
				p.logger.WarnContext(ctx, "profile cache refresh failed", "customer_id", txn.CustomerID, "error", err)
			}
		}
		return nil
	}
	return fmt.Errorf("profile update for %s: conflict retries exhausted: %w", txn.CustomerID, domain.ErrTransientStore)
}

// recoverDuplicate handles a redelivered transaction: the scored record is
// already committed, so the only open question is whether the profile update
// landed before the crash. The profile's last-processed id and the window
// entries answer that; if neither mentions this transaction, the stored
// scoring result is re-applied.
func (p *Pipeline) recoverDuplicate(ctx context.Context, txn domain.Transaction) (ProcessResult, error) {
	st, err := p.withStoreTimeoutScored(ctx, txn.TransactionID)
	if err != nil {
		return ProcessResult{}, err
	}

	profile, err := p.getProfile(ctx, txn.CustomerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return ProcessResult{}, err
	}
	if err == nil && profileSawTransaction(profile, txn.TransactionID) {
		return ProcessResult{Duplicate: true, Scored: st}, nil
	}

	result := domain.ScoringResult{
		RiskScore:  st.RiskScore,
		Indicators: st.FraudReasons,
		IsFraud:    st.IsFraud,
	}
	if err := p.updateProfile(ctx, txn, result, p.nowFn().UTC()); err != nil {
		return ProcessResult{}, err
	}
	p.logger.InfoContext(ctx, "recovered interrupted profile update",
		"transaction_id", txn.TransactionID, "customer_id", txn.CustomerID)
	return ProcessResult{Duplicate: true, Scored: st}, nil
}

func profileSawTransaction(profile domain.CustomerProfile, transactionID string) bool {
	if profile.LastTransactionID == transactionID {
		return true
	}
	for _, entry := range profile.Window {
		if entry.TransactionID == transactionID {
			return true
		}
	}
	return false
}

// appendArchive is best-effort: the archive serves analytics replay, so a
// failure is logged and retried once but never rolls back the committed
// record.
func (p *Pipeline) appendArchive(ctx context.Context, txn domain.Transaction, raw []byte, processedAt time.Time) {
	rec := domain.ArchiveRecord{
		TransactionID: txn.TransactionID,
		EventTime:     txn.Timestamp,
		ProcessedAt:   processedAt,
		Payload:       raw,
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = p.withStoreTimeout(ctx, func(ctx context.Context) error {
			return p.archive.Append(ctx, rec)
		})
		if err == nil {
			return
		}
	}
	p.logger.ErrorContext(ctx, "archive append failed",
		"transaction_id", txn.TransactionID, "error", err)
}

func (p *Pipeline) observe(st domain.ScoredTransaction) {
	if st.IsFraud {
		p.logger.Warn("fraud detected",
			"transaction_id", st.TransactionID,
			"customer_id", st.CustomerID,
			"risk_score", st.RiskScore,
			"fraud_reasons", st.FraudReasons,
		)
	}
	if p.metrics == nil {
		return
	}
	p.metrics.RiskScore.Observe(st.RiskScore)
	p.metrics.TransactionAmount.Observe(st.Amount.InexactFloat64())
	if st.IsFraud {
		p.metrics.FraudDetected.Inc()
	}
}

func (p *Pipeline) getProfile(ctx context.Context, customerID string) (domain.CustomerProfile, error) {
	var profile domain.CustomerProfile
	err := p.withStoreTimeout(ctx, func(ctx context.Context) error {
		var getErr error
		profile, getErr = p.profiles.Get(ctx, customerID)
		return getErr
	})
	return profile, err
}

func (p *Pipeline) withStoreTimeoutScored(ctx context.Context, transactionID string) (domain.ScoredTransaction, error) {
	var st domain.ScoredTransaction
	err := p.withStoreTimeout(ctx, func(ctx context.Context) error {
		var getErr error
		st, getErr = p.transactions.GetScored(ctx, transactionID)
		return getErr
	})
	return st, err
}

// withStoreTimeout bounds a store call and folds an expired deadline into
// the transient class.
func (p *Pipeline) withStoreTimeout(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	err := fn(callCtx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrTransientStore) {
		return fmt.Errorf("store call timed out: %w", domain.ErrTransientStore)
	}
	return err
}
