package ports

import (
	"context"

	"github.com/securebank/scoring-engine/internal/domain"
)

// ProfileStore is keyed storage of per-customer behavioral aggregates with
// optimistic concurrency.
type ProfileStore interface {
	// Get returns the profile for a customer, or domain.ErrNotFound.
	Get(ctx context.Context, customerID string) (domain.CustomerProfile, error)

	// ApplyUpdate conditionally writes the computed aggregate. An
	// expectedVersion of zero inserts a new profile; otherwise the write
	// succeeds only if the stored version still matches. A concurrent
	// update surfaces as domain.ErrVersionConflict and the caller must
	// re-read and recompute.
	ApplyUpdate(ctx context.Context, profile domain.CustomerProfile, expectedVersion int64) (int64, error)
}

// ProfileCache is an optional read-through cache of profile snapshots. It
// serves the scoring read only; the conditional-write path always reads the
// store of record.
type ProfileCache interface {
	Get(ctx context.Context, customerID string) (domain.CustomerProfile, bool, error)
	Set(ctx context.Context, profile domain.CustomerProfile) error
	Invalidate(ctx context.Context, customerID string) error
}

// TransactionStore durably records scored transactions keyed by transaction
// id.
type TransactionStore interface {
	// InsertScored inserts the record, returning
	// domain.ErrDuplicateTransaction if the transaction id already
	// exists. The duplicate case is the idempotency gate, not a failure.
	InsertScored(ctx context.Context, st domain.ScoredTransaction) error

	// GetScored fetches a previously committed record, or
	// domain.ErrNotFound.
	GetScored(ctx context.Context, transactionID string) (domain.ScoredTransaction, error)
}

// ArchiveSink appends raw payloads to the analytics archive, partitioned by
// event time. Best-effort relative to the primary stores.
type ArchiveSink interface {
	Append(ctx context.Context, rec domain.ArchiveRecord) error
}

// DeadLetterSink records entries for records that permanently failed.
type DeadLetterSink interface {
	Publish(ctx context.Context, entry domain.DeadLetterEntry) error
}
