package ports

import "context"

// Record is one raw stream record with its position. Records sharing a
// partition arrive in order; offsets are monotonic within a partition.
type Record struct {
	Partition int
	Offset    int64
	Key       string
	Value     []byte
}

// RecordSource is a partition-ordered, restartable stream with explicit
// per-record acknowledgment.
//
// Resolve marks a record's outcome as terminal (processed or dead-lettered).
// The source advances its durable checkpoint for a partition only past a
// contiguous prefix of resolved offsets, so an unresolved record is
// redelivered after a restart while later resolved records are not lost.
type RecordSource interface {
	// Fetch blocks for the next record or until the context is done.
	Fetch(ctx context.Context) (Record, error)

	// Resolve reports a terminal outcome for a fetched record.
	Resolve(ctx context.Context, rec Record) error

	Close() error
}
