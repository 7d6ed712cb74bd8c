package memory

import (
	"context"
	"sync"

	"github.com/securebank/scoring-engine/internal/ports"
)

// RecordSource is a channel-backed stream with the same checkpoint contract
// as the Kafka source: per partition, the committed offset advances only
// past a contiguous prefix of resolved records.
type RecordSource struct {
	records chan ports.Record

	mu        sync.Mutex
	inflight  map[int][]int64
	resolved  map[int]map[int64]bool
	committed map[int]int64
}

func NewRecordSource(buffer int) *RecordSource {
	if buffer <= 0 {
		buffer = 64
	}
	return &RecordSource{
		records:   make(chan ports.Record, buffer),
		inflight:  make(map[int][]int64),
		resolved:  make(map[int]map[int64]bool),
		committed: make(map[int]int64),
	}
}

// Load enqueues a record for delivery.
func (s *RecordSource) Load(rec ports.Record) {
	s.records <- rec
}

func (s *RecordSource) Fetch(ctx context.Context) (ports.Record, error) {
	select {
	case <-ctx.Done():
		return ports.Record{}, ctx.Err()
	case rec, ok := <-s.records:
		if !ok {
			return ports.Record{}, context.Canceled
		}
		s.mu.Lock()
		s.inflight[rec.Partition] = append(s.inflight[rec.Partition], rec.Offset)
		if s.resolved[rec.Partition] == nil {
			s.resolved[rec.Partition] = make(map[int64]bool)
		}
		s.mu.Unlock()
		return rec, nil
	}
}

func (s *RecordSource) Resolve(_ context.Context, rec ports.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[rec.Partition][rec.Offset] = true
	queue := s.inflight[rec.Partition]
	for len(queue) > 0 && s.resolved[rec.Partition][queue[0]] {
		s.committed[rec.Partition] = queue[0] + 1
		delete(s.resolved[rec.Partition], queue[0])
		queue = queue[1:]
	}
	s.inflight[rec.Partition] = queue
	return nil
}

// Committed returns the checkpoint for a partition: the offset processing
// would resume from after a restart.
func (s *RecordSource) Committed(partition int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed[partition]
}

func (s *RecordSource) Close() error {
	return nil
}

var _ ports.RecordSource = (*RecordSource)(nil)
