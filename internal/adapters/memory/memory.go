// Package memory provides in-memory implementations of the store and sink
// ports. The worker runtime falls back to them when Postgres or Kafka are
// not configured; tests use them to drive the pipeline without
// infrastructure.
package memory

import (
	"context"
	"sync"

	"github.com/securebank/scoring-engine/internal/domain"
	"github.com/securebank/scoring-engine/internal/ports"
)

// ProfileStore is a mutex-guarded profile map with the same optimistic
// concurrency contract as the Postgres store.
type ProfileStore struct {
	mu       sync.Mutex
	profiles map[string]domain.CustomerProfile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]domain.CustomerProfile)}
}

func (s *ProfileStore) Get(_ context.Context, customerID string) (domain.CustomerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[customerID]
	if !ok {
		return domain.CustomerProfile{}, domain.ErrNotFound
	}
	return cloneProfile(p), nil
}

func (s *ProfileStore) ApplyUpdate(_ context.Context, profile domain.CustomerProfile, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.profiles[profile.CustomerID]
	if expectedVersion == 0 {
		if exists {
			return 0, domain.ErrVersionConflict
		}
	} else if !exists || current.Version != expectedVersion {
		return 0, domain.ErrVersionConflict
	}
	profile.Version = expectedVersion + 1
	s.profiles[profile.CustomerID] = cloneProfile(profile)
	return profile.Version, nil
}

var _ ports.ProfileStore = (*ProfileStore)(nil)

func cloneProfile(p domain.CustomerProfile) domain.CustomerProfile {
	out := p
	if p.LastLocation != nil {
		loc := *p.LastLocation
		out.LastLocation = &loc
	}
	if p.LastSeenAt != nil {
		ts := *p.LastSeenAt
		out.LastSeenAt = &ts
	}
	out.Window = make([]domain.WindowEntry, len(p.Window))
	copy(out.Window, p.Window)
	return out
}

// TransactionStore keeps scored transactions keyed by transaction id.
type TransactionStore struct {
	mu     sync.Mutex
	scored map[string]domain.ScoredTransaction
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{scored: make(map[string]domain.ScoredTransaction)}
}

func (s *TransactionStore) InsertScored(_ context.Context, st domain.ScoredTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scored[st.TransactionID]; exists {
		return domain.ErrDuplicateTransaction
	}
	s.scored[st.TransactionID] = st
	return nil
}

func (s *TransactionStore) GetScored(_ context.Context, transactionID string) (domain.ScoredTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.scored[transactionID]
	if !ok {
		return domain.ScoredTransaction{}, domain.ErrNotFound
	}
	return st, nil
}

// Count returns the number of committed scored transactions.
func (s *TransactionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scored)
}

var _ ports.TransactionStore = (*TransactionStore)(nil)

// ArchiveSink collects archive records in memory.
type ArchiveSink struct {
	mu      sync.Mutex
	records []domain.ArchiveRecord
}

func NewArchiveSink() *ArchiveSink {
	return &ArchiveSink{}
}

func (s *ArchiveSink) Append(_ context.Context, rec domain.ArchiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *ArchiveSink) Records() []domain.ArchiveRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ArchiveRecord, len(s.records))
	copy(out, s.records)
	return out
}

var _ ports.ArchiveSink = (*ArchiveSink)(nil)

// DeadLetterSink collects dead-letter entries in memory.
type DeadLetterSink struct {
	mu      sync.Mutex
	entries []domain.DeadLetterEntry
}

func NewDeadLetterSink() *DeadLetterSink {
	return &DeadLetterSink{}
}

func (s *DeadLetterSink) Publish(_ context.Context, entry domain.DeadLetterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *DeadLetterSink) Entries() []domain.DeadLetterEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DeadLetterEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

var _ ports.DeadLetterSink = (*DeadLetterSink)(nil)
