package application

import "sync/atomic"

// Stats is a cheap snapshot of pipeline counters for the ops endpoint.
type Stats struct {
	processed    atomic.Int64
	duplicates   atomic.Int64
	deadLettered atomic.Int64
	unresolved   atomic.Int64
	fraud        atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) record(outcome Outcome, result ProcessResult) {
	switch outcome {
	case OutcomeSuccess:
		s.processed.Add(1)
		if result.Scored.IsFraud {
			s.fraud.Add(1)
		}
	case OutcomeDuplicate:
		s.duplicates.Add(1)
	case OutcomeDeadLettered:
		s.deadLettered.Add(1)
	case OutcomeUnresolved:
		s.unresolved.Add(1)
	}
}

type StatsSnapshot struct {
	Processed    int64 `json:"processed"`
	Duplicates   int64 `json:"duplicates"`
	DeadLettered int64 `json:"dead_lettered"`
	Unresolved   int64 `json:"unresolved"`
	FraudFlagged int64 `json:"fraud_flagged"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Processed:    s.processed.Load(),
		Duplicates:   s.duplicates.Load(),
		DeadLettered: s.deadLettered.Load(),
		Unresolved:   s.unresolved.Load(),
		FraudFlagged: s.fraud.Load(),
	}
}
