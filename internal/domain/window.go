package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WindowLimits bounds the activity window by both age and entry count so a
// hot customer cannot grow the profile row without bound.
type WindowLimits struct {
	MaxAge     time.Duration
	MaxEntries int
}

// InsertWindowEntry inserts an entry keeping the window ordered by event
// timestamp. Late-arriving records land in order, not at the end.
func InsertWindowEntry(window []WindowEntry, entry WindowEntry) []WindowEntry {
	i := sort.Search(len(window), func(i int) bool {
		return window[i].Timestamp.After(entry.Timestamp)
	})
	window = append(window, WindowEntry{})
	copy(window[i+1:], window[i:])
	window[i] = entry
	return window
}

// TrimWindow evicts entries older than the age bound relative to the given
// reference time, then enforces the count bound by dropping the oldest.
func TrimWindow(window []WindowEntry, reference time.Time, limits WindowLimits) []WindowEntry {
	if limits.MaxAge > 0 {
		cutoff := reference.Add(-limits.MaxAge)
		i := sort.Search(len(window), func(i int) bool {
			return window[i].Timestamp.After(cutoff)
		})
		window = window[i:]
	}
	if limits.MaxEntries > 0 && len(window) > limits.MaxEntries {
		window = window[len(window)-limits.MaxEntries:]
	}
	return window
}

// CountWindowSince counts entries with a timestamp strictly after the cutoff.
func CountWindowSince(window []WindowEntry, cutoff time.Time) int {
	i := sort.Search(len(window), func(i int) bool {
		return window[i].Timestamp.After(cutoff)
	})
	return len(window) - i
}

// ApplyTransaction returns the profile aggregate after recording one scored
// transaction: incremented count, incrementally updated running mean, flagged
// count, last location/timestamp, and the refreshed activity window. The
// receiver is not mutated; Version is left for the store to advance.
func ApplyTransaction(p CustomerProfile, txn Transaction, result ScoringResult, limits WindowLimits, now time.Time) CustomerProfile {
	next := p
	next.TransactionCount = p.TransactionCount + 1
	// mean' = mean + (amount - mean) / count'
	count := decimal.NewFromInt(next.TransactionCount)
	next.MeanAmount = p.MeanAmount.Add(txn.Amount.Sub(p.MeanAmount).Div(count))
	if result.IsFraud {
		next.FlaggedCount = p.FlaggedCount + 1
	}
	if txn.Location != nil {
		loc := *txn.Location
		next.LastLocation = &loc
	}
	ts := txn.Timestamp
	if p.LastSeenAt == nil || ts.After(*p.LastSeenAt) {
		next.LastSeenAt = &ts
		if txn.Location == nil {
			next.LastLocation = p.LastLocation
		}
	} else {
		// Late arrival: keep the newer last-seen state.
		next.LastSeenAt = p.LastSeenAt
		next.LastLocation = p.LastLocation
	}
	next.LastTransactionID = txn.TransactionID

	window := make([]WindowEntry, len(p.Window))
	copy(window, p.Window)
	window = InsertWindowEntry(window, WindowEntry{
		TransactionID: txn.TransactionID,
		Timestamp:     txn.Timestamp,
		Amount:        txn.Amount,
	})
	next.Window = TrimWindow(window, txn.Timestamp, limits)
	next.UpdatedAt = now
	return next
}
