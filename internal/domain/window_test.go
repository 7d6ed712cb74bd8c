package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func entryAt(id string, ts time.Time) WindowEntry {
	return WindowEntry{TransactionID: id, Timestamp: ts, Amount: decimal.NewFromInt(10)}
}

func TestInsertWindowEntryKeepsOrder(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	var window []WindowEntry
	window = InsertWindowEntry(window, entryAt("a", base))
	window = InsertWindowEntry(window, entryAt("c", base.Add(2*time.Minute)))
	// Late arrival lands between a and c, not at the end.
	window = InsertWindowEntry(window, entryAt("b", base.Add(time.Minute)))

	got := []string{window[0].TransactionID, window[1].TransactionID, window[2].TransactionID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestTrimWindowBounds(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	var window []WindowEntry
	for i := 0; i < 6; i++ {
		window = InsertWindowEntry(window, entryAt("t", base.Add(time.Duration(i)*time.Hour)))
	}

	trimmed := TrimWindow(window, base.Add(5*time.Hour), WindowLimits{MaxAge: 3 * time.Hour, MaxEntries: 10})
	if len(trimmed) != 3 {
		t.Fatalf("expected 3 entries within age bound, got %d", len(trimmed))
	}

	trimmed = TrimWindow(window, base.Add(5*time.Hour), WindowLimits{MaxAge: 24 * time.Hour, MaxEntries: 2})
	if len(trimmed) != 2 {
		t.Fatalf("expected count bound of 2, got %d", len(trimmed))
	}
	if !trimmed[1].Timestamp.Equal(base.Add(5 * time.Hour)) {
		t.Fatalf("count bound should keep the newest entries")
	}
}

func TestCountWindowSince(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	var window []WindowEntry
	for i := 0; i < 4; i++ {
		window = InsertWindowEntry(window, entryAt("t", base.Add(time.Duration(i)*time.Minute)))
	}

	if got := CountWindowSince(window, base.Add(-time.Minute)); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
	// Strictly after: the entry exactly at the cutoff is excluded.
	if got := CountWindowSince(window, base.Add(time.Minute)); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := CountWindowSince(window, base.Add(time.Hour)); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestApplyTransactionFirstTransaction(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 15, 14, 30, 0, 0, time.UTC)
	profile := NewProfile("cust-001", now)
	txn := Transaction{
		TransactionID: "txn-001",
		CustomerID:    "cust-001",
		Amount:        decimalFromString(t, "50.00"),
		Currency:      "USD",
		MerchantID:    "merch-001",
		Timestamp:     now,
	}

	next := ApplyTransaction(profile, txn, ScoringResult{}, WindowLimits{MaxAge: 24 * time.Hour, MaxEntries: 100}, now)
	if next.TransactionCount != 1 {
		t.Fatalf("expected count 1, got %d", next.TransactionCount)
	}
	if !next.MeanAmount.Equal(decimalFromString(t, "50.00")) {
		t.Fatalf("expected mean 50.00, got %s", next.MeanAmount)
	}
	if next.LastLocation != nil {
		t.Fatalf("expected no last location, got %+v", next.LastLocation)
	}
	if next.LastSeenAt == nil || !next.LastSeenAt.Equal(now) {
		t.Fatalf("expected last seen %v, got %v", now, next.LastSeenAt)
	}
	if next.LastTransactionID != "txn-001" {
		t.Fatalf("expected last transaction id recorded")
	}
	if len(next.Window) != 1 || next.Window[0].TransactionID != "txn-001" {
		t.Fatalf("expected window to hold the transaction, got %+v", next.Window)
	}
}

func TestApplyTransactionIncrementalMean(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)
	limits := WindowLimits{MaxAge: 24 * time.Hour, MaxEntries: 100}
	profile := NewProfile("cust-001", now)

	amounts := []string{"10", "20", "60"}
	for i, a := range amounts {
		profile = ApplyTransaction(profile, Transaction{
			TransactionID: "txn-" + a,
			CustomerID:    "cust-001",
			Amount:        decimalFromString(t, a),
			Timestamp:     now.Add(time.Duration(i) * time.Minute),
		}, ScoringResult{}, limits, now)
	}

	if profile.TransactionCount != 3 {
		t.Fatalf("expected count 3, got %d", profile.TransactionCount)
	}
	if !profile.MeanAmount.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected mean 30, got %s", profile.MeanAmount)
	}
}

func TestApplyTransactionFlaggedCount(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)
	profile := NewProfile("cust-001", now)
	txn := Transaction{TransactionID: "txn-001", Amount: decimal.NewFromInt(10), Timestamp: now}

	next := ApplyTransaction(profile, txn, ScoringResult{IsFraud: true, RiskScore: 0.9}, WindowLimits{}, now)
	if next.FlaggedCount != 1 {
		t.Fatalf("expected flagged count 1, got %d", next.FlaggedCount)
	}
}

func TestApplyTransactionLateArrivalKeepsNewerState(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)
	limits := WindowLimits{MaxAge: 24 * time.Hour, MaxEntries: 100}
	profile := NewProfile("cust-001", now)

	newer := Transaction{
		TransactionID: "txn-new",
		Amount:        decimal.NewFromInt(10),
		Location:      &Location{Latitude: 40.7, Longitude: -74.0},
		Timestamp:     now,
	}
	profile = ApplyTransaction(profile, newer, ScoringResult{}, limits, now)

	late := Transaction{
		TransactionID: "txn-late",
		Amount:        decimal.NewFromInt(10),
		Location:      &Location{Latitude: 34.0, Longitude: -118.2},
		Timestamp:     now.Add(-time.Hour),
	}
	profile = ApplyTransaction(profile, late, ScoringResult{}, limits, now)

	if !profile.LastSeenAt.Equal(now) {
		t.Fatalf("late arrival must not rewind last seen, got %v", profile.LastSeenAt)
	}
	if profile.LastLocation == nil || profile.LastLocation.Latitude != 40.7 {
		t.Fatalf("late arrival must not overwrite last location, got %+v", profile.LastLocation)
	}
	if profile.Window[0].TransactionID != "txn-late" {
		t.Fatalf("late arrival should sort before newer entry, got %+v", profile.Window)
	}
}
