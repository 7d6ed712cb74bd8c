package events

import "testing"

func TestCheckpointTrackerInOrder(t *testing.T) {
	t.Parallel()
	tr := newCheckpointTracker()
	tr.Begin(0)
	tr.Begin(1)
	tr.Begin(2)

	if got := tr.Resolve(0); got != 0 {
		t.Fatalf("expected committable 0, got %d", got)
	}
	if got := tr.Resolve(1); got != 1 {
		t.Fatalf("expected committable 1, got %d", got)
	}
	if got := tr.Resolve(2); got != 2 {
		t.Fatalf("expected committable 2, got %d", got)
	}
}

func TestCheckpointTrackerOutOfOrderResolution(t *testing.T) {
	t.Parallel()
	tr := newCheckpointTracker()
	for i := int64(0); i < 4; i++ {
		tr.Begin(i)
	}

	// Later offsets resolving first must not advance the checkpoint past
	// the still-outstanding offset 0.
	if got := tr.Resolve(2); got != -1 {
		t.Fatalf("expected no advance, got %d", got)
	}
	if got := tr.Resolve(1); got != -1 {
		t.Fatalf("expected no advance, got %d", got)
	}
	// Offset 0 resolving releases the whole prefix.
	if got := tr.Resolve(0); got != 2 {
		t.Fatalf("expected committable 2, got %d", got)
	}
	if got := tr.Resolve(3); got != 3 {
		t.Fatalf("expected committable 3, got %d", got)
	}
}

func TestCheckpointTrackerGapNeverCommitted(t *testing.T) {
	t.Parallel()
	tr := newCheckpointTracker()
	tr.Begin(5)
	tr.Begin(6)
	tr.Begin(7)

	if got := tr.Resolve(6); got != -1 {
		t.Fatalf("expected no advance with offset 5 outstanding, got %d", got)
	}
	if got := tr.Resolve(7); got != -1 {
		t.Fatalf("expected no advance with offset 5 outstanding, got %d", got)
	}
	if got := tr.Resolve(5); got != 7 {
		t.Fatalf("expected the full prefix to commit, got %d", got)
	}
}
