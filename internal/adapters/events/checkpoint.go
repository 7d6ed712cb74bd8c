package events

// checkpointTracker computes the committable offset for one partition: the
// highest offset such that every fetched offset up to and including it has
// been resolved. Offsets are begun in fetch order (monotonic within a
// partition).
type checkpointTracker struct {
	inflight []int64
	resolved map[int64]bool
}

func newCheckpointTracker() *checkpointTracker {
	return &checkpointTracker{resolved: make(map[int64]bool)}
}

func (t *checkpointTracker) Begin(offset int64) {
	t.inflight = append(t.inflight, offset)
}

// Resolve marks an offset terminal and returns the new committable offset,
// or -1 when the contiguous prefix has not advanced (an earlier offset is
// still outstanding).
func (t *checkpointTracker) Resolve(offset int64) int64 {
	t.resolved[offset] = true
	committable := int64(-1)
	for len(t.inflight) > 0 && t.resolved[t.inflight[0]] {
		committable = t.inflight[0]
		delete(t.resolved, t.inflight[0])
		t.inflight = t.inflight[1:]
	}
	return committable
}
