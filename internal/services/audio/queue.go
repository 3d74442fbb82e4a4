package audio

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Queue is the ordered list of tracks of one guild. The head is the track
// playing while the session is playing. Queue has no lock of its own; the
// owning Session serializes access.
type Queue struct {
	entries []Track
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends t and returns the new length, which is also the
// 1-based position of t.
func (q *Queue) Enqueue(t Track) (int, error) {
	if t.Source == nil {
		return q.Len(), ErrUnresolvedTrack
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	q.entries = append(q.entries, t)
	return len(q.entries), nil
}

// Tracks returns a copy of the queue in order.
func (q *Queue) Tracks() []Track {
	out := make([]Track, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// TotalPlaytime sums the known durations. Entries without a duration count as zero.
func (q *Queue) TotalPlaytime() time.Duration {
	return lo.SumBy(q.entries, func(t Track) time.Duration { return t.Duration })
}

// UnknownDurations counts entries that contribute nothing to TotalPlaytime.
func (q *Queue) UnknownDurations() int {
	return lo.CountBy(q.entries, func(t Track) bool { return !t.HasDuration() })
}

// Head returns the first entry.
func (q *Queue) Head() (Track, bool) {
	if len(q.entries) == 0 {
		return Track{}, false
	}
	return q.entries[0], true
}

// PopFront removes and returns the first entry.
func (q *Queue) PopFront() (Track, bool) {
	head, ok := q.Head()
	if !ok {
		return Track{}, false
	}
	q.entries[0] = Track{}
	q.entries = q.entries[1:]
	return head, true
}

// TruncateAfterHead drops every entry but the first and returns how many were removed.
func (q *Queue) TruncateAfterHead() int {
	if len(q.entries) <= 1 {
		return 0
	}
	removed := len(q.entries) - 1
	q.entries = []Track{q.entries[0]}
	return removed
}

// Clear empties the queue and returns how many entries were removed.
func (q *Queue) Clear() int {
	n := len(q.entries)
	q.entries = nil
	return n
}
