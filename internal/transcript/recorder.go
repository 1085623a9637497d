// ABOUTME: Append-only log of every sent and received activity with timestamps.
// ABOUTME: Pure data sink with no control logic; never blocks, never fails.

package transcript

import (
	"sync"
	"time"

	"github.com/2389/coven-harness/internal/activity"
)

// Direction indicates whether an activity left the harness or arrived.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Entry is one recorded activity with its direction and capture time.
type Entry struct {
	Direction Direction
	Activity  activity.Activity
	Timestamp time.Time
}

// Recorder is the scenario-scoped transcript. Recording is purely
// additive; earlier entries are never mutated, so the transcript stays
// usable for post-hoc diagnostics even when an exchange times out.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewRecorder creates an empty transcript recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record appends an activity. It always succeeds and never blocks.
func (r *Recorder) Record(dir Direction, act activity.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		Direction: dir,
		Activity:  act,
		Timestamp: r.now(),
	})
}

// Sent records an outbound activity.
func (r *Recorder) Sent(act activity.Activity) { r.Record(DirectionSent, act) }

// Received records an inbound activity. Satisfies ingress.Recorder.
func (r *Recorder) Received(act activity.Activity) { r.Record(DirectionReceived, act) }

// Snapshot returns an immutable copy of everything recorded so far.
// The read is non-destructive and repeatable.
func (r *Recorder) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Activities returns the recorded activities filtered by direction, in
// record order. An empty direction returns everything.
func (r *Recorder) Activities(dir Direction) []activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]activity.Activity, 0, len(r.entries))
	for _, e := range r.entries {
		if dir != "" && e.Direction != dir {
			continue
		}
		out = append(out, e.Activity)
	}
	return out
}

// Len reports the number of recorded entries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
