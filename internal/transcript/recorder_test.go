// ABOUTME: Tests for the append-only transcript recorder.
// ABOUTME: Validates snapshot immutability, direction filtering, and concurrency.

package transcript

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-harness/internal/activity"
)

func TestRecordAndSnapshot(t *testing.T) {
	r := NewRecorder()

	r.Sent(activity.New("conv-1", "question"))
	r.Received(activity.New("conv-1", "answer"))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, DirectionSent, snap[0].Direction)
	assert.Equal(t, "question", snap[0].Activity.Text)
	assert.Equal(t, DirectionReceived, snap[1].Direction)
	assert.False(t, snap[0].Timestamp.IsZero())
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	r := NewRecorder()
	r.Sent(activity.New("conv-1", "one"))

	snap := r.Snapshot()
	r.Received(activity.New("conv-1", "two"))

	assert.Len(t, snap, 1)
	assert.Len(t, r.Snapshot(), 2)
}

func TestSnapshotIsRepeatable(t *testing.T) {
	r := NewRecorder()
	r.Sent(activity.New("conv-1", "one"))

	first := r.Snapshot()
	second := r.Snapshot()
	assert.Equal(t, first, second)
}

func TestActivitiesFiltersByDirection(t *testing.T) {
	r := NewRecorder()
	r.Sent(activity.New("conv-1", "out-1"))
	r.Received(activity.New("conv-1", "in-1"))
	r.Sent(activity.New("conv-1", "out-2"))

	sent := r.Activities(DirectionSent)
	require.Len(t, sent, 2)
	assert.Equal(t, "out-1", sent[0].Text)
	assert.Equal(t, "out-2", sent[1].Text)

	all := r.Activities("")
	assert.Len(t, all, 3)
}

func TestConcurrentRecording(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Received(activity.New(fmt.Sprintf("conv-%d", n), "reply"))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 500, r.Len())
}
