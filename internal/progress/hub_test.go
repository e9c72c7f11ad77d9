package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TonyXing/youtube-to-epub/internal/types"
)

func event(status string, percent int, terminal bool) types.ProgressEvent {
	return types.ProgressEvent{JobID: "job", Status: status, Percent: percent, Terminal: terminal}
}

// collect drains a stream until it closes or the timeout fires.
func collect(t *testing.T, ch <-chan types.ProgressEvent) []types.ProgressEvent {
	t.Helper()
	var events []types.ProgressEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestSubscribeUnknownJob(t *testing.T) {
	hub := NewHub()
	_, _, err := hub.Subscribe("nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestSubscriberReceivesEventsInOrder(t *testing.T) {
	hub := NewHub()
	hub.Register("job")

	ch, _, err := hub.Subscribe("job")
	require.NoError(t, err)

	hub.Publish("job", event(types.StatusQueued, 5, false))
	hub.Publish("job", event(types.StatusFetchingMetadata, 15, false))
	hub.Publish("job", event(types.StatusCompleted, 100, true))

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, types.StatusQueued, events[0].Status)
	assert.Equal(t, types.StatusFetchingMetadata, events[1].Status)
	assert.Equal(t, types.StatusCompleted, events[2].Status)
}

func TestMultipleSubscribersSeeSameSequence(t *testing.T) {
	hub := NewHub()
	hub.Register("job")

	ch1, _, err := hub.Subscribe("job")
	require.NoError(t, err)
	ch2, _, err := hub.Subscribe("job")
	require.NoError(t, err)

	for p := 10; p <= 50; p += 10 {
		hub.Publish("job", event(types.StatusSummarizing, p, false))
	}
	hub.Publish("job", event(types.StatusCompleted, 100, true))

	events1 := collect(t, ch1)
	events2 := collect(t, ch2)
	assert.Equal(t, events1, events2)
	require.Len(t, events1, 6)
}

func TestLateSubscriberGetsSnapshotThenLiveEvents(t *testing.T) {
	hub := NewHub()
	hub.Register("job")

	hub.Publish("job", event(types.StatusQueued, 5, false))
	hub.Publish("job", event(types.StatusSegmenting, 35, false))

	ch, _, err := hub.Subscribe("job")
	require.NoError(t, err)

	hub.Publish("job", event(types.StatusCompleted, 100, true))

	events := collect(t, ch)
	require.Len(t, events, 2)
	// The snapshot is the latest pre-subscription state, not the history.
	assert.Equal(t, types.StatusSegmenting, events[0].Status)
	assert.Equal(t, 35, events[0].Percent)
	assert.True(t, events[1].Terminal)
}

func TestSubscribeAfterTerminal(t *testing.T) {
	hub := NewHub()
	hub.Register("job")
	hub.Publish("job", event(types.StatusFailed, 40, true))

	ch, _, err := hub.Subscribe("job")
	require.NoError(t, err)

	events := collect(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, types.StatusFailed, events[0].Status)
	assert.True(t, events[0].Terminal)
}

func TestPercentNeverDecreases(t *testing.T) {
	hub := NewHub()
	hub.Register("job")

	ch, _, err := hub.Subscribe("job")
	require.NoError(t, err)

	hub.Publish("job", event(types.StatusSummarizing, 60, false))
	hub.Publish("job", event(types.StatusSummarizing, 55, false))
	hub.Publish("job", event(types.StatusFailed, 0, true))

	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, 60, events[0].Percent)
	assert.Equal(t, 60, events[1].Percent)
	assert.Equal(t, 60, events[2].Percent)
}

func TestPublishAfterTerminalIsDropped(t *testing.T) {
	hub := NewHub()
	hub.Register("job")

	ch, _, err := hub.Subscribe("job")
	require.NoError(t, err)

	hub.Publish("job", event(types.StatusCompleted, 100, true))
	hub.Publish("job", event(types.StatusSummarizing, 70, false))

	events := collect(t, ch)
	require.Len(t, events, 1)
	assert.True(t, events[0].Terminal)

	last, ok := hub.Last("job")
	require.True(t, ok)
	assert.Equal(t, types.StatusCompleted, last.Status)
}

func TestCancelDetachesSubscriber(t *testing.T) {
	hub := NewHub()
	hub.Register("job")

	ch, cancel, err := hub.Subscribe("job")
	require.NoError(t, err)
	cancel()

	// Publishing after cancel must not block even with no reader.
	hub.Publish("job", event(types.StatusQueued, 5, false))
	hub.Publish("job", event(types.StatusCompleted, 100, true))
	_ = ch
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub()
	hub.Register("job")

	ch, _, err := hub.Subscribe("job")
	require.NoError(t, err)

	// Nothing reads ch while every event is published.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := 1; p <= 99; p++ {
			hub.Publish("job", event(types.StatusSummarizing, p, false))
		}
		hub.Publish("job", event(types.StatusCompleted, 100, true))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	events := collect(t, ch)
	assert.Len(t, events, 100)
}
