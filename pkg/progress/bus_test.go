package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan Event, n int, timeout time.Duration) []Event {
	var out []Event
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case evt, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestPublishPreservesOrderPerRun(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("run-1")
	defer cancel()

	bus.Publish(NewRunStartedEvent("run-1"))
	bus.Publish(NewStepStartedEvent("run-1", 0, "upload_asset", 0))
	bus.Publish(NewStepSuccessEvent("run-1", 0, "upload_asset", 33))
	bus.Publish(NewRunCompletedEvent("run-1", "1 successful"))

	events := collect(ch, 4, time.Second)
	require.Len(t, events, 4)
	assert.Equal(t, EventRunStarted, events[0].Type)
	assert.Equal(t, EventStepStarted, events[1].Type)
	assert.Equal(t, EventStepSuccess, events[2].Type)
	assert.Equal(t, EventRunCompleted, events[3].Type)
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	bus := NewBus()

	bus.Publish(NewRunStartedEvent("run-1"))
	bus.Publish(NewStepStartedEvent("run-1", 0, "comment", 0))

	ch, cancel := bus.Subscribe("run-1")
	defer cancel()

	bus.Publish(NewStepSuccessEvent("run-1", 0, "comment", 100))

	events := collect(ch, 2, 100*time.Millisecond)
	require.Len(t, events, 1, "only the post-subscribe event arrives")
	assert.Equal(t, EventStepSuccess, events[0].Type)
}

func TestRunsAreIsolated(t *testing.T) {
	bus := NewBus()
	ch1, cancel1 := bus.Subscribe("run-1")
	defer cancel1()
	ch2, cancel2 := bus.Subscribe("run-2")
	defer cancel2()

	bus.Publish(NewRunStartedEvent("run-1"))

	assert.Len(t, collect(ch1, 1, time.Second), 1)
	assert.Empty(t, collect(ch2, 1, 50*time.Millisecond))
}

func TestFanOutToMultipleSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, cancel1 := bus.Subscribe("run-1")
	defer cancel1()
	ch2, cancel2 := bus.Subscribe("run-1")
	defer cancel2()

	bus.Publish(NewStepStartedEvent("run-1", 0, "share_asset", 0))

	assert.Len(t, collect(ch1, 1, time.Second), 1)
	assert.Len(t, collect(ch2, 1, time.Second), 1)
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe("run-1")
	defer cancel()

	// Overflow the buffer without draining; Publish must return regardless.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.Publish(NewStepStartedEvent("run-1", i, "upload_asset", 0))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated subscriber")
	}
}

func TestPublishWithoutSubscribersIsNoOp(t *testing.T) {
	bus := NewBus()
	bus.Publish(NewRunStartedEvent("run-ghost"))
	assert.Equal(t, 0, bus.SubscriberCount("run-ghost"))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("run-1")

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open, "channel closed after unsubscribe")
	assert.Equal(t, 0, bus.SubscriberCount("run-1"))
}

func TestCloseRunEndsSubscribers(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe("run-1")
	defer cancel()

	bus.Publish(NewRunCompletedEvent("run-1", "done"))
	bus.CloseRun("run-1")

	events := collect(ch, 10, time.Second)
	require.Len(t, events, 1)
	assert.True(t, events[0].IsTerminal())

	// Channel is closed; cancel afterwards stays safe.
	_, open := <-ch
	assert.False(t, open)
	cancel()
}

func TestEventClassifiers(t *testing.T) {
	assert.True(t, NewRunCompletedEvent("r", "").IsTerminal())
	assert.True(t, NewRunCanceledEvent("r", 50).IsTerminal())
	assert.False(t, NewStepStartedEvent("r", 0, "comment", 0).IsTerminal())

	assert.True(t, NewStepSkippedEvent("r", 1, "share_asset", "no recipients", 0).IsStepEvent())
	assert.False(t, NewRunStartedEvent("r").IsStepEvent())
}
