package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversInOrder(t *testing.T) {
	bus := NewEventBus(8)
	events, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Type: EventTestProgress, RunID: "r1"})
	bus.Publish(Event{Type: EventTestResult, RunID: "r1"})
	bus.Publish(Event{Type: EventRunComplete, RunID: "r1"})

	assert.Equal(t, EventTestProgress, (<-events).Type)
	assert.Equal(t, EventTestResult, (<-events).Type)

	last := <-events
	assert.Equal(t, EventRunComplete, last.Type)
	assert.False(t, last.Timestamp.IsZero())
}

func TestEventBusDropsForSlowSubscribers(t *testing.T) {
	bus := NewEventBus(1)
	events, cancel := bus.Subscribe()
	defer cancel()

	// the second publish overflows the buffer and is dropped rather
	// than blocking
	bus.Publish(Event{Type: EventTestProgress, RunID: "r1"})
	bus.Publish(Event{Type: EventTestResult, RunID: "r1"})

	first := <-events
	assert.Equal(t, EventTestProgress, first.Type)
	select {
	case event := <-events:
		t.Fatalf("unexpected event %s", event.Type)
	default:
	}
}

func TestEventBusSubscriptionLifecycle(t *testing.T) {
	bus := NewEventBus(4)
	require.Zero(t, bus.SubscriberCount())

	events, cancel := bus.Subscribe()
	other, otherCancel := bus.Subscribe()
	defer otherCancel()
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(Event{Type: EventRunComplete, RunID: "r1"})
	assert.Equal(t, EventRunComplete, (<-events).Type)
	assert.Equal(t, EventRunComplete, (<-other).Type)

	cancel()
	cancel() // safe to call twice
	assert.Equal(t, 1, bus.SubscriberCount())

	_, open := <-events
	assert.False(t, open)
}
