package harness

import (
	"sync"
	"time"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
)

// EventType enumerates the progress notifications the orchestrator
// publishes while executing a run.
type EventType string

const (
	EventTestProgress EventType = "test_progress"
	EventTestResult   EventType = "test_result"
	EventRunComplete  EventType = "run_complete"
)

// Event is one progress notification. Events for a single run are
// published in order; delivery is best effort and a slow subscriber
// drops events rather than stalling the run.
type Event struct {
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ProgressPayload accompanies test_progress events.
type ProgressPayload struct {
	ConfigID        string  `json:"config_id"`
	Completed       int     `json:"completed"`
	Total           int     `json:"total"`
	ProgressPercent float64 `json:"progress_percent"`
}

// EventBus fans orchestrator events out to subscribers over buffered
// channels.
type EventBus struct {
	mu     sync.Mutex
	buffer int
	nextID int
	subs   map[int]chan Event
}

// NewEventBus creates a bus whose subscriber channels buffer the given
// number of events.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 1
	}
	return &EventBus{
		buffer: buffer,
		subs:   map[int]chan Event{},
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// removes the subscription and closes the channel; it is safe to call
// more than once.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking;
// subscribers with full buffers miss the event.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			grip.Warning(message.Fields{
				"message":    "dropping event for slow subscriber",
				"subscriber": id,
				"event":      event.Type,
				"run_id":     event.RunID,
			})
		}
	}
}

// SubscriberCount reports the number of active subscriptions.
func (b *EventBus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}
