package service

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventHostChanged       EventType = "host_changed"
	EventConnectionChanged EventType = "connection_changed"
	EventReset             EventType = "reset"
	EventReplayed          EventType = "replayed"
)

// Event represents a model change published to subscribers
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, s := range eb.subscribers {
		if s == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers. It never blocks the
// reconciliation loop; slow subscribers miss events.
func (eb *EventBus) Publish(event Event) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	dropped := 0
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	return dropped
}
