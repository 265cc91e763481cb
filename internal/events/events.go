// Package events provides the process-wide event bus used to tell open views
// that the session changed underneath them.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType classifies an event.
type EventType string

const (
	// EventSessionChanged fires whenever the session identity is set or cleared.
	EventSessionChanged EventType = "session.changed"
	// EventCartCleared fires when a checkout empties the cart.
	EventCartCleared EventType = "cart.cleared"
)

// Event is a single notification on the bus.
type Event struct {
	Type      EventType         `json:"type"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// String returns the JSON form of the event.
func (e Event) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// Handler receives events.
type Handler func(Event)

// Bus fans events out to subscribers. Delivery is synchronous and best-effort:
// a panicking handler is isolated from the publisher and the other handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	nextID   uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[uint64]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to a snapshot of the current subscribers.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(h, e)
	}
}

// Len returns the number of subscribers. A nil bus has none.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func deliver(h Handler, e Event) {
	defer func() {
		_ = recover()
	}()
	h(e)
}
