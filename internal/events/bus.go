package events

import (
	"sync"

	"dvbox/pkg/logging"
)

// Type identifies what happened to a connection record.
type Type string

const (
	ConnectionCreated Type = "connection:created"
	ConnectionUpdated Type = "connection:updated"
	ConnectionDeleted Type = "connection:deleted"
)

// Event is delivered to subscribers whenever the connection store
// mutates. Fields carries a partial-update payload for updates; token
// values are never included, only their metadata.
type Event struct {
	Type         Type
	ConnectionID string
	Fields       map[string]interface{}
}

// Handler receives connection events. Handlers run synchronously on the
// publishing goroutine and must not block.
type Handler func(Event)

// Bus is a minimal synchronous publish/subscribe fan-out for connection
// events. A hosting shell subscribes to mirror store changes into its
// UI.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// Publish delivers the event to every subscriber. A panicking handler is
// logged and skipped so one bad subscriber cannot take down the store.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Events", "Subscriber panicked handling %s for %s: %v", ev.Type, ev.ConnectionID, r)
		}
	}()
	h(ev)
}
