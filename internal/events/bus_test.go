package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	var got []Type
	bus.Subscribe(func(ev Event) { got = append(got, ev.Type) })
	bus.Subscribe(func(ev Event) { got = append(got, ev.Type) })

	bus.Publish(Event{Type: ConnectionCreated, ConnectionID: "c1"})

	assert.Len(t, got, 2)
	assert.Equal(t, ConnectionCreated, got[0])
	assert.Equal(t, ConnectionCreated, got[1])
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	unsubscribe := bus.Subscribe(func(Event) { count++ })

	bus.Publish(Event{Type: ConnectionUpdated, ConnectionID: "c1"})
	unsubscribe()
	bus.Publish(Event{Type: ConnectionUpdated, ConnectionID: "c1"})

	assert.Equal(t, 1, count)
}

func TestBusSurvivesPanickingSubscriber(t *testing.T) {
	bus := NewBus()

	delivered := false
	bus.Subscribe(func(Event) { panic("bad subscriber") })
	bus.Subscribe(func(Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(Event{Type: ConnectionDeleted, ConnectionID: "c1"})
	})
	assert.True(t, delivered, "healthy subscriber should still receive the event")
}

func TestBusConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Type: ConnectionUpdated, ConnectionID: "c1"})
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, count)
}
