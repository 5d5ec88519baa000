// Package events carries lifecycle notifications between the supervisor,
// the metrics collectors and the HTTP API.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its concrete type.
// Usage: bus.Publish(ServerCrashedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ServerStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ServerCrashedEvent:
		event.Publish(b.dispatcher, e)
	case ServerRemovedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessSpawnedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessExitedEvent:
		event.Publish(b.dispatcher, e)
	case PortReservedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type it accepts and returns
// an unsubscribe function. Unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e ServerCrashedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ServerStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ServerCrashedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ServerRemovedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessSpawnedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PortReservedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

