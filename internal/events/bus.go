package events

import (
	"github.com/kelindar/event"
)

// Bus wraps the kelindar/event dispatcher for in-process event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ScenarioCompletedEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the concrete type, so fan out through a
	// type switch rather than the interface value
	switch e := ev.(type) {
	case ServiceStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RunCompletedEvent:
		event.Publish(b.dispatcher, e)
	case ScenarioCompletedEvent:
		event.Publish(b.dispatcher, e)
	case BatchCompletedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler's
// parameter type determines which events it receives. Returns an
// unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ScenarioCompletedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ServiceStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RunCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ScenarioCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BatchCompletedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unknown handler types get a no-op unsubscribe
		return func() {}
	}
}
