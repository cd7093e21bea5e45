package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for asynchronous fan-out to observers
// that live outside the main loop (status feed, log streaming).
// Only value events that implement Event may be published here.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ConnectEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case DeviceSelectedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ConnectEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type selects the event type. Handlers run on dispatcher
// goroutines, not on the publisher's goroutine.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ConnectEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DeviceSelectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConnectEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unknown handler type, nothing to unsubscribe
		return func() {}
	}
}

// Forward mirrors every value published on s to the bus.
// Returns the unsubscribe function of the underlying stream subscription.
func Forward[T Event](s *Stream[T], b *Bus) func() {
	return s.Subscribe(func(e T) {
		b.Publish(e)
	})
}

// SubscribeToChannel bridges bus subscriptions to a channel for select-based
// consumers such as the websocket status feed. Events are dropped when ch is full.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full (non-blocking)
		}
	})
}
