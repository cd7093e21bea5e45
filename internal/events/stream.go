package events

import (
	"slices"
	"sync"
)

// Stream is a synchronous publish/subscribe channel for a single event type.
//
// Publish calls every subscriber on the publishing goroutine, in registration
// order, before it returns. Values that reference mutable state (CaptureEvent)
// must only travel over a Stream, never over the asynchronous Bus.
//
// The zero value is ready to use.
type Stream[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it again.
// The returned function is safe to call more than once.
func (s *Stream[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.subs = slices.DeleteFunc(s.subs, func(sub subscriber[T]) bool {
				return sub.id == id
			})
		})
	}
}

// Publish delivers v to all current subscribers.
// Subscribers added or removed while Publish runs take effect on the next call.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

// Len returns the number of registered subscribers.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
