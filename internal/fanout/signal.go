// Package fanout turns mutation notifications into cancellable, batch
// coalesced live streams.
package fanout

import "sync"

type entry[T any] struct {
	fn func(T)
	id uint64
}

// Signal is a set of listeners notified synchronously on Emit.
// Add and the returned remove functions are safe to call from any goroutine.
type Signal[T any] struct {
	listeners []entry[T]
	nextID    uint64
	mu        sync.Mutex
}

// NewSignal creates an empty Signal.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{}
}

// Add registers fn and returns a function removing it. Removing twice is a no-op.
func (s *Signal[T]) Add(fn func(T)) (remove func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, entry[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every listener with v, in registration order.
// Listeners run on the caller's goroutine.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()

	for _, e := range listeners {
		e.fn(v)
	}
}

// Len returns the number of registered listeners.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
