// Package subscription holds the callback records that event managers
// dispatch to and the reference-counted handles that keep them alive.
//
// A Subscription is created by an event manager and stays valid for exactly
// as long as at least one Handle refers to it. When the last handle is
// released the callback is cleared; the manager prunes the record on its next
// dispatch pass. A cleared subscription never becomes valid again.
package subscription

import (
	"sync"
	"sync/atomic"
)

// State is the observable lifecycle state of a Subscription.
type State int32

const (
	// StateActive means events are delivered.
	StateActive State = iota
	// StateSuppressed means the subscription is alive but unsubscribed.
	StateSuppressed
	// StateInvalid means every handle was released; permanent.
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSuppressed:
		return "suppressed"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Subscription owns one callback for payload type T.
type Subscription[T any] struct {
	fnMu sync.Mutex
	fn   func(T)

	countMu sync.Mutex
	handles int

	subscribed atomic.Bool
}

// New returns an active subscription with no handles.
func New[T any](fn func(T)) *Subscription[T] {
	s := &Subscription[T]{fn: fn}
	s.subscribed.Store(true)
	return s
}

// IncrementHandles records one more live handle.
func (s *Subscription[T]) IncrementHandles() {
	s.countMu.Lock()
	s.handles++
	s.countMu.Unlock()
}

// DecrementHandles records a released handle and invalidates the
// subscription when none remain.
func (s *Subscription[T]) DecrementHandles() {
	s.countMu.Lock()
	if s.handles == 0 {
		s.countMu.Unlock()
		return
	}
	s.handles--
	n := s.handles
	s.countMu.Unlock()

	if n == 0 {
		s.Invalidate()
	}
}

// Handles returns the number of live handles.
func (s *Subscription[T]) Handles() int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.handles
}

// Invalidate clears the callback. Safe to call more than once.
func (s *Subscription[T]) Invalidate() {
	s.fnMu.Lock()
	s.fn = nil
	s.fnMu.Unlock()
}

// IsValid reports whether the callback is still present.
func (s *Subscription[T]) IsValid() bool {
	s.fnMu.Lock()
	defer s.fnMu.Unlock()
	return s.fn != nil
}

// IsSubscribed reports whether delivery is currently enabled.
func (s *Subscription[T]) IsSubscribed() bool { return s.subscribed.Load() }

// Unsubscribe suppresses delivery without affecting validity.
func (s *Subscription[T]) Unsubscribe() { s.subscribed.Store(false) }

// Resubscribe re-enables delivery.
func (s *Subscription[T]) Resubscribe() { s.subscribed.Store(true) }

// State reports the current lifecycle state.
func (s *Subscription[T]) State() State {
	if !s.IsValid() {
		return StateInvalid
	}
	if !s.IsSubscribed() {
		return StateSuppressed
	}
	return StateActive
}

// Call delivers ev when the subscription is valid and subscribed. The
// callback is copied out before it runs, so a concurrent Invalidate either
// lets this call finish or is observed before it starts. The callback may
// re-enter the subscription (for example to release its own handle).
func (s *Subscription[T]) Call(ev T) {
	s.fnMu.Lock()
	fn := s.fn
	s.fnMu.Unlock()
	if fn == nil || !s.subscribed.Load() {
		return
	}
	fn(ev)
}
