package subscription

import (
	"runtime"
	"sync/atomic"

	"phasebus/internal/key"
)

// handleRef is the part of a Handle a GC cleanup may touch. It is a separate
// allocation so the cleanup does not keep the Handle itself reachable.
type handleRef[T any] struct {
	sub      *Subscription[T]
	released atomic.Bool
}

func releaseRef[T any](r *handleRef[T]) {
	if r.released.CompareAndSwap(false, true) {
		r.sub.DecrementHandles()
	}
}

// Handle keeps a Subscription alive. Each Handle counts once toward the
// subscription's handle count until Release is called. The zero Handle and a
// nil *Handle refer to no subscription; every method on them is a no-op.
//
// Release is the contract. A Handle that becomes unreachable without it is
// released when the GC collects it, but only if the subscription's callback
// cannot reach the Handle. A receiver that stores its own Handle and
// subscribes one of its methods stays reachable from the event manager and
// keeps receiving events until it calls Release.
//
// A Handle is owned by one goroutine at a time; use Clone to share.
type Handle[T any] struct {
	ref     *handleRef[T]
	cleanup runtime.Cleanup
}

// NewHandle returns a handle counting toward sub. A nil sub yields an
// empty handle.
func NewHandle[T any](sub *Subscription[T]) *Handle[T] {
	h := &Handle[T]{}
	h.attach(sub)
	return h
}

func (h *Handle[T]) attach(sub *Subscription[T]) {
	if sub == nil {
		h.ref = nil
		return
	}
	sub.IncrementHandles()
	h.ref = &handleRef[T]{sub: sub}
	h.cleanup = runtime.AddCleanup(h, releaseRef[T], h.ref)
}

func (h *Handle[T]) detach() {
	if h.ref == nil {
		return
	}
	h.cleanup.Stop()
	releaseRef(h.ref)
	h.ref = nil
}

func (h *Handle[T]) live() *Subscription[T] {
	if h == nil || h.ref == nil || h.ref.released.Load() {
		return nil
	}
	return h.ref.sub
}

// Clone returns a new handle to the same subscription.
func (h *Handle[T]) Clone() *Handle[T] {
	return NewHandle(h.live())
}

// Assign makes h refer to the subscription of other. The old target is
// released before the new one is counted. Assigning a handle to a handle of
// the same subscription leaves the count unchanged.
func (h *Handle[T]) Assign(other *Handle[T]) {
	if h == nil {
		return
	}
	next := other.live()
	if cur := h.live(); cur != nil && cur == next {
		return
	}
	h.detach()
	h.attach(next)
}

// Release drops this handle's reference. Releasing the last handle
// invalidates the subscription. Further calls are no-ops.
func (h *Handle[T]) Release() {
	if h == nil {
		return
	}
	h.detach()
}

// Unsubscribe suppresses delivery to the subscription.
func (h *Handle[T]) Unsubscribe() {
	if s := h.live(); s != nil {
		s.Unsubscribe()
	}
}

// Resubscribe restores delivery to the subscription.
func (h *Handle[T]) Resubscribe() {
	if s := h.live(); s != nil {
		s.Resubscribe()
	}
}

// Call delivers ev directly to the subscription, honoring its state.
func (h *Handle[T]) Call(ev T) {
	if s := h.live(); s != nil {
		s.Call(ev)
	}
}

// State reports the subscription state; an empty or released handle reports
// StateInvalid.
func (h *Handle[T]) State() State {
	if s := h.live(); s != nil {
		return s.State()
	}
	return StateInvalid
}

// Valid reports whether the handle refers to a valid subscription.
func (h *Handle[T]) Valid() bool { return h.State() != StateInvalid }

// KeyedHandle is a Handle to a subscription registered under a Key.
type KeyedHandle[T any] struct {
	*Handle[T]
	key key.Key
}

// NewKeyedHandle returns a keyed handle counting toward sub.
func NewKeyedHandle[T any](k key.Key, sub *Subscription[T]) *KeyedHandle[T] {
	return &KeyedHandle[T]{Handle: NewHandle(sub), key: k}
}

// Key returns the key the subscription was registered under.
func (h *KeyedHandle[T]) Key() key.Key {
	if h == nil {
		return key.Key{}
	}
	return h.key
}

// Clone returns a new keyed handle to the same subscription.
func (h *KeyedHandle[T]) Clone() *KeyedHandle[T] {
	if h == nil {
		return &KeyedHandle[T]{Handle: &Handle[T]{}}
	}
	return &KeyedHandle[T]{Handle: h.Handle.Clone(), key: h.key}
}
