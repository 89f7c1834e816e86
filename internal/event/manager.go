package event

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"phasebus/internal/key"
	"phasebus/internal/metrics"
	"phasebus/internal/phase"
	"phasebus/internal/process"
	"phasebus/internal/subscription"
)

type keyedEntry[T any] struct {
	key key.Key
	sub *subscription.Subscription[T]
}

// EventManager is the subscriber registry for payload type T. Subscribe and
// the Add* methods are safe from any goroutine; dispatch runs on whichever
// goroutine pumps the process manager.
type EventManager[T any] struct {
	name   string
	proc   *process.Manager
	phases *phase.Manager

	// Owned by the pumping goroutine.
	live  []*subscription.Subscription[T]
	keyed map[key.Key][]*subscription.Subscription[T]

	pendingMu sync.Mutex
	pending   []*subscription.Subscription[T]

	keyedPendingMu sync.Mutex
	keyedPending   []keyedEntry[T]

	liveCount  atomic.Int64
	keyedCount atomic.Int64
	keyCount   atomic.Int64

	log zerolog.Logger
}

// NewEventManager returns a manager that dispatches through proc and
// schedules phased events on phases.
func NewEventManager[T any](proc *process.Manager, phases *phase.Manager) *EventManager[T] {
	return &EventManager[T]{
		name:   reflect.TypeFor[T]().String(),
		proc:   proc,
		phases: phases,
		keyed:  make(map[key.Key][]*subscription.Subscription[T]),
		log:    zerolog.Nop(),
	}
}

// SetLogger installs a structured logger.
func (m *EventManager[T]) SetLogger(l zerolog.Logger) {
	m.log = l.With().Str("payload", m.name).Logger()
}

// Name returns the payload type name.
func (m *EventManager[T]) Name() string { return m.name }

// Subscribe registers fn for every event of type T. The returned handle
// already counts toward the subscription; the subscription becomes visible
// to dispatch at the next dispatch pass.
func (m *EventManager[T]) Subscribe(fn func(T)) *subscription.Handle[T] {
	if fn == nil {
		return &subscription.Handle[T]{}
	}
	sub := subscription.New(fn)
	h := subscription.NewHandle(sub)
	m.pendingMu.Lock()
	m.pending = append(m.pending, sub)
	m.pendingMu.Unlock()
	return h
}

// KeyedSubscribe registers fn for events added under k.
func (m *EventManager[T]) KeyedSubscribe(k key.Key, fn func(T)) *subscription.KeyedHandle[T] {
	if fn == nil {
		return subscription.NewKeyedHandle[T](k, nil)
	}
	sub := subscription.New(fn)
	h := subscription.NewKeyedHandle(k, sub)
	m.keyedPendingMu.Lock()
	m.keyedPending = append(m.keyedPending, keyedEntry[T]{key: k, sub: sub})
	m.keyedPendingMu.Unlock()
	return h
}

// AddEvent requests a dispatch of ev to the unkeyed subscribers.
func (m *EventManager[T]) AddEvent(ev T) {
	m.proc.RequestProcess(func() { m.manageEvent(ev) })
}

// AddKeyedEvent requests a dispatch of ev to the unkeyed subscribers and to
// the subscribers registered under k.
func (m *EventManager[T]) AddKeyedEvent(k key.Key, ev T) {
	m.proc.RequestProcess(func() { m.manageEvent(ev) })
	m.proc.RequestProcess(func() { m.manageKeyedEvent(k, ev) })
}

// AddPhasedEvent schedules the dispatch of ev on phase id at offset.
func (m *EventManager[T]) AddPhasedEvent(id phase.ID, offset uint, ev T) {
	m.phases.RegisterEventCallback(id, offset, func() { m.manageEvent(ev) })
}

// AddPhasedKeyedEvent schedules the unkeyed and keyed dispatch of ev on
// phase id at offset.
func (m *EventManager[T]) AddPhasedKeyedEvent(id phase.ID, k key.Key, offset uint, ev T) {
	m.phases.RegisterEventCallback(id, offset, func() { m.manageEvent(ev) })
	m.phases.RegisterEventCallback(id, offset, func() { m.manageKeyedEvent(k, ev) })
}

// manageEvent merges, prunes, then calls every live unkeyed subscription.
func (m *EventManager[T]) manageEvent(ev T) {
	m.mergePending()
	m.pruneInvalid()
	metrics.IncDispatch(m.name, "unkeyed")
	// Re-entrant Subscribe only touches the pending buffer, so the range
	// over m.live is stable for this pass.
	for _, sub := range m.live {
		sub.Call(ev)
	}
}

// manageKeyedEvent merges, prunes, then calls the subscriptions under k.
// An unknown key reaches nobody.
func (m *EventManager[T]) manageKeyedEvent(k key.Key, ev T) {
	m.mergeKeyedPending()
	m.pruneInvalidKeyed()
	metrics.IncDispatch(m.name, "keyed")
	for _, sub := range m.keyed[k] {
		sub.Call(ev)
	}
}

func (m *EventManager[T]) mergePending() {
	m.pendingMu.Lock()
	pending := m.pending
	m.pending = nil
	m.pendingMu.Unlock()
	m.live = append(m.live, pending...)
}

func (m *EventManager[T]) mergeKeyedPending() {
	m.keyedPendingMu.Lock()
	pending := m.keyedPending
	m.keyedPending = nil
	m.keyedPendingMu.Unlock()
	for _, e := range pending {
		m.keyed[e.key] = append(m.keyed[e.key], e.sub)
	}
}

func (m *EventManager[T]) pruneInvalid() {
	before := len(m.live)
	m.live = compact(m.live)
	if n := before - len(m.live); n > 0 {
		m.log.Debug().Int("pruned", n).Msg("pruned subscriptions")
	}
	m.liveCount.Store(int64(len(m.live)))
	metrics.SetSubscribers(m.name, "unkeyed", len(m.live))
}

func (m *EventManager[T]) pruneInvalidKeyed() {
	total := 0
	for k, subs := range m.keyed {
		subs = compact(subs)
		if len(subs) == 0 {
			delete(m.keyed, k)
			continue
		}
		m.keyed[k] = subs
		total += len(subs)
	}
	m.keyedCount.Store(int64(total))
	m.keyCount.Store(int64(len(m.keyed)))
	metrics.SetSubscribers(m.name, "keyed", total)
}

// compact removes invalid subscriptions in place, preserving order.
func compact[T any](subs []*subscription.Subscription[T]) []*subscription.Subscription[T] {
	kept := subs[:0]
	for _, s := range subs {
		if s.IsValid() {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(subs); i++ {
		subs[i] = nil
	}
	return kept
}

// SubscriberCount returns the live unkeyed subscriptions as of the last
// dispatch pass.
func (m *EventManager[T]) SubscriberCount() int { return int(m.liveCount.Load()) }

// KeyedSubscriberCount returns the live keyed subscriptions across all keys
// as of the last keyed dispatch pass.
func (m *EventManager[T]) KeyedSubscriberCount() int { return int(m.keyedCount.Load()) }

// KeyCount returns the number of keys with at least one live subscription as
// of the last keyed dispatch pass.
func (m *EventManager[T]) KeyCount() int { return int(m.keyCount.Load()) }

// PendingCount returns subscriptions not yet merged into the live lists.
func (m *EventManager[T]) PendingCount() int {
	m.pendingMu.Lock()
	n := len(m.pending)
	m.pendingMu.Unlock()
	m.keyedPendingMu.Lock()
	n += len(m.keyedPending)
	m.keyedPendingMu.Unlock()
	return n
}

// Stats is a point-in-time view of one EventManager.
type Stats struct {
	Type             string
	Subscribers      int
	KeyedSubscribers int
	Keys             int
	Pending          int
}

// Stats reports the manager counters.
func (m *EventManager[T]) Stats() Stats {
	return Stats{
		Type:             m.name,
		Subscribers:      m.SubscriberCount(),
		KeyedSubscribers: m.KeyedSubscriberCount(),
		Keys:             m.KeyCount(),
		Pending:          m.PendingCount(),
	}
}
