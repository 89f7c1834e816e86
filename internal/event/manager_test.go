package event

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"phasebus/internal/key"
	"phasebus/internal/phase"
	"phasebus/internal/subscription"
)

type recorder struct{ got []string }

func (r *recorder) add(s string) { r.got = append(r.got, s) }

func (r *recorder) expect(t *testing.T, want ...string) {
	t.Helper()
	if len(r.got) != len(want) {
		t.Fatalf("got=%v want=%v", r.got, want)
	}
	for i := range want {
		if r.got[i] != want[i] {
			t.Fatalf("got=%v want=%v", r.got, want)
		}
	}
	r.got = nil
}

func TestSubscribeUnsubscribeResubscribe(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var f recorder
	h := em.Subscribe(f.add)

	em.AddEvent("x")
	bus.Run()
	f.expect(t, "x")

	h.Unsubscribe()
	em.AddEvent("y")
	bus.Run()
	f.expect(t)

	h.Resubscribe()
	em.AddEvent("z")
	bus.Run()
	f.expect(t, "z")

	h.Release()
	em.AddEvent("after")
	bus.Run()
	f.expect(t)
}

func TestNoDispatchWithoutPump(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var f recorder
	h := em.Subscribe(f.add)
	em.AddEvent("x")
	f.expect(t)
	if bus.Process().Pending() != 1 {
		t.Fatalf("pending=%d", bus.Process().Pending())
	}
	bus.Run()
	f.expect(t, "x")
	h.Release()
}

func TestKeyedEventsAreIsolated(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var g1, g2, all recorder
	h1 := em.KeyedSubscribe(key.MustNew(1), g1.add)
	h2 := em.KeyedSubscribe(key.MustNew(2), g2.add)
	ha := em.Subscribe(all.add)

	em.AddKeyedEvent(key.MustNew(1), "a")
	em.AddKeyedEvent(key.MustNew(2), "b")
	bus.Run()

	g1.expect(t, "a")
	g2.expect(t, "b")
	all.expect(t, "a", "b")

	if em.KeyCount() != 2 || em.KeyedSubscriberCount() != 2 {
		t.Fatalf("keys=%d keyed=%d", em.KeyCount(), em.KeyedSubscriberCount())
	}
	h1.Release()
	h2.Release()
	ha.Release()
}

func TestUnknownKeyReachesNoKeyedSubscriber(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var g recorder
	h := em.KeyedSubscribe(key.MustNew("known"), g.add)
	em.AddKeyedEvent(key.MustNew("unknown"), "x")
	bus.Run()
	g.expect(t)
	h.Release()
}

func TestSubscribeDuringDispatchSeesNextEventOnly(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var late recorder
	var lateHandle *subscription.Handle[string]
	first := em.Subscribe(func(s string) {
		if lateHandle == nil {
			lateHandle = em.Subscribe(late.add)
		}
	})
	em.AddEvent("e1")
	bus.Run()
	late.expect(t)

	em.AddEvent("e2")
	bus.Run()
	late.expect(t, "e2")
	first.Release()
	lateHandle.Release()
}

func TestDispatchOrderIsInsertionOrder(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var r recorder
	var hs []*subscription.Handle[string]
	for _, name := range []string{"a", "b", "c"} {
		name := name
		hs = append(hs, em.Subscribe(func(s string) { r.add(name + s) }))
	}
	em.AddEvent("1")
	bus.Run()
	r.expect(t, "a1", "b1", "c1")
	for _, h := range hs {
		h.Release()
	}
}

func TestDroppedHandleIsSkippedAndPruned(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var keep, drop recorder
	hk := em.Subscribe(keep.add)
	hd := em.Subscribe(drop.add)
	em.AddEvent("warm")
	bus.Run()
	keep.expect(t, "warm")
	drop.expect(t, "warm")
	if em.SubscriberCount() != 2 {
		t.Fatalf("subscribers=%d", em.SubscriberCount())
	}

	hd.Release()
	em.AddEvent("x")
	bus.Run()
	keep.expect(t, "x")
	drop.expect(t)
	if em.SubscriberCount() != 1 {
		t.Fatalf("subscribers=%d after prune", em.SubscriberCount())
	}
	hk.Release()
}

func TestHandleReleasedDuringDispatchStopsLaterDelivery(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var second recorder
	var h2 *subscription.Handle[string]
	h1 := em.Subscribe(func(string) { h2.Release() })
	h2 = em.Subscribe(second.add)
	em.AddEvent("x")
	bus.Run()
	second.expect(t)
	h1.Release()
}

func TestKeyedEntryRemovedWhenEmpty(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	h := em.KeyedSubscribe(key.MustNew(9), func(string) {})
	em.AddKeyedEvent(key.MustNew(9), "x")
	bus.Run()
	if em.KeyCount() != 1 {
		t.Fatalf("keys=%d", em.KeyCount())
	}
	h.Release()
	em.AddKeyedEvent(key.MustNew(9), "y")
	bus.Run()
	if em.KeyCount() != 0 {
		t.Fatalf("keys=%d", em.KeyCount())
	}
	if _, ok := em.keyed[key.MustNew(9)]; ok {
		t.Fatalf("empty key entry left in map")
	}
}

func TestPhasedEventDispatchesOnPhase(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var r recorder
	h := em.Subscribe(r.add)
	const tick phase.ID = 1

	em.AddPhasedEvent(tick, phase.Now, "now")
	em.AddPhasedEvent(tick, phase.Next, "next")
	bus.Run()
	r.expect(t)

	bus.Phases().QueuePhase(tick)
	bus.Run()
	r.expect(t, "now")

	bus.Phases().QueuePhase(tick)
	bus.Run()
	r.expect(t, "next")
	h.Release()
}

func TestPhasedKeyedEvent(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var k1, k2, all recorder
	h1 := em.KeyedSubscribe(key.MustNew(1), k1.add)
	h2 := em.KeyedSubscribe(key.MustNew(2), k2.add)
	ha := em.Subscribe(all.add)

	em.AddPhasedKeyedEvent(5, key.MustNew(1), phase.Now, "a")
	bus.Phases().QueuePhase(5)
	bus.Run()
	k1.expect(t, "a")
	k2.expect(t)
	all.expect(t, "a")
	h1.Release()
	h2.Release()
	ha.Release()
}

func TestHandlerAddingPhasedEventToSamePhaseRunsThisCycle(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var r recorder
	h := em.Subscribe(func(s string) {
		r.add(s)
		if s == "first" {
			em.AddPhasedEvent(2, phase.Now, "second")
		}
	})
	// Merge the subscription before the phase runs.
	em.AddEvent("warm")
	bus.Run()
	r.expect(t, "warm")

	em.AddPhasedEvent(2, phase.Now, "first")
	bus.Phases().QueuePhase(2)
	bus.Run()
	r.expect(t, "first", "second")
	h.Release()
}

func TestForReturnsSameManagerPerType(t *testing.T) {
	bus := NewBus()
	if For[string](bus) != For[string](bus) {
		t.Fatalf("expected one manager per type")
	}
	For[int](bus)
	stats := bus.Stats()
	if len(stats) != 2 || stats[0].Type != "int" || stats[1].Type != "string" {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestNilCallbackYieldsEmptyHandle(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	if h := em.Subscribe(nil); h.Valid() {
		t.Fatalf("nil callback produced a valid handle")
	}
	if h := em.KeyedSubscribe(key.MustNew(1), nil); h.Valid() {
		t.Fatalf("nil callback produced a valid keyed handle")
	}
	if em.PendingCount() != 0 {
		t.Fatalf("pending=%d", em.PendingCount())
	}
}

func TestPendingCountBeforeMerge(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	h := em.Subscribe(func(string) {})
	kh := em.KeyedSubscribe(key.MustNew(1), func(string) {})
	if em.PendingCount() != 2 {
		t.Fatalf("pending=%d", em.PendingCount())
	}
	em.AddKeyedEvent(key.MustNew(1), "x")
	bus.Run()
	st := em.Stats()
	if st.Pending != 0 || st.Subscribers != 1 || st.KeyedSubscribers != 1 || st.Keys != 1 {
		t.Fatalf("stats=%+v", st)
	}
	h.Release()
	kh.Release()
}

func collectGarbage() {
	for i := 0; i < 20; i++ {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDroppedHandleIsCollected(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var f recorder
	func() {
		_ = em.Subscribe(f.add)
	}()
	collectGarbage()

	em.AddEvent("a")
	bus.Run()
	f.expect(t)
	if em.SubscriberCount() != 0 {
		t.Fatalf("subscribers=%d want 0", em.SubscriberCount())
	}
}

type countingReceiver struct {
	deliveries *atomic.Int64
	handle     *subscription.Handle[string]
}

func (r *countingReceiver) receive(string) { r.deliveries.Add(1) }

func TestReceiverOwningItsHandleStaysSubscribed(t *testing.T) {
	bus := NewBus()
	em := For[string](bus)
	var deliveries atomic.Int64
	func() {
		r := &countingReceiver{deliveries: &deliveries}
		r.handle = em.Subscribe(r.receive)
	}()
	collectGarbage()

	em.AddEvent("a")
	bus.Run()
	if deliveries.Load() != 1 || em.SubscriberCount() != 1 {
		t.Fatalf("deliveries=%d subscribers=%d; a receiver reachable from its callback must Release explicitly",
			deliveries.Load(), em.SubscriberCount())
	}
}

func TestConcurrentSubscribeAndAddWhilePumping(t *testing.T) {
	const workers, iterations = 8, 100
	bus := NewBus()
	em := For[string](bus)
	var delivered atomic.Int64
	keep := em.Subscribe(func(string) { delivered.Add(1) })

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				h := em.Subscribe(func(string) {})
				em.AddEvent(fmt.Sprintf("%d-%d", w, i))
				h.Release()
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for pumping := true; pumping; {
		select {
		case <-done:
			pumping = false
		default:
			bus.Run()
		}
	}

	em.AddEvent("final")
	bus.Run()
	if got, want := delivered.Load(), int64(workers*iterations+1); got != want {
		t.Fatalf("delivered=%d want %d", got, want)
	}
	if em.SubscriberCount() != 1 || em.PendingCount() != 0 {
		t.Fatalf("subscribers=%d pending=%d; released subscriptions must be pruned",
			em.SubscriberCount(), em.PendingCount())
	}
	keep.Release()
}
