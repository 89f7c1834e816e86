package subscription

import (
	"sync"
	"testing"
)

func TestNewSubscriptionIsActiveWithoutHandles(t *testing.T) {
	s := New(func(int) {})
	if s.State() != StateActive {
		t.Fatalf("state=%s", s.State())
	}
	if s.Handles() != 0 {
		t.Fatalf("handles=%d", s.Handles())
	}
}

func TestCallHonorsSuppression(t *testing.T) {
	var got []int
	s := New(func(v int) { got = append(got, v) })
	s.Call(1)
	s.Unsubscribe()
	if s.State() != StateSuppressed {
		t.Fatalf("state=%s", s.State())
	}
	s.Call(2)
	s.Resubscribe()
	s.Call(3)
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("got=%v", got)
	}
}

func TestDecrementToZeroInvalidatesOnce(t *testing.T) {
	calls := 0
	s := New(func(int) { calls++ })
	s.IncrementHandles()
	s.IncrementHandles()
	s.DecrementHandles()
	if !s.IsValid() {
		t.Fatalf("subscription invalid with one handle left")
	}
	s.DecrementHandles()
	if s.IsValid() || s.State() != StateInvalid {
		t.Fatalf("expected invalid after last decrement")
	}
	// Extra decrements never underflow.
	s.DecrementHandles()
	if s.Handles() != 0 {
		t.Fatalf("handles=%d", s.Handles())
	}
	s.Resubscribe()
	s.Call(1)
	if calls != 0 {
		t.Fatalf("invalid subscription delivered %d calls", calls)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	s := New(func(int) {})
	s.Invalidate()
	s.Invalidate()
	if s.IsValid() {
		t.Fatalf("expected invalid")
	}
}

func TestCallbackMayInvalidateItself(t *testing.T) {
	var s *Subscription[int]
	calls := 0
	s = New(func(int) {
		calls++
		s.Invalidate()
	})
	s.Call(1)
	s.Call(2)
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestConcurrentCallAndInvalidate(t *testing.T) {
	var mu sync.Mutex
	n := 0
	s := New(func(int) { mu.Lock(); n++; mu.Unlock() })
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Call(j)
			}
		}()
	}
	s.Invalidate()
	wg.Wait()
	before := n
	s.Call(0)
	if n != before {
		t.Fatalf("call after invalidate delivered")
	}
}
