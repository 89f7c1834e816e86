package process

import (
	"sync"
	"testing"
)

func TestRunExecutesInOrderThenIdle(t *testing.T) {
	m := New()
	var got []string
	m.SetIdleFunction(func() { got = append(got, "idle") })
	m.RequestProcess(func() { got = append(got, "a") })
	m.RequestProcess(func() { got = append(got, "b") })
	m.Run()
	want := []string{"a", "b", "idle"}
	if len(got) != len(want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got=%v want=%v", got, want)
		}
	}
}

func TestDrainRunsNestedRequests(t *testing.T) {
	m := New()
	depth := 0
	var step func()
	step = func() {
		depth++
		if depth < 50 {
			m.RequestProcess(step)
		}
	}
	m.RequestProcess(step)
	if n := m.Drain(); n != 50 {
		t.Fatalf("executed=%d", n)
	}
	if depth != 50 {
		t.Fatalf("depth=%d", depth)
	}
	if m.Pending() != 0 {
		t.Fatalf("pending=%d", m.Pending())
	}
}

func TestIdleWorkWaitsForNextRun(t *testing.T) {
	m := New()
	idleCalls, work := 0, 0
	m.SetIdleFunction(func() {
		idleCalls++
		m.RequestProcess(func() { work++ })
	})
	m.Run()
	if idleCalls != 1 || work != 0 {
		t.Fatalf("idle=%d work=%d", idleCalls, work)
	}
	if m.Pending() != 1 {
		t.Fatalf("pending=%d", m.Pending())
	}
	m.Run()
	if idleCalls != 2 || work != 1 {
		t.Fatalf("idle=%d work=%d", idleCalls, work)
	}
}

func TestIdleMayReplaceItself(t *testing.T) {
	m := New()
	calls := 0
	m.SetIdleFunction(func() {
		calls++
		m.SetIdleFunction(nil)
	})
	m.Run()
	m.Run()
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestConcurrentRequests(t *testing.T) {
	m := New()
	var mu sync.Mutex
	n := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RequestProcess(func() { mu.Lock(); n++; mu.Unlock() })
			}
		}()
	}
	wg.Wait()
	m.Run()
	if n != 1000 {
		t.Fatalf("n=%d", n)
	}
}

func TestNilRequestIgnored(t *testing.T) {
	m := New()
	m.RequestProcess(nil)
	if m.Pending() != 0 {
		t.Fatalf("pending=%d", m.Pending())
	}
	m.Run()
}
