package subscription

import (
	"testing"

	"phasebus/internal/key"
)

func TestHandleCountsAndRelease(t *testing.T) {
	s := New(func(int) {})
	h := NewHandle(s)
	if s.Handles() != 1 {
		t.Fatalf("handles=%d", s.Handles())
	}
	c := h.Clone()
	if s.Handles() != 2 {
		t.Fatalf("handles=%d", s.Handles())
	}
	h.Release()
	h.Release() // idempotent per handle
	if s.Handles() != 1 || !s.IsValid() {
		t.Fatalf("handles=%d valid=%v", s.Handles(), s.IsValid())
	}
	c.Release()
	if s.IsValid() {
		t.Fatalf("expected invalid after last release")
	}
}

func TestReleasedHandleIsInert(t *testing.T) {
	s := New(func(int) {})
	keep := NewHandle(s)
	h := NewHandle(s)
	h.Release()
	h.Unsubscribe()
	if !s.IsSubscribed() {
		t.Fatalf("released handle must not suppress")
	}
	if h.Valid() {
		t.Fatalf("released handle reports valid")
	}
	if c := h.Clone(); c.Valid() || s.Handles() != 1 {
		t.Fatalf("clone of released handle must be empty; handles=%d", s.Handles())
	}
	keep.Release()
}

func TestZeroHandleIsNoop(t *testing.T) {
	var h Handle[int]
	h.Unsubscribe()
	h.Resubscribe()
	h.Call(1)
	h.Release()
	if h.State() != StateInvalid {
		t.Fatalf("state=%s", h.State())
	}
	var nilh *Handle[int]
	nilh.Unsubscribe()
	nilh.Release()
	if nilh.Valid() {
		t.Fatalf("nil handle valid")
	}
	var kh KeyedHandle[int]
	kh.Unsubscribe()
	kh.Release()
	if !kh.Key().IsZero() {
		t.Fatalf("zero keyed handle key")
	}
}

func TestAssignReleasesOldThenCountsNew(t *testing.T) {
	a := New(func(int) {})
	b := New(func(int) {})
	ha := NewHandle(a)
	hb := NewHandle(b)
	ha.Assign(hb)
	if a.IsValid() {
		t.Fatalf("old target should be invalid after its only handle moved")
	}
	if b.Handles() != 2 {
		t.Fatalf("b handles=%d", b.Handles())
	}
	ha.Release()
	hb.Release()
	if b.IsValid() {
		t.Fatalf("b should be invalid")
	}
}

func TestSelfAssignKeepsSubscriptionAlive(t *testing.T) {
	s := New(func(int) {})
	h := NewHandle(s)
	h.Assign(h)
	if !s.IsValid() || s.Handles() != 1 {
		t.Fatalf("self-assign changed state: valid=%v handles=%d", s.IsValid(), s.Handles())
	}
	c := h.Clone()
	h.Assign(c)
	if s.Handles() != 2 {
		t.Fatalf("handles=%d", s.Handles())
	}
	h.Release()
	c.Release()
}

func TestSuppressionSharedAcrossHandles(t *testing.T) {
	calls := 0
	s := New(func(int) { calls++ })
	h1 := NewHandle(s)
	h2 := h1.Clone()
	h1.Unsubscribe()
	h2.Call(1)
	h1.Resubscribe()
	h2.Call(2)
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
	h1.Release()
	if !h2.Valid() {
		t.Fatalf("h2 should keep subscription valid")
	}
	h2.Release()
}

func TestHandleSequencesInvalidateExactlyOnce(t *testing.T) {
	s := New(func(int) {})
	handles := []*Handle[int]{NewHandle(s)}
	for i := 0; i < 5; i++ {
		handles = append(handles, handles[len(handles)-1].Clone())
	}
	for i, h := range handles {
		if !s.IsValid() {
			t.Fatalf("invalid before last release (i=%d)", i)
		}
		h.Release()
	}
	if s.IsValid() {
		t.Fatalf("valid after all released")
	}
	// A fresh handle cannot revive it.
	h := NewHandle(s)
	if h.Valid() {
		t.Fatalf("revived invalid subscription")
	}
	h.Release()
}

func TestKeyedHandleDelegates(t *testing.T) {
	k := key.MustNew(3)
	s := New(func(int) {})
	kh := NewKeyedHandle(k, s)
	if kh.Key() != k {
		t.Fatalf("key mismatch")
	}
	kh.Unsubscribe()
	if s.IsSubscribed() {
		t.Fatalf("expected suppressed")
	}
	kh.Resubscribe()
	c := kh.Clone()
	if c.Key() != k || s.Handles() != 2 {
		t.Fatalf("clone mismatch handles=%d", s.Handles())
	}
	kh.Release()
	c.Release()
	if s.IsValid() {
		t.Fatalf("expected invalid")
	}
}
