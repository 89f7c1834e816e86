// Package phase implements the phase-ordered scheduler. A phase is an
// opaque identifier with its own FIFO of pending calls and optional start and
// end hooks. Phases are queued for execution in order, and each queued
// appearance runs in its own trampoline cycle on the process manager.
//
// Calls can be scheduled into a phase's current FIFO (offset Now) or N runs
// of that phase into the future (offset N). Delayed calls age by one each
// time their phase completes a run; when the offset reaches zero they move
// into the FIFO for the phase's following run.
package phase

import (
	"sync"
	"sync/atomic"
)

// ID identifies a phase. The host decides which IDs exist and what they mean.
type ID uint32

// Offsets accepted by RegisterEventCallback.
const (
	// Now schedules into the phase's live FIFO.
	Now uint = 0
	// Next schedules for the run after the phase's next completed run.
	Next uint = 1
)

// Phase holds the pending calls and hooks of one phase ID.
type Phase struct {
	mu    sync.Mutex
	calls []func()

	endMu    sync.Mutex
	endCalls []func()

	hookMu sync.Mutex
	start  func()
	end    func()

	runs atomic.Uint64
}

func (p *Phase) enqueue(fn func()) {
	p.mu.Lock()
	p.calls = append(p.calls, fn)
	p.mu.Unlock()
}

func (p *Phase) enqueueEnd(fn func()) {
	p.endMu.Lock()
	p.endCalls = append(p.endCalls, fn)
	p.endMu.Unlock()
}

func (p *Phase) setStart(fn func()) {
	p.hookMu.Lock()
	p.start = fn
	p.hookMu.Unlock()
}

func (p *Phase) setEnd(fn func()) {
	p.hookMu.Lock()
	p.end = fn
	p.hookMu.Unlock()
}

func (p *Phase) hooks() (start, end func()) {
	p.hookMu.Lock()
	defer p.hookMu.Unlock()
	return p.start, p.end
}

// pop removes the front of a live FIFO under its lock.
func pop(mu *sync.Mutex, q *[]func()) (func(), bool) {
	mu.Lock()
	defer mu.Unlock()
	if len(*q) == 0 {
		return nil, false
	}
	fn := (*q)[0]
	(*q)[0] = nil
	*q = (*q)[1:]
	return fn, true
}

// Pending returns the number of calls waiting in the FIFO.
func (p *Phase) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Runs returns the number of completed runs.
func (p *Phase) Runs() uint64 { return p.runs.Load() }

// run invokes the start hook, drains the FIFO until it is empty (calls added
// while draining run in this same pass), drains the end-of-phase queue, then
// invokes the end hook. Hooks are read before invocation, so a hook may
// replace itself.
func (p *Phase) run() {
	start, _ := p.hooks()
	if start != nil {
		start()
	}
	for {
		fn, ok := pop(&p.mu, &p.calls)
		if !ok {
			break
		}
		fn()
	}
	for {
		fn, ok := pop(&p.endMu, &p.endCalls)
		if !ok {
			break
		}
		fn()
	}
	if _, end := p.hooks(); end != nil {
		end()
	}
	p.runs.Add(1)
}

// DelayedEvent is a call waiting for its phase to complete a number of runs.
type DelayedEvent struct {
	phase     ID
	remaining uint
	fn        func()
}

// Phase returns the phase the event is registered against.
func (d *DelayedEvent) Phase() ID { return d.phase }

// Remaining returns the number of runs left before the call is released.
func (d *DelayedEvent) Remaining() uint { return d.remaining }
