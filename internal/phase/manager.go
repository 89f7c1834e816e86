package phase

import (
	"sync"

	"github.com/rs/zerolog"

	"phasebus/internal/metrics"
	"phasebus/internal/process"
)

// Manager owns the phase queue, the phases, and the delayed events. Phase
// cycles execute on the process manager passed to New.
type Manager struct {
	proc *process.Manager

	phasesMu sync.Mutex
	phases   map[ID]*Phase

	queueMu sync.Mutex
	queue   []ID

	delayedMu sync.Mutex
	delayed   map[ID][]*DelayedEvent

	emptyMu sync.Mutex
	onEmpty func()

	log zerolog.Logger
}

// New returns a manager that schedules its cycles on proc.
func New(proc *process.Manager) *Manager {
	return &Manager{
		proc:    proc,
		phases:  make(map[ID]*Phase),
		delayed: make(map[ID][]*DelayedEvent),
		log:     zerolog.Nop(),
	}
}

// SetLogger installs a structured logger.
func (m *Manager) SetLogger(l zerolog.Logger) { m.log = l }

// phase returns the Phase for id, creating it on first reference.
func (m *Manager) phase(id ID) *Phase {
	m.phasesMu.Lock()
	defer m.phasesMu.Unlock()
	p, ok := m.phases[id]
	if !ok {
		p = &Phase{}
		m.phases[id] = p
	}
	return p
}

// QueuePhase appends id to the phase queue. Queueing into an empty queue
// requests one trampoline cycle; later cycles are chained by the cycle
// itself.
func (m *Manager) QueuePhase(id ID) {
	m.queueMu.Lock()
	m.queue = append(m.queue, id)
	first := len(m.queue) == 1
	m.queueMu.Unlock()
	if first {
		m.requestCycle()
	}
}

// RunUntilEmpty requests a trampoline cycle without queueing a phase. Use it
// to resume processing of an already populated queue.
func (m *Manager) RunUntilEmpty() { m.requestCycle() }

func (m *Manager) requestCycle() { m.proc.RequestProcess(m.managePhases) }

// RegisterEventCallback schedules fn on phase id. Offset Now appends to the
// phase's live FIFO: it runs in the current run if that run has not finished
// draining, otherwise in the next one. Offset N >= 1 releases fn into the
// FIFO after N completed runs of the phase, so it executes in run N+1.
func (m *Manager) RegisterEventCallback(id ID, offset uint, fn func()) {
	if fn == nil {
		return
	}
	if offset == Now {
		m.phase(id).enqueue(fn)
		return
	}
	m.delayedMu.Lock()
	m.delayed[id] = append(m.delayed[id], &DelayedEvent{phase: id, remaining: offset, fn: fn})
	m.delayedMu.Unlock()
	metrics.IncDelayedScheduled(uint32(id))
}

// RegisterEndOfPhaseCallback schedules a one-shot fn that runs after the
// FIFO of phase id has drained and before its end hook.
func (m *Manager) RegisterEndOfPhaseCallback(id ID, fn func()) {
	if fn == nil {
		return
	}
	m.phase(id).enqueueEnd(fn)
}

// SetPhaseStartCallback replaces the start hook of phase id.
func (m *Manager) SetPhaseStartCallback(id ID, fn func()) { m.phase(id).setStart(fn) }

// SetPhaseEndCallback replaces the end hook of phase id.
func (m *Manager) SetPhaseEndCallback(id ID, fn func()) { m.phase(id).setEnd(fn) }

// SetPhaseQueueEmptyCallback replaces the callback invoked when a cycle
// leaves the phase queue empty. Hosts use it to re-queue their phase cycle.
func (m *Manager) SetPhaseQueueEmptyCallback(fn func()) {
	m.emptyMu.Lock()
	m.onEmpty = fn
	m.emptyMu.Unlock()
}

// managePhases runs one trampoline cycle: pop a phase, run it, age its
// delayed events, then chain the next cycle or report the empty queue.
func (m *Manager) managePhases() {
	m.queueMu.Lock()
	if len(m.queue) == 0 {
		m.queueMu.Unlock()
		return
	}
	id := m.queue[0]
	m.queue = m.queue[1:]
	m.queueMu.Unlock()

	p := m.phase(id)
	p.run()
	metrics.IncPhaseRun(uint32(id))
	m.age(id, p)
	m.log.Debug().Uint32("phase", uint32(id)).Uint64("run", p.Runs()).Msg("phase complete")

	m.queueMu.Lock()
	more := len(m.queue) > 0
	m.queueMu.Unlock()
	if more {
		// Appended after already pending trampoline work, so non-phased
		// requests run before the next phase.
		m.requestCycle()
		return
	}

	m.emptyMu.Lock()
	onEmpty := m.onEmpty
	m.emptyMu.Unlock()
	if onEmpty != nil {
		onEmpty()
	}
}

// age decrements the delayed events of phase id and moves the expired ones
// into the phase FIFO for its next run.
func (m *Manager) age(id ID, p *Phase) {
	m.delayedMu.Lock()
	defer m.delayedMu.Unlock()
	events, ok := m.delayed[id]
	if !ok {
		return
	}
	kept := events[:0]
	for _, d := range events {
		d.remaining--
		if d.remaining == 0 {
			p.enqueue(d.fn)
			metrics.IncDelayedReleased(uint32(id))
			continue
		}
		kept = append(kept, d)
	}
	for i := len(kept); i < len(events); i++ {
		events[i] = nil
	}
	if len(kept) == 0 {
		delete(m.delayed, id)
		return
	}
	m.delayed[id] = kept
}

// Delayed returns copies of the delayed events registered against id.
func (m *Manager) Delayed(id ID) []DelayedEvent {
	m.delayedMu.Lock()
	defer m.delayedMu.Unlock()
	out := make([]DelayedEvent, 0, len(m.delayed[id]))
	for _, d := range m.delayed[id] {
		out = append(out, DelayedEvent{phase: d.phase, remaining: d.remaining})
	}
	return out
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Queue   []ID
	Phases  map[ID]PhaseStatus
	Delayed int
}

// PhaseStatus describes one known phase.
type PhaseStatus struct {
	Runs    uint64
	Pending int
	Delayed int
}

// Snapshot reports the queue, per-phase counters, and delayed totals.
func (m *Manager) Snapshot() Status {
	st := Status{Phases: make(map[ID]PhaseStatus)}

	m.queueMu.Lock()
	st.Queue = append([]ID(nil), m.queue...)
	m.queueMu.Unlock()

	m.phasesMu.Lock()
	phases := make(map[ID]*Phase, len(m.phases))
	for id, p := range m.phases {
		phases[id] = p
	}
	m.phasesMu.Unlock()

	m.delayedMu.Lock()
	delayed := make(map[ID]int, len(m.delayed))
	for id, ds := range m.delayed {
		delayed[id] = len(ds)
		st.Delayed += len(ds)
	}
	m.delayedMu.Unlock()

	for id, p := range phases {
		st.Phases[id] = PhaseStatus{Runs: p.Runs(), Pending: p.Pending(), Delayed: delayed[id]}
	}
	for id, n := range delayed {
		if _, ok := st.Phases[id]; !ok {
			st.Phases[id] = PhaseStatus{Delayed: n}
		}
	}
	return st
}
