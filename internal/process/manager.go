// Package process implements the deferred-call trampoline. Any goroutine may
// request a call; the goroutine that pumps the manager (Run or Drain)
// executes requests until the queue is observed empty. Nothing deferred
// through the bus runs unless something pumps this manager.
package process

import (
	"sync"

	"github.com/rs/zerolog"

	"phasebus/internal/metrics"
)

// Manager is a batch queue of zero-argument calls plus an idle callback.
// Requests are safe from any goroutine; Drain and Run must be called by one
// goroutine at a time.
type Manager struct {
	mu       sync.Mutex
	requests []func()

	idleMu sync.Mutex
	idle   func()

	log zerolog.Logger
}

// New returns an empty manager with logging disabled.
func New() *Manager {
	return &Manager{log: zerolog.Nop()}
}

// SetLogger installs a structured logger.
func (m *Manager) SetLogger(l zerolog.Logger) { m.log = l }

// RequestProcess appends fn to the queue. A nil fn is ignored.
func (m *Manager) RequestProcess(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.requests = append(m.requests, fn)
	m.mu.Unlock()
	metrics.IncProcessRequest()
}

// Pending returns the number of queued calls not yet executed.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Drain executes queued calls until a swap of the queue yields nothing.
// Calls made while draining may request further calls; those run in a
// later batch of the same Drain. The lock is held only for the swap.
// It returns the number of calls executed.
func (m *Manager) Drain() int {
	executed := 0
	for {
		m.mu.Lock()
		batch := m.requests
		m.requests = nil
		m.mu.Unlock()

		if len(batch) == 0 {
			break
		}
		for _, fn := range batch {
			fn()
		}
		executed += len(batch)
	}
	if executed > 0 {
		metrics.ObserveDrain(executed)
		m.log.Debug().Int("calls", executed).Msg("trampoline drained")
	}
	return executed
}

// Run drains the queue and then invokes the idle callback once. Work the
// idle callback requests waits for the next Run.
func (m *Manager) Run() {
	m.Drain()
	m.idleMu.Lock()
	idle := m.idle
	m.idleMu.Unlock()
	if idle != nil {
		idle()
	}
}

// SetIdleFunction replaces the idle callback. nil clears it.
func (m *Manager) SetIdleFunction(fn func()) {
	m.idleMu.Lock()
	m.idle = fn
	m.idleMu.Unlock()
}
