package event

import (
	"reflect"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"phasebus/internal/phase"
	"phasebus/internal/process"
)

type statser interface {
	Stats() Stats
	SetLogger(zerolog.Logger)
}

// Bus owns a process manager, a phase manager, and one EventManager per
// payload type.
type Bus struct {
	proc   *process.Manager
	phases *phase.Manager

	mu       sync.Mutex
	managers map[reflect.Type]statser
	log      zerolog.Logger
}

// NewBus returns a bus with a fresh trampoline and scheduler.
func NewBus() *Bus {
	proc := process.New()
	return &Bus{
		proc:     proc,
		phases:   phase.New(proc),
		managers: make(map[reflect.Type]statser),
		log:      zerolog.Nop(),
	}
}

// SetLogger installs l on the bus, its managers, and managers created later.
func (b *Bus) SetLogger(l zerolog.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = l
	b.proc.SetLogger(l.With().Str("component", "process").Logger())
	b.phases.SetLogger(l.With().Str("component", "phase").Logger())
	for _, m := range b.managers {
		m.SetLogger(l.With().Str("component", "event").Logger())
	}
}

// Process returns the trampoline.
func (b *Bus) Process() *process.Manager { return b.proc }

// Phases returns the scheduler.
func (b *Bus) Phases() *phase.Manager { return b.phases }

// Run pumps the trampoline once: drain, then the idle callback.
func (b *Bus) Run() { b.proc.Run() }

// For returns the EventManager for payload type T, creating it on first use.
func For[T any](b *Bus) *EventManager[T] {
	t := reflect.TypeFor[T]()
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.managers[t]; ok {
		return m.(*EventManager[T])
	}
	m := NewEventManager[T](b.proc, b.phases)
	m.SetLogger(b.log.With().Str("component", "event").Logger())
	b.managers[t] = m
	return m
}

// Stats reports every EventManager on the bus, ordered by type name.
func (b *Bus) Stats() []Stats {
	b.mu.Lock()
	out := make([]Stats, 0, len(b.managers))
	for _, m := range b.managers {
		out = append(out, m.Stats())
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
