// Package host drives the bus on a fixed cadence. It is the application
// wiring the core leaves to its caller: it pumps the trampoline once per
// tick, queues the configured phase cycle, and re-arms the cycle for the
// next tick when the phase queue drains. It also implements the service the
// HTTP API exposes.
package host

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"phasebus/internal/config"
	"phasebus/internal/event"
	"phasebus/internal/key"
	"phasebus/internal/metrics"
	"phasebus/internal/phase"
	"phasebus/internal/subscription"
	"phasebus/pkg/types"
)

// Loop pumps one Bus. Publish, Status, and Ready are safe from any
// goroutine; Tick and Run must be driven by a single goroutine.
type Loop struct {
	bus    *event.Bus
	inputs *event.EventManager[types.InputEvent]

	phases []types.PhaseInfo
	cfg    config.Config
	names  map[phase.ID]string
	tick   time.Duration

	ticks    atomic.Uint64
	received atomic.Uint64
	ready    atomic.Bool
	rearm    atomic.Bool

	mu   sync.Mutex
	self *subscription.Handle[types.InputEvent]

	log zerolog.Logger
}

// New builds a loop for bus using the phase cycle and tick interval in cfg.
// cfg is expected to have defaults applied.
func New(bus *event.Bus, cfg config.Config) *Loop {
	l := &Loop{
		bus:    bus,
		inputs: event.For[types.InputEvent](bus),
		phases: append([]types.PhaseInfo(nil), cfg.Phases...),
		cfg:    cfg,
		names:  make(map[phase.ID]string, len(cfg.Phases)),
		tick:   time.Duration(cfg.TickMS) * time.Millisecond,
		log:    zerolog.Nop(),
	}
	l.cfg.Phases = l.phases
	for _, p := range l.phases {
		l.names[phase.ID(p.ID)] = p.Name
	}
	return l
}

// SetLogger installs a structured logger.
func (l *Loop) SetLogger(lg zerolog.Logger) { l.log = lg }

// Bus returns the driven bus.
func (l *Loop) Bus() *event.Bus { return l.bus }

// Start subscribes the loop's own input counter and queues the first phase
// cycle. Every time the phase queue drains, the next cycle is queued from
// the idle hook so each tick runs at most one cycle.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.self == nil {
		l.self = l.inputs.Subscribe(func(ev types.InputEvent) {
			l.received.Add(1)
			l.log.Debug().Str("text", ev.Text).Str("source", ev.Source).Msg("input event")
		})
	}
	l.mu.Unlock()

	ph := l.bus.Phases()
	ph.SetPhaseQueueEmptyCallback(func() { l.rearm.Store(true) })
	l.bus.Process().SetIdleFunction(func() {
		if l.rearm.CompareAndSwap(true, false) {
			l.queueCycle()
		}
	})
	for _, p := range l.phases {
		name := p.Name
		ph.SetPhaseStartCallback(phase.ID(p.ID), func() {
			l.log.Trace().Str("phase", name).Msg("phase start")
		})
	}
	l.queueCycle()
	l.ready.Store(true)
	l.log.Info().Int("phases", len(l.phases)).Dur("tick", l.tick).Msg("host loop started")
}

func (l *Loop) queueCycle() {
	ph := l.bus.Phases()
	for _, p := range l.phases {
		ph.QueuePhase(phase.ID(p.ID))
	}
}

// Tick pumps the trampoline once.
func (l *Loop) Tick() {
	l.bus.Run()
	l.ticks.Add(1)
	metrics.IncTick()
}

// Run ticks on the configured cadence until ctx is canceled.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			l.log.Info().Uint64("ticks", l.ticks.Load()).Msg("host loop stopped")
			return nil
		case <-t.C:
			l.Tick()
		}
	}
}

// Close releases the loop's subscription and stops re-arming the cycle.
func (l *Loop) Close() {
	l.ready.Store(false)
	l.bus.Phases().SetPhaseQueueEmptyCallback(nil)
	l.bus.Process().SetIdleFunction(nil)
	l.mu.Lock()
	l.self.Release()
	l.self = nil
	l.mu.Unlock()
}

// Ready reports whether Start has been called and Close has not.
func (l *Loop) Ready() bool { return l.ready.Load() }

// Phases returns the configured phase cycle.
func (l *Loop) Phases() []types.PhaseInfo {
	return append([]types.PhaseInfo(nil), l.phases...)
}

// Publish injects an InputEvent described by req. Without a phase the
// event is dispatched on the next tick; with a phase it is dispatched during
// that phase after req.Offset completed runs.
func (l *Loop) Publish(req types.EventRequest) (types.EventAccepted, error) {
	if strings.TrimSpace(req.Text) == "" {
		return types.EventAccepted{}, badRequestError{msg: "text is required"}
	}
	ev := types.InputEvent{Text: req.Text, Source: "http"}

	var k key.Key
	if req.Key != "" {
		var err error
		if k, err = key.New(req.Key); err != nil {
			return types.EventAccepted{}, badRequestError{msg: err.Error()}
		}
	}

	if req.Phase == "" {
		if req.Offset != 0 {
			return types.EventAccepted{}, badRequestError{msg: "offset requires a phase"}
		}
		if req.Key != "" {
			l.inputs.AddKeyedEvent(k, ev)
		} else {
			l.inputs.AddEvent(ev)
		}
		return types.EventAccepted{Mode: "immediate"}, nil
	}

	p, ok := l.cfg.PhaseByName(req.Phase)
	if !ok {
		return types.EventAccepted{}, ErrUnknownPhase(req.Phase)
	}
	if req.Key != "" {
		l.inputs.AddPhasedKeyedEvent(phase.ID(p.ID), k, req.Offset, ev)
	} else {
		l.inputs.AddPhasedEvent(phase.ID(p.ID), req.Offset, ev)
	}
	return types.EventAccepted{Mode: "phased", Phase: p.Name, Offset: req.Offset}, nil
}

// Status reports tick, trampoline, phase, and payload counters.
func (l *Loop) Status() types.StatusResponse {
	snap := l.bus.Phases().Snapshot()
	out := types.StatusResponse{
		Ticks:          l.ticks.Load(),
		ProcessPending: l.bus.Process().Pending(),
		PhaseQueue:     make([]uint32, 0, len(snap.Queue)),
		Delayed:        snap.Delayed,
		Received:       l.received.Load(),
	}
	for _, id := range snap.Queue {
		out.PhaseQueue = append(out.PhaseQueue, uint32(id))
	}
	for id, ps := range snap.Phases {
		out.Phases = append(out.Phases, types.PhaseStatus{
			ID:      uint32(id),
			Name:    l.names[id],
			Runs:    ps.Runs,
			Pending: ps.Pending,
			Delayed: ps.Delayed,
		})
	}
	sort.Slice(out.Phases, func(i, j int) bool { return out.Phases[i].ID < out.Phases[j].ID })
	for _, s := range l.bus.Stats() {
		out.Payloads = append(out.Payloads, types.PayloadStatus{
			Type:             s.Type,
			Subscribers:      s.Subscribers,
			KeyedSubscribers: s.KeyedSubscribers,
			Keys:             s.Keys,
			Pending:          s.Pending,
		})
	}
	return out
}
