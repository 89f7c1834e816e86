package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"phasebus/internal/event"
	"phasebus/internal/key"
	"phasebus/internal/phase"
	"phasebus/internal/subscription"
	"phasebus/pkg/types"
)

const demoSeparator = "------------"

// demoPhase is the phase the phased part of the demo schedules on.
const demoPhase phase.ID = 1

func newDemoCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Print the subscription, keyed, and phased dispatch walkthrough",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := opts.LogLevel
			if level == "" {
				level = "warn"
			}
			lg, err := newLogger(cmd.ErrOrStderr(), level, "console")
			if err != nil {
				return err
			}
			runDemo(cmd.OutOrStdout(), lg)
			return nil
		},
	}
}

type inputReceiver struct {
	out    io.Writer
	handle *subscription.Handle[types.InputEvent]
}

func newInputReceiver(m *event.EventManager[types.InputEvent], out io.Writer) *inputReceiver {
	r := &inputReceiver{out: out}
	r.handle = m.Subscribe(r.receive)
	return r
}

func (r *inputReceiver) receive(ev types.InputEvent) { fmt.Fprintf(r.out, "IER:%s\n", ev.Text) }
func (r *inputReceiver) Unsubscribe()                { r.handle.Unsubscribe() }
func (r *inputReceiver) Resubscribe()                { r.handle.Resubscribe() }
func (r *inputReceiver) Close()                      { r.handle.Release() }

type keyedInputReceiver struct {
	out    io.Writer
	x      int
	handle *subscription.KeyedHandle[types.InputEvent]
}

func newKeyedInputReceiver(m *event.EventManager[types.InputEvent], x int, out io.Writer) *keyedInputReceiver {
	r := &keyedInputReceiver{out: out, x: x}
	r.handle = m.KeyedSubscribe(key.MustNew(x), r.receive)
	return r
}

func (r *keyedInputReceiver) receive(ev types.InputEvent) {
	fmt.Fprintf(r.out, "KIER[%d]:%s\n", r.x, ev.Text)
}
func (r *keyedInputReceiver) Unsubscribe() { r.handle.Unsubscribe() }
func (r *keyedInputReceiver) Resubscribe() { r.handle.Resubscribe() }
func (r *keyedInputReceiver) Close()       { r.handle.Release() }

// runDemo drives a private bus by hand: unkeyed receivers, keyed receivers,
// then phased delivery. Lines marked "shouldn't print" are published to
// suppressed or released receivers and never reach out.
func runDemo(out io.Writer, lg zerolog.Logger) {
	bus := event.NewBus()
	bus.SetLogger(lg)
	inputs := event.For[types.InputEvent](bus)
	add := func(text string) {
		inputs.AddEvent(types.InputEvent{Text: text, Source: "demo"})
	}
	addKeyed := func(x int, text string) {
		inputs.AddKeyedEvent(key.MustNew(x), types.InputEvent{Text: text, Source: "demo"})
	}

	func() {
		ier := newInputReceiver(inputs, out)
		defer ier.Close()

		add("Hello World1!")
		bus.Run()
		add("Hello World2!")
		add("Hello World3!")
		bus.Run()
		ier.Unsubscribe()
		add("Hello World - shouldn't print 1!")
		bus.Run()
		ier.Resubscribe()
		add("Hello World4!")
		bus.Run()
	}()
	add("Hello World - shouldn't print 2!")
	bus.Run()

	fmt.Fprintln(out, demoSeparator)

	func() {
		kier := newKeyedInputReceiver(inputs, 1, out)
		defer kier.Close()
		kier2 := newKeyedInputReceiver(inputs, 2, out)
		defer kier2.Close()

		addKeyed(1, "Hello World1!")
		addKeyed(2, "~Hello World1!")
		bus.Run()
		addKeyed(2, "~Hello World2!")
		addKeyed(1, "Hello World2!")
		addKeyed(1, "Hello World3!")
		addKeyed(2, "~Hello World3!")
		bus.Run()
		kier.Unsubscribe()
		kier2.Unsubscribe()
		addKeyed(1, "Hello World - shouldn't print 1!")
		addKeyed(2, "~Hello World - shouldn't print 1!")
		bus.Run()
		kier.Resubscribe()
		kier2.Resubscribe()
		addKeyed(2, "~Hello World4!")
		addKeyed(1, "Hello World4!")
		bus.Run()
	}()
	addKeyed(1, "Hello World - shouldn't print 2!")
	addKeyed(2, "~Hello World - shouldn't print 2!")
	bus.Run()

	fmt.Fprintln(out, demoSeparator)

	func() {
		ier := newInputReceiver(inputs, out)
		defer ier.Close()
		ph := bus.Phases()
		ph.SetPhaseEndCallback(demoPhase, func() { fmt.Fprintln(out, "END") })

		inputs.AddPhasedEvent(demoPhase, phase.Next, types.InputEvent{Text: "Phased Next!", Source: "demo"})
		inputs.AddPhasedEvent(demoPhase, phase.Now, types.InputEvent{Text: "Phased Now!", Source: "demo"})
		ph.QueuePhase(demoPhase)
		bus.Run()
		ph.QueuePhase(demoPhase)
		bus.Run()
		ph.SetPhaseEndCallback(demoPhase, nil)
	}()
}
