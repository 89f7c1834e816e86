// Package event provides per-payload-type publish/subscribe on top of the
// process trampoline and the phase scheduler.
//
// Each EventManager[T] keeps an unkeyed subscriber list and a map of keyed
// subscriber lists. New subscriptions land in a pending buffer and become
// visible at the start of the next dispatch pass for that manager, so a
// handler that subscribes while an event is being dispatched does not see
// that event. Every dispatch pass merges pending subscriptions, prunes the
// ones whose handles were all released, and calls the remaining ones in
// insertion order.
//
// Events are never dispatched inline. AddEvent and AddKeyedEvent request a
// trampoline call; AddPhasedEvent and AddPhasedKeyedEvent register the
// dispatch with the phase scheduler. The host must pump the trampoline:
//
//	bus := event.NewBus()
//	inputs := event.For[types.InputEvent](bus)
//	h := inputs.Subscribe(func(ev types.InputEvent) { fmt.Println(ev.Text) })
//	defer h.Release()
//	inputs.AddEvent(types.InputEvent{Text: "hello"})
//	bus.Run()
//
// Bus is the explicit registry that owns the trampoline, the scheduler, and
// one EventManager per payload type.
package event
