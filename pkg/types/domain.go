package types

// InputEvent is the payload the host injects into the bus from the HTTP API
// and the demo command.
type InputEvent struct {
	// Text carried by the event.
	// example: Hello World1!
	Text string `json:"text" example:"Hello World1!"`
	// Source that produced the event (http, demo, ...).
	// example: http
	Source string `json:"source,omitempty" example:"http"`
}

// PhaseInfo names a phase the host queues every cycle.
type PhaseInfo struct {
	// Phase identifier passed to the scheduler.
	// example: 1
	ID uint32 `json:"id" yaml:"id" toml:"id" example:"1"`
	// Human-friendly phase name.
	// example: tick
	Name string `json:"name" yaml:"name" toml:"name" example:"tick"`
}
