package types

// EventRequest is the body of POST /events.
type EventRequest struct {
	// Required event text.
	// example: hello
	Text string `json:"text" example:"hello"`
	// Optional routing key. When set, keyed subscribers under this key also
	// receive the event.
	// example: player-1
	Key string `json:"key,omitempty" example:"player-1"`
	// Optional phase name. When set, the event is dispatched during that
	// phase instead of on the next trampoline drain.
	// example: tick
	Phase string `json:"phase,omitempty" example:"tick"`
	// Number of completed runs of Phase to wait before dispatching.
	// example: 0
	Offset uint `json:"offset,omitempty" example:"0"`
}

// EventAccepted acknowledges an injected event.
type EventAccepted struct {
	// How the event was scheduled: immediate or phased.
	// example: phased
	Mode string `json:"mode" example:"phased"`
	// Phase the event was scheduled on, if any.
	// example: tick
	Phase string `json:"phase,omitempty" example:"tick"`
	// Offset the event was scheduled with.
	// example: 1
	Offset uint `json:"offset,omitempty" example:"1"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// PhaseStatus summarizes one phase for /status.
type PhaseStatus struct {
	// example: 1
	ID uint32 `json:"id" example:"1"`
	// example: tick
	Name string `json:"name,omitempty" example:"tick"`
	// Completed runs since start.
	// example: 120
	Runs uint64 `json:"runs" example:"120"`
	// Calls waiting in the phase FIFO.
	// example: 0
	Pending int `json:"pending" example:"0"`
	// Delayed events registered against the phase.
	// example: 2
	Delayed int `json:"delayed" example:"2"`
}

// PayloadStatus summarizes one event manager for /status.
type PayloadStatus struct {
	// example: types.InputEvent
	Type string `json:"type" example:"types.InputEvent"`
	// example: 1
	Subscribers int `json:"subscribers" example:"1"`
	// example: 2
	KeyedSubscribers int `json:"keyed_subscribers" example:"2"`
	// example: 2
	Keys int `json:"keys" example:"2"`
	// Subscriptions not yet merged into the live lists.
	// example: 0
	Pending int `json:"pending" example:"0"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Host ticks since start.
	// example: 42
	Ticks uint64 `json:"ticks" example:"42"`
	// Trampoline calls waiting for the next drain.
	// example: 0
	ProcessPending int `json:"process_pending" example:"0"`
	// Phase IDs waiting in the phase queue, front first.
	PhaseQueue []uint32 `json:"phase_queue"`
	// Total delayed events across phases.
	// example: 2
	Delayed  int             `json:"delayed" example:"2"`
	Phases   []PhaseStatus   `json:"phases"`
	Payloads []PayloadStatus `json:"payloads"`
	// Events received by the host's own subscriber.
	// example: 10
	Received uint64 `json:"received" example:"10"`
}

// PhasesResponse wraps the configured phase cycle returned by GET /phases.
type PhasesResponse struct {
	Phases []PhaseInfo `json:"phases"`
}
