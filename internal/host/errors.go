package host

import "net/http"

// badRequestError rejects malformed event requests (400).
type badRequestError struct{ msg string }

func (e badRequestError) Error() string   { return e.msg }
func (e badRequestError) StatusCode() int { return http.StatusBadRequest }

// IsBadRequest reports whether err rejects a malformed request.
func IsBadRequest(err error) bool {
	_, ok := err.(badRequestError)
	return ok
}

// unknownPhaseError signals a phase name missing from the configured cycle (404).
type unknownPhaseError struct{ name string }

func (e unknownPhaseError) Error() string   { return "unknown phase: " + e.name }
func (e unknownPhaseError) StatusCode() int { return http.StatusNotFound }

// ErrUnknownPhase returns the error reported for an unconfigured phase name.
func ErrUnknownPhase(name string) error { return unknownPhaseError{name: name} }

// IsUnknownPhase reports whether err names an unconfigured phase.
func IsUnknownPhase(err error) bool {
	_, ok := err.(unknownPhaseError)
	return ok
}
