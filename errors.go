package snoop

import "errors"

// Common errors returned by snoop sessions.
var (
	// ErrInvalidConfig indicates invalid session configuration.
	ErrInvalidConfig = errors.New("invalid snoop configuration")

	// ErrInvalidState indicates an operation that is not legal in the
	// session's current state.
	ErrInvalidState = errors.New("operation invalid in current state")

	// ErrOverrun indicates that captured data exceeded the stop
	// threshold before being drained. The session stays in the overrun
	// state until Prepare is called.
	ErrOverrun = errors.New("capture overrun")

	// ErrInvalidFormat indicates a sample format outside the supported
	// set (16- and 32-bit signed linear).
	ErrInvalidFormat = errors.New("unsupported sample format")

	// ErrWouldBlock indicates that non-blocking mode could not satisfy
	// a wait; the caller should retry.
	ErrWouldBlock = errors.New("operation would block")

	// ErrUnsupported indicates a write-direction operation on this
	// capture-only session type.
	ErrUnsupported = errors.New("operation not supported on capture stream")
)
