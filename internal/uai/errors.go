// internal/uai/errors.go
package uai

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Handshake and session failure conditions. Handshake errors terminate
// the session and surface as the termination cause of a ClosedError.
var (
	// ErrInvalidUser indicates the controller re-issued the user prompt,
	// which it does when the configured user is not accepted.
	ErrInvalidUser = errors.New("controller rejected the configured user")

	// ErrInvalidPassword indicates the controller re-issued the password
	// prompt after the password was sent.
	ErrInvalidPassword = errors.New("controller rejected the configured password")

	// ErrProtocolViolation indicates the controller issued handshake
	// prompts out of order.
	ErrProtocolViolation = errors.New("received password prompt without user prompt")

	// ErrNotReady is returned when a request is attempted before the
	// login handshake has completed.
	ErrNotReady = errors.New("connection has not been negotiated yet")

	// ErrSessionActive is returned by Connect while a previous session's
	// read loop is still unwinding.
	ErrSessionActive = errors.New("a controller session is already active")
)

// ClosedError reports that the controller session terminated. It resolves
// every request that was pending at termination and any later AwaitReady
// or Await call for that session.
type ClosedError struct {
	// Cause is nil for a clean end-of-stream, a handshake error for a
	// failed negotiation, or the read/processing error otherwise.
	Cause error
}

// Error implements the error interface.
func (e *ClosedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection to the controller was closed: %v", e.Cause)
	}
	return "connection to the controller was closed"
}

// Unwrap exposes the termination cause to errors.Is/errors.As.
func (e *ClosedError) Unwrap() error {
	return e.Cause
}

// ResponseError is a well-formed error reply from the controller for a
// single request. It does not affect the session.
type ResponseError struct {
	ID      int64
	Method  string
	Payload json.RawMessage
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("controller returned an error for %s (id %d): %s", e.Method, e.ID, string(e.Payload))
}
