package transport

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound marks errors caused by referencing a session id the
// backend or registry does not recognize. Calls failing with it are terminal
// and never retried.
var ErrSessionNotFound = errors.New("session not found")

// CreationError reports that the backend could not spawn a pseudo-terminal.
// The remote error text is preserved for the initiating caller.
type CreationError struct {
	Reason string
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("create session: %s", e.Reason)
}

// WriteError is a transport-level write failure. Possibly transient; routed
// through the recovery controller before escalation.
type WriteError struct {
	SessionID string
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write to session %s: %v", e.SessionID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ReadError is a transport-level read failure. Possibly transient.
type ReadError struct {
	SessionID string
	Err       error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read from session %s: %v", e.SessionID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ResizeError is surfaced but non-fatal; the session keeps its prior geometry.
type ResizeError struct {
	SessionID string
	Err       error
}

func (e *ResizeError) Error() string {
	return fmt.Sprintf("resize session %s: %v", e.SessionID, e.Err)
}

func (e *ResizeError) Unwrap() error { return e.Err }

// IsTransient reports whether an error should go through bounded recovery
// rather than failing the session outright.
func IsTransient(err error) bool {
	var we *WriteError
	var re *ReadError
	return errors.As(err, &we) || errors.As(err, &re)
}
