package session

import (
	"errors"
	"fmt"
)

// ErrorKind classifies session errors so the UI layer can decide whether
// an error is fatal to bootstrap, recoverable, or merely status.
type ErrorKind string

const (
	// KindConfiguration — required input (persona) absent before
	// bootstrap. Fatal to session start; no retry.
	KindConfiguration ErrorKind = "configuration"

	// KindSessionCreation — the session-creation request failed or
	// returned a non-success status. Fatal to bootstrap; the operator
	// must retry manually.
	KindSessionCreation ErrorKind = "session_creation"

	// KindConnection — the channel failed to connect or dropped past its
	// bounded reconnection policy. Session-blocking but not fatal to the
	// process.
	KindConnection ErrorKind = "connection"

	// KindMedia — the capture device was denied or unavailable. Reported
	// but non-blocking; voice-only remains possible.
	KindMedia ErrorKind = "media"

	// KindCapture — the speech-capture engine failed mid-listen. Capture
	// resets to idle; the operator may retry.
	KindCapture ErrorKind = "capture"

	// KindPlayback — a segment failed to decode or play. The segment is
	// skipped and the queue proceeds.
	KindPlayback ErrorKind = "playback"

	// KindPlaybackTimeout — a segment exceeded the playback deadline and
	// was abandoned.
	KindPlaybackTimeout ErrorKind = "playback_timeout"
)

// ErrPersonaMissing is the configuration error raised when bootstrap is
// attempted without a persona.
var ErrPersonaMissing = errors.New("session: persona is required before bootstrap")

// Error is a classified session error. It wraps the underlying cause so
// callers can use errors.Is / errors.As across the taxonomy.
type Error struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// newError wraps err with a kind, passing through an existing *Error
// unchanged so kinds are never double-wrapped.
func newError(kind ErrorKind, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the [ErrorKind] of err, or "" when err is not a
// session [Error].
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
