// Package call defines the data model and the narrow capability interfaces
// the pitchpoint session core is built against.
//
// The four capability ports are:
//
//   - [RealtimeChannel] — a duplex, event-based, auto-reconnecting transport
//     to the call backend.
//   - [MediaCapture] — microphone acquisition and release.
//   - [SpeechCapturer] — a push-to-talk transcription engine.
//   - [AudioOutput] — decodes and plays one opaque encoded speech segment.
//
// Concrete implementations live in adapter packages (channel, capture,
// media, audioout); the session orchestrator only ever sees these
// interfaces, which keeps ordering and timeout behavior testable with the
// mocks in pkg/call/mock.
//
// This package lives under pkg/ because external code (alternative
// transports, capture engines, output sinks) is expected to implement
// these interfaces.
package call

import "context"

// SessionCreator creates a voice session on the backend from a persona
// payload. A non-2xx response is a fatal bootstrap error; the orchestrator
// does not retry automatically.
type SessionCreator interface {
	// CreateSession registers the persona and returns the opaque session
	// id. The id is immutable for the lifetime of the session.
	CreateSession(ctx context.Context, persona Persona) (string, error)
}

// RealtimeChannel is the duplex event transport to the call backend.
//
// Implementations own their reconnection policy: a bounded number of
// attempts with a fixed inter-attempt delay. Transport lifecycle changes
// are surfaced as meta events on [RealtimeChannel.Events] (see the
// Event* constants) so the session layer can track connection state and
// rejoin after a reconnect.
//
// Implementations must be safe for concurrent use.
type RealtimeChannel interface {
	// Open dials the backend. Calling Open on an already-open channel is
	// a no-op. Open returns once the first connection attempt resolves;
	// later drops are handled by the internal reconnect loop.
	Open(ctx context.Context) error

	// Send transmits one outbound event frame. It fails with an error
	// (never a panic, never a block) when the channel is not connected.
	Send(ctx context.Context, ev Event) error

	// Events returns the inbound event stream, including transport meta
	// events. The channel is closed after Close or once reconnection is
	// exhausted. Events are delivered in arrival order.
	Events() <-chan Event

	// Close tears the channel down and suppresses any further
	// reconnection. Safe to call when already closed.
	Close() error
}

// MediaStream is an acquired media device handle.
type MediaStream interface {
	// Frames returns the raw capture frame stream (S16LE mono PCM at the
	// stream's configured sample rate). The channel is closed on Release.
	Frames() <-chan []byte

	// Release frees the device. The first call releases; subsequent
	// calls are no-ops and return nil.
	Release() error
}

// MediaCapture acquires the operator's microphone (and camera, where the
// platform has one). Denied permissions or missing devices surface as an
// error from Acquire; the session remains usable without media.
type MediaCapture interface {
	Acquire(ctx context.Context) (MediaStream, error)
}

// CaptureHandlers receives capture-engine callbacks. Handlers are invoked
// from the engine's goroutine; nil handlers are ignored.
type CaptureHandlers struct {
	// OnUtterance delivers a final transcribed utterance.
	OnUtterance func(text string)

	// OnEnded signals that the engine finished on its own, either after
	// one utterance (push-to-talk) or because the trigger was released.
	OnEnded func()

	// OnError reports an engine failure. The capture session is dead
	// after this; OnEnded is not also called.
	OnError func(err error)
}

// CaptureSession is one active push-to-talk capture.
type CaptureSession interface {
	// Stop asks the engine to end the capture. Safe to call after the
	// engine already ended; such calls are no-ops.
	Stop() error
}

// SpeechCapturer starts push-to-talk capture sessions. At most one
// session per capturer is active at a time; enforcing that is the
// caller's job (see the session capture state machine).
type SpeechCapturer interface {
	Start(ctx context.Context, handlers CaptureHandlers) (CaptureSession, error)
}

// AudioOutput decodes and plays a single encoded speech segment.
//
// Play blocks until playback completes, the segment fails to decode or
// play, or ctx is cancelled — whichever happens first. Implementations
// must release any per-segment resources (decoder state, device handles,
// buffers) exactly once regardless of how Play returns.
type AudioOutput interface {
	Play(ctx context.Context, seg AudioSegment) error
}
