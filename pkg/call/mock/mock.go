// Package mock provides in-memory mock implementations of the capability
// ports in [pkg/call] for use in unit tests: [Channel], [SessionCreator],
// [MediaCapture], [MediaStream], [SpeechCapturer], [CaptureSession], and
// [AudioOutput].
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	ch := mock.NewChannel()
//	out := &mock.AudioOutput{}
//	creator := &mock.SessionCreator{CreateResult: "session-1"}
//	// ... inject into the session under test, then:
//	ch.Deliver(call.Event{Name: call.EventConnected})
package mock

import (
	"context"
	"sync"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

// ─── Channel ──────────────────────────────────────────────────────────────────

// Channel is a mock implementation of [call.RealtimeChannel]. Inbound
// events are injected with [Channel.Deliver]; outbound events are recorded
// in Sent.
type Channel struct {
	mu sync.Mutex

	// OpenError is returned by Open.
	OpenError error

	// SendError is returned by Send.
	SendError error

	// CloseError is returned by the first Close call.
	CloseError error

	// Sent holds every event passed to Send, in order.
	Sent []call.Event

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	events chan call.Event
	closed bool
}

// NewChannel creates a mock channel with a buffered inbound event stream.
func NewChannel() *Channel {
	return &Channel{events: make(chan call.Event, 64)}
}

// Open implements [call.RealtimeChannel]. Returns OpenError.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOpen++
	return c.OpenError
}

// Send implements [call.RealtimeChannel]. Records ev and returns SendError.
func (c *Channel) Send(ctx context.Context, ev call.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendError != nil {
		return c.SendError
	}
	c.Sent = append(c.Sent, ev)
	return nil
}

// Events implements [call.RealtimeChannel].
func (c *Channel) Events() <-chan call.Event { return c.events }

// Close implements [call.RealtimeChannel]. The first call closes the
// event stream; later calls are recorded no-ops.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.events)
	return c.CloseError
}

// Deliver injects an inbound event, as if it arrived from the backend.
// Delivering to a closed channel is a no-op so tests can race teardown.
func (c *Channel) Deliver(ev call.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

// SentNames returns the names of all sent events, in order.
func (c *Channel) SentNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.Sent))
	for i, ev := range c.Sent {
		names[i] = ev.Name
	}
	return names
}

// ─── SessionCreator ───────────────────────────────────────────────────────────

// SessionCreator is a mock implementation of [call.SessionCreator].
type SessionCreator struct {
	mu sync.Mutex

	// CreateResult is the session id returned by CreateSession.
	CreateResult string

	// CreateError is returned by CreateSession.
	CreateError error

	// CreateCalls holds the persona passed to each CreateSession call.
	CreateCalls []call.Persona
}

// CreateSession implements [call.SessionCreator].
func (s *SessionCreator) CreateSession(ctx context.Context, persona call.Persona) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CreateCalls = append(s.CreateCalls, persona)
	if s.CreateError != nil {
		return "", s.CreateError
	}
	return s.CreateResult, nil
}

// CallCount returns how many times CreateSession was called.
func (s *SessionCreator) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.CreateCalls)
}

// ─── MediaCapture ─────────────────────────────────────────────────────────────

// MediaStream is a mock implementation of [call.MediaStream]. It tracks
// release counts so tests can assert the exactly-once release invariant.
type MediaStream struct {
	mu sync.Mutex

	// ReleaseError is returned by the first Release call.
	ReleaseError error

	// CallCountRelease records how many times Release was called.
	CallCountRelease int

	frames   chan []byte
	released bool
}

// NewMediaStream creates a mock stream with a buffered frame channel.
func NewMediaStream() *MediaStream {
	return &MediaStream{frames: make(chan []byte, 16)}
}

// Frames implements [call.MediaStream].
func (m *MediaStream) Frames() <-chan []byte { return m.frames }

// Release implements [call.MediaStream]. Only the first call closes the
// frame channel and returns ReleaseError.
func (m *MediaStream) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountRelease++
	if m.released {
		return nil
	}
	m.released = true
	close(m.frames)
	return m.ReleaseError
}

// Released reports whether Release has been called at least once.
func (m *MediaStream) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// MediaCapture is a mock implementation of [call.MediaCapture].
type MediaCapture struct {
	mu sync.Mutex

	// AcquireResult is returned by Acquire. Defaults to a fresh
	// [MediaStream] if left nil.
	AcquireResult *MediaStream

	// AcquireError is returned by Acquire.
	AcquireError error

	// CallCountAcquire records how many times Acquire was called.
	CallCountAcquire int
}

// Acquire implements [call.MediaCapture].
func (m *MediaCapture) Acquire(ctx context.Context) (call.MediaStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountAcquire++
	if m.AcquireError != nil {
		return nil, m.AcquireError
	}
	if m.AcquireResult == nil {
		m.AcquireResult = NewMediaStream()
	}
	return m.AcquireResult, nil
}

// ─── SpeechCapturer ───────────────────────────────────────────────────────────

// CaptureSession is a mock implementation of [call.CaptureSession]. Use
// the Emit* helpers to drive the handlers registered at Start.
type CaptureSession struct {
	mu sync.Mutex

	// StopError is returned by Stop.
	StopError error

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	handlers call.CaptureHandlers
}

// Stop implements [call.CaptureSession].
func (s *CaptureSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	return s.StopError
}

// EmitUtterance invokes the registered OnUtterance handler.
func (s *CaptureSession) EmitUtterance(text string) {
	if s.handlers.OnUtterance != nil {
		s.handlers.OnUtterance(text)
	}
}

// EmitEnded invokes the registered OnEnded handler.
func (s *CaptureSession) EmitEnded() {
	if s.handlers.OnEnded != nil {
		s.handlers.OnEnded()
	}
}

// EmitError invokes the registered OnError handler.
func (s *CaptureSession) EmitError(err error) {
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

// SpeechCapturer is a mock implementation of [call.SpeechCapturer].
type SpeechCapturer struct {
	mu sync.Mutex

	// StartError is returned by Start.
	StartError error

	// Sessions holds every capture session handed out, in order.
	Sessions []*CaptureSession

	// CallCountStart records how many times Start was called.
	CallCountStart int
}

// Start implements [call.SpeechCapturer]. Each successful call returns a
// fresh [CaptureSession] wired to the given handlers.
func (c *SpeechCapturer) Start(ctx context.Context, handlers call.CaptureHandlers) (call.CaptureSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	if c.StartError != nil {
		return nil, c.StartError
	}
	sess := &CaptureSession{handlers: handlers}
	c.Sessions = append(c.Sessions, sess)
	return sess, nil
}

// Last returns the most recently started session, or nil.
func (c *SpeechCapturer) Last() *CaptureSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Sessions) == 0 {
		return nil
	}
	return c.Sessions[len(c.Sessions)-1]
}

// ─── AudioOutput ──────────────────────────────────────────────────────────────

// AudioOutput is a mock implementation of [call.AudioOutput].
//
// By default Play returns immediately. Set Block to make Play wait until
// the test calls [AudioOutput.Finish] or the context is cancelled —
// useful for exercising queueing, mutual exclusion, and timeouts.
type AudioOutput struct {
	mu sync.Mutex

	// PlayError is returned by Play (after any blocking).
	PlayError error

	// Block makes Play wait for Finish or context cancellation.
	Block bool

	// Played holds every segment passed to Play, in order of invocation.
	Played []call.AudioSegment

	// Active is the number of Play calls currently in flight. Tests use
	// MaxActive to assert mutual exclusion.
	Active int

	// MaxActive is the high-water mark of Active.
	MaxActive int

	release chan struct{}
}

// Play implements [call.AudioOutput].
func (a *AudioOutput) Play(ctx context.Context, seg call.AudioSegment) error {
	a.mu.Lock()
	a.Played = append(a.Played, seg)
	a.Active++
	if a.Active > a.MaxActive {
		a.MaxActive = a.Active
	}
	if a.release == nil {
		a.release = make(chan struct{})
	}
	block := a.Block
	release := a.release
	err := a.PlayError
	a.mu.Unlock()

	if block {
		select {
		case <-release:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	a.mu.Lock()
	a.Active--
	a.mu.Unlock()
	return err
}

// Finish unblocks every Play call currently waiting.
func (a *AudioOutput) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.release != nil {
		close(a.release)
		a.release = nil
	}
}

// PlayedTexts returns the Text field of every played segment, in order.
func (a *AudioOutput) PlayedTexts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	texts := make([]string, len(a.Played))
	for i, seg := range a.Played {
		texts[i] = seg.Text
	}
	return texts
}

// CallCount returns how many times Play was invoked.
func (a *AudioOutput) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Played)
}
