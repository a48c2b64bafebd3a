package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

// CaptureControllerConfig configures a [CaptureController].
type CaptureControllerConfig struct {
	// Capturer starts push-to-talk capture sessions. Required.
	Capturer call.SpeechCapturer

	// OnUtterance receives each transcribed operator utterance. May be nil.
	OnUtterance func(text string)

	// OnStateChange receives capture state transitions. May be nil.
	OnStateChange func(call.CaptureState)

	// OnError receives reported capture errors. May be nil.
	OnError func(error)
}

// CaptureController converts discrete press/release triggers (pointer,
// touch, keyboard) into exactly one active capture session at a time.
//
// The trigger model is hold-to-talk: Press attempts to start, Release
// attempts to stop. A held flag absorbs repeated Press calls from a held
// key's auto-repeat, and duplicate starts from overlapping input devices
// are rejected while already listening. Engine errors reset the machine
// to idle so the operator can immediately try again.
//
// All methods are safe for concurrent use.
type CaptureController struct {
	capturer    call.SpeechCapturer
	onUtterance func(string)
	onState     func(call.CaptureState)
	onError     func(error)

	mu      sync.Mutex
	state   call.CaptureState
	session call.CaptureSession
	held    bool
	closed  bool
}

// NewCaptureController creates a controller in the idle state.
func NewCaptureController(cfg CaptureControllerConfig) *CaptureController {
	return &CaptureController{
		capturer:    cfg.Capturer,
		onUtterance: cfg.OnUtterance,
		onState:     cfg.OnStateChange,
		onError:     cfg.OnError,
		state:       call.CaptureIdle,
	}
}

// Press is the trigger-down edge. It starts a capture session unless one
// is already active, the trigger is already held (key repeat), or the
// controller is closed for teardown.
func (c *CaptureController) Press(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.held || c.state == call.CaptureListening {
		c.mu.Unlock()
		return
	}
	c.held = true
	c.state = call.CaptureListening
	c.mu.Unlock()
	c.notify(call.CaptureListening)

	sess, err := c.capturer.Start(ctx, call.CaptureHandlers{
		OnUtterance: c.handleUtterance,
		OnEnded:     func() { c.handleEnded(nil) },
		OnError:     func(err error) { c.handleEnded(err) },
	})
	if err != nil {
		c.mu.Lock()
		c.state = call.CaptureIdle
		c.mu.Unlock()
		c.notify(call.CaptureIdle)
		c.report(newError(KindCapture, fmt.Errorf("start capture: %w", err)))
		return
	}

	c.mu.Lock()
	switch {
	case c.closed:
		// Teardown raced the start; end the session right away.
		c.mu.Unlock()
		if err := sess.Stop(); err != nil {
			slog.Warn("stop capture after close", "err", err)
		}
		return
	case c.state != call.CaptureListening:
		// The engine fired its ended callback before Start returned, so
		// the machine is already back at idle. Holding on to the dead
		// session would hand a later Stop a stale handle.
		c.mu.Unlock()
		return
	}
	c.session = sess
	c.mu.Unlock()
	slog.Debug("capture started")
}

// Release is the trigger-up edge. It clears the held guard and asks the
// engine to end the active capture, if any.
func (c *CaptureController) Release() {
	c.mu.Lock()
	c.held = false
	c.mu.Unlock()
	c.Stop()
}

// Stop requests the capture engine to end the active session. Callable
// only meaningfully from the listening state; otherwise a no-op.
func (c *CaptureController) Stop() {
	c.mu.Lock()
	sess := c.session
	listening := c.state == call.CaptureListening
	c.mu.Unlock()
	if !listening || sess == nil {
		return
	}
	if err := sess.Stop(); err != nil {
		c.report(newError(KindCapture, fmt.Errorf("stop capture: %w", err)))
	}
	// The transition to idle happens when the engine acknowledges via
	// its ended callback.
}

// Close stops any active capture and rejects all further starts. Safe to
// call repeatedly.
func (c *CaptureController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		if err := sess.Stop(); err != nil {
			slog.Warn("stop capture during close", "err", err)
		}
	}
}

// State reports the current capture state.
func (c *CaptureController) State() call.CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CaptureController) handleUtterance(text string) {
	if text == "" {
		return
	}
	slog.Debug("capture utterance", "chars", len(text))
	if c.onUtterance != nil {
		c.onUtterance(text)
	}
}

// handleEnded is the single exit path for a capture session, for both the
// engine's natural end and an engine error.
func (c *CaptureController) handleEnded(cause error) {
	c.mu.Lock()
	c.session = nil
	c.state = call.CaptureIdle
	c.mu.Unlock()

	if cause != nil {
		// Error is a transient state: report it, then settle on idle so
		// the operator may start again.
		c.notify(call.CaptureError)
		c.report(newError(KindCapture, cause))
	}
	c.notify(call.CaptureIdle)
}

func (c *CaptureController) notify(s call.CaptureState) {
	if c.onState != nil {
		c.onState(s)
	}
}

func (c *CaptureController) report(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}
