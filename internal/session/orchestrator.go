// Package session implements the real-time voice session core: the
// connection manager, the ordered audio playback queue, the push-to-talk
// capture state machine, the transcript accumulator, and the orchestrator
// that composes them.
//
// The [Orchestrator] owns the session identity and the overall lifecycle
// (bootstrap → active → teardown). All asynchronous event sources —
// channel events, inbound segments, capture triggers, engine callbacks,
// playback timers — funnel into the components it wires together, each of
// which enforces its own ordering and exclusivity invariants. Teardown is
// idempotent and releases every resource exactly once.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Kevinxygu/pitchpoint/internal/observe"
	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

// tracerName is the instrumentation scope for session spans.
const tracerName = "github.com/Kevinxygu/pitchpoint"

// Callbacks surfaces session activity to the UI layer. All fields may be
// nil. Callbacks are invoked from internal goroutines and must not block.
type Callbacks struct {
	// OnConnectionState receives channel state transitions.
	OnConnectionState func(call.ConnectionState)

	// OnCaptureState receives capture state transitions.
	OnCaptureState func(call.CaptureState)

	// OnPlaybackState receives playback Empty/Playing transitions.
	OnPlaybackState func(call.PlaybackState)

	// OnTranscript receives each appended transcript entry.
	OnTranscript func(call.TranscriptEntry)

	// OnError receives every reported error, classified by [ErrorKind].
	// Errors delivered here never cross a handler boundary as a panic.
	OnError func(error)
}

// Config configures an [Orchestrator].
type Config struct {
	// Persona is the prospect configuration. Required: bootstrap fails
	// with a configuration error when nil, before any network call.
	Persona *call.Persona

	// Creator performs the session-creation request. Required.
	Creator call.SessionCreator

	// Channel is the realtime transport for this session. Required.
	// The orchestrator assumes exclusive ownership.
	Channel call.RealtimeChannel

	// Capturer is the push-to-talk engine. Required.
	Capturer call.SpeechCapturer

	// Output plays decoded speech segments. Required.
	Output call.AudioOutput

	// Media acquires the camera/microphone device. Optional: when nil,
	// or when acquisition fails, the session continues voice-only.
	Media call.MediaCapture

	// Handoff receives the formatted transcript and duration at
	// teardown for the next screen. Optional.
	Handoff *Handoff

	// PlaybackTimeout bounds each segment's playback. Defaults to 30s.
	PlaybackTimeout time.Duration

	// Callbacks surface session activity to the UI layer.
	Callbacks Callbacks

	// Metrics records session instrumentation. May be nil.
	Metrics *observe.Metrics
}

// Result is the transient state handed to the post-call screen.
type Result struct {
	// Transcript is the formatted export ("You: ...\n\nName: ..." blocks).
	Transcript string

	// Duration is the elapsed time spent in the connected state.
	Duration time.Duration
}

// Orchestrator composes the session components and owns the session
// lifecycle. Create one per call with [New]; it is not reusable after
// [Orchestrator.End].
type Orchestrator struct {
	persona  *call.Persona
	creator  call.SessionCreator
	media    call.MediaCapture
	handoff  *Handoff
	cb       Callbacks
	metrics  *observe.Metrics
	clientID string

	transcript *Transcript
	queue      *PlaybackQueue
	capture    *CaptureController
	conn       *ConnManager

	mu        sync.Mutex
	sessionID string
	started   bool
	ended     bool
	baseCtx   context.Context
	stream    call.MediaStream
	result    Result

	// Duration counter: accumulated holds completed connected intervals;
	// runningSince is non-zero only while connected.
	accumulated  time.Duration
	runningSince time.Time
	now          func() time.Time

	endOnce sync.Once
}

// New creates an orchestrator and wires its components. No I/O happens
// until [Orchestrator.Start].
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		persona:  cfg.Persona,
		creator:  cfg.Creator,
		media:    cfg.Media,
		handoff:  cfg.Handoff,
		cb:       cfg.Callbacks,
		metrics:  cfg.Metrics,
		clientID: uuid.NewString(),
		now:      time.Now,
	}
	o.transcript = NewTranscript()
	o.queue = NewPlaybackQueue(PlaybackQueueConfig{
		Output:        cfg.Output,
		Timeout:       cfg.PlaybackTimeout,
		OnError:       o.report,
		OnStateChange: cfg.Callbacks.OnPlaybackState,
		Metrics:       cfg.Metrics,
	})
	o.capture = NewCaptureController(CaptureControllerConfig{
		Capturer:      cfg.Capturer,
		OnUtterance:   o.handleUtterance,
		OnStateChange: cfg.Callbacks.OnCaptureState,
		OnError:       o.report,
	})
	o.conn = NewConnManager(ConnManagerConfig{
		Channel:        cfg.Channel,
		ClientID:       o.clientID,
		OnStateChange:  o.handleConnState,
		OnTranscript:   o.handleTranscript,
		OnAudio:        o.queue.Enqueue,
		OnSessionEnded: func() { slog.Debug("session end acknowledged") },
		OnError:        o.report,
		Metrics:        cfg.Metrics,
	})
	return o
}

// Start runs the bootstrap sequence: validate the persona, request a
// session id, acquire the media device (non-fatal on failure), and open
// the realtime channel. Each failure mode surfaces as a distinct
// [ErrorKind]. Start may be called at most once.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return newError(KindConfiguration, fmt.Errorf("session already started"))
	}
	o.started = true
	o.baseCtx = ctx
	o.mu.Unlock()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "session.bootstrap")
	defer span.End()

	if o.persona == nil {
		err := newError(KindConfiguration, ErrPersonaMissing)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	slog.Info("creating voice session", "persona", o.persona.Name, "company", o.persona.Company)
	sessionID, err := o.creator.CreateSession(ctx, *o.persona)
	if err != nil {
		wrapped := newError(KindSessionCreation, fmt.Errorf("create session: %w", err))
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return wrapped
	}

	o.mu.Lock()
	o.sessionID = sessionID
	o.mu.Unlock()
	slog.Info("session created", "session_id", sessionID)

	// Media acquisition failure is reported but never blocks the call;
	// the session stays usable voice-only.
	if o.media != nil {
		stream, err := o.media.Acquire(ctx)
		if err != nil {
			o.report(newError(KindMedia, fmt.Errorf("acquire media device: %w", err)))
		} else {
			o.mu.Lock()
			o.stream = stream
			o.mu.Unlock()
		}
	}

	if err := o.conn.Open(ctx, sessionID); err != nil {
		wrapped := newError(KindConnection, err)
		span.RecordError(wrapped)
		span.SetStatus(codes.Error, wrapped.Error())
		return wrapped
	}

	if o.metrics != nil {
		o.metrics.ActiveSessions.Add(ctx, 1)
	}
	return nil
}

// PressToTalk is the hold-to-talk trigger-down edge.
func (o *Orchestrator) PressToTalk() {
	o.mu.Lock()
	ctx := o.baseCtx
	ended := o.ended
	o.mu.Unlock()
	if ended {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	o.capture.Press(ctx)
}

// ReleaseTalk is the hold-to-talk trigger-up edge.
func (o *Orchestrator) ReleaseTalk() {
	o.capture.Release()
}

// End runs the teardown sequence: stop capture, close the playback
// queue, notify the backend, close the channel, release the media
// device, and export the transcript to the handoff store. Audio events
// still buffered on the channel when End begins are dropped by the
// closed queue rather than replayed. It is idempotent — every call
// returns the same [Result], and side effects happen only on the first.
func (o *Orchestrator) End() Result {
	o.endOnce.Do(func() {
		o.mu.Lock()
		o.ended = true
		ctx := o.baseCtx
		stream := o.stream
		o.stream = nil
		o.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}

		slog.Info("ending session", "session_id", o.SessionID())

		o.capture.Close()
		o.queue.Close()
		o.conn.SendEnd(ctx)

		// Channel close and device release are independent; run both and
		// keep the session quiet even if one fails.
		var g errgroup.Group
		g.Go(func() error { return o.conn.Close() })
		if stream != nil {
			g.Go(func() error { return stream.Release() })
		}
		if err := g.Wait(); err != nil {
			slog.Warn("teardown cleanup", "err", err)
		}

		name := ""
		if o.persona != nil {
			name = o.persona.Name
		}
		result := Result{
			Transcript: o.transcript.Export(name),
			Duration:   o.Duration(),
		}
		o.mu.Lock()
		o.result = result
		o.mu.Unlock()

		if o.handoff != nil {
			o.handoff.Set(HandoffKeyTranscript, result.Transcript)
			o.handoff.Set(HandoffKeyDuration, strconv.Itoa(int(result.Duration.Round(time.Second).Seconds())))
		}
		if o.metrics != nil {
			o.metrics.ActiveSessions.Add(context.Background(), -1)
		}
		slog.Info("session ended", "session_id", o.SessionID(), "duration", result.Duration, "entries", o.transcript.Len())
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// SessionID returns the backend-assigned session id, or "" before
// bootstrap completes. Once set it never changes.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

// Duration reports time spent in the connected state. The counter runs
// only while connected and pauses (without resetting) otherwise.
func (o *Orchestrator) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	d := o.accumulated
	if !o.runningSince.IsZero() {
		d += o.now().Sub(o.runningSince)
	}
	return d
}

// Transcript exposes the accumulator read-only.
func (o *Orchestrator) Transcript() []call.TranscriptEntry {
	return o.transcript.Entries()
}

// ConnectionState reports the channel state.
func (o *Orchestrator) ConnectionState() call.ConnectionState { return o.conn.State() }

// CaptureState reports the capture machine state.
func (o *Orchestrator) CaptureState() call.CaptureState { return o.capture.State() }

// PlaybackState reports the playback queue state.
func (o *Orchestrator) PlaybackState() call.PlaybackState { return o.queue.State() }

// handleConnState gates the duration counter on connectedness and
// forwards the transition to the UI callback.
func (o *Orchestrator) handleConnState(s call.ConnectionState) {
	o.mu.Lock()
	if s == call.ConnectionConnected {
		if o.runningSince.IsZero() {
			o.runningSince = o.now()
		}
	} else if !o.runningSince.IsZero() {
		o.accumulated += o.now().Sub(o.runningSince)
		o.runningSince = time.Time{}
	}
	o.mu.Unlock()

	if o.cb.OnConnectionState != nil {
		o.cb.OnConnectionState(s)
	}
}

func (o *Orchestrator) handleTranscript(speaker call.Speaker, text string) {
	entry := o.transcript.Append(speaker, text)
	if o.cb.OnTranscript != nil {
		o.cb.OnTranscript(entry)
	}
}

func (o *Orchestrator) handleUtterance(text string) {
	o.mu.Lock()
	ctx := o.baseCtx
	o.mu.Unlock()
	o.conn.SendUtterance(ctx, text)
}

func (o *Orchestrator) report(err error) {
	if err == nil {
		return
	}
	if o.metrics != nil {
		o.metrics.Errors.Add(context.Background(), 1, observe.WithErrorKind(string(KindOf(err))))
	}
	if o.cb.OnError != nil {
		o.cb.OnError(err)
	}
}
