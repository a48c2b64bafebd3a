package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Kevinxygu/pitchpoint/internal/observe"
	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

// ConnManagerConfig configures a [ConnManager].
type ConnManagerConfig struct {
	// Channel is the realtime transport. Required. The manager assumes
	// exclusive ownership for the session's lifetime.
	Channel call.RealtimeChannel

	// ClientID identifies this client instance across rejoins.
	ClientID string

	// OnStateChange receives connection state transitions. May be nil.
	OnStateChange func(call.ConnectionState)

	// OnJoined fires when the backend acknowledges session membership.
	// May be nil.
	OnJoined func()

	// OnTranscript receives inbound transcript updates in arrival order.
	// May be nil.
	OnTranscript func(speaker call.Speaker, text string)

	// OnAudio receives inbound speech segments in arrival order, payload
	// already base64-decoded and tagged with a sequence number. May be nil.
	OnAudio func(call.AudioSegment)

	// OnSessionEnded fires when the backend acknowledges session end.
	// May be nil.
	OnSessionEnded func()

	// OnError receives reported connection errors. May be nil.
	OnError func(error)

	// Metrics records connection instrumentation. May be nil.
	Metrics *observe.Metrics
}

// ConnManager owns one realtime channel for one session. It tracks the
// connection state machine, announces membership on connect and after
// every reconnect, dispatches typed inbound events in arrival order, and
// gates outbound utterances on the joined acknowledgment (connected and
// joined-acknowledged are distinct states; an utterance sent before the
// backend has placed this client in the session room would be lost).
//
// A server-initiated disconnect triggers exactly one explicit reconnect
// attempt; a client-initiated disconnect triggers none.
//
// All exported methods are safe for concurrent use.
type ConnManager struct {
	ch       call.RealtimeChannel
	clientID string
	onState  func(call.ConnectionState)
	onJoined func()
	onTrans  func(call.Speaker, string)
	onAudio  func(call.AudioSegment)
	onEnded  func()
	onError  func(error)
	metrics  *observe.Metrics

	mu        sync.Mutex
	sessionID string
	state     call.ConnectionState
	joined    bool
	opened    bool
	closing   bool
	audioSeq  uint64
	baseCtx   context.Context

	wg sync.WaitGroup
}

// NewConnManager creates a manager around the given channel.
func NewConnManager(cfg ConnManagerConfig) *ConnManager {
	return &ConnManager{
		ch:       cfg.Channel,
		clientID: cfg.ClientID,
		onState:  cfg.OnStateChange,
		onJoined: cfg.OnJoined,
		onTrans:  cfg.OnTranscript,
		onAudio:  cfg.OnAudio,
		onEnded:  cfg.OnSessionEnded,
		onError:  cfg.OnError,
		metrics:  cfg.Metrics,
		state:    call.ConnectionDisconnected,
	}
}

// Open establishes the channel for the given session. If the manager is
// already open for the same session it only re-announces membership. ctx
// is retained as the base context for event-driven sends.
func (m *ConnManager) Open(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	if m.opened && m.sessionID == sessionID {
		m.mu.Unlock()
		m.announce(ctx)
		return nil
	}
	if m.opened {
		m.mu.Unlock()
		return newError(KindConnection, fmt.Errorf("manager already open for session %s", m.sessionID))
	}
	m.opened = true
	m.sessionID = sessionID
	m.baseCtx = ctx
	m.setStateLocked(call.ConnectionConnecting)
	m.mu.Unlock()
	m.notifyState(call.ConnectionConnecting)

	if err := m.ch.Open(ctx); err != nil {
		m.mu.Lock()
		m.setStateLocked(call.ConnectionFailed)
		m.mu.Unlock()
		m.notifyState(call.ConnectionFailed)
		return newError(KindConnection, fmt.Errorf("open channel: %w", err))
	}

	m.wg.Add(1)
	go m.dispatch()
	return nil
}

// SendUtterance emits one operator utterance. Fire-and-forget: when the
// session is not yet joined-acknowledged (or the channel is down) the
// utterance is dropped with a logged warning rather than blocking or
// erroring the caller.
func (m *ConnManager) SendUtterance(ctx context.Context, text string) {
	m.mu.Lock()
	joined := m.joined
	sessionID := m.sessionID
	m.mu.Unlock()
	if !joined {
		slog.Warn("dropping utterance: session not joined", "chars", len(text))
		return
	}
	m.send(ctx, call.MarshalPayload(call.EventUserUtterance, call.UtterancePayload{
		SessionID: sessionID,
		Text:      text,
	}))
	if m.metrics != nil {
		m.metrics.UtterancesSent.Add(ctx, 1)
	}
}

// SendEnd notifies the backend the session is over. Fire-and-forget.
func (m *ConnManager) SendEnd(ctx context.Context) {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()
	m.send(ctx, call.MarshalPayload(call.EventEndSession, call.EndPayload{SessionID: sessionID}))
}

// Close tears the channel down. Safe to call when already closed; the
// resulting disconnect is treated as client-initiated.
func (m *ConnManager) Close() error {
	m.mu.Lock()
	if !m.opened || m.closing {
		m.mu.Unlock()
		return nil
	}
	m.closing = true
	m.mu.Unlock()

	err := m.ch.Close()
	m.wg.Wait()

	m.mu.Lock()
	m.joined = false
	m.setStateLocked(call.ConnectionDisconnected)
	m.mu.Unlock()
	m.notifyState(call.ConnectionDisconnected)
	if err != nil {
		return newError(KindConnection, fmt.Errorf("close channel: %w", err))
	}
	return nil
}

// State reports the current connection state.
func (m *ConnManager) State() call.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Joined reports whether the backend has acknowledged membership.
func (m *ConnManager) Joined() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined
}

// dispatch consumes the inbound event stream until the channel closes
// it. Events are processed strictly in arrival order.
func (m *ConnManager) dispatch() {
	defer m.wg.Done()
	for ev := range m.ch.Events() {
		m.handle(ev)
	}
}

func (m *ConnManager) handle(ev call.Event) {
	switch ev.Name {
	case call.EventConnected:
		m.mu.Lock()
		m.setStateLocked(call.ConnectionConnected)
		ctx := m.baseCtx
		m.mu.Unlock()
		m.notifyState(call.ConnectionConnected)
		// Membership is per-connection on the backend; announce on every
		// (re)connect.
		m.announce(ctx)

	case call.EventReconnecting:
		m.mu.Lock()
		m.joined = false
		m.setStateLocked(call.ConnectionReconnecting)
		m.mu.Unlock()
		m.notifyState(call.ConnectionReconnecting)
		if m.metrics != nil {
			m.metrics.Reconnects.Add(context.Background(), 1)
		}

	case call.EventJoined:
		m.mu.Lock()
		m.joined = true
		m.mu.Unlock()
		slog.Info("joined session", "session_id", m.sessionID)
		if m.onJoined != nil {
			m.onJoined()
		}

	case call.EventTranscriptUpdate:
		var p call.TranscriptPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			m.report(newError(KindConnection, fmt.Errorf("decode transcript update: %w", err)))
			return
		}
		speaker := call.SpeakerAgent
		if p.Speaker == "user" {
			speaker = call.SpeakerOperator
		}
		if m.onTrans != nil {
			m.onTrans(speaker, p.Text)
		}

	case call.EventAudioSegment:
		var p call.AudioPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			m.report(newError(KindPlayback, fmt.Errorf("decode audio event: %w", err)))
			return
		}
		payload, err := base64.StdEncoding.DecodeString(p.Audio)
		if err != nil {
			m.report(newError(KindPlayback, fmt.Errorf("decode audio payload: %w", err)))
			return
		}
		m.mu.Lock()
		seq := m.audioSeq
		m.audioSeq++
		m.mu.Unlock()
		if m.onAudio != nil {
			m.onAudio(call.AudioSegment{Payload: payload, Text: p.Text, Sequence: seq})
		}

	case call.EventSessionEnded:
		slog.Info("session ended by backend", "session_id", m.sessionID)
		if m.onEnded != nil {
			m.onEnded()
		}

	case call.EventConnectError:
		var p call.ErrorPayload
		_ = json.Unmarshal(ev.Data, &p)
		m.report(newError(KindConnection, fmt.Errorf("connect error: %s", p.Text())))

	case call.EventChannelError:
		var p call.ErrorPayload
		_ = json.Unmarshal(ev.Data, &p)
		m.report(newError(KindConnection, fmt.Errorf("channel error: %s", p.Text())))

	case call.EventDisconnected:
		m.handleDisconnect(ev)

	default:
		slog.Debug("ignoring unknown event", "event", ev.Name)
	}
}

// handleDisconnect applies the reconnection policy: a server-initiated
// disconnect gets exactly one explicit reconnect attempt, a
// client-initiated disconnect none, and exhaustion of the transport's own
// bounded retries marks the connection failed.
func (m *ConnManager) handleDisconnect(ev call.Event) {
	var p call.DisconnectPayload
	_ = json.Unmarshal(ev.Data, &p)

	m.mu.Lock()
	m.joined = false
	closing := m.closing
	ctx := m.baseCtx
	m.mu.Unlock()

	switch {
	case closing || p.Reason == call.DisconnectReasonClient:
		m.mu.Lock()
		m.setStateLocked(call.ConnectionDisconnected)
		m.mu.Unlock()
		m.notifyState(call.ConnectionDisconnected)

	case p.Reason == call.DisconnectReasonServer:
		slog.Info("server closed the connection, reconnecting once")
		m.mu.Lock()
		m.setStateLocked(call.ConnectionReconnecting)
		m.mu.Unlock()
		m.notifyState(call.ConnectionReconnecting)
		if m.metrics != nil {
			m.metrics.Reconnects.Add(context.Background(), 1)
		}
		if err := m.ch.Open(ctx); err != nil {
			m.mu.Lock()
			m.setStateLocked(call.ConnectionFailed)
			m.mu.Unlock()
			m.notifyState(call.ConnectionFailed)
			m.report(newError(KindConnection, fmt.Errorf("reconnect after server disconnect: %w", err)))
		}

	default:
		m.mu.Lock()
		m.setStateLocked(call.ConnectionFailed)
		m.mu.Unlock()
		m.notifyState(call.ConnectionFailed)
		m.report(newError(KindConnection, fmt.Errorf("connection lost: %s", p.Reason)))
	}
}

// announce (re-)emits session membership. Fire-and-forget.
func (m *ConnManager) announce(ctx context.Context) {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()
	if sessionID == "" {
		return
	}
	m.send(ctx, call.MarshalPayload(call.EventJoinSession, call.JoinPayload{
		SessionID: sessionID,
		ClientID:  m.clientID,
	}))
}

// send is the fire-and-forget outbound path: failures are logged, never
// returned, so event handlers are not blocked on a down channel.
func (m *ConnManager) send(ctx context.Context, ev call.Event) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := m.ch.Send(ctx, ev); err != nil {
		slog.Warn("dropping outbound event", "event", ev.Name, "err", err)
	}
}

func (m *ConnManager) setStateLocked(s call.ConnectionState) {
	m.state = s
}

func (m *ConnManager) notifyState(s call.ConnectionState) {
	if m.onState != nil {
		m.onState(s)
	}
}

func (m *ConnManager) report(err error) {
	if m.onError != nil {
		m.onError(err)
	}
}
