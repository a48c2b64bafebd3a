// Package channel implements [call.RealtimeChannel] over a plain
// websocket connection to the call backend.
//
// Frames are JSON objects of the form {"event": name, "data": payload}
// in both directions. The channel owns a bounded reconnection policy —
// a fixed number of attempts with a fixed inter-attempt delay — and
// surfaces its lifecycle as meta events on the inbound stream
// (connected, reconnecting, connect_error, disconnected) so the session
// layer can track connection state and rejoin after a reconnect.
//
// A normal close initiated by the server is reported as
// disconnected{reason: "server"} without automatic reconnection; the
// session layer decides whether to reopen. An abnormal drop triggers the
// internal retry loop; exhaustion is reported as
// disconnected{reason: "exhausted"}.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second

	// eventBuffer bounds the inbound event stream. The session layer
	// drains continuously; the buffer only absorbs short bursts.
	eventBuffer = 64
)

// Compile-time interface check.
var _ call.RealtimeChannel = (*Channel)(nil)

// Config configures a [Channel].
type Config struct {
	// BaseURL is the backend base address (http:// or https://); the
	// websocket endpoint is derived from it. Required.
	BaseURL string

	// ReconnectAttempts bounds the retry loop. Defaults to 5 if zero.
	ReconnectAttempts int

	// ReconnectDelay is the fixed delay between attempts. Defaults to 1s
	// if zero.
	ReconnectDelay time.Duration
}

// Channel is a websocket-backed realtime channel. Create one per session
// with [New]; it is not reusable after Close.
type Channel struct {
	wsURL    string
	attempts int
	delay    time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	running bool
	closed  bool

	eventsMu     sync.Mutex
	events       chan call.Event
	eventsClosed bool
	wg           sync.WaitGroup
}

// New creates a channel for the given backend. The websocket endpoint is
// the backend base URL with the scheme switched to ws(s) and path /ws.
func New(cfg Config) (*Channel, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("channel: invalid base URL %q", cfg.BaseURL)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("channel: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	attempts := cfg.ReconnectAttempts
	if attempts <= 0 {
		attempts = defaultReconnectAttempts
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}

	return &Channel{
		wsURL:    u.String(),
		attempts: attempts,
		delay:    delay,
		events:   make(chan call.Event, eventBuffer),
	}, nil
}

// Open dials the backend, retrying within the bounded policy. A no-op
// when the channel is already open; an error once it has been closed.
// On success a read loop runs until the connection drops past the retry
// budget or Close is called.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("channel: already closed")
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := c.dial(runCtx)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		cancel()
		return fmt.Errorf("channel: connect %s: %w", c.wsURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.emit(call.Event{Name: call.EventConnected})

	c.wg.Add(1)
	go c.readLoop(runCtx, conn)
	return nil
}

// Send transmits one event frame. It fails immediately when the channel
// is not connected; it never blocks waiting for a reconnect.
func (c *Channel) Send(ctx context.Context, ev call.Event) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed || conn == nil {
		return fmt.Errorf("channel: not connected")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("channel: marshal %s: %w", ev.Name, err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("channel: write %s: %w", ev.Name, err)
	}
	return nil
}

// Events returns the inbound event stream, closed after Close.
func (c *Channel) Events() <-chan call.Event { return c.events }

// Close tears the channel down and suppresses further reconnection.
// Safe to call when already closed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		// Best effort; the read loop observes the closure either way.
		_ = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.eventsMu.Lock()
	if !c.eventsClosed {
		c.eventsClosed = true
		close(c.events)
	}
	c.eventsMu.Unlock()
	return nil
}

// dial attempts to connect up to the configured attempt budget, with the
// fixed delay between attempts. Each failed attempt is surfaced as a
// connect_error event.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		conn, _, err := websocket.Dial(ctx, c.wsURL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("channel dial failed", "attempt", attempt, "of", c.attempts, "err", err)
		c.emit(call.MarshalPayload(call.EventConnectError, call.ErrorPayload{Reason: err.Error()}))

		if attempt == c.attempts {
			break
		}
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// readLoop consumes inbound frames until the connection is done for
// good, reconnecting across abnormal drops within the retry budget.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.Read(ctx)
		if err == nil {
			var ev call.Event
			if jsonErr := json.Unmarshal(data, &ev); jsonErr != nil || ev.Name == "" {
				slog.Warn("channel: dropping malformed frame", "err", jsonErr)
				continue
			}
			c.emit(ev)
			continue
		}

		switch {
		case c.isClosed() || ctx.Err() != nil:
			// Client-initiated: no reconnection.
			c.emit(call.MarshalPayload(call.EventDisconnected,
				call.DisconnectPayload{Reason: call.DisconnectReasonClient}))
			return

		case isServerClose(err):
			// The server hung up deliberately; the session layer owns
			// the decision to reopen.
			c.stop()
			c.emit(call.MarshalPayload(call.EventDisconnected,
				call.DisconnectPayload{Reason: call.DisconnectReasonServer}))
			return

		default:
			slog.Warn("channel connection dropped", "err", err)
			c.emit(call.Event{Name: call.EventReconnecting})
			next, dialErr := c.dial(ctx)
			if dialErr != nil {
				c.stop()
				c.emit(call.MarshalPayload(call.EventDisconnected,
					call.DisconnectPayload{Reason: call.DisconnectReasonExhausted}))
				return
			}
			c.mu.Lock()
			c.conn = next
			c.mu.Unlock()
			conn = next
			c.emit(call.Event{Name: call.EventConnected})
		}
	}
}

// stop marks the run loop finished so a later Open may start a new one.
func (c *Channel) stop() {
	c.mu.Lock()
	c.running = false
	c.conn = nil
	c.mu.Unlock()
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// emit forwards an event to the inbound stream. Events arriving after
// Close has drained the stream are dropped.
func (c *Channel) emit(ev call.Event) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()
	if c.eventsClosed {
		return
	}
	c.events <- ev
}

// isServerClose reports whether err is a deliberate close from the peer.
func isServerClose(err error) bool {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return true
	}
	var ce websocket.CloseError
	return errors.As(err, &ce) && (ce.Code == websocket.StatusNormalClosure || ce.Code == websocket.StatusGoingAway)
}
