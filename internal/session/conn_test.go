package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
	"github.com/Kevinxygu/pitchpoint/pkg/call/mock"
)

// connRecorder collects manager callbacks for assertions.
type connRecorder struct {
	mu       sync.Mutex
	states   []call.ConnectionState
	joins    int
	segments []call.AudioSegment
	entries  []string
	errs     []error
}

func (r *connRecorder) config(ch call.RealtimeChannel) ConnManagerConfig {
	return ConnManagerConfig{
		Channel:  ch,
		ClientID: "client-1",
		OnStateChange: func(s call.ConnectionState) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnJoined: func() {
			r.mu.Lock()
			r.joins++
			r.mu.Unlock()
		},
		OnTranscript: func(speaker call.Speaker, text string) {
			r.mu.Lock()
			r.entries = append(r.entries, string(speaker)+"/"+text)
			r.mu.Unlock()
		},
		OnAudio: func(seg call.AudioSegment) {
			r.mu.Lock()
			r.segments = append(r.segments, seg)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
	}
}

func (r *connRecorder) joinCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joins
}

func countName(names []string, want string) int {
	n := 0
	for _, name := range names {
		if name == want {
			n++
		}
	}
	return n
}

func TestConnManager_JoinFlow(t *testing.T) {
	ch := mock.NewChannel()
	rec := &connRecorder{}
	m := NewConnManager(rec.config(ch))

	if err := m.Open(context.Background(), "session-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if m.State() != call.ConnectionConnecting {
		t.Errorf("expected connecting, got %v", m.State())
	}

	ch.Deliver(call.Event{Name: call.EventConnected})
	waitFor(t, "join announcement", func() bool {
		return countName(ch.SentNames(), call.EventJoinSession) == 1
	})
	if m.State() != call.ConnectionConnected {
		t.Errorf("expected connected, got %v", m.State())
	}
	if m.Joined() {
		t.Error("must not be joined before the backend acknowledges")
	}

	// Utterances before the join acknowledgment are dropped, not queued.
	m.SendUtterance(context.Background(), "too early")
	if got := countName(ch.SentNames(), call.EventUserUtterance); got != 0 {
		t.Errorf("expected pre-join utterance dropped, found %d", got)
	}

	ch.Deliver(call.Event{Name: call.EventJoined})
	waitFor(t, "joined ack", func() bool { return m.Joined() })
	if rec.joinCount() != 1 {
		t.Errorf("expected 1 joined callback, got %d", rec.joinCount())
	}

	m.SendUtterance(context.Background(), "hello there")
	names := ch.SentNames()
	if got := countName(names, call.EventUserUtterance); got != 1 {
		t.Fatalf("expected 1 utterance sent, got %d (%v)", got, names)
	}
	var p call.UtterancePayload
	if err := json.Unmarshal(ch.Sent[len(ch.Sent)-1].Data, &p); err != nil {
		t.Fatalf("decode utterance payload: %v", err)
	}
	if p.SessionID != "session-1" || p.Text != "hello there" {
		t.Errorf("got payload %+v", p)
	}
}

func TestConnManager_InboundDispatch(t *testing.T) {
	ch := mock.NewChannel()
	rec := &connRecorder{}
	m := NewConnManager(rec.config(ch))
	if err := m.Open(context.Background(), "session-1"); err != nil {
		t.Fatalf("open: %v", err)
	}

	ch.Deliver(call.MarshalPayload(call.EventTranscriptUpdate, call.TranscriptPayload{Speaker: "user", Text: "Hi"}))
	ch.Deliver(call.MarshalPayload(call.EventTranscriptUpdate, call.TranscriptPayload{Speaker: "ai", Text: "Hello"}))
	ch.Deliver(call.MarshalPayload(call.EventAudioSegment, call.AudioPayload{
		Audio: base64.StdEncoding.EncodeToString([]byte("pcm-1")),
		Text:  "Hello",
	}))
	ch.Deliver(call.MarshalPayload(call.EventAudioSegment, call.AudioPayload{
		Audio: base64.StdEncoding.EncodeToString([]byte("pcm-2")),
		Text:  "Still there?",
	}))

	waitFor(t, "events dispatched", func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.entries) == 2 && len(rec.segments) == 2
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.entries[0] != "operator/Hi" || rec.entries[1] != "agent/Hello" {
		t.Errorf("got entries %v", rec.entries)
	}
	if rec.segments[0].Sequence != 0 || rec.segments[1].Sequence != 1 {
		t.Errorf("got sequences %d, %d, want 0, 1", rec.segments[0].Sequence, rec.segments[1].Sequence)
	}
	if string(rec.segments[0].Payload) != "pcm-1" {
		t.Errorf("got payload %q, want decoded %q", rec.segments[0].Payload, "pcm-1")
	}
}

func TestConnManager_Disconnects(t *testing.T) {
	t.Run("server disconnect reconnects exactly once", func(t *testing.T) {
		ch := mock.NewChannel()
		rec := &connRecorder{}
		m := NewConnManager(rec.config(ch))
		if err := m.Open(context.Background(), "session-1"); err != nil {
			t.Fatalf("open: %v", err)
		}
		ch.Deliver(call.Event{Name: call.EventConnected})
		ch.Deliver(call.Event{Name: call.EventJoined})
		waitFor(t, "joined", func() bool { return m.Joined() })

		ch.Deliver(call.MarshalPayload(call.EventDisconnected, call.DisconnectPayload{Reason: call.DisconnectReasonServer}))
		waitFor(t, "explicit reconnect", func() bool { return ch.CallCountOpen == 2 })
		if m.State() != call.ConnectionReconnecting {
			t.Errorf("expected reconnecting, got %v", m.State())
		}
		if m.Joined() {
			t.Error("joined flag must reset across a disconnect")
		}

		// Membership is re-announced on the fresh connection.
		ch.Deliver(call.Event{Name: call.EventConnected})
		waitFor(t, "rejoin announcement", func() bool {
			return countName(ch.SentNames(), call.EventJoinSession) == 2
		})
		ch.Deliver(call.Event{Name: call.EventJoined})
		waitFor(t, "rejoined", func() bool { return m.Joined() })
	})

	t.Run("client disconnect does not reconnect", func(t *testing.T) {
		ch := mock.NewChannel()
		rec := &connRecorder{}
		m := NewConnManager(rec.config(ch))
		if err := m.Open(context.Background(), "session-1"); err != nil {
			t.Fatalf("open: %v", err)
		}
		ch.Deliver(call.Event{Name: call.EventConnected})

		ch.Deliver(call.MarshalPayload(call.EventDisconnected, call.DisconnectPayload{Reason: call.DisconnectReasonClient}))
		waitFor(t, "disconnected state", func() bool { return m.State() == call.ConnectionDisconnected })
		if ch.CallCountOpen != 1 {
			t.Errorf("expected no reconnect, got %d opens", ch.CallCountOpen)
		}
	})

	t.Run("exhausted retries mark the connection failed", func(t *testing.T) {
		ch := mock.NewChannel()
		rec := &connRecorder{}
		m := NewConnManager(rec.config(ch))
		if err := m.Open(context.Background(), "session-1"); err != nil {
			t.Fatalf("open: %v", err)
		}
		ch.Deliver(call.Event{Name: call.EventConnected})

		ch.Deliver(call.MarshalPayload(call.EventDisconnected, call.DisconnectPayload{Reason: call.DisconnectReasonExhausted}))
		waitFor(t, "failed state", func() bool { return m.State() == call.ConnectionFailed })

		rec.mu.Lock()
		defer rec.mu.Unlock()
		if len(rec.errs) != 1 || KindOf(rec.errs[0]) != KindConnection {
			t.Errorf("got errors %v, want one %q error", rec.errs, KindConnection)
		}
	})
}

func TestConnManager_ReconnectingResetsJoined(t *testing.T) {
	ch := mock.NewChannel()
	rec := &connRecorder{}
	m := NewConnManager(rec.config(ch))
	if err := m.Open(context.Background(), "session-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	ch.Deliver(call.Event{Name: call.EventConnected})
	ch.Deliver(call.Event{Name: call.EventJoined})
	waitFor(t, "joined", func() bool { return m.Joined() })

	ch.Deliver(call.Event{Name: call.EventReconnecting})
	waitFor(t, "reconnecting", func() bool { return m.State() == call.ConnectionReconnecting })
	if m.Joined() {
		t.Error("joined flag must reset while reconnecting")
	}

	m.SendUtterance(context.Background(), "lost words")
	if got := countName(ch.SentNames(), call.EventUserUtterance); got != 0 {
		t.Errorf("expected utterance dropped while unjoined, found %d", got)
	}
}

func TestConnManager_CloseIsIdempotent(t *testing.T) {
	ch := mock.NewChannel()
	rec := &connRecorder{}
	m := NewConnManager(rec.config(ch))
	if err := m.Open(context.Background(), "session-1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	ch.Deliver(call.Event{Name: call.EventConnected})

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if ch.CallCountClose != 1 {
		t.Errorf("expected 1 channel close, got %d", ch.CallCountClose)
	}
	if m.State() != call.ConnectionDisconnected {
		t.Errorf("expected disconnected, got %v", m.State())
	}
}
