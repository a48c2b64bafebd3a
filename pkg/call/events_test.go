package call

import (
	"encoding/json"
	"testing"
)

func TestMarshalPayload(t *testing.T) {
	ev := MarshalPayload(EventJoinSession, JoinPayload{SessionID: "s1", ClientID: "c1"})
	if ev.Name != EventJoinSession {
		t.Errorf("got name %q", ev.Name)
	}
	var p JoinPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.SessionID != "s1" || p.ClientID != "c1" {
		t.Errorf("got %+v", p)
	}
}

func TestEventWireFormat(t *testing.T) {
	data, err := json.Marshal(MarshalPayload(EventUserUtterance, UtterancePayload{SessionID: "s1", Text: "hi"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if string(frame["event"]) != `"user_audio"` {
		t.Errorf("got event key %s", frame["event"])
	}
	if _, ok := frame["data"]; !ok {
		t.Error("expected data key")
	}
}

func TestErrorPayloadText(t *testing.T) {
	cases := []struct {
		name string
		p    ErrorPayload
		want string
	}{
		{name: "message wins", p: ErrorPayload{Message: "room full", Reason: "capacity"}, want: "room full"},
		{name: "reason fallback", p: ErrorPayload{Reason: "capacity"}, want: "capacity"},
		{name: "empty", p: ErrorPayload{}, want: "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.Text(); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
