package session

import "testing"

func TestHandoff(t *testing.T) {
	h := NewHandoff()

	if _, ok := h.Get(HandoffKeyTranscript); ok {
		t.Error("expected empty store")
	}

	h.Set(HandoffKeyTranscript, "You: Hi")
	h.Set(HandoffKeyDuration, "42")
	h.Set(HandoffKeyDuration, "43")

	if v, ok := h.Get(HandoffKeyTranscript); !ok || v != "You: Hi" {
		t.Errorf("got %q, %v", v, ok)
	}
	if v, ok := h.Get(HandoffKeyDuration); !ok || v != "43" {
		t.Errorf("got %q, %v; want the replaced value", v, ok)
	}

	h.Delete(HandoffKeyDuration)
	if _, ok := h.Get(HandoffKeyDuration); ok {
		t.Error("expected key deleted")
	}
}
