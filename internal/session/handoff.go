package session

import "sync"

// Well-known handoff keys read by the post-call feedback screen.
const (
	// HandoffKeyTranscript holds the formatted transcript export.
	HandoffKeyTranscript = "callTranscript"

	// HandoffKeyDuration holds the elapsed connected duration in whole
	// seconds, formatted as a decimal string.
	HandoffKeyDuration = "callDuration"
)

// Handoff is a small keyed store for transient state passed from a
// finished call to the next screen. It is the process-local analog of
// per-tab web storage: values survive the session teardown but not the
// process. Safe for concurrent use.
type Handoff struct {
	mu     sync.Mutex
	values map[string]string
}

// NewHandoff creates an empty store.
func NewHandoff() *Handoff {
	return &Handoff{values: make(map[string]string)}
}

// Set stores value under key, replacing any previous value.
func (h *Handoff) Set(key, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[key] = value
}

// Get returns the value stored under key and whether it was present.
func (h *Handoff) Get(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[key]
	return v, ok
}

// Delete removes the value stored under key, if any.
func (h *Handoff) Delete(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.values, key)
}
