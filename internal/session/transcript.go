package session

import (
	"strings"
	"sync"
	"time"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

// Transcript is the append-only, ordered log of speaker-tagged
// utterances for one session. It is independent of the transport:
// entries survive reconnects and are the client's source of truth for
// export (the backend's own copy is never consulted).
//
// Sequence numbers are assigned on append, monotonically increasing and
// gapless. Safe for concurrent use.
type Transcript struct {
	mu      sync.Mutex
	entries []call.TranscriptEntry
	now     func() time.Time
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{now: time.Now}
}

// Append records one utterance and returns the entry with its assigned
// sequence number.
func (t *Transcript) Append(speaker call.Speaker, text string) call.TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := call.TranscriptEntry{
		Speaker:   speaker,
		Text:      text,
		Sequence:  uint64(len(t.entries)),
		Timestamp: t.now(),
	}
	t.entries = append(t.entries, entry)
	return entry
}

// Entries returns a copy of all entries in append order.
func (t *Transcript) Entries() []call.TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]call.TranscriptEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Export renders the transcript for the post-call screen: one
// "{Speaker}: {text}" block per entry, separated by blank lines. The
// operator is labelled "You"; the agent is labelled with the persona
// name, falling back to "AI" when the name is empty.
func (t *Transcript) Export(personaName string) string {
	agentLabel := personaName
	if agentLabel == "" {
		agentLabel = "AI"
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	blocks := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		label := agentLabel
		if e.Speaker == call.SpeakerOperator {
			label = "You"
		}
		blocks = append(blocks, label+": "+e.Text)
	}
	return strings.Join(blocks, "\n\n")
}
