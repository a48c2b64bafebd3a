package session

import (
	"testing"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

func TestTranscript_AppendAssignsSequence(t *testing.T) {
	tr := NewTranscript()
	a := tr.Append(call.SpeakerOperator, "Hi")
	b := tr.Append(call.SpeakerAgent, "Hello")
	c := tr.Append(call.SpeakerOperator, "Got a minute?")

	if a.Sequence != 0 || b.Sequence != 1 || c.Sequence != 2 {
		t.Errorf("got sequences %d, %d, %d, want 0, 1, 2", a.Sequence, b.Sequence, c.Sequence)
	}
	if tr.Len() != 3 {
		t.Errorf("got len %d, want 3", tr.Len())
	}
}

func TestTranscript_EntriesReturnsCopy(t *testing.T) {
	tr := NewTranscript()
	tr.Append(call.SpeakerOperator, "Hi")

	entries := tr.Entries()
	entries[0].Text = "mutated"

	if got := tr.Entries()[0].Text; got != "Hi" {
		t.Errorf("internal state mutated through Entries: %q", got)
	}
}

func TestTranscript_Export(t *testing.T) {
	t.Run("labels speakers and joins with blank lines", func(t *testing.T) {
		tr := NewTranscript()
		tr.Append(call.SpeakerOperator, "Hi")
		tr.Append(call.SpeakerAgent, "Hello")
		tr.Append(call.SpeakerOperator, "Got a minute?")

		got := tr.Export("Sam")
		want := "You: Hi\n\nSam: Hello\n\nYou: Got a minute?"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("falls back to AI without a persona name", func(t *testing.T) {
		tr := NewTranscript()
		tr.Append(call.SpeakerAgent, "Hello")

		if got := tr.Export(""); got != "AI: Hello" {
			t.Errorf("got %q, want %q", got, "AI: Hello")
		}
	})

	t.Run("empty transcript exports empty string", func(t *testing.T) {
		tr := NewTranscript()
		if got := tr.Export("Sam"); got != "" {
			t.Errorf("got %q, want empty", got)
		}
	})
}
