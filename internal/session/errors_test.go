package session

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")

	t.Run("classified error", func(t *testing.T) {
		err := newError(KindPlayback, cause)
		if got := KindOf(err); got != KindPlayback {
			t.Errorf("got %q, want %q", got, KindPlayback)
		}
		if !errors.Is(err, cause) {
			t.Error("expected unwrap to reach the cause")
		}
	})

	t.Run("wrapped classified error", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", newError(KindCapture, cause))
		if got := KindOf(err); got != KindCapture {
			t.Errorf("got %q, want %q", got, KindCapture)
		}
	})

	t.Run("unclassified error", func(t *testing.T) {
		if got := KindOf(cause); got != "" {
			t.Errorf("got %q, want empty kind", got)
		}
	})
}

func TestNewError_PreservesExistingKind(t *testing.T) {
	inner := newError(KindConnection, errors.New("socket closed"))
	outer := newError(KindPlayback, inner)
	if got := KindOf(outer); got != KindConnection {
		t.Errorf("got %q, want the original %q", got, KindConnection)
	}
}
