package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
	"github.com/Kevinxygu/pitchpoint/pkg/call/mock"
)

// waitFor polls cond until it holds or the deadline passes. Shared by
// the asynchronous tests in this package.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func seg(sequence uint64, text string) call.AudioSegment {
	return call.AudioSegment{Payload: []byte{0x01}, Text: text, Sequence: sequence}
}

func TestPlaybackQueue_OrderAndExclusivity(t *testing.T) {
	out := &mock.AudioOutput{Block: true}
	q := NewPlaybackQueue(PlaybackQueueConfig{Output: out})

	q.Enqueue(seg(0, "first"))
	q.Enqueue(seg(1, "second"))
	q.Enqueue(seg(2, "third"))

	for i := 1; i <= 3; i++ {
		waitFor(t, "play call", func() bool { return out.CallCount() == i })
		out.Finish()
	}
	waitFor(t, "queue drain", func() bool { return q.State() == call.PlaybackEmpty })

	texts := out.PlayedTexts()
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if texts[i] != w {
			t.Errorf("position %d: got %q, want %q", i, texts[i], w)
		}
	}
	if out.MaxActive != 1 {
		t.Errorf("expected at most 1 concurrent playback, got %d", out.MaxActive)
	}
}

func TestPlaybackQueue_StateTransitions(t *testing.T) {
	var mu sync.Mutex
	var states []call.PlaybackState
	out := &mock.AudioOutput{}
	q := NewPlaybackQueue(PlaybackQueueConfig{
		Output: out,
		OnStateChange: func(s call.PlaybackState) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})

	q.Enqueue(seg(0, "only"))
	waitFor(t, "queue drain", func() bool { return q.State() == call.PlaybackEmpty && out.CallCount() == 1 })

	waitFor(t, "state callbacks", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if states[0] != call.PlaybackPlaying || states[1] != call.PlaybackEmpty {
		t.Errorf("got transitions %v, want [playing empty]", states)
	}
}

func TestPlaybackQueue_TimeoutSkipsSegment(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	out := &mock.AudioOutput{Block: true}
	q := NewPlaybackQueue(PlaybackQueueConfig{
		Output:  out,
		Timeout: 20 * time.Millisecond,
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})

	q.Enqueue(seg(0, "stuck"))
	q.Enqueue(seg(1, "next"))

	// The first segment never finishes; the timeout must move the queue
	// on to the second, which also times out.
	waitFor(t, "both segments attempted", func() bool { return out.CallCount() == 2 })
	waitFor(t, "queue drain", func() bool { return q.State() == call.PlaybackEmpty })

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported timeouts, got %d", len(reported))
	}
	for _, err := range reported {
		if KindOf(err) != KindPlaybackTimeout {
			t.Errorf("got kind %q, want %q", KindOf(err), KindPlaybackTimeout)
		}
	}
}

func TestPlaybackQueue_ErrorSkipsSegment(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	out := &mock.AudioOutput{PlayError: errors.New("decode failed")}
	q := NewPlaybackQueue(PlaybackQueueConfig{
		Output: out,
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})

	q.Enqueue(seg(0, "bad"))
	q.Enqueue(seg(1, "also bad"))
	waitFor(t, "queue drain", func() bool { return q.State() == call.PlaybackEmpty && out.CallCount() == 2 })

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported errors, got %d", len(reported))
	}
	if KindOf(reported[0]) != KindPlayback {
		t.Errorf("got kind %q, want %q", KindOf(reported[0]), KindPlayback)
	}
}

func TestPlaybackQueue_Flush(t *testing.T) {
	out := &mock.AudioOutput{Block: true}
	q := NewPlaybackQueue(PlaybackQueueConfig{Output: out})

	q.Enqueue(seg(0, "playing"))
	q.Enqueue(seg(1, "pending"))
	q.Enqueue(seg(2, "pending"))
	waitFor(t, "first play call", func() bool { return out.CallCount() == 1 })

	q.Flush()

	if out.CallCount() != 1 {
		t.Errorf("pending segments played after flush: %d play calls", out.CallCount())
	}
	if q.Depth() != 0 {
		t.Errorf("expected empty queue after flush, depth %d", q.Depth())
	}
	if q.State() != call.PlaybackEmpty {
		t.Errorf("expected empty state after flush, got %v", q.State())
	}

	// Flushing an idle queue is a no-op.
	q.Flush()
}

func TestPlaybackQueue_EnqueueAfterDrainRestarts(t *testing.T) {
	out := &mock.AudioOutput{}
	q := NewPlaybackQueue(PlaybackQueueConfig{Output: out})

	q.Enqueue(seg(0, "one"))
	waitFor(t, "first drain", func() bool { return q.State() == call.PlaybackEmpty && out.CallCount() == 1 })

	q.Enqueue(seg(1, "two"))
	waitFor(t, "second drain", func() bool { return q.State() == call.PlaybackEmpty && out.CallCount() == 2 })
}

func TestPlaybackQueue_CloseRejectsLateSegments(t *testing.T) {
	out := &mock.AudioOutput{Block: true}
	q := NewPlaybackQueue(PlaybackQueueConfig{Output: out})

	q.Enqueue(seg(0, "current"))
	q.Enqueue(seg(1, "pending"))
	waitFor(t, "play call", func() bool { return out.CallCount() == 1 })

	q.Close()
	if q.State() != call.PlaybackEmpty {
		t.Fatalf("expected empty state after close, got %v", q.State())
	}

	// A segment arriving after the close must not restart the consume
	// loop; teardown has already walked away from the queue.
	q.Enqueue(seg(2, "late"))
	time.Sleep(20 * time.Millisecond)
	if out.CallCount() != 1 {
		t.Fatalf("expected no playback after close, got %d calls", out.CallCount())
	}
	if q.State() != call.PlaybackEmpty {
		t.Errorf("expected empty state, got %v", q.State())
	}

	// Closing again is a no-op.
	q.Close()
}
