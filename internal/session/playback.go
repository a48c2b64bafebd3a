package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Kevinxygu/pitchpoint/internal/observe"
	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

// defaultPlaybackTimeout bounds a single segment's playback. A segment
// that has neither finished nor errored by the deadline is abandoned and
// the queue moves on.
const defaultPlaybackTimeout = 30 * time.Second

// PlaybackQueueConfig configures a [PlaybackQueue].
type PlaybackQueueConfig struct {
	// Output plays one decoded segment to completion. Required.
	Output call.AudioOutput

	// Timeout bounds each playback attempt. Defaults to 30s if zero.
	Timeout time.Duration

	// OnError receives absorbed playback errors (decode/play failures and
	// timeouts). Never invoked with nil. May be nil.
	OnError func(error)

	// OnStateChange receives Empty/Playing transitions. May be nil.
	OnStateChange func(call.PlaybackState)

	// Metrics records playback instrumentation. May be nil.
	Metrics *observe.Metrics
}

// PlaybackQueue is an ordered buffer of incoming speech segments with a
// single active consumer.
//
// Segments play strictly in arrival order and never overlap: Enqueue
// while a consume loop is running only appends, it never spawns a second
// loop. Playback errors and timeouts are absorbed — reported through
// OnError and treated as segment completion — so one bad segment never
// stalls the queue. Flush drops all pending segments and cancels the
// in-flight playback immediately; Close additionally rejects everything
// enqueued afterwards.
//
// All methods are safe for concurrent use.
type PlaybackQueue struct {
	output  call.AudioOutput
	timeout time.Duration
	onError func(error)
	onState func(call.PlaybackState)
	metrics *observe.Metrics

	mu      sync.Mutex
	pending []call.AudioSegment
	playing bool
	closed  bool
	cancel  context.CancelFunc // cancels the in-flight Play, nil when idle

	wg sync.WaitGroup
}

// NewPlaybackQueue creates a queue with the given configuration.
func NewPlaybackQueue(cfg PlaybackQueueConfig) *PlaybackQueue {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultPlaybackTimeout
	}
	return &PlaybackQueue{
		output:  cfg.Output,
		timeout: timeout,
		onError: cfg.OnError,
		onState: cfg.OnStateChange,
		metrics: cfg.Metrics,
	}
}

// Enqueue appends a segment to the tail. If no consume loop is running,
// one is started; otherwise the running loop will reach the segment in
// FIFO order. After Close, segments are dropped: channel events still in
// flight during teardown must not restart playback.
func (q *PlaybackQueue) Enqueue(seg call.AudioSegment) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		slog.Debug("playback segment dropped, queue closed", "sequence", seg.Sequence)
		return
	}
	q.pending = append(q.pending, seg)
	depth := len(q.pending)
	start := !q.playing
	if start {
		q.playing = true
		// Registered under the lock so a concurrent Flush cannot observe
		// a zero counter between the state flip and the goroutine launch.
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.QueueDepth.Add(context.Background(), 1)
	}
	slog.Debug("playback segment enqueued", "sequence", seg.Sequence, "depth", depth)

	if !start {
		return
	}
	q.notifyState(call.PlaybackPlaying)
	go q.consume()
}

// consume is the single playback loop. It pops the head, plays it to
// completion (bounded by the timeout), and repeats until the queue is
// empty. Exactly one consume goroutine exists while playing is true.
func (q *PlaybackQueue) consume() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.playing = false
			q.mu.Unlock()
			q.notifyState(call.PlaybackEmpty)
			return
		}
		seg := q.pending[0]
		q.pending = q.pending[1:]
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		q.cancel = cancel
		q.mu.Unlock()

		if q.metrics != nil {
			q.metrics.QueueDepth.Add(ctx, -1)
		}

		began := time.Now()
		err := q.output.Play(ctx, seg)
		cancel()

		q.mu.Lock()
		q.cancel = nil
		q.mu.Unlock()

		q.finish(ctx, seg, err, time.Since(began))
	}
}

// finish classifies the outcome of one playback attempt. Every outcome,
// including failure, counts as segment completion.
func (q *PlaybackQueue) finish(ctx context.Context, seg call.AudioSegment, err error, took time.Duration) {
	switch {
	case err == nil:
		if q.metrics != nil {
			q.metrics.SegmentsPlayed.Add(context.Background(), 1)
			q.metrics.PlaybackDuration.Record(context.Background(), took.Seconds())
		}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		slog.Warn("playback timed out, skipping segment", "sequence", seg.Sequence, "timeout", q.timeout)
		if q.metrics != nil {
			q.metrics.SegmentsSkipped.Add(context.Background(), 1)
		}
		q.report(newError(KindPlaybackTimeout, fmt.Errorf("segment %d exceeded %v", seg.Sequence, q.timeout)))
	case errors.Is(err, context.Canceled):
		// Flush cancelled the in-flight segment; nothing to report.
		slog.Debug("playback cancelled", "sequence", seg.Sequence)
	default:
		slog.Warn("playback failed, skipping segment", "sequence", seg.Sequence, "err", err)
		if q.metrics != nil {
			q.metrics.SegmentsSkipped.Add(context.Background(), 1)
		}
		q.report(newError(KindPlayback, fmt.Errorf("segment %d: %w", seg.Sequence, err)))
	}
}

// Close flushes the queue and permanently rejects further segments.
// Teardown uses it instead of a bare Flush: the connection manager may
// still dispatch buffered audio events after the flush, and those must
// not spawn a fresh consume loop. Safe to call repeatedly.
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Flush()
}

// Flush clears all pending segments and stops any in-progress playback
// immediately. It blocks until the consume loop has observed the
// cancellation and drained, so callers see a quiet queue. Safe to call
// repeatedly and on an idle queue.
func (q *PlaybackQueue) Flush() {
	q.mu.Lock()
	dropped := len(q.pending)
	q.pending = nil
	cancel := q.cancel
	q.mu.Unlock()

	if q.metrics != nil && dropped > 0 {
		q.metrics.QueueDepth.Add(context.Background(), int64(-dropped))
	}
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	if dropped > 0 {
		slog.Debug("playback queue flushed", "dropped", dropped)
	}
}

// State reports the derived playback state.
func (q *PlaybackQueue) State() call.PlaybackState {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.playing {
		return call.PlaybackPlaying
	}
	return call.PlaybackEmpty
}

// Depth reports the number of segments waiting (excluding any segment
// currently playing).
func (q *PlaybackQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *PlaybackQueue) notifyState(s call.PlaybackState) {
	if q.onState != nil {
		q.onState(s)
	}
}

func (q *PlaybackQueue) report(err error) {
	if q.onError != nil {
		q.onError(err)
	}
}
