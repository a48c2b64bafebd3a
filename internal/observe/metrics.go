// Package observe provides application-wide observability primitives for
// pitchpoint: OpenTelemetry metrics for the voice-call session core.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// Prometheus exporter bridge is set up by [InitProvider], which can also
// serve the standard /metrics scrape endpoint for the process. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pitchpoint metrics.
const meterName = "github.com/Kevinxygu/pitchpoint"

// Metrics holds all OpenTelemetry metric instruments for the session
// core. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// PlaybackDuration tracks per-segment playback latency.
	PlaybackDuration metric.Float64Histogram

	// SegmentsPlayed counts speech segments played to completion.
	SegmentsPlayed metric.Int64Counter

	// SegmentsSkipped counts segments abandoned on error or timeout.
	SegmentsSkipped metric.Int64Counter

	// UtterancesSent counts operator utterances emitted to the backend.
	UtterancesSent metric.Int64Counter

	// Reconnects counts channel reconnection attempts.
	Reconnects metric.Int64Counter

	// Errors counts reported session errors. Use with [WithErrorKind] to
	// tag the error taxonomy kind.
	Errors metric.Int64Counter

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions metric.Int64UpDownCounter

	// QueueDepth tracks the number of segments waiting for playback.
	QueueDepth metric.Int64UpDownCounter
}

// playbackBuckets defines histogram bucket boundaries (in seconds) for
// segment playback, which runs from sub-second clips to the 30 s timeout.
var playbackBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30,
}

// WithErrorKind tags an Errors increment with the session error kind.
func WithErrorKind(kind string) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", kind))
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PlaybackDuration, err = m.Float64Histogram("pitchpoint.playback.duration",
		metric.WithDescription("Per-segment speech playback latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(playbackBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentsPlayed, err = m.Int64Counter("pitchpoint.playback.segments_played",
		metric.WithDescription("Speech segments played to completion."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsSkipped, err = m.Int64Counter("pitchpoint.playback.segments_skipped",
		metric.WithDescription("Speech segments abandoned on error or timeout."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesSent, err = m.Int64Counter("pitchpoint.utterances.sent",
		metric.WithDescription("Operator utterances emitted to the backend."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("pitchpoint.channel.reconnects",
		metric.WithDescription("Channel reconnection attempts."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("pitchpoint.session.errors",
		metric.WithDescription("Reported session errors by taxonomy kind."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("pitchpoint.active_sessions",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("pitchpoint.playback.queue_depth",
		metric.WithDescription("Segments waiting for playback."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance backed by
// the global meter provider. Instrument creation never fails with the
// default provider; on error a zero-value Metrics (all no-op instruments
// nil-checked by callers) is returned instead.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m = &Metrics{}
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
