// Package observe provides application-wide observability primitives for the
// live tutor: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so the same instruments can be
// scraped from /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use [NewMetrics]
// with a custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/livetutor"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Audio path ---

	// CaptureFrames counts microphone frames. Attribute "status": sent, dropped.
	CaptureFrames metric.Int64Counter

	// PlaybackChunks counts response audio chunks. Attribute "status":
	// scheduled, failed.
	PlaybackChunks metric.Int64Counter

	// PlaybackUnderruns counts chunks that arrived after the previous chunk had
	// already finished playing, leaving an audible gap.
	PlaybackUnderruns metric.Int64Counter

	// Interruptions counts barge-ins that discarded queued playback.
	Interruptions metric.Int64Counter

	// --- Conversation ---

	// TranscriptEntries counts finalized entries. Attribute "role": user, model.
	TranscriptEntries metric.Int64Counter

	// TranslationDuration tracks translation latency.
	TranslationDuration metric.Float64Histogram

	// TranslationErrors counts failed translations. Attribute "reason".
	TranslationErrors metric.Int64Counter

	// --- Sessions ---

	// ConnectDuration tracks time from connect to setup acknowledgement.
	ConnectDuration metric.Float64Histogram

	// SessionDuration tracks how long sessions stayed open.
	SessionDuration metric.Float64Histogram

	// SessionEnds counts session teardowns. Attribute "reason": user, remote, error.
	SessionEnds metric.Int64Counter

	// ActiveSessions tracks the number of live sessions (zero or one).
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Attributes
	// "method", "route" (the mux pattern) and "status".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// network round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15,
}

// sessionBuckets covers conversations from a few seconds to an hour.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.CaptureFrames, err = m.Int64Counter("livetutor.capture.frames",
		metric.WithDescription("Microphone frames by send status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackChunks, err = m.Int64Counter("livetutor.playback.chunks",
		metric.WithDescription("Response audio chunks by scheduling status."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackUnderruns, err = m.Int64Counter("livetutor.playback.underruns",
		metric.WithDescription("Response chunks that started after the playback queue ran dry."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("livetutor.playback.interruptions",
		metric.WithDescription("Barge-ins that discarded queued playback."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEntries, err = m.Int64Counter("livetutor.transcript.entries",
		metric.WithDescription("Finalized transcript entries by role."),
	); err != nil {
		return nil, err
	}
	if met.TranslationErrors, err = m.Int64Counter("livetutor.translation.errors",
		metric.WithDescription("Failed translations by reason."),
	); err != nil {
		return nil, err
	}
	if met.SessionEnds, err = m.Int64Counter("livetutor.session.ends",
		metric.WithDescription("Session teardowns by reason."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.TranslationDuration, err = m.Float64Histogram("livetutor.translation.duration",
		metric.WithDescription("Latency of transcript translation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConnectDuration, err = m.Float64Histogram("livetutor.session.connect.duration",
		metric.WithDescription("Time from dialing the live transport to setup acknowledgement."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("livetutor.session.duration",
		metric.WithDescription("Time sessions spent open."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("livetutor.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("livetutor.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation fails
// (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCaptureFrame counts one microphone frame with the given status.
func (m *Metrics) RecordCaptureFrame(ctx context.Context, status string) {
	m.CaptureFrames.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordPlaybackChunk counts one response chunk with the given status.
func (m *Metrics) RecordPlaybackChunk(ctx context.Context, status string) {
	m.PlaybackChunks.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

// RecordTranscriptEntry counts one finalized entry.
func (m *Metrics) RecordTranscriptEntry(ctx context.Context, role string) {
	m.TranscriptEntries.Add(ctx, 1, metric.WithAttributes(Attr("role", role)))
}

// RecordTranslation records one translation outcome. A non-empty reason marks
// it as failed.
func (m *Metrics) RecordTranslation(ctx context.Context, d time.Duration, reason string) {
	m.TranslationDuration.Record(ctx, d.Seconds())
	if reason != "" {
		m.TranslationErrors.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
	}
}

// RecordSessionEnd records a teardown and, when the session reached the open
// state, how long it stayed open.
func (m *Metrics) RecordSessionEnd(ctx context.Context, reason string, open time.Duration) {
	m.SessionEnds.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
	if open > 0 {
		m.SessionDuration.Record(ctx, open.Seconds())
	}
}
