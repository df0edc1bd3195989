// Package observe provides application-wide observability primitives for
// stagetrack: OpenTelemetry metrics, tracing, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A
// Prometheus exporter bridge is available via [InitProvider] so that
// metrics can still be scraped via the standard /metrics endpoint. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all stagetrack metrics.
const meterName = "github.com/tightfive/stagetrack"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types
// handle their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// MatchDuration tracks transcript-to-position matching latency.
	MatchDuration metric.Float64Histogram

	// AnalyzeDuration tracks per-buffer acoustic feature extraction latency.
	AnalyzeDuration metric.Float64Histogram

	// --- Distributions ---

	// MatchConfidence tracks the confidence distribution of voice matches.
	MatchConfidence metric.Float64Histogram

	// --- Counters ---

	// Corrections counts hard corrections, the pointer snapping to the
	// voice-reported line.
	Corrections metric.Int64Counter

	// AutoPauses counts automatic pauses. Use with attribute:
	//   attribute.String("reason", "silence"|"confidence")
	AutoPauses metric.Int64Counter

	// AnchorJumps counts spoken-anchor repositions.
	AnchorJumps metric.Int64Counter

	// TranscriptFragments counts recognizer output. Use with attribute:
	//   attribute.String("kind", "partial"|"final")
	TranscriptFragments metric.Int64Counter

	// --- Gauges ---

	// ActiveStages tracks the number of live performance sessions.
	ActiveStages metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for the
// low-latency tracking path.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// confidenceBuckets covers the [0, 1] match confidence range.
var confidenceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.MatchDuration, err = m.Float64Histogram("stagetrack.match.duration",
		metric.WithDescription("Latency of transcript-to-position matching."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalyzeDuration, err = m.Float64Histogram("stagetrack.acoustic.duration",
		metric.WithDescription("Latency of per-buffer acoustic feature extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchConfidence, err = m.Float64Histogram("stagetrack.match.confidence",
		metric.WithDescription("Distribution of voice match confidence."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Corrections, err = m.Int64Counter("stagetrack.scroll.corrections",
		metric.WithDescription("Total hard corrections of the scroll pointer."),
	); err != nil {
		return nil, err
	}
	if met.AutoPauses, err = m.Int64Counter("stagetrack.scroll.auto_pauses",
		metric.WithDescription("Total automatic pauses by reason."),
	); err != nil {
		return nil, err
	}
	if met.AnchorJumps, err = m.Int64Counter("stagetrack.scroll.anchor_jumps",
		metric.WithDescription("Total spoken-anchor repositions."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptFragments, err = m.Int64Counter("stagetrack.stt.fragments",
		metric.WithDescription("Total transcript fragments by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStages, err = m.Int64UpDownCounter("stagetrack.active_stages",
		metric.WithDescription("Number of live performance sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("stagetrack.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call using [otel.GetMeterProvider]. Subsequent calls return
// the same pointer. Panics if instrument creation fails (should not
// happen with the global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity
// at call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAutoPause records an automatic pause with its reason.
func (m *Metrics) RecordAutoPause(ctx context.Context, reason string) {
	m.AutoPauses.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordFragment records one transcript fragment of the given kind.
func (m *Metrics) RecordFragment(ctx context.Context, kind string) {
	m.TranscriptFragments.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordMatch records the latency and resulting confidence of one
// position match.
func (m *Metrics) RecordMatch(ctx context.Context, seconds, confidence float64) {
	m.MatchDuration.Record(ctx, seconds)
	m.MatchConfidence.Record(ctx, confidence)
}
