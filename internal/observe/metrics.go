// Package observe provides application-wide observability primitives for
// livecards: OpenTelemetry metrics, distributed tracing, and a Prometheus
// exporter bridge so pipeline health can be scraped via /metrics.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
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

// meterName is the instrumentation scope name used for all livecards metrics.
const meterName = "github.com/zitemo/livecards"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	ASRDuration      metric.Float64Histogram
	DiarizeDuration  metric.Float64Histogram
	AnalysisDuration metric.Float64Histogram
	AnswerDuration   metric.Float64Histogram

	// --- Counters ---

	RelayEvents     metric.Int64Counter
	RelayDropped    metric.Int64Counter
	RelayReconnects metric.Int64Counter
	ASRFailures     metric.Int64Counter
	PersistFailures metric.Int64Counter
	AnalysisSkipped metric.Int64Counter

	// --- Gauges ---

	AGCGain        metric.Float64Gauge
	ActiveSpeakers metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for batch ASR and LLM call latencies, which run much longer than a typical
// HTTP request.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 45, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ASRDuration, err = m.Float64Histogram("livecards.asr.duration",
		metric.WithDescription("Latency of whisper batch recognition per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DiarizeDuration, err = m.Float64Histogram("livecards.diarize.duration",
		metric.WithDescription("Latency of speaker-embedding + assignment per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("livecards.analysis.duration",
		metric.WithDescription("Latency of one AnalysisWorkflow tick, including the LLM call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnswerDuration, err = m.Float64Histogram("livecards.answer.duration",
		metric.WithDescription("Latency of one AnswerScriptGenerator call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.RelayEvents, err = m.Int64Counter("livecards.relay.events",
		metric.WithDescription("Total ChatEvents accepted by EventRelay, by kind."),
	); err != nil {
		return nil, err
	}
	if met.RelayDropped, err = m.Int64Counter("livecards.relay.dropped",
		metric.WithDescription("Total events dropped from the bounded relay queue on overflow."),
	); err != nil {
		return nil, err
	}
	if met.RelayReconnects, err = m.Int64Counter("livecards.relay.reconnects",
		metric.WithDescription("Total websocket reconnect attempts."),
	); err != nil {
		return nil, err
	}
	if met.ASRFailures, err = m.Int64Counter("livecards.asr.failures",
		metric.WithDescription("Total segments that failed recognition or timed out."),
	); err != nil {
		return nil, err
	}
	if met.PersistFailures, err = m.Int64Counter("livecards.persist.failures",
		metric.WithDescription("Total artifact write failures."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisSkipped, err = m.Int64Counter("livecards.analysis.skipped",
		metric.WithDescription("Total analysis ticks skipped because the previous tick was still running."),
	); err != nil {
		return nil, err
	}

	if met.AGCGain, err = m.Float64Gauge("livecards.agc.gain",
		metric.WithDescription("Current AGC multiplicative gain."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSpeakers, err = m.Int64UpDownCounter("livecards.diarize.active_speakers",
		metric.WithDescription("Number of distinct speaker centroids currently tracked."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordRelayEvent records an accepted relay event counter increment.
func (m *Metrics) RecordRelayEvent(ctx context.Context, kind string) {
	m.RelayEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordASRFailure records a failed or timed-out recognition attempt.
func (m *Metrics) RecordASRFailure(ctx context.Context, reason string) {
	m.ASRFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
