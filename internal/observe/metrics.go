// Package observe provides application-wide observability primitives for
// Susurrus: OpenTelemetry metrics and structured-logging setup.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Tests should use [NewMetrics]
// with a custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Susurrus metrics.
const meterName = "github.com/MrWong99/susurrus"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation. A nil *Metrics is valid everywhere one is
// accepted; recording on it is a no-op.
type Metrics struct {
	// --- Capture side ---

	// FramesProcessed counts audio frames inspected by the detector.
	FramesProcessed metric.Int64Counter

	// FramesDropped counts frames lost because the control loop's note
	// queue was full.
	FramesDropped metric.Int64Counter

	// Utterances counts finalized speech segments. Use with attribute:
	//   attribute.String("reason", "silence"|"cap"|"stop")
	Utterances metric.Int64Counter

	// SegmentsDropped counts segments discarded on persistence failure.
	SegmentsDropped metric.Int64Counter

	// SpeechDuration tracks the length of finalized utterances in seconds.
	SpeechDuration metric.Float64Histogram

	// --- Playback side ---

	// SynthesisDuration tracks per-chunk speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// SlotWaitDuration tracks how long the generation loop waited for a
	// free pipeline slot — sustained high values mean synthesis is
	// outpacing playback.
	SlotWaitDuration metric.Float64Histogram

	// ChunksSpoken counts chunks that completed playback.
	ChunksSpoken metric.Int64Counter

	// SpeakErrors counts failed Speak calls. Use with attribute:
	//   attribute.String("kind", "generation"|"playback")
	SpeakErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// speechBuckets defines bucket boundaries (in seconds) for utterance lengths.
var speechBuckets = []float64{
	0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SpeechDuration, err = m.Float64Histogram("susurrus.vad.speech.duration",
		metric.WithDescription("Length of finalized speech segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(speechBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("susurrus.tts.synthesis.duration",
		metric.WithDescription("Latency of per-chunk speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SlotWaitDuration, err = m.Float64Histogram("susurrus.playback.slot_wait.duration",
		metric.WithDescription("Time spent waiting for a free pipeline slot."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("susurrus.vad.frames.processed",
		metric.WithDescription("Audio frames inspected by the detector."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("susurrus.vad.frames.dropped",
		metric.WithDescription("Frames lost to control-loop backpressure."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("susurrus.vad.utterances",
		metric.WithDescription("Finalized speech segments."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDropped, err = m.Int64Counter("susurrus.vad.segments.dropped",
		metric.WithDescription("Segments discarded on persistence failure."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSpoken, err = m.Int64Counter("susurrus.playback.chunks",
		metric.WithDescription("Chunks that completed playback."),
	); err != nil {
		return nil, err
	}
	if met.SpeakErrors, err = m.Int64Counter("susurrus.playback.errors",
		metric.WithDescription("Failed Speak calls."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64UpDownCounter("susurrus.sessions.active",
		metric.WithDescription("Live voice sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}
