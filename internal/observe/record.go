package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Nil-safe recording helpers. The detector, pipeline and session accept an
// optional *Metrics; these wrappers let hot paths record unconditionally
// without guarding every call site.

// AddFrames records n processed capture frames.
func (m *Metrics) AddFrames(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.FramesProcessed.Add(ctx, n)
}

// AddFrameDropped records a frame lost to control-loop backpressure.
func (m *Metrics) AddFrameDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.FramesDropped.Add(ctx, 1)
}

// AddUtterance records a finalized segment with the given finalize reason
// ("silence", "cap" or "stop") and its speech duration.
func (m *Metrics) AddUtterance(ctx context.Context, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.SpeechDuration.Record(ctx, d.Seconds())
}

// AddSegmentDropped records a segment discarded on persistence failure.
func (m *Metrics) AddSegmentDropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.SegmentsDropped.Add(ctx, 1)
}

// ObserveSynthesis records per-chunk synthesis latency.
func (m *Metrics) ObserveSynthesis(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.SynthesisDuration.Record(ctx, d.Seconds())
}

// ObserveSlotWait records time spent waiting for a free pipeline slot.
func (m *Metrics) ObserveSlotWait(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.SlotWaitDuration.Record(ctx, d.Seconds())
}

// AddChunkSpoken records a chunk that completed playback.
func (m *Metrics) AddChunkSpoken(ctx context.Context) {
	if m == nil {
		return
	}
	m.ChunksSpoken.Add(ctx, 1)
}

// AddSpeakError records a failed Speak call of the given kind
// ("generation" or "playback").
func (m *Metrics) AddSpeakError(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.SpeakErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SessionStarted increments the live-session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded decrements the live-session gauge.
func (m *Metrics) SessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
