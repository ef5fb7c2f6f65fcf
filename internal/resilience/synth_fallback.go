package resilience

import (
	"context"
	"log/slog"

	"github.com/MrWong99/susurrus/pkg/synth"
)

// SynthFallback implements [synth.Synthesizer] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker, so a
// backend that keeps failing is bypassed without paying its latency on every
// chunk.
//
// All registered backends must produce audio at the primary's sample rate;
// the playback sink is opened once for a single format.
type SynthFallback struct {
	group      *FallbackGroup[synth.Synthesizer]
	sampleRate int
}

// Compile-time interface assertion.
var _ synth.Synthesizer = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred
// backend.
func NewSynthFallback(primary synth.Synthesizer, primaryName string, cfg FallbackConfig) *SynthFallback {
	return &SynthFallback{
		group:      NewFallbackGroup(primary, primaryName, cfg),
		sampleRate: primary.SampleRate(),
	}
}

// AddFallback registers an additional synthesis backend. Backends are tried
// in registration order after the primary.
func (f *SynthFallback) AddFallback(name string, s synth.Synthesizer) {
	if rate := s.SampleRate(); rate != f.sampleRate {
		slog.Warn("fallback synthesizer sample rate differs from primary; its audio will play at the wrong pitch",
			"name", name,
			"rate", rate,
			"primary_rate", f.sampleRate,
		)
	}
	f.group.AddFallback(name, s)
}

// Synthesize renders text with the first healthy backend.
func (f *SynthFallback) Synthesize(ctx context.Context, text string, voice synth.Voice, speed float64) ([]float32, error) {
	return ExecuteWithResult(f.group, func(s synth.Synthesizer) ([]float32, error) {
		return s.Synthesize(ctx, text, voice, speed)
	})
}

// SampleRate returns the primary backend's output rate.
func (f *SynthFallback) SampleRate() int {
	return f.sampleRate
}
