// Package mock provides a test double for the synth package interfaces.
//
// Use Synthesizer to inject canned PCM output, simulate generation latency,
// and fail specific calls by index. Every call is recorded so tests can
// assert on the text and voice that reached the backend.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/susurrus/pkg/synth"
)

// SynthesizeCall records a single invocation of [Synthesizer.Synthesize].
type SynthesizeCall struct {
	// Text is the chunk passed to Synthesize.
	Text string

	// Voice is the voice profile passed to Synthesize.
	Voice synth.Voice

	// Speed is the rate factor passed to Synthesize.
	Speed float64
}

// Synthesizer is a mock implementation of [synth.Synthesizer].
type Synthesizer struct {
	mu sync.Mutex

	// SampleRateResult is returned by SampleRate. Defaults to 16000 when zero.
	SampleRateResult int

	// SamplesPerCall is the number of samples returned per Synthesize call.
	// Defaults to 160 (10 ms at 16 kHz) when zero.
	SamplesPerCall int

	// Latency is slept inside every Synthesize call to simulate generation
	// time. Zero means calls return immediately.
	Latency time.Duration

	// ErrAtCall, if non-nil, maps a zero-based call index to the error that
	// call returns. Calls at other indices succeed.
	ErrAtCall map[int]error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Compile-time interface assertion.
var _ synth.Synthesizer = (*Synthesizer)(nil)

// Synthesize records the call, sleeps Latency, and returns silence of
// SamplesPerCall samples or the configured error for this call index.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice synth.Voice, speed float64) ([]float32, error) {
	s.mu.Lock()
	idx := len(s.SynthesizeCalls)
	s.SynthesizeCalls = append(s.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice, Speed: speed})
	latency := s.Latency
	n := s.SamplesPerCall
	err := s.ErrAtCall[idx]
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = 160
	}
	return make([]float32, n), nil
}

// SampleRate returns SampleRateResult, defaulting to 16000.
func (s *Synthesizer) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SampleRateResult == 0 {
		return 16000
	}
	return s.SampleRateResult
}

// Calls returns a copy of the recorded Synthesize calls. Thread-safe.
func (s *Synthesizer) Calls() []SynthesizeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SynthesizeCall, len(s.SynthesizeCalls))
	copy(out, s.SynthesizeCalls)
	return out
}
