// Package synth defines the Synthesizer interface for speech synthesis
// backends.
//
// A synthesizer turns one sanitized text chunk plus a voice identity into
// raw mono float PCM. The backend is a black box — neural, formant or
// remote — the playback pipeline only depends on the generate contract and
// the fixed output sample rate.
//
// Implementations must be safe for concurrent use. The playback pipeline
// issues at most one Synthesize call at a time per utterance, but multiple
// sessions may synthesise in parallel.
package synth

import "context"

// Voice describes a synthesis voice identity.
type Voice struct {
	// ID is the backend-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Language is a BCP-47 language tag (e.g. "en-US").
	Language string

	// PitchShift adjusts pitch (-10 to +10, 0 = default).
	PitchShift float64

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). The
	// per-call speed passed to Synthesize multiplies this base factor.
	SpeedFactor float64
}

// Synthesizer is the abstraction over any speech synthesis backend.
type Synthesizer interface {
	// Synthesize renders text as mono float PCM at [Synthesizer.SampleRate].
	// speed scales the speaking rate (1.0 = the voice's natural rate).
	// Returns an error if the backend is unavailable or generation fails;
	// the caller treats any error as fatal for the current utterance.
	Synthesize(ctx context.Context, text string, voice Voice, speed float64) ([]float32, error)

	// SampleRate reports the fixed output sample rate in Hz.
	SampleRate() int
}
