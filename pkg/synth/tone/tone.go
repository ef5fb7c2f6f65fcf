// Package tone implements a tiny offline formant-style synthesizer.
//
// It renders each word of the input as a short vowel-like tone whose pitch
// is derived from the word's content, separated by brief pauses. The output
// is obviously not speech — it exists so that the demo command and
// integration tests can exercise the full playback pipeline without a
// network-backed TTS engine.
package tone

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/MrWong99/susurrus/pkg/synth"
)

const (
	defaultSampleRate = 16000

	// Per-word tone length and inter-word gap at speed 1.0.
	toneDur = 180 * 1e-3
	gapDur  = 60 * 1e-3

	basePitch = 110.0 // Hz
	pitchSpan = 180.0 // Hz
	amplitude = 0.30
	fadeFrac  = 0.15 // attack/release fraction of each tone
)

// Synthesizer renders text as word-paced tones. The zero value is not
// usable; construct with [New].
type Synthesizer struct {
	rate int
}

// Compile-time interface assertion.
var _ synth.Synthesizer = (*Synthesizer)(nil)

// New returns a tone Synthesizer producing mono PCM at 16 kHz.
func New() *Synthesizer {
	return &Synthesizer{rate: defaultSampleRate}
}

// SampleRate implements [synth.Synthesizer].
func (s *Synthesizer) SampleRate() int {
	return s.rate
}

// Synthesize implements [synth.Synthesizer]. It never fails except on
// context cancellation; an empty text renders as a single pause.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice synth.Voice, speed float64) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if speed <= 0 {
		speed = 1.0
	}
	if voice.SpeedFactor > 0 {
		speed *= voice.SpeedFactor
	}

	toneSamples := int(float64(s.rate) * toneDur / speed)
	gapSamples := int(float64(s.rate) * gapDur / speed)

	words := strings.Fields(text)
	if len(words) == 0 {
		return make([]float32, gapSamples), nil
	}

	out := make([]float32, 0, len(words)*(toneSamples+gapSamples))
	for i, w := range words {
		if i > 0 {
			out = append(out, make([]float32, gapSamples)...)
		}
		out = appendTone(out, wordPitch(w, voice.PitchShift), toneSamples, s.rate)
	}
	return out, nil
}

// wordPitch maps a word to a stable pitch in [basePitch, basePitch+pitchSpan),
// shifted by the voice's pitch setting.
func wordPitch(word string, shift float64) float64 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(word)))
	frac := float64(h.Sum32()%1000) / 1000
	pitch := basePitch + frac*pitchSpan
	// ±10 pitch shift spans roughly one octave.
	return pitch * math.Pow(2, shift/20)
}

// appendTone appends a sine tone with a linear attack and release so
// consecutive tones don't click.
func appendTone(out []float32, freq float64, n, rate int) []float32 {
	fade := int(float64(n) * fadeFrac)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		switch {
		case i < fade:
			v *= float64(i) / float64(fade)
		case i >= n-fade:
			v *= float64(n-i) / float64(fade)
		}
		out = append(out, float32(v))
	}
	return out
}
