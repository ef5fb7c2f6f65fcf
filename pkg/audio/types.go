package audio

import "time"

// Frame represents a single block of captured audio flowing from a [Source]
// into the voice-activity detector. Frames are ephemeral: the capture
// callback owns the Samples slice and may reuse it, so consumers that need
// the data beyond the callback must copy it.
type Frame struct {
	// Samples holds float PCM in the range [-1.0, 1.0]. Samples may be
	// interleaved multi-channel as reported by the device; use
	// [DownmixInterleaved] to obtain mono.
	Samples []float32

	// SampleRate in Hz as reported by the capture device.
	SampleRate int

	// Channels is the interleaved channel count (1 = mono).
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame's audio, or zero when
// the frame carries no format information.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samplesPerChannel := len(f.Samples) / f.Channels
	return time.Duration(samplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Valid reports whether the format is usable: a zero sample rate or channel
// count means the device reported a degenerate stream.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Buffer holds the synthesized audio for exactly one text chunk, scheduled
// for playback on a [Sink]. Ownership passes from the synthesizer to the
// playback pipeline to the sink; once the sink reports completion the
// buffer is released.
type Buffer struct {
	// Samples is mono float PCM in the range [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Index is the position of the originating chunk within its utterance.
	// Used for ordering assertions and diagnostics only.
	Index int
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}
