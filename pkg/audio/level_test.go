package audio

import (
	"math"
	"testing"
	"time"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		want    float64
	}{
		{"empty", nil, 0},
		{"silence", make([]float32, 160), 0},
		{"constant half", []float32{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"full scale", []float32{1, -1, 1, -1}, 1},
		{"mixed", []float32{0.6, -0.8}, math.Sqrt((0.36 + 0.64) / 2)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RMS(tc.samples)
			if math.Abs(got-tc.want) > 1e-6 {
				t.Errorf("RMS = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestPeak(t *testing.T) {
	if got := Peak(nil); got != 0 {
		t.Errorf("Peak(nil) = %f, want 0", got)
	}
	if got := Peak([]float32{0.1, -0.9, 0.3}); math.Abs(got-0.9) > 1e-6 {
		t.Errorf("Peak = %f, want 0.9", got)
	}
}

func TestDownmixInterleaved_Stereo(t *testing.T) {
	// L/R pairs: (0.2, 0.4) and (-1.0, 0.0).
	in := []float32{0.2, 0.4, -1.0, 0.0}
	out := DownmixInterleaved(in, 2)

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if math.Abs(float64(out[0])-0.3) > 1e-6 {
		t.Errorf("out[0] = %f, want 0.3", out[0])
	}
	if math.Abs(float64(out[1])+0.5) > 1e-6 {
		t.Errorf("out[1] = %f, want -0.5", out[1])
	}
}

func TestDownmixInterleaved_MonoPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}
	out := DownmixInterleaved(in, 1)
	if &out[0] != &in[0] {
		t.Error("mono input should be returned without copying")
	}
}

func TestFrameDuration(t *testing.T) {
	f := Frame{Samples: make([]float32, 320), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", got)
	}

	stereo := Frame{Samples: make([]float32, 640), SampleRate: 16000, Channels: 2}
	if got := stereo.Duration(); got != 20*time.Millisecond {
		t.Errorf("stereo Duration = %v, want 20ms", got)
	}

	var zero Frame
	if got := zero.Duration(); got != 0 {
		t.Errorf("zero frame Duration = %v, want 0", got)
	}
}

func TestFormatValid(t *testing.T) {
	if (Format{}).Valid() {
		t.Error("zero format should be invalid")
	}
	if !(Format{SampleRate: 48000, Channels: 2}).Valid() {
		t.Error("48kHz stereo should be valid")
	}
	if (Format{SampleRate: 48000}).Valid() {
		t.Error("zero channels should be invalid")
	}
}
