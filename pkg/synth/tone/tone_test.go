package tone

import (
	"context"
	"testing"

	"github.com/MrWong99/susurrus/pkg/synth"
)

func TestSynthesize_LengthScalesWithWords(t *testing.T) {
	s := New()
	ctx := context.Background()

	one, err := s.Synthesize(ctx, "hello", synth.Voice{}, 1.0)
	if err != nil {
		t.Fatalf("synthesize one word: %v", err)
	}
	three, err := s.Synthesize(ctx, "hello there friend", synth.Voice{}, 1.0)
	if err != nil {
		t.Fatalf("synthesize three words: %v", err)
	}

	if len(three) <= 2*len(one) {
		t.Errorf("three words (%d samples) should be much longer than one (%d)", len(three), len(one))
	}
}

func TestSynthesize_SpeedShortensOutput(t *testing.T) {
	s := New()
	ctx := context.Background()

	normal, err := s.Synthesize(ctx, "one two three", synth.Voice{}, 1.0)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	fast, err := s.Synthesize(ctx, "one two three", synth.Voice{}, 2.0)
	if err != nil {
		t.Fatalf("synthesize fast: %v", err)
	}

	if len(fast) >= len(normal) {
		t.Errorf("2.0x output (%d samples) should be shorter than 1.0x (%d)", len(fast), len(normal))
	}
}

func TestSynthesize_VoiceSpeedFactorApplies(t *testing.T) {
	s := New()
	ctx := context.Background()

	base, _ := s.Synthesize(ctx, "steady words here", synth.Voice{}, 1.0)
	slow, _ := s.Synthesize(ctx, "steady words here", synth.Voice{SpeedFactor: 0.5}, 1.0)

	if len(slow) <= len(base) {
		t.Errorf("0.5x voice (%d samples) should be longer than default (%d)", len(slow), len(base))
	}
}

func TestSynthesize_SamplesWithinRange(t *testing.T) {
	s := New()
	out, err := s.Synthesize(context.Background(), "bounds check", synth.Voice{}, 1.0)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	for i, v := range out {
		if v > 1.0 || v < -1.0 {
			t.Fatalf("sample %d = %f out of range", i, v)
		}
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, _ := s.Synthesize(ctx, "repeat me", synth.Voice{}, 1.0)
	b, _ := s.Synthesize(ctx, "repeat me", synth.Voice{}, 1.0)

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs", i)
		}
	}
}

func TestSynthesize_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Synthesize(ctx, "too late", synth.Voice{}, 1.0); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	s := New()
	out, err := s.Synthesize(context.Background(), "   ", synth.Voice{}, 1.0)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(out) == 0 {
		t.Error("empty text should still render a pause")
	}
}
