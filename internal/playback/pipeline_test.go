package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	audiomock "github.com/MrWong99/susurrus/pkg/audio/mock"
	"github.com/MrWong99/susurrus/pkg/synth"
	synthmock "github.com/MrWong99/susurrus/pkg/synth/mock"
)

func TestSpeak_EmptyChunksIsNoOp(t *testing.T) {
	syn := &synthmock.Synthesizer{}
	sink := &audiomock.Sink{}
	p := New(syn, sink)

	if err := p.Speak(context.Background(), nil, synth.Voice{}, 1.0); err != nil {
		t.Fatalf("Speak(nil) = %v, want nil", err)
	}
	if len(syn.Calls()) != 0 {
		t.Error("no synthesis expected for empty chunk list")
	}
	if len(sink.EnqueueCalls) != 0 {
		t.Error("no enqueue expected for empty chunk list")
	}
}

func TestSpeak_PlaysAllChunksInOrder(t *testing.T) {
	syn := &synthmock.Synthesizer{}
	sink := &audiomock.Sink{PlayDelay: 5 * time.Millisecond}
	p := New(syn, sink)

	chunks := []string{"first chunk here", "second chunk here", "third chunk here"}
	if err := p.Speak(context.Background(), chunks, synth.Voice{ID: "narrator"}, 1.0); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	calls := syn.Calls()
	if len(calls) != 3 {
		t.Fatalf("synthesize calls = %d, want 3", len(calls))
	}
	for i, c := range calls {
		if c.Text != chunks[i] {
			t.Errorf("call %d text = %q, want %q", i, c.Text, chunks[i])
		}
		if c.Voice.ID != "narrator" {
			t.Errorf("call %d voice = %q, want narrator", i, c.Voice.ID)
		}
	}

	completed := sink.Completed()
	if len(completed) != 3 {
		t.Fatalf("completed buffers = %d, want 3", len(completed))
	}
	for i, idx := range completed {
		if idx != i {
			t.Errorf("completion order[%d] = %d, want %d", i, idx, i)
		}
	}
}

func TestSpeak_ReturnsOnlyAfterDrain(t *testing.T) {
	syn := &synthmock.Synthesizer{}
	sink := &audiomock.Sink{PlayDelay: 20 * time.Millisecond}
	p := New(syn, sink)

	start := time.Now()
	if err := p.Speak(context.Background(), []string{"one chunk", "two chunk"}, synth.Voice{}, 1.0); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	elapsed := time.Since(start)

	// Two buffers at 20 ms simulated playback each must take ≥ 40 ms.
	if elapsed < 40*time.Millisecond {
		t.Errorf("Speak returned after %v, before playback drained", elapsed)
	}
	if p.Speaking() {
		t.Error("Speaking should be false after Speak returns")
	}
}

func TestSpeak_BoundsInFlightBuffers(t *testing.T) {
	// Fast synthesis against slow playback: without backpressure every
	// buffer would pile up in the sink queue at once.
	syn := &synthmock.Synthesizer{}
	sink := &audiomock.Sink{PlayDelay: 10 * time.Millisecond}
	p := New(syn, sink)

	chunks := []string{"c0 c0", "c1 c1", "c2 c2", "c3 c3", "c4 c4", "c5 c5"}
	if err := p.Speak(context.Background(), chunks, synth.Voice{}, 1.0); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	if got := sink.MaxOutstanding(); got > DefaultCapacity {
		t.Errorf("max outstanding buffers = %d, want <= %d", got, DefaultCapacity)
	}
	if got := len(sink.Completed()); got != len(chunks) {
		t.Errorf("completed = %d, want %d", got, len(chunks))
	}
}

func TestSpeak_OverlapsSynthesisWithPlayback(t *testing.T) {
	// Synthesis takes 15 ms, playback 30 ms per chunk. Serial execution of 4
	// chunks would be 4×45 ms = 180 ms; overlapped it approaches
	// 15 + 4×30 = 135 ms. Assert comfortably under the serial bound.
	syn := &synthmock.Synthesizer{Latency: 15 * time.Millisecond}
	sink := &audiomock.Sink{PlayDelay: 30 * time.Millisecond}
	p := New(syn, sink)

	chunks := []string{"c0 c0", "c1 c1", "c2 c2", "c3 c3"}
	start := time.Now()
	if err := p.Speak(context.Background(), chunks, synth.Voice{}, 1.0); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed >= 175*time.Millisecond {
		t.Errorf("Speak took %v; synthesis does not overlap playback", elapsed)
	}
	if elapsed < 120*time.Millisecond {
		t.Errorf("Speak took %v; playback appears to have been skipped", elapsed)
	}
}

func TestSpeak_GenerationFailureAborts(t *testing.T) {
	boom := errors.New("backend exploded")
	syn := &synthmock.Synthesizer{ErrAtCall: map[int]error{1: boom}}
	sink := &audiomock.Sink{PlayDelay: 5 * time.Millisecond}
	p := New(syn, sink)

	chunks := []string{"chunk zero", "chunk one", "chunk two"}
	err := p.Speak(context.Background(), chunks, synth.Voice{}, 1.0)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}

	// Chunk two must never reach the backend.
	if got := len(syn.Calls()); got != 2 {
		t.Errorf("synthesize calls = %d, want 2", got)
	}
	if p.Speaking() {
		t.Error("Speaking should be false after a failed Speak")
	}

	// The pipeline must be reusable after the failure.
	if err := p.Speak(context.Background(), []string{"recovery chunk"}, synth.Voice{}, 1.0); err != nil {
		t.Errorf("Speak after failure: %v", err)
	}
}

func TestSpeak_EnqueueFailureAborts(t *testing.T) {
	syn := &synthmock.Synthesizer{}
	sink := &audiomock.Sink{EnqueueErr: errors.New("device gone")}
	p := New(syn, sink)

	err := p.Speak(context.Background(), []string{"doomed chunk"}, synth.Voice{}, 1.0)
	if !errors.Is(err, ErrPlaybackFailed) {
		t.Fatalf("err = %v, want ErrPlaybackFailed", err)
	}
}

func TestSpeak_RejectsConcurrentUtterance(t *testing.T) {
	syn := &synthmock.Synthesizer{}
	sink := &audiomock.Sink{PlayDelay: 50 * time.Millisecond}
	p := New(syn, sink)

	done := make(chan error, 1)
	go func() {
		done <- p.Speak(context.Background(), []string{"long running chunk"}, synth.Voice{}, 1.0)
	}()

	// Wait until the first utterance is in flight.
	deadline := time.Now().Add(time.Second)
	for !p.Speaking() {
		if time.Now().After(deadline) {
			t.Fatal("first Speak never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := p.Speak(context.Background(), []string{"should not speak"}, synth.Voice{}, 1.0); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Speak = %v, want ErrBusy", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first Speak: %v", err)
	}
}

func TestStop_CancelsAtChunkBoundary(t *testing.T) {
	syn := &synthmock.Synthesizer{Latency: 5 * time.Millisecond}
	sink := &audiomock.Sink{PlayDelay: 30 * time.Millisecond}
	p := New(syn, sink)

	chunks := make([]string, 20)
	for i := range chunks {
		chunks[i] = "steady chunk text"
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Speak(context.Background(), chunks, synth.Voice{}, 1.0)
	}()

	deadline := time.Now().Add(time.Second)
	for !p.Speaking() {
		if time.Now().After(deadline) {
			t.Fatal("Speak never started")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(40 * time.Millisecond)
	p.Stop()

	var err error
	select {
	case err = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return after Stop")
	}
	if !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}

	if got := len(syn.Calls()); got >= len(chunks) {
		t.Errorf("all %d chunks were synthesized despite Stop", got)
	}
	if sink.CallCountStop == 0 {
		t.Error("Stop should hard-stop the sink")
	}
	if p.Speaking() {
		t.Error("Speaking should be false after Stop")
	}
}

func TestStop_WhenIdleIsNoOp(t *testing.T) {
	syn := &synthmock.Synthesizer{}
	sink := &audiomock.Sink{}
	p := New(syn, sink)

	p.Stop()
	if sink.CallCountStop != 0 {
		t.Error("Stop on an idle pipeline should not touch the sink")
	}
}

func TestSpeak_ContextCancellation(t *testing.T) {
	syn := &synthmock.Synthesizer{Latency: 5 * time.Millisecond}
	sink := &audiomock.Sink{PlayDelay: 100 * time.Millisecond}
	p := New(syn, sink)

	ctx, cancel := context.WithCancel(context.Background())
	chunks := []string{"c0 c0", "c1 c1", "c2 c2", "c3 c3", "c4 c4"}

	done := make(chan error, 1)
	go func() {
		done <- p.Speak(ctx, chunks, synth.Voice{}, 1.0)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error after context cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Speak did not return after context cancellation")
	}
}

func TestWithCapacity(t *testing.T) {
	syn := &synthmock.Synthesizer{}
	sink := &audiomock.Sink{PlayDelay: 10 * time.Millisecond}
	p := New(syn, sink, WithCapacity(1))

	chunks := []string{"c0 c0", "c1 c1", "c2 c2"}
	if err := p.Speak(context.Background(), chunks, synth.Voice{}, 1.0); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := sink.MaxOutstanding(); got > 1 {
		t.Errorf("max outstanding = %d, want <= 1 with capacity 1", got)
	}
}
