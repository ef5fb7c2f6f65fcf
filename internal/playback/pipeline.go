// Package playback implements the double-buffered streaming speech pipeline.
//
// The pipeline overlaps synthesis of the next text chunk with playback of
// the current one while capping the number of in-flight buffers, so long
// responses stream gaplessly without front-loading all audio in memory.
//
// # Backpressure
//
// A counting semaphore with a small fixed capacity (default 2) bounds the
// buffers that exist at any moment: one slot is acquired before synthesis
// of a chunk begins and released only when the sink reports that this
// specific buffer finished playing. Two slots are the correct minimum for
// gapless streaming — slot 1 plays while slot 2 synthesizes; fewer produces
// audible gaps, more only raises peak memory, since synthesizing a chunk is
// expected to finish well within the playback time of its predecessor.
//
// Slot release happens on whichever goroutine the sink fires completion
// from; semaphore.Weighted.Release never blocks, so there is no deadlock
// between "generation waiting for a slot" and "completion waiting to post".
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/susurrus/internal/observe"
	"github.com/MrWong99/susurrus/pkg/audio"
	"github.com/MrWong99/susurrus/pkg/synth"
)

var (
	// ErrGenerationFailed indicates the synthesis backend failed for a
	// chunk. The remaining chunk queue is aborted; substituting a fallback
	// backend and retrying the utterance is the caller's policy decision.
	ErrGenerationFailed = errors.New("playback: speech generation failed")

	// ErrPlaybackFailed indicates the output device rejected a buffer.
	// Fatal for the current Speak call; audio already played is not undone.
	ErrPlaybackFailed = errors.New("playback: audio device failed")

	// ErrStopped is returned by Speak when the utterance was cancelled via
	// [Pipeline.Stop] before all chunks played.
	ErrStopped = errors.New("playback: stopped")

	// ErrBusy is returned by Speak while a previous utterance is still
	// in flight.
	ErrBusy = errors.New("playback: utterance already in progress")
)

// DefaultCapacity is the number of pipeline slots — buffers that may exist
// in the generated-but-not-finished-playing window at once.
const DefaultCapacity = 2

// Option configures a [Pipeline] during construction.
type Option func(*Pipeline)

// WithCapacity overrides the in-flight buffer cap. Values below 1 are
// ignored.
func WithCapacity(n int64) Option {
	return func(p *Pipeline) {
		if n >= 1 {
			p.capacity = n
		}
	}
}

// WithMetrics attaches metric instruments. A nil Metrics is allowed.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline schedules synthesized buffers onto an [audio.Sink].
//
// One utterance may be in flight at a time; Speak and Stop are safe for
// concurrent use.
type Pipeline struct {
	synth    synth.Synthesizer
	sink     audio.Sink
	capacity int64
	sem      *semaphore.Weighted
	metrics  *observe.Metrics

	// speaking doubles as the busy latch and the cancellation flag: Speak
	// sets it, Stop clears it, and the generation loop checks it at every
	// chunk boundary.
	speaking atomic.Bool
}

// New creates a Pipeline synthesizing with s and playing through sink.
func New(s synth.Synthesizer, sink audio.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		synth:    s,
		sink:     sink,
		capacity: DefaultCapacity,
	}
	for _, o := range opts {
		o(p)
	}
	p.sem = semaphore.NewWeighted(p.capacity)
	return p
}

// Speaking reports whether an utterance is currently in flight.
func (p *Pipeline) Speaking() bool {
	return p.speaking.Load()
}

// Speak synthesizes and plays all chunks in order and returns only once all
// audio has finished playing or the utterance was cancelled. An empty chunk
// list returns immediately with no audio scheduled.
//
// Synthesis of chunk k+1 overlaps playback of chunk k; at no point do more
// than the configured capacity of unplayed buffers exist.
func (p *Pipeline) Speak(ctx context.Context, chunks []string, voice synth.Voice, speed float64) error {
	if len(chunks) == 0 {
		return nil
	}
	if !p.speaking.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer p.speaking.Store(false)

	// wg tracks buffers handed to the sink whose completion callback has
	// not fired yet; waiting on it is the drain-to-silence barrier.
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		// Cancellation is observed at chunk boundaries: before acquiring
		// the next slot and again before enqueueing.
		if !p.speaking.Load() {
			break
		}

		waitStart := time.Now()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.sink.Stop()
			wg.Wait()
			return fmt.Errorf("%w: %s", ErrStopped, err)
		}
		p.metrics.ObserveSlotWait(ctx, time.Since(waitStart))

		if !p.speaking.Load() {
			p.sem.Release(1)
			break
		}

		genStart := time.Now()
		samples, err := p.synth.Synthesize(ctx, chunk, voice, speed)
		if err != nil {
			p.sem.Release(1)
			p.sink.Stop()
			wg.Wait()
			p.metrics.AddSpeakError(ctx, "generation")
			return fmt.Errorf("%w: chunk %d: %s", ErrGenerationFailed, i, err)
		}
		p.metrics.ObserveSynthesis(ctx, time.Since(genStart))

		buf := audio.Buffer{
			Samples:    samples,
			SampleRate: p.synth.SampleRate(),
			Index:      i,
		}

		wg.Add(1)
		err = p.sink.Enqueue(buf, func() {
			// Runs on the sink's playback goroutine the moment this
			// specific buffer finishes; releasing any earlier would let
			// the queue grow unbounded.
			p.sem.Release(1)
			p.metrics.AddChunkSpoken(context.Background())
			wg.Done()
		})
		if err != nil {
			wg.Done()
			p.sem.Release(1)
			p.sink.Stop()
			wg.Wait()
			p.metrics.AddSpeakError(ctx, "playback")
			return fmt.Errorf("%w: chunk %d: %s", ErrPlaybackFailed, i, err)
		}
	}

	// Drain: wait until the outstanding-buffer count reaches zero before
	// reporting the utterance complete.
	wg.Wait()

	if !p.speaking.Load() {
		return ErrStopped
	}
	return nil
}

// Stop cancels the in-flight utterance at the next chunk boundary and
// hard-stops audio that is already enqueued. It is a no-op when nothing is
// speaking.
func (p *Pipeline) Stop() {
	if p.speaking.CompareAndSwap(true, false) {
		p.sink.Stop()
	}
}
