// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Sink] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// The Sink emulates a real playback device: buffers are played sequentially
// by an internal goroutine, each taking [Sink.PlayDelay] of wall time, and
// the per-buffer completion callback fires only when that buffer finishes —
// which is exactly the timing the playback pipeline's capacity accounting
// depends on.
//
// Typical usage:
//
//	sink := &mock.Sink{PlayDelay: 10 * time.Millisecond}
//	pipe := playback.New(synth, sink)
//	_ = pipe.Speak(ctx, chunks, voice, 1.0)
//	if got := sink.MaxOutstanding(); got > 2 { ... }
package mock

import (
	"sync"
	"time"

	"github.com/MrWong99/susurrus/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source]. Tests drive it by
// calling [Source.Push], which delivers a frame to the callback registered
// via Start, emulating the device's capture thread.
type Source struct {
	mu sync.Mutex

	// FormatResult is returned by [Source.Format]. The zero value is a
	// degenerate format, which is itself useful for testing format
	// validation; set it explicitly for normal operation.
	FormatResult audio.Format

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StopErr, if non-nil, is returned by Stop.
	StopErr error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	cb func(audio.Frame)
}

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Start implements [audio.Source]. The callback is retained for [Source.Push].
func (s *Source) Start(cb func(audio.Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartErr != nil {
		return s.StartErr
	}
	s.cb = cb
	return nil
}

// Stop implements [audio.Source]. Frames pushed after Stop are dropped.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	s.cb = nil
	return s.StopErr
}

// Format implements [audio.Source]. Returns FormatResult.
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FormatResult
}

// Push delivers frame to the callback registered by Start. It is a no-op if
// the source is not started. Push runs the callback on the caller's
// goroutine, standing in for the device's real-time thread.
func (s *Source) Push(frame audio.Frame) {
	s.mu.Lock()
	cb := s.cb
	s.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
}

// Started reports whether a callback is currently registered.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb != nil
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// EnqueueCall records a single invocation of [Sink.Enqueue].
type EnqueueCall struct {
	// Buf is the buffer passed to Enqueue (samples not copied).
	Buf audio.Buffer
}

type pendingBuffer struct {
	buf        audio.Buffer
	onComplete func()
}

// Sink is a mock implementation of [audio.Sink] that plays buffers
// sequentially on an internal goroutine. Each buffer occupies the "device"
// for PlayDelay of wall time (zero means completion is immediate but still
// asynchronous), after which its completion callback fires.
type Sink struct {
	mu sync.Mutex

	// FormatResult is returned by [Sink.Format].
	FormatResult audio.Format

	// PlayDelay is the simulated playback time per buffer.
	PlayDelay time.Duration

	// EnqueueErr, if non-nil, is returned by every Enqueue call.
	EnqueueErr error

	// EnqueueCalls records every Enqueue invocation in order.
	EnqueueCalls []EnqueueCall

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	queue          []pendingBuffer
	playing        bool
	outstanding    int
	maxOutstanding int
	completed      []int
}

// Compile-time interface assertion.
var _ audio.Sink = (*Sink)(nil)

// Enqueue implements [audio.Sink]. The buffer joins the playback queue and
// onComplete fires once its simulated playback finishes.
func (s *Sink) Enqueue(buf audio.Buffer, onComplete func()) error {
	s.mu.Lock()
	s.EnqueueCalls = append(s.EnqueueCalls, EnqueueCall{Buf: buf})
	if s.EnqueueErr != nil {
		s.mu.Unlock()
		return s.EnqueueErr
	}
	s.queue = append(s.queue, pendingBuffer{buf: buf, onComplete: onComplete})
	s.outstanding++
	if s.outstanding > s.maxOutstanding {
		s.maxOutstanding = s.outstanding
	}
	start := !s.playing
	if start {
		s.playing = true
	}
	s.mu.Unlock()

	if start {
		go s.playLoop()
	}
	return nil
}

// playLoop plays queued buffers one at a time until the queue empties.
func (s *Sink) playLoop() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.playing = false
			s.mu.Unlock()
			return
		}
		p := s.queue[0]
		s.queue = s.queue[1:]
		delay := s.PlayDelay
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		s.complete(p)
	}
}

// complete fires the buffer's completion callback and updates accounting.
func (s *Sink) complete(p pendingBuffer) {
	s.mu.Lock()
	s.outstanding--
	s.completed = append(s.completed, p.buf.Index)
	s.mu.Unlock()
	if p.onComplete != nil {
		p.onComplete()
	}
}

// Stop implements [audio.Sink]. Queued buffers are discarded but their
// completion callbacks still fire, matching the Sink contract. A buffer
// whose simulated playback is already underway completes normally. The sink
// remains usable for subsequent Enqueue calls.
func (s *Sink) Stop() error {
	s.mu.Lock()
	s.CallCountStop++
	discarded := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, p := range discarded {
		s.complete(p)
	}
	return nil
}

// Format implements [audio.Sink]. Returns FormatResult.
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FormatResult
}

// MaxOutstanding returns the highest number of buffers that were enqueued
// but not yet completed at any point. Tests use this to verify pipeline
// backpressure.
func (s *Sink) MaxOutstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOutstanding
}

// Completed returns the buffer indices in the order their playback finished.
func (s *Sink) Completed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.completed))
	copy(out, s.completed)
	return out
}
