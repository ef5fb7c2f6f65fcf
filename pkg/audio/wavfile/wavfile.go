// Package wavfile provides file-backed implementations of [audio.Source] and
// [audio.Sink]. The Source replays a WAV recording as a paced live capture
// stream — useful for demos and integration tests that need deterministic
// microphone input. The Sink collects played buffers into a WAV file.
package wavfile

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/susurrus/pkg/audio"
)

// DefaultFrameDuration is the frame size the Source emits when not
// overridden: 20 ms, a common capture quantum.
const DefaultFrameDuration = 20 * time.Millisecond

// ─── Source ───────────────────────────────────────────────────────────────────

// SourceOption configures a [Source].
type SourceOption func(*Source)

// WithFrameDuration sets the duration of each emitted frame.
func WithFrameDuration(d time.Duration) SourceOption {
	return func(s *Source) { s.frameDur = d }
}

// WithRealtime controls pacing. When true (the default) frames are delivered
// at wall-clock rate; when false the whole file is pushed as fast as the
// callback consumes it.
func WithRealtime(rt bool) SourceOption {
	return func(s *Source) { s.realtime = rt }
}

// Source replays a mono WAV file through the [audio.Source] contract.
type Source struct {
	samples  []float32
	rate     int
	frameDur time.Duration
	realtime bool

	mu      sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// NewSource decodes the WAV file at path into memory and returns a Source
// ready to replay it.
func NewSource(path string, opts ...SourceOption) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wavfile: open %q: %w", path, err)
	}
	defer f.Close()

	samples, rate, err := audio.DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("wavfile: decode %q: %w", path, err)
	}

	s := &Source{
		samples:  samples,
		rate:     rate,
		frameDur: DefaultFrameDuration,
		realtime: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	return audio.Format{SampleRate: s.rate, Channels: 1}
}

// Start implements [audio.Source]. Frames are delivered from an internal
// goroutine; each frame's sample slice is a reused scratch buffer, so the
// callback must copy data it keeps — the same ephemerality a real capture
// thread imposes.
func (s *Source) Start(cb func(audio.Frame)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("wavfile: source already started")
	}
	s.running = true
	s.done = make(chan struct{})

	frameSamples := int(time.Duration(s.rate) * s.frameDur / time.Second)
	if frameSamples <= 0 {
		frameSamples = 1
	}

	s.wg.Add(1)
	go s.pump(cb, frameSamples, s.done)
	return nil
}

// pump delivers the decoded samples frame by frame until exhausted or stopped.
func (s *Source) pump(cb func(audio.Frame), frameSamples int, done chan struct{}) {
	defer s.wg.Done()

	var ticker *time.Ticker
	if s.realtime {
		ticker = time.NewTicker(s.frameDur)
		defer ticker.Stop()
	}

	scratch := make([]float32, frameSamples)
	var elapsed time.Duration
	for off := 0; off < len(s.samples); off += frameSamples {
		if s.realtime {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		} else {
			select {
			case <-done:
				return
			default:
			}
		}

		end := min(off+frameSamples, len(s.samples))
		n := copy(scratch, s.samples[off:end])
		cb(audio.Frame{
			Samples:    scratch[:n],
			SampleRate: s.rate,
			Channels:   1,
			Timestamp:  elapsed,
		})
		elapsed += s.frameDur
	}
}

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink collects buffers played through it and writes them to a WAV file when
// closed. Playback is simulated: by default completion is immediate, or at
// wall-clock rate when realtime pacing is enabled.
type Sink struct {
	path     string
	rate     int
	realtime bool

	mu      sync.Mutex
	samples []float32
	queue   []queuedBuffer
	playing bool
	closed  bool
}

type queuedBuffer struct {
	buf        audio.Buffer
	onComplete func()
}

// SinkOption configures a [Sink].
type SinkOption func(*Sink)

// WithSinkRealtime makes the sink take each buffer's playback duration in
// wall time before reporting completion, emulating a live output device.
func WithSinkRealtime(rt bool) SinkOption {
	return func(s *Sink) { s.realtime = rt }
}

// Compile-time interface assertion.
var _ audio.Sink = (*Sink)(nil)

// NewSink creates a Sink that will write a mono 16-bit WAV file at path on
// [Sink.Close].
func NewSink(path string, sampleRate int, opts ...SinkOption) (*Sink, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("wavfile: invalid sample rate %d", sampleRate)
	}
	s := &Sink{path: path, rate: sampleRate}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Format implements [audio.Sink].
func (s *Sink) Format() audio.Format {
	return audio.Format{SampleRate: s.rate, Channels: 1}
}

// Enqueue implements [audio.Sink].
func (s *Sink) Enqueue(buf audio.Buffer, onComplete func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("wavfile: sink closed")
	}
	s.queue = append(s.queue, queuedBuffer{buf: buf, onComplete: onComplete})
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

// playLoop appends queued buffers to the output and reports completion in
// enqueue order.
func (s *Sink) playLoop() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.playing = false
			s.mu.Unlock()
			return
		}
		q := s.queue[0]
		s.queue = s.queue[1:]
		s.samples = append(s.samples, q.buf.Samples...)
		s.mu.Unlock()

		if s.realtime {
			time.Sleep(q.buf.Duration())
		}
		if q.onComplete != nil {
			q.onComplete()
		}
	}
}

// Stop implements [audio.Sink]. Queued buffers are discarded; their
// completion callbacks still fire. The sink stays open for further writes.
func (s *Sink) Stop() error {
	s.mu.Lock()
	discarded := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, q := range discarded {
		if q.onComplete != nil {
			q.onComplete()
		}
	}
	return nil
}

// Close stops the sink and writes all collected audio to the output file.
// The sink accepts no further buffers after Close.
func (s *Sink) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	s.closed = true
	samples := s.samples
	s.mu.Unlock()

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("wavfile: create %q: %w", s.path, err)
	}
	if err := audio.EncodeWAV(f, samples, s.rate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
