// Package vad implements energy-based voice activity detection over a live
// capture stream.
//
// The detector runs a three-state machine (idle → listening ⇄ speaking)
// driven by per-frame RMS energy. Speech frames accumulate into a bounded
// segment buffer; after a configurable run of silence the segment is
// finalized to a WAV file and handed to the application through a hook.
//
// # Threading
//
// The capture callback runs on the source's real-time goroutine. It only
// computes frame energy, conditionally copies samples, and posts a short
// non-blocking note to the control goroutine — it never blocks and never
// takes a lock held across slow work. All state transitions, timers and
// hook invocations happen on the control goroutine, serialized. Hooks are
// therefore invoked one at a time and must return quickly.
package vad

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/susurrus/internal/observe"
	"github.com/MrWong99/susurrus/pkg/audio"
)

var (
	// ErrEngineUnavailable is returned by [Detector.StartListening] when the
	// capture device cannot be opened or reports a degenerate stream format.
	// The error is fatal for the call; there is no retry.
	ErrEngineUnavailable = errors.New("vad: capture engine unavailable")

	// ErrAlreadyListening is returned by [Detector.StartListening] when the
	// detector is not idle.
	ErrAlreadyListening = errors.New("vad: already listening")

	// ErrSegmentSave wraps persistence failures reported through
	// [Hooks.OnError]. The affected segment is dropped, never requeued —
	// duplicate utterances are worse than drops for a voice assistant.
	ErrSegmentSave = errors.New("vad: segment save failed")

	// ErrSourceStalled is reported through [Hooks.OnError] when no frame has
	// arrived for [Config.StallTimeout] while the detector is not idle. A
	// silent room still produces frames; no frames at all means the capture
	// device died.
	ErrSourceStalled = errors.New("vad: capture source stalled")
)

// State identifies the detector's position in its state machine.
type State int32

const (
	// StateIdle: frames are ignored entirely. Entered only by an explicit
	// StopListening.
	StateIdle State = iota

	// StateListening: frames are inspected for speech energy.
	StateListening

	// StateSpeaking: frames accumulate into the current segment.
	StateSpeaking
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Default tuning. All values are overridable via [Config].
const (
	DefaultAmplitudeThreshold = 0.02
	DefaultSilenceDuration    = 1500 * time.Millisecond
	DefaultMinSpeechDuration  = 300 * time.Millisecond
	DefaultMaxSegmentDuration = 60 * time.Second
	DefaultForceFinalizeRatio = 0.9
	DefaultPreRollFrames      = 2
	DefaultNoteQueueDepth     = 64
)

// tickInterval drives deadline evaluation when the source stalls; with a
// live device the silence deadline is normally checked on frame arrival.
const tickInterval = 100 * time.Millisecond

// Config holds the detector tuning parameters. The zero value of any field
// selects the documented default.
type Config struct {
	// AmplitudeThreshold is the RMS energy above which a frame counts as
	// speech. Default 0.02.
	AmplitudeThreshold float64

	// SilenceDuration is the run of below-threshold audio that ends an
	// utterance. Default 1.5 s.
	SilenceDuration time.Duration

	// MinSpeechDuration is the shortest burst accepted as speech; shorter
	// segments are discarded as noise. Default 300 ms.
	MinSpeechDuration time.Duration

	// MaxSegmentDuration is the hard cap on a single segment. Default 60 s.
	MaxSegmentDuration time.Duration

	// ForceFinalizeRatio is the fraction of MaxSegmentDuration at which a
	// still-running segment is finalized regardless of silence state,
	// bounding worst-case memory and latency. Default 0.9.
	ForceFinalizeRatio float64

	// PreRollFrames is the number of most-recent listening frames prepended
	// to a new segment so leading syllables are not clipped. Default 2;
	// set negative to disable.
	PreRollFrames int

	// NoteQueueDepth is the capture→control queue length. Frames beyond it
	// are dropped (and counted), never blocked on. Default 64.
	NoteQueueDepth int

	// StallTimeout reports [ErrSourceStalled] when no frame arrives for this
	// long while listening or speaking. Zero disables stall detection.
	StallTimeout time.Duration
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.AmplitudeThreshold == 0 {
		c.AmplitudeThreshold = DefaultAmplitudeThreshold
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = DefaultSilenceDuration
	}
	if c.MinSpeechDuration == 0 {
		c.MinSpeechDuration = DefaultMinSpeechDuration
	}
	if c.MaxSegmentDuration == 0 {
		c.MaxSegmentDuration = DefaultMaxSegmentDuration
	}
	if c.ForceFinalizeRatio == 0 {
		c.ForceFinalizeRatio = DefaultForceFinalizeRatio
	}
	if c.PreRollFrames == 0 {
		c.PreRollFrames = DefaultPreRollFrames
	} else if c.PreRollFrames < 0 {
		c.PreRollFrames = 0
	}
	if c.NoteQueueDepth == 0 {
		c.NoteQueueDepth = DefaultNoteQueueDepth
	}
	return c
}

// Hooks carries the callback interface to the rest of the application. All
// hooks are invoked synchronously from the control goroutine; nil hooks are
// skipped.
type Hooks struct {
	// OnSpeechStart fires once per detected utterance start.
	OnSpeechStart func()

	// OnSpeechEnd fires once per finalized utterance with the path of the
	// persisted WAV file. The receiving collaborator owns deleting the file
	// after use.
	OnSpeechEnd func(path string)

	// OnAmplitude fires on every processed frame with the frame's RMS level
	// clamped to [0.0, 1.0]. Pure telemetry for UI feedback; it carries no
	// buffering semantics.
	OnAmplitude func(level float64)

	// OnError fires on any unrecoverable failure in the session, such as a
	// segment that could not be persisted.
	OnError func(err error)
}

// Option configures a [Detector] during construction.
type Option func(*Detector)

// WithMetrics attaches metric instruments. A nil Metrics is allowed.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// note is the message the capture callback posts to the control goroutine.
// samples is non-nil only when the frame's audio may be needed (speaking,
// above threshold, or pre-roll enabled).
type note struct {
	rms     float64
	samples []float32
	at      time.Time
}

// Detector consumes audio frames from a [audio.Source] and emits finalized
// utterances plus amplitude telemetry.
//
// StartListening/StopListening are safe for concurrent use. The rest of the
// detector's state is confined to its control goroutine.
type Detector struct {
	cfg     Config
	src     audio.Source
	store   *SegmentStore
	hooks   Hooks
	metrics *observe.Metrics

	state atomic.Int32

	mu    sync.Mutex // guards lifecycle (start/stop)
	notes chan note
	stop  chan struct{}
	wg    sync.WaitGroup

	// Control-goroutine-owned segmentation state.
	segRate         int
	seg             []float32
	maxSegSamples   int
	forceAtSamples  int
	preRoll         [][]float32
	speechSamples   int // buffer length when the silence timer armed
	silenceDeadline time.Time
	lastFrame       time.Time
	stallReported   bool
}

// New creates a Detector reading from src and persisting finalized segments
// through store.
func New(src audio.Source, store *SegmentStore, cfg Config, hooks Hooks, opts ...Option) *Detector {
	d := &Detector{
		cfg:   cfg.withDefaults(),
		src:   src,
		store: store,
		hooks: hooks,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the detector's current state.
func (d *Detector) State() State {
	return State(d.state.Load())
}

// StartListening validates the capture device, transitions idle → listening
// and begins consuming frames. It fails with [ErrEngineUnavailable] if the
// device cannot be opened or reports a zero sample rate or channel count.
func (d *Detector) StartListening() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() != StateIdle {
		return ErrAlreadyListening
	}

	f := d.src.Format()
	if !f.Valid() {
		return fmt.Errorf("%w: device reports %d Hz / %d channels",
			ErrEngineUnavailable, f.SampleRate, f.Channels)
	}

	d.segRate = f.SampleRate
	d.maxSegSamples = int(float64(f.SampleRate) * d.cfg.MaxSegmentDuration.Seconds())
	d.forceAtSamples = int(float64(d.maxSegSamples) * d.cfg.ForceFinalizeRatio)
	d.seg = nil
	d.preRoll = nil
	d.notes = make(chan note, d.cfg.NoteQueueDepth)
	d.stop = make(chan struct{})

	// The callback checks the state before doing any work, so the state
	// must be listening before the first frame can arrive.
	d.state.Store(int32(StateListening))
	if err := d.src.Start(d.onFrame); err != nil {
		d.state.Store(int32(StateIdle))
		return fmt.Errorf("%w: %s", ErrEngineUnavailable, err)
	}

	d.wg.Add(1)
	go d.run(d.notes, d.stop)
	return nil
}

// StopListening transitions any state back to idle. If the detector is
// currently speaking, the in-progress segment is force-finalized before
// StopListening returns. Stopping an idle detector is a no-op.
func (d *Detector) StopListening() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateIdle {
		return nil
	}

	err := d.src.Stop()
	close(d.stop)
	d.wg.Wait()
	return err
}

// onFrame is the capture callback. It runs on the source's real-time
// goroutine: compute energy, conditionally copy samples, post a note.
// It never blocks — when the control loop falls behind, frames are dropped
// and counted instead.
func (d *Detector) onFrame(f audio.Frame) {
	st := State(d.state.Load())
	if st == StateIdle {
		return
	}

	mono := audio.DownmixInterleaved(f.Samples, f.Channels)
	n := note{rms: audio.RMS(mono), at: time.Now()}

	if st == StateSpeaking || n.rms > d.cfg.AmplitudeThreshold || d.cfg.PreRollFrames > 0 {
		cp := make([]float32, len(mono))
		copy(cp, mono)
		n.samples = cp
	}

	select {
	case d.notes <- n:
	default:
		d.metrics.AddFrameDropped(context.Background())
	}
}

// run is the control loop. It owns all segmentation state; nothing else
// touches it while the loop is alive.
func (d *Detector) run(notes <-chan note, stop <-chan struct{}) {
	defer d.wg.Done()

	d.lastFrame = time.Now()
	d.stallReported = false

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			d.handleStop()
			return
		case n := <-notes:
			d.handleNote(n)
		case <-ticker.C:
			d.handleTick(time.Now())
		}
	}
}

// handleNote processes one capture frame on the control goroutine.
func (d *Detector) handleNote(n note) {
	ctx := context.Background()
	d.metrics.AddFrames(ctx, 1)
	d.lastFrame = n.at
	d.stallReported = false

	if d.hooks.OnAmplitude != nil {
		d.hooks.OnAmplitude(min(n.rms, 1.0))
	}

	switch d.State() {
	case StateListening:
		if n.rms > d.cfg.AmplitudeThreshold {
			d.beginSpeech(n)
			return
		}
		d.pushPreRoll(n.samples)

	case StateSpeaking:
		d.appendSpeech(n.samples)

		if len(d.seg) >= d.forceAtSamples {
			d.finalize("cap", d.segDuration())
			return
		}

		if n.rms > d.cfg.AmplitudeThreshold {
			// Voice resumed: disarm the silence timer.
			d.silenceDeadline = time.Time{}
			return
		}
		if d.silenceDeadline.IsZero() {
			// Everything appended from here until the timer expires is
			// silence; remember where the speech actually ended.
			d.speechSamples = len(d.seg)
			d.silenceDeadline = n.at.Add(d.cfg.SilenceDuration)
		} else if !n.at.Before(d.silenceDeadline) {
			d.endOfSpeech()
		}
	}
}

// handleTick evaluates the silence deadline even when no frames arrive, and
// trims any listening-state buffers left by transient false starts.
func (d *Detector) handleTick(now time.Time) {
	switch d.State() {
	case StateSpeaking:
		if !d.silenceDeadline.IsZero() && !now.Before(d.silenceDeadline) {
			d.endOfSpeech()
		}
	case StateListening:
		if d.seg != nil {
			d.seg = nil
		}
	}

	// Reported once per stall; cleared by the next frame.
	if d.cfg.StallTimeout > 0 && !d.stallReported &&
		now.Sub(d.lastFrame) >= d.cfg.StallTimeout {
		d.stallReported = true
		if d.hooks.OnError != nil {
			d.hooks.OnError(fmt.Errorf("%w: no frames for %s", ErrSourceStalled, now.Sub(d.lastFrame).Round(time.Millisecond)))
		}
	}
}

// handleStop runs the explicit-stop transition: force-finalize any
// in-progress segment, then drop to idle.
func (d *Detector) handleStop() {
	if d.State() == StateSpeaking && len(d.seg) > 0 {
		d.finalize("stop", d.segDuration())
	}
	d.seg = nil
	d.preRoll = nil
	d.state.Store(int32(StateIdle))
}

// beginSpeech transitions listening → speaking, seeding the segment with the
// pre-roll frames and the triggering frame.
func (d *Detector) beginSpeech(n note) {
	for _, pr := range d.preRoll {
		d.appendSpeech(pr)
	}
	d.preRoll = nil
	d.appendSpeech(n.samples)

	d.speechSamples = 0
	d.silenceDeadline = time.Time{}
	d.state.Store(int32(StateSpeaking))

	if d.hooks.OnSpeechStart != nil {
		d.hooks.OnSpeechStart()
	}
}

// appendSpeech grows the segment buffer, never past the hard cap.
func (d *Detector) appendSpeech(samples []float32) {
	if len(samples) == 0 {
		return
	}
	if room := d.maxSegSamples - len(d.seg); len(samples) > room {
		samples = samples[:room]
	}
	d.seg = append(d.seg, samples...)
}

// pushPreRoll retains the most recent listening frames for segment seeding.
func (d *Detector) pushPreRoll(samples []float32) {
	if d.cfg.PreRollFrames <= 0 || samples == nil {
		return
	}
	d.preRoll = append(d.preRoll, samples)
	if len(d.preRoll) > d.cfg.PreRollFrames {
		d.preRoll = d.preRoll[len(d.preRoll)-d.cfg.PreRollFrames:]
	}
}

// endOfSpeech resolves an expired silence timer: finalize a real utterance
// or silently discard a sub-minimum noise burst. Either way the detector
// returns to listening.
//
// The segment buffer keeps accumulating frames while the silence timer
// runs, so by expiry it always holds at least SilenceDuration of audio and
// its length says nothing about how long the user actually spoke. The
// discard decision measures up to the timer arm instead.
func (d *Detector) endOfSpeech() {
	speech := d.speechDuration()
	if speech >= d.cfg.MinSpeechDuration {
		d.finalize("silence", speech)
		return
	}
	d.seg = nil
	d.silenceDeadline = time.Time{}
	d.state.Store(int32(StateListening))
}

// finalize persists the current segment, emits OnSpeechEnd (or OnError on a
// save failure, dropping the segment), and returns to listening. dur is the
// utterance length recorded in metrics; the silence path passes the measured
// speech span, cap and stop pass the buffer length.
func (d *Detector) finalize(reason string, dur time.Duration) {
	ctx := context.Background()
	samples := d.seg
	d.seg = nil
	d.silenceDeadline = time.Time{}
	d.state.Store(int32(StateListening))

	path, err := d.store.Save(samples, d.segRate)
	if err != nil {
		d.metrics.AddSegmentDropped(ctx)
		if d.hooks.OnError != nil {
			d.hooks.OnError(fmt.Errorf("%w: %s", ErrSegmentSave, err))
		}
		return
	}

	d.metrics.AddUtterance(ctx, reason, dur)
	if d.hooks.OnSpeechEnd != nil {
		d.hooks.OnSpeechEnd(path)
	}
}

// segDuration returns the current segment length as wall-clock audio time.
func (d *Detector) segDuration() time.Duration {
	if d.segRate <= 0 {
		return 0
	}
	return time.Duration(len(d.seg)) * time.Second / time.Duration(d.segRate)
}

// speechDuration returns the audio time from segment start to the point the
// silence timer armed.
func (d *Detector) speechDuration() time.Duration {
	if d.segRate <= 0 {
		return 0
	}
	return time.Duration(d.speechSamples) * time.Second / time.Duration(d.segRate)
}
