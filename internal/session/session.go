// Package session wires one voice-interaction session together: a
// voice-activity detector on the capture side and a chunked streaming
// playback pipeline on the output side.
//
// The Session replaces the global singleton managers of typical voice
// front ends with an explicit struct constructed once per session and
// passed by handle to collaborators. It performs no network I/O; the
// surrounding application connects the hooks to its transcription and UI
// collaborators.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/susurrus/internal/observe"
	"github.com/MrWong99/susurrus/internal/playback"
	"github.com/MrWong99/susurrus/internal/vad"
	"github.com/MrWong99/susurrus/pkg/audio"
	"github.com/MrWong99/susurrus/pkg/synth"
	"github.com/MrWong99/susurrus/pkg/textchunk"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session: closed")

// Config holds per-session tuning.
type Config struct {
	// VAD is the detector tuning; zero fields select detector defaults.
	VAD vad.Config

	// SegmentDir is where finalized utterance files are written.
	SegmentDir string

	// ChunkMaxChars caps each synthesized text chunk. Zero selects
	// [textchunk.DefaultMaxChars].
	ChunkMaxChars int

	// MaxTextLen caps total response text before chunking. Zero selects
	// [textchunk.DefaultMaxTextLen].
	MaxTextLen int

	// PipelineCapacity is the in-flight playback buffer cap. Zero selects
	// [playback.DefaultCapacity].
	PipelineCapacity int64

	// InterruptOnSpeech hard-stops playback when the user starts speaking
	// (barge-in). Off by default.
	InterruptOnSpeech bool

	// Voices is the set of selectable synthesis voices, keyed by Voice.ID
	// at construction.
	Voices []synth.Voice
}

// Hooks is the session's outbound callback interface, forwarded from the
// detector's control goroutine. Nil hooks are skipped.
type Hooks struct {
	// OnSpeechStart fires once per detected utterance start.
	OnSpeechStart func()

	// OnSpeechEnd fires once per finalized utterance with the persisted
	// file path. The receiver (the transcription collaborator) owns
	// deleting the file after use.
	OnSpeechEnd func(path string)

	// OnAmplitude fires per processed frame with a level in [0.0, 1.0].
	OnAmplitude func(level float64)

	// OnError fires on unrecoverable failures within the session.
	OnError func(err error)
}

// Session owns the audio front end for one voice interaction.
type Session struct {
	det     *playbackGuardedDetector
	pipe    *playback.Pipeline
	cfg     Config
	voices  map[string]synth.Voice
	metrics *observe.Metrics
	closed  atomic.Bool
}

// playbackGuardedDetector pairs the detector with the store it writes to,
// keeping their lifetimes tied together.
type playbackGuardedDetector struct {
	*vad.Detector
	store *vad.SegmentStore
}

// Option configures a [Session] during construction.
type Option func(*Session)

// WithMetrics attaches metric instruments to the session, its detector and
// its pipeline. A nil Metrics is allowed.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New constructs a Session over the given devices and synthesis backend.
func New(cfg Config, src audio.Source, sink audio.Sink, syn synth.Synthesizer, hooks Hooks, opts ...Option) (*Session, error) {
	s := &Session{cfg: cfg}
	for _, o := range opts {
		o(s)
	}

	s.voices = make(map[string]synth.Voice, len(cfg.Voices))
	for _, v := range cfg.Voices {
		s.voices[v.ID] = v
	}

	store, err := vad.NewSegmentStore(cfg.SegmentDir)
	if err != nil {
		return nil, err
	}

	s.pipe = playback.New(syn, sink,
		playback.WithCapacity(cfg.PipelineCapacity),
		playback.WithMetrics(s.metrics),
	)

	detHooks := vad.Hooks{
		OnSpeechEnd: hooks.OnSpeechEnd,
		OnAmplitude: hooks.OnAmplitude,
		OnError:     hooks.OnError,
	}
	detHooks.OnSpeechStart = func() {
		if cfg.InterruptOnSpeech && s.pipe.Speaking() {
			slog.Debug("session: barge-in, stopping playback")
			s.pipe.Stop()
		}
		if hooks.OnSpeechStart != nil {
			hooks.OnSpeechStart()
		}
	}

	det := vad.New(src, store, cfg.VAD, detHooks, vad.WithMetrics(s.metrics))
	s.det = &playbackGuardedDetector{Detector: det, store: store}

	s.metrics.SessionStarted(context.Background())
	return s, nil
}

// StartListening opens the capture side of the session.
func (s *Session) StartListening() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.det.StartListening()
}

// StopListening returns the capture side to idle, force-finalizing any
// in-progress utterance.
func (s *Session) StopListening() error {
	return s.det.StopListening()
}

// State returns the detector's current state.
func (s *Session) State() vad.State {
	return s.det.State()
}

// Speaking reports whether response playback is in flight.
func (s *Session) Speaking() bool {
	return s.pipe.Speaking()
}

// Speak sanitizes and chunks text, then streams it through the playback
// pipeline with the requested voice. It returns once all audio has played,
// the utterance was cancelled, or a stage failed. Text that sanitizes to
// nothing is a no-op.
func (s *Session) Speak(ctx context.Context, text, voiceID, language string, speed float64) error {
	if s.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	text = textchunk.Sanitize(text, s.cfg.MaxTextLen)
	chunks := textchunk.Chunk(text, s.cfg.ChunkMaxChars)
	if len(chunks) == 0 {
		slog.Debug("session: nothing speakable after sanitization")
		return nil
	}

	voice := s.resolveVoice(voiceID, language)
	if speed <= 0 {
		speed = 1.0
	}

	slog.Info("session: speaking",
		"chunks", len(chunks),
		"voice", voice.ID,
		"speed", speed,
	)
	err := s.pipe.Speak(ctx, chunks, voice, speed)
	if err != nil && !errors.Is(err, playback.ErrStopped) {
		return fmt.Errorf("session: speak: %w", err)
	}
	slog.Debug("session: speak finished",
		"elapsed", time.Since(start),
		"stopped", errors.Is(err, playback.ErrStopped),
	)
	return err
}

// StopSpeaking cancels in-flight playback at the next chunk boundary and
// hard-stops enqueued audio.
func (s *Session) StopSpeaking() {
	s.pipe.Stop()
}

// SegmentDir returns the directory finalized utterances are written to.
func (s *Session) SegmentDir() string {
	return s.det.store.Dir()
}

// Close stops both sides of the session. Close is safe to call more than
// once; subsequent calls return nil.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.pipe.Stop()
	err := s.det.StopListening()
	s.metrics.SessionEnded(context.Background())
	return err
}

// resolveVoice maps a requested voice ID to a registered voice profile. An
// unregistered ID falls back to a language match, then to a pass-through
// profile so the backend can apply its own default.
func (s *Session) resolveVoice(voiceID, language string) synth.Voice {
	if v, ok := s.voices[voiceID]; ok {
		if language != "" {
			v.Language = language
		}
		return v
	}
	for _, v := range s.voices {
		if language != "" && v.Language == language {
			return v
		}
	}
	return synth.Voice{ID: voiceID, Language: language, SpeedFactor: 1.0}
}
