// Package config provides the configuration schema, loader, and adapter
// registry for the Susurrus audio front end.
package config

import "time"

// LogLevel controls log verbosity for the Susurrus server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Susurrus.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	VAD       VADConfig       `yaml:"vad"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Voices    []VoiceConfig   `yaml:"voices"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the Susurrus server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP surface (metrics, health,
	// telemetry websocket) listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig selects the capture and playback device adapters.
type AudioConfig struct {
	Source DeviceEntry `yaml:"source"`
	Sink   DeviceEntry `yaml:"sink"`
}

// DeviceEntry is the common configuration block for audio device adapters.
// The Name field is used to look up the constructor in the [Registry].
type DeviceEntry struct {
	// Name selects the registered adapter implementation (e.g., "wavfile").
	Name string `yaml:"name"`

	// Path is the backing file or device path, where the adapter needs one.
	Path string `yaml:"path"`

	// SampleRate overrides the adapter's default sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Options holds adapter-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// SynthesisConfig selects the speech synthesis backend. When fallbacks are
// listed, each backend gets a circuit breaker and a failing primary is
// bypassed automatically.
type SynthesisConfig struct {
	Provider  ProviderEntry   `yaml:"provider"`
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// MaxFailures is the consecutive-failure count that opens a backend's
	// circuit breaker. Zero selects the breaker default.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeoutSec is how long an open breaker waits before probing the
	// backend again. Zero selects the breaker default.
	ResetTimeoutSec float64 `yaml:"reset_timeout_sec"`
}

// ResetTimeout returns ResetTimeoutSec as a [time.Duration].
func (s SynthesisConfig) ResetTimeout() time.Duration {
	return secDuration(s.ResetTimeoutSec)
}

// ProviderEntry is the common configuration block for synthesis backends.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend implementation (e.g., "tone").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the backend's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the backend.
	Model string `yaml:"model"`

	// Options holds backend-specific configuration values.
	Options map[string]any `yaml:"options"`
}

// VADConfig tunes the voice-activity detector. Durations are expressed in
// seconds so the YAML stays readable; zero values select the detector's
// built-in defaults.
type VADConfig struct {
	// AmplitudeThreshold is the RMS level in [0.0, 1.0] above which a frame
	// counts as speech.
	AmplitudeThreshold float64 `yaml:"amplitude_threshold"`

	// SilenceDurationSec is how long amplitude must stay below the threshold
	// before an utterance is finalized.
	SilenceDurationSec float64 `yaml:"silence_duration_sec"`

	// MinSpeechDurationSec discards utterances shorter than this.
	MinSpeechDurationSec float64 `yaml:"min_speech_duration_sec"`

	// MaxSegmentDurationSec hard-caps a single utterance.
	MaxSegmentDurationSec float64 `yaml:"max_segment_duration_sec"`

	// ForceFinalizeRatio is the fraction of the segment cap at which an
	// ongoing utterance is force-finalized, in (0.0, 1.0].
	ForceFinalizeRatio float64 `yaml:"force_finalize_ratio"`

	// PreRollFrames is how many sub-threshold frames preceding speech onset
	// are prepended to the segment.
	PreRollFrames int `yaml:"pre_roll_frames"`

	// StallTimeoutSec reports a capture failure when no frame arrives for
	// this long, triggering an automatic restart of the capture side. Zero
	// disables stall detection.
	StallTimeoutSec float64 `yaml:"stall_timeout_sec"`

	// SegmentDir is where finalized utterance WAV files are written.
	SegmentDir string `yaml:"segment_dir"`
}

// SilenceDuration returns SilenceDurationSec as a [time.Duration].
func (v VADConfig) SilenceDuration() time.Duration {
	return secDuration(v.SilenceDurationSec)
}

// MinSpeechDuration returns MinSpeechDurationSec as a [time.Duration].
func (v VADConfig) MinSpeechDuration() time.Duration {
	return secDuration(v.MinSpeechDurationSec)
}

// MaxSegmentDuration returns MaxSegmentDurationSec as a [time.Duration].
func (v VADConfig) MaxSegmentDuration() time.Duration {
	return secDuration(v.MaxSegmentDurationSec)
}

// StallTimeout returns StallTimeoutSec as a [time.Duration].
func (v VADConfig) StallTimeout() time.Duration {
	return secDuration(v.StallTimeoutSec)
}

func secDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// ChunkerConfig tunes how response text is split for synthesis.
type ChunkerConfig struct {
	// MaxChars caps each synthesized chunk's length in characters.
	MaxChars int `yaml:"max_chars"`

	// MaxTextLen caps total response text before chunking.
	MaxTextLen int `yaml:"max_text_len"`
}

// PlaybackConfig tunes the streaming playback pipeline.
type PlaybackConfig struct {
	// Capacity is the number of in-flight playback buffers. 2 is the gapless
	// minimum; raising it only increases peak memory.
	Capacity int64 `yaml:"capacity"`

	// InterruptOnSpeech hard-stops playback when the user starts speaking.
	InterruptOnSpeech bool `yaml:"interrupt_on_speech"`
}

// VoiceConfig specifies a selectable synthesis voice profile.
type VoiceConfig struct {
	// ID is the unique voice identifier used by Speak requests.
	ID string `yaml:"id"`

	// Name is the human-readable display name.
	Name string `yaml:"name"`

	// Language is a BCP 47 language tag (e.g., "en", "de-DE").
	Language string `yaml:"language"`

	// PitchShift adjusts pitch in the range [-10, +10]. 0 means default.
	PitchShift float64 `yaml:"pitch_shift"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 1.0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// TelemetryConfig controls the websocket event stream.
type TelemetryConfig struct {
	// Enabled exposes the /ws/telemetry endpoint when true.
	Enabled bool `yaml:"enabled"`

	// ClientQueueDepth bounds the per-client event queue. Slow clients whose
	// queue overflows are disconnected. Zero selects the hub default.
	ClientQueueDepth int `yaml:"client_queue_depth"`
}
