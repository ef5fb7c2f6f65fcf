package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidAdapterNames lists known adapter names per kind.
// Used by [Validate] to warn about unrecognised names.
var ValidAdapterNames = map[string][]string{
	"source": {"wavfile", "mock"},
	"sink":   {"wavfile", "mock"},
	"synth":  {"tone", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Adapter name validation — warn for unknown names.
	validateAdapterName("source", cfg.Audio.Source.Name)
	validateAdapterName("sink", cfg.Audio.Sink.Name)
	validateAdapterName("synth", cfg.Synthesis.Provider.Name)
	for i, fb := range cfg.Synthesis.Fallbacks {
		validateAdapterName("synth", fb.Name)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("synthesis.fallbacks[%d].name is required", i))
		}
	}
	if len(cfg.Synthesis.Fallbacks) > 0 && cfg.Synthesis.Provider.Name == "" {
		errs = append(errs, errors.New("synthesis.fallbacks require synthesis.provider to be set"))
	}
	if cfg.Synthesis.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("synthesis.max_failures %d is negative", cfg.Synthesis.MaxFailures))
	}
	if cfg.Synthesis.ResetTimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("synthesis.reset_timeout_sec %.2f is negative", cfg.Synthesis.ResetTimeoutSec))
	}

	if cfg.Synthesis.Provider.Name == "" && len(cfg.Voices) > 0 {
		slog.Warn("no synthesis provider configured; voices will not be usable")
	}

	// VAD
	v := cfg.VAD
	if v.AmplitudeThreshold < 0 || v.AmplitudeThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.amplitude_threshold %.3f is out of range [0.0, 1.0]", v.AmplitudeThreshold))
	}
	if v.SilenceDurationSec < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_duration_sec %.2f is negative", v.SilenceDurationSec))
	}
	if v.MinSpeechDurationSec < 0 {
		errs = append(errs, fmt.Errorf("vad.min_speech_duration_sec %.2f is negative", v.MinSpeechDurationSec))
	}
	if v.MaxSegmentDurationSec < 0 {
		errs = append(errs, fmt.Errorf("vad.max_segment_duration_sec %.2f is negative", v.MaxSegmentDurationSec))
	}
	if v.ForceFinalizeRatio != 0 && (v.ForceFinalizeRatio <= 0 || v.ForceFinalizeRatio > 1) {
		errs = append(errs, fmt.Errorf("vad.force_finalize_ratio %.2f is out of range (0.0, 1.0]", v.ForceFinalizeRatio))
	}
	if v.PreRollFrames < 0 {
		errs = append(errs, fmt.Errorf("vad.pre_roll_frames %d is negative", v.PreRollFrames))
	}
	if v.StallTimeoutSec < 0 {
		errs = append(errs, fmt.Errorf("vad.stall_timeout_sec %.2f is negative", v.StallTimeoutSec))
	}
	if v.MinSpeechDurationSec > 0 && v.MaxSegmentDurationSec > 0 &&
		v.MinSpeechDurationSec >= v.MaxSegmentDurationSec {
		errs = append(errs, fmt.Errorf("vad.min_speech_duration_sec %.2f must be below vad.max_segment_duration_sec %.2f", v.MinSpeechDurationSec, v.MaxSegmentDurationSec))
	}

	// Chunker
	if cfg.Chunker.MaxChars < 0 {
		errs = append(errs, fmt.Errorf("chunker.max_chars %d is negative", cfg.Chunker.MaxChars))
	}
	if cfg.Chunker.MaxTextLen < 0 {
		errs = append(errs, fmt.Errorf("chunker.max_text_len %d is negative", cfg.Chunker.MaxTextLen))
	}
	if cfg.Chunker.MaxChars > 0 && cfg.Chunker.MaxTextLen > 0 &&
		cfg.Chunker.MaxChars > cfg.Chunker.MaxTextLen {
		slog.Warn("chunker.max_chars exceeds chunker.max_text_len; every response will be a single chunk",
			"max_chars", cfg.Chunker.MaxChars,
			"max_text_len", cfg.Chunker.MaxTextLen,
		)
	}

	// Playback
	if cfg.Playback.Capacity < 0 {
		errs = append(errs, fmt.Errorf("playback.capacity %d is negative", cfg.Playback.Capacity))
	}
	if cfg.Playback.Capacity == 1 {
		slog.Warn("playback.capacity is 1; synthesis cannot overlap playback and gaps between chunks are likely")
	}

	// Voice duplicate ID detection
	voiceIDsSeen := make(map[string]int, len(cfg.Voices))

	// Voices
	for i, voice := range cfg.Voices {
		prefix := fmt.Sprintf("voices[%d]", i)
		if voice.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := voiceIDsSeen[voice.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of voices[%d]", prefix, voice.ID, prev))
			}
			voiceIDsSeen[voice.ID] = i
		}
		if voice.SpeedFactor != 0 {
			if voice.SpeedFactor < 0.5 || voice.SpeedFactor > 2.0 {
				errs = append(errs, fmt.Errorf("%s.speed_factor %.2f is out of range [0.5, 2.0]", prefix, voice.SpeedFactor))
			}
		}
		if voice.PitchShift < -10 || voice.PitchShift > 10 {
			errs = append(errs, fmt.Errorf("%s.pitch_shift %.2f is out of range [-10, 10]", prefix, voice.PitchShift))
		}
	}

	// Telemetry
	if cfg.Telemetry.ClientQueueDepth < 0 {
		errs = append(errs, fmt.Errorf("telemetry.client_queue_depth %d is negative", cfg.Telemetry.ClientQueueDepth))
	}

	return errors.Join(errs...)
}

// validateAdapterName logs a warning if name is non-empty and not found in
// the [ValidAdapterNames] list for the given kind.
func validateAdapterName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidAdapterNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown adapter name — may be a typo or third-party adapter",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
