// Command susurrus is the main entry point for the Susurrus audio front end.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/susurrus/internal/app"
	"github.com/MrWong99/susurrus/internal/config"
	"github.com/MrWong99/susurrus/internal/resilience"
	"github.com/MrWong99/susurrus/pkg/audio"
	audiomock "github.com/MrWong99/susurrus/pkg/audio/mock"
	"github.com/MrWong99/susurrus/pkg/audio/wavfile"
	"github.com/MrWong99/susurrus/pkg/synth"
	synthmock "github.com/MrWong99/susurrus/pkg/synth/mock"
	"github.com/MrWong99/susurrus/pkg/synth/tone"
)

// logLevel is the process-wide log level, adjustable at runtime by the
// config watcher.
var logLevel = new(slog.LevelVar)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watchConfig := flag.Bool("watch-config", false, "poll the config file and hot-reload safe settings")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "susurrus: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "susurrus: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("susurrus starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Adapter registry ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinAdapters(reg)

	// ── Instantiate devices ───────────────────────────────────────────────────
	devices, err := buildDevices(cfg, reg)
	if err != nil {
		slog.Error("failed to build devices", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Config watcher (optional) ─────────────────────────────────────────────
	if *watchConfig {
		watcher, err := config.NewWatcher(*configPath, applyConfigChange)
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		defer watcher.Stop()
		slog.Info("config watcher active", "path", *configPath)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, devices)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ─── Adapter wiring ───────────────────────────────────────────────────────────

// registerBuiltinAdapters wires all built-in device and synthesis factories
// into reg. Each factory receives its config entry and constructs the
// adapter from the real implementation packages.
func registerBuiltinAdapters(reg *config.Registry) {
	// ── Sources ───────────────────────────────────────────────────────────────

	reg.RegisterSource("wavfile", func(entry config.DeviceEntry) (audio.Source, error) {
		var opts []wavfile.SourceOption
		if ms := optInt(entry.Options, "frame_ms"); ms > 0 {
			opts = append(opts, wavfile.WithFrameDuration(time.Duration(ms)*time.Millisecond))
		}
		if rt, ok := optBool(entry.Options, "realtime"); ok {
			opts = append(opts, wavfile.WithRealtime(rt))
		}
		return wavfile.NewSource(entry.Path, opts...)
	})

	// mock is a silent source; useful for exercising the playback side only.
	reg.RegisterSource("mock", func(entry config.DeviceEntry) (audio.Source, error) {
		rate := entry.SampleRate
		if rate == 0 {
			rate = 16000
		}
		return &audiomock.Source{
			FormatResult: audio.Format{SampleRate: rate, Channels: 1},
		}, nil
	})

	// ── Sinks ─────────────────────────────────────────────────────────────────

	reg.RegisterSink("wavfile", func(entry config.DeviceEntry) (audio.Sink, error) {
		rate := entry.SampleRate
		if rate == 0 {
			rate = 16000
		}
		var opts []wavfile.SinkOption
		if rt, ok := optBool(entry.Options, "realtime"); ok {
			opts = append(opts, wavfile.WithSinkRealtime(rt))
		}
		return wavfile.NewSink(entry.Path, rate, opts...)
	})

	// mock discards played audio; useful when only capture matters.
	reg.RegisterSink("mock", func(entry config.DeviceEntry) (audio.Sink, error) {
		rate := entry.SampleRate
		if rate == 0 {
			rate = 16000
		}
		return &audiomock.Sink{
			FormatResult: audio.Format{SampleRate: rate, Channels: 1},
		}, nil
	})

	// ── Synthesizers ──────────────────────────────────────────────────────────

	reg.RegisterSynth("tone", func(_ config.ProviderEntry) (synth.Synthesizer, error) {
		return tone.New(), nil
	})

	reg.RegisterSynth("mock", func(_ config.ProviderEntry) (synth.Synthesizer, error) {
		return &synthmock.Synthesizer{}, nil
	})
}

// buildDevices instantiates the adapters named in cfg using the registry and
// returns them in an [app.Devices] struct for the application to consume.
func buildDevices(cfg *config.Config, reg *config.Registry) (app.Devices, error) {
	var devices app.Devices

	name := cfg.Audio.Source.Name
	if name == "" {
		return devices, fmt.Errorf("audio.source.name is required")
	}
	src, err := reg.CreateSource(cfg.Audio.Source)
	if err != nil {
		return devices, fmt.Errorf("create source %q: %w", name, err)
	}
	devices.Source = src
	slog.Info("adapter created", "kind", "source", "name", name)

	name = cfg.Audio.Sink.Name
	if name == "" {
		return devices, fmt.Errorf("audio.sink.name is required")
	}
	sink, err := reg.CreateSink(cfg.Audio.Sink)
	if err != nil {
		return devices, fmt.Errorf("create sink %q: %w", name, err)
	}
	devices.Sink = sink
	slog.Info("adapter created", "kind", "sink", "name", name)

	name = cfg.Synthesis.Provider.Name
	if name == "" {
		return devices, fmt.Errorf("synthesis.provider.name is required")
	}
	syn, err := reg.CreateSynth(cfg.Synthesis.Provider)
	if err != nil {
		return devices, fmt.Errorf("create synthesizer %q: %w", name, err)
	}
	slog.Info("adapter created", "kind", "synth", "name", name)

	if len(cfg.Synthesis.Fallbacks) > 0 {
		group := resilience.NewSynthFallback(syn, name, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  cfg.Synthesis.MaxFailures,
				ResetTimeout: cfg.Synthesis.ResetTimeout(),
			},
		})
		for _, fb := range cfg.Synthesis.Fallbacks {
			fallback, err := reg.CreateSynth(fb)
			if err != nil {
				return devices, fmt.Errorf("create fallback synthesizer %q: %w", fb.Name, err)
			}
			group.AddFallback(fb.Name, fallback)
			slog.Info("adapter created", "kind", "synth-fallback", "name", fb.Name)
		}
		devices.Synth = group
	} else {
		devices.Synth = syn
	}

	return devices, nil
}

// ─── Config hot reload ────────────────────────────────────────────────────────

// applyConfigChange handles a reloaded config file. Only the log level is
// applied live; other hot-trackable changes are surfaced in the log so the
// operator knows a restart (or the next listen cycle) will pick them up.
func applyConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged {
		logLevel.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADChanged {
		slog.Warn("vad tuning changed in config; restart to apply")
	}
	if d.ChunkerChanged {
		slog.Warn("chunker settings changed in config; restart to apply")
	}
	for _, vc := range d.VoiceChanges {
		slog.Warn("voice list changed in config; restart to apply",
			"voice", vc.ID, "added", vc.Added, "removed", vc.Removed)
	}
}

// ─── Startup summary ──────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Susurrus — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printAdapter("Source", cfg.Audio.Source.Name, cfg.Audio.Source.Path)
	printAdapter("Sink", cfg.Audio.Sink.Name, cfg.Audio.Sink.Path)
	printAdapter("Synth", cfg.Synthesis.Provider.Name, cfg.Synthesis.Provider.Model)
	fmt.Printf("║  Voices          : %-19d ║\n", len(cfg.Voices))
	if cfg.Telemetry.Enabled {
		fmt.Printf("║  Telemetry       : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Telemetry       : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printAdapter(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ─── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Helpers ───────────────────────────────────────────────────────────────────

// optInt extracts an int value from an adapter Options map[string]any.
// Returns 0 if the map is nil, the key is absent, or the value is not an int.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	v, ok := opts[key]
	if !ok {
		return 0
	}
	n, ok := v.(int)
	if !ok {
		return 0
	}
	return n
}

// optBool extracts a bool value from an adapter Options map[string]any. The
// second return reports whether the key was present with a bool value.
func optBool(opts map[string]any, key string) (bool, bool) {
	if opts == nil {
		return false, false
	}
	v, ok := opts[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	if !ok {
		return false, false
	}
	return b, true
}
