// Package app wires all Susurrus subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP surface and the capture loop, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options. When an
// option is not provided, New creates real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/susurrus/internal/config"
	"github.com/MrWong99/susurrus/internal/health"
	"github.com/MrWong99/susurrus/internal/observe"
	"github.com/MrWong99/susurrus/internal/playback"
	"github.com/MrWong99/susurrus/internal/session"
	"github.com/MrWong99/susurrus/internal/telemetry"
	"github.com/MrWong99/susurrus/internal/vad"
	"github.com/MrWong99/susurrus/pkg/audio"
	"github.com/MrWong99/susurrus/pkg/synth"
)

// Devices holds the audio adapters and synthesis backend the session runs
// on. Populated by main.go via the config registry.
type Devices struct {
	Source audio.Source
	Sink   audio.Sink
	Synth  synth.Synthesizer
}

// App owns all subsystem lifetimes and orchestrates the Susurrus audio
// front end.
type App struct {
	cfg     *config.Config
	devices Devices

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics  *observe.Metrics
	sess     *session.Session
	recovery *session.Recovery
	hub      *telemetry.Hub
	httpSrv  *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects metric instruments instead of initialising the OTel
// SDK from config.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithHub injects a telemetry hub instead of creating one from config.
func WithHub(h *telemetry.Hub) Option {
	return func(a *App) { a.hub = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The devices struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, devices Devices, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		devices: devices,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if err := a.initMetrics(ctx); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	// ── 2. Telemetry hub ─────────────────────────────────────────────────
	a.initHub()

	// ── 3. Session ───────────────────────────────────────────────────────
	if err := a.initSession(); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMetrics sets up the OTel meter provider with the Prometheus exporter
// bridge, unless instruments were injected.
func (a *App) initMetrics(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}

	mp, shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)

	m, err := observe.NewMetrics(mp)
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initHub creates the telemetry hub if enabled and not injected.
func (a *App) initHub() {
	if a.hub != nil || !a.cfg.Telemetry.Enabled {
		return
	}
	a.hub = telemetry.NewHub(telemetry.WithQueueDepth(a.cfg.Telemetry.ClientQueueDepth))
	a.closers = append(a.closers, func(context.Context) error {
		a.hub.Close()
		return nil
	})
}

// initSession builds the session over the configured devices, forwarding its
// hooks into the telemetry hub.
func (a *App) initSession() error {
	sessCfg := session.Config{
		VAD: vad.Config{
			AmplitudeThreshold: a.cfg.VAD.AmplitudeThreshold,
			SilenceDuration:    a.cfg.VAD.SilenceDuration(),
			MinSpeechDuration:  a.cfg.VAD.MinSpeechDuration(),
			MaxSegmentDuration: a.cfg.VAD.MaxSegmentDuration(),
			ForceFinalizeRatio: a.cfg.VAD.ForceFinalizeRatio,
			PreRollFrames:      a.cfg.VAD.PreRollFrames,
			StallTimeout:       a.cfg.VAD.StallTimeout(),
		},
		SegmentDir:        a.cfg.VAD.SegmentDir,
		ChunkMaxChars:     a.cfg.Chunker.MaxChars,
		MaxTextLen:        a.cfg.Chunker.MaxTextLen,
		PipelineCapacity:  a.cfg.Playback.Capacity,
		InterruptOnSpeech: a.cfg.Playback.InterruptOnSpeech,
		Voices:            configVoices(a.cfg.Voices),
	}

	sess, err := session.New(sessCfg, a.devices.Source, a.devices.Sink, a.devices.Synth,
		a.sessionHooks(), session.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.sess = sess
	a.closers = append(a.closers, func(context.Context) error {
		return sess.Close()
	})

	a.recovery = session.NewRecovery(func() error {
		_ = sess.StopListening()
		return sess.StartListening()
	}, session.RecoveryConfig{
		OnRecovered: func() {
			slog.Info("capture side recovered")
			a.publish(telemetry.StateChange(sess.State().String()))
		},
		OnGaveUp: func(err error) {
			a.publish(telemetry.PipelineError(fmt.Errorf("capture restart gave up: %w", err)))
		},
	})
	a.closers = append(a.closers, func(context.Context) error {
		a.recovery.Stop()
		return nil
	})
	return nil
}

// sessionHooks forwards detector events to the telemetry hub and the log.
func (a *App) sessionHooks() session.Hooks {
	return session.Hooks{
		OnSpeechStart: func() {
			slog.Debug("speech started")
			a.publish(telemetry.SpeechStart())
		},
		OnSpeechEnd: func(path string) {
			slog.Info("utterance finalized", "path", path)
			a.publish(telemetry.SpeechEnd(path))
		},
		OnAmplitude: func(level float64) {
			a.publish(telemetry.Amplitude(level))
		},
		OnError: func(err error) {
			slog.Error("session error", "err", err)
			a.publish(telemetry.PipelineError(err))
			if errors.Is(err, vad.ErrSourceStalled) {
				a.recovery.NotifyFailure()
			}
		},
	}
}

// publish forwards ev to the hub when telemetry is enabled.
func (a *App) publish(ev telemetry.Event) {
	if a.hub != nil {
		a.hub.Publish(ev)
	}
}

// initHTTP builds the HTTP mux: Prometheus metrics, health probes, the
// telemetry websocket, and the speak endpoint.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(
		health.DirWritable("segment_store", a.sess.SegmentDir()),
		health.DeviceFormat("audio_source", a.devices.Source.Format),
		health.DeviceFormat("audio_sink", a.devices.Sink.Format),
	)
	h.Register(mux)

	if a.hub != nil {
		mux.Handle("GET /ws/telemetry", a.hub)
	}
	mux.HandleFunc("POST /speak", a.handleSpeak)
	mux.HandleFunc("POST /speak/stop", a.handleStopSpeak)

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts listening on the capture device and serves the HTTP surface,
// blocking until ctx is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.sess.StartListening(); err != nil {
		return fmt.Errorf("app: start listening: %w", err)
	}
	a.recovery.Watch(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})

	slog.Info("app running", "state", a.sess.State())
	return g.Wait()
}

// Session returns the running session. Exposed for the demo command and
// tests.
func (a *App) Session() *session.Session {
	return a.sess
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// configVoices converts config voice entries to synthesis voice profiles.
func configVoices(vcs []config.VoiceConfig) []synth.Voice {
	out := make([]synth.Voice, 0, len(vcs))
	for _, vc := range vcs {
		out = append(out, synth.Voice{
			ID:          vc.ID,
			Name:        vc.Name,
			Language:    vc.Language,
			PitchShift:  vc.PitchShift,
			SpeedFactor: vc.SpeedFactor,
		})
	}
	return out
}

// speakRequest is the JSON body of POST /speak.
type speakRequest struct {
	Text     string  `json:"text"`
	VoiceID  string  `json:"voice_id"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

// handleSpeak synthesizes and plays a response, returning once playback has
// drained or was cancelled.
func (a *App) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	a.publish(telemetry.PlaybackStarted(0))
	err := a.sess.Speak(r.Context(), req.Text, req.VoiceID, req.Language, req.Speed)
	a.publish(telemetry.PlaybackFinished(errors.Is(err, playback.ErrStopped)))

	switch {
	case err == nil, errors.Is(err, playback.ErrStopped):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, playback.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("speak failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleStopSpeak cancels in-flight playback.
func (a *App) handleStopSpeak(w http.ResponseWriter, _ *http.Request) {
	a.sess.StopSpeaking()
	w.WriteHeader(http.StatusNoContent)
}

// decodeJSON decodes a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}
