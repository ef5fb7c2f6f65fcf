package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/susurrus/internal/config"
	"github.com/MrWong99/susurrus/internal/observe"
	"github.com/MrWong99/susurrus/internal/telemetry"
	"github.com/MrWong99/susurrus/pkg/audio"
	audiomock "github.com/MrWong99/susurrus/pkg/audio/mock"
	synthmock "github.com/MrWong99/susurrus/pkg/synth/mock"
)

// testMetrics returns instruments on a private meter provider so tests never
// touch the global Prometheus registry.
func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// newTestApp builds an App over mock devices with injected metrics and hub so
// no OTel provider setup or real sockets are needed.
func newTestApp(t *testing.T, mutate func(*config.Config)) (*App, Devices) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.VAD.SegmentDir = t.TempDir()
	cfg.Telemetry.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	devices := Devices{
		Source: &audiomock.Source{FormatResult: audio.Format{SampleRate: 16000, Channels: 1}},
		Sink:   &audiomock.Sink{FormatResult: audio.Format{SampleRate: 16000, Channels: 1}},
		Synth:  &synthmock.Synthesizer{},
	}

	hub := telemetry.NewHub()
	t.Cleanup(hub.Close)

	a, err := New(context.Background(), cfg, devices, WithMetrics(testMetrics(t)), WithHub(hub))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a, devices
}

func TestNew_WiresSubsystems(t *testing.T) {
	a, _ := newTestApp(t, nil)

	if a.Session() == nil {
		t.Fatal("session not initialised")
	}
	if a.httpSrv == nil {
		t.Fatal("http server not initialised")
	}
}

func TestHandleSpeak_OK(t *testing.T) {
	a, _ := newTestApp(t, nil)

	body := `{"text": "hello there friend", "speed": 1.0}`
	req := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.handleSpeak(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204: %s", rec.Code, rec.Body)
	}
}

func TestHandleSpeak_BadRequests(t *testing.T) {
	a, _ := newTestApp(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"text": `},
		{"unknown field", `{"text": "hi", "volume": 3}`},
		{"missing text", `{"speed": 1.0}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			a.handleSpeak(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleSpeak_UsesRequestedVoice(t *testing.T) {
	a, devices := newTestApp(t, func(cfg *config.Config) {
		cfg.Voices = []config.VoiceConfig{
			{ID: "nova", Name: "Nova", Language: "en", SpeedFactor: 1.2},
		}
	})

	body := `{"text": "pick the right voice", "voice_id": "nova"}`
	req := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.handleSpeak(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	syn := devices.Synth.(*synthmock.Synthesizer)
	calls := syn.Calls()
	if len(calls) == 0 {
		t.Fatal("no synthesis happened")
	}
	if v := calls[0].Voice; v.ID != "nova" || v.SpeedFactor != 1.2 {
		t.Errorf("voice = %+v, want the configured nova profile", v)
	}
}

func TestHandleStopSpeak(t *testing.T) {
	a, _ := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/speak/stop", nil)
	rec := httptest.NewRecorder()
	a.handleStopSpeak(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	a, _ := newTestApp(t, nil)
	srv := httptest.NewServer(a.httpSrv.Handler)
	defer srv.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestMetricsEndpointRegistered(t *testing.T) {
	a, _ := newTestApp(t, nil)
	srv := httptest.NewServer(a.httpSrv.Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", resp.StatusCode)
	}
}

func TestSpeakPublishesTelemetry(t *testing.T) {
	a, _ := newTestApp(t, nil)

	hubSrv := httptest.NewServer(a.hub)
	defer hubSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(hubSrv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for a.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("hub client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	body := `{"text": "telemetry check words"}`
	req := httptest.NewRequest(http.MethodPost, "/speak", strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.handleSpeak(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var types []string
	for len(types) < 2 {
		var ev telemetry.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read: %v (got %v)", err, types)
		}
		types = append(types, ev.Type)
	}
	if types[0] != "playback_started" || types[1] != "playback_finished" {
		t.Errorf("event types = %v", types)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	a, _ := newTestApp(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	a, _ := newTestApp(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the server a moment to come up, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil on graceful stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConfigVoices(t *testing.T) {
	got := configVoices([]config.VoiceConfig{
		{ID: "nova", Name: "Nova", Language: "en", PitchShift: 2, SpeedFactor: 1.1},
	})
	if len(got) != 1 {
		t.Fatalf("voices = %d, want 1", len(got))
	}
	v := got[0]
	if v.ID != "nova" || v.Name != "Nova" || v.Language != "en" || v.PitchShift != 2 || v.SpeedFactor != 1.1 {
		t.Errorf("voice = %+v", v)
	}
	raw, err := json.Marshal(speakRequest{Text: "x"})
	if err != nil || !strings.Contains(string(raw), `"text"`) {
		t.Errorf("speakRequest marshal = %s, %v", raw, err)
	}
}
