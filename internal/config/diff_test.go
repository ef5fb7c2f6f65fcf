package config

import "testing"

func TestDiff_NoChanges(t *testing.T) {
	a := &Config{}
	a.Server.LogLevel = LogInfo
	a.VAD.AmplitudeThreshold = 0.02
	a.Voices = []VoiceConfig{{ID: "nova", SpeedFactor: 1.1}}

	b := &Config{}
	b.Server.LogLevel = LogInfo
	b.VAD.AmplitudeThreshold = 0.02
	b.Voices = []VoiceConfig{{ID: "nova", SpeedFactor: 1.1}}

	d := Diff(a, b)
	if d.LogLevelChanged || d.VADChanged || d.ChunkerChanged || d.VoicesChanged {
		t.Errorf("identical configs reported changes: %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	a := &Config{}
	a.Server.LogLevel = LogInfo
	b := &Config{}
	b.Server.LogLevel = LogDebug

	d := Diff(a, b)
	if !d.LogLevelChanged {
		t.Fatal("log level change not detected")
	}
	if d.NewLogLevel != LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_VADAndChunker(t *testing.T) {
	a := &Config{}
	a.VAD.SilenceDurationSec = 1.5
	a.Chunker.MaxChars = 220

	b := &Config{}
	b.VAD.SilenceDurationSec = 2.0
	b.Chunker.MaxChars = 180

	d := Diff(a, b)
	if !d.VADChanged {
		t.Error("VAD change not detected")
	}
	if !d.ChunkerChanged {
		t.Error("chunker change not detected")
	}
}

func TestDiff_Voices(t *testing.T) {
	a := &Config{Voices: []VoiceConfig{
		{ID: "nova", SpeedFactor: 1.0},
		{ID: "orion", SpeedFactor: 1.0},
	}}
	b := &Config{Voices: []VoiceConfig{
		{ID: "nova", SpeedFactor: 1.5}, // modified
		{ID: "lyra"},                   // added; orion removed
	}}

	d := Diff(a, b)
	if !d.VoicesChanged {
		t.Fatal("voice changes not detected")
	}

	byID := make(map[string]VoiceDiff, len(d.VoiceChanges))
	for _, vc := range d.VoiceChanges {
		byID[vc.ID] = vc
	}
	if !byID["nova"].Modified {
		t.Errorf("nova should be modified: %+v", byID["nova"])
	}
	if !byID["orion"].Removed {
		t.Errorf("orion should be removed: %+v", byID["orion"])
	}
	if !byID["lyra"].Added {
		t.Errorf("lyra should be added: %+v", byID["lyra"])
	}
}
