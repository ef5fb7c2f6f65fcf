package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server:\n  listen_addr: \":8080\"\n")

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.ListenAddr; got != ":8080" {
		t.Errorf("listen_addr = %q", got)
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server:\n  log_level: bogus\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Error("expected error for invalid initial config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	changed := make(chan struct{}, 1)
	var mu sync.Mutex
	var gotOld, gotNew LogLevel

	w, err := NewWatcher(path, func(old, new *Config) {
		mu.Lock()
		gotOld = old.Server.LogLevel
		gotNew = new.Server.LogLevel
		mu.Unlock()
		select {
		case changed <- struct{}{}:
		default:
		}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Backdate the mtime so the rewrite is guaranteed to look newer even on
	// filesystems with coarse timestamp resolution.
	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	writeConfig(t, path, "server:\n  log_level: debug\n")

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("change never detected")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld != LogInfo || gotNew != LogDebug {
		t.Errorf("onChange(old=%q, new=%q), want info -> debug", gotOld, gotNew)
	}
	if w.Current().Server.LogLevel != LogDebug {
		t.Errorf("Current not updated: %q", w.Current().Server.LogLevel)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server:\n  log_level: info\n")

	called := make(chan struct{}, 1)
	w, err := NewWatcher(path, func(old, new *Config) {
		select {
		case called <- struct{}{}:
		default:
		}
	}, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	writeConfig(t, path, "server:\n  log_level: shouting\n")

	select {
	case <-called:
		t.Fatal("onChange fired for an invalid config")
	case <-time.After(100 * time.Millisecond):
	}
	if w.Current().Server.LogLevel != LogInfo {
		t.Errorf("Current = %q, want the last valid config", w.Current().Server.LogLevel)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "server: {}\n")

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.Stop()
	w.Stop()
}
