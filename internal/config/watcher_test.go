// Tests for the config [Watcher] in both fsnotify and polling modes, and for
// [Follow] applying only valid reloads.
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tools.zach/dev/tshell/internal/atomicfile"
)

func waitEvent(t *testing.T, w *Watcher, what string) {
	t.Helper()
	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

func TestWatcherNotify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := DefaultConfig().Save(path); err != nil {
		t.Fatal(err)
	}

	w := NewWatcher(path)
	t.Cleanup(func() { w.Close() })

	cfg := DefaultConfig()
	cfg.Cancel.Policy = "exit"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, w, "change after Save")
}

func TestWatcherPolling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[cancel]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := newWatcher(path, 10*time.Millisecond, false)
	t.Cleanup(func() { w.Close() })
	if !w.Polling() {
		t.Fatal("Polling() = false for a polling watcher")
	}

	if err := os.WriteFile(path, []byte("[cancel]\npolicy = \"exit\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	waitEvent(t, w, "polled change")
}

func TestWatcherCoalesces(t *testing.T) {
	w := newWatcher(filepath.Join(t.TempDir(), "config.toml"), time.Hour, false)
	t.Cleanup(func() { w.Close() })

	for i := 0; i < 5; i++ {
		w.notify()
	}
	if got := len(w.events); got != 1 {
		t.Errorf("pending events = %d, want 1", got)
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "config.toml"))
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

// ///////////////////////////////////////////////
// Follow
// ///////////////////////////////////////////////

func TestFollowSkipsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	w := newWatcher(path, time.Hour, false)
	t.Cleanup(func() { w.Close() })

	applied := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Follow(ctx, w, path, func(cfg *Config) { applied <- cfg })
		close(done)
	}()

	// Atomic writes so a reload never sees a truncated file.
	if err := atomicfile.Write(path, []byte("[cancel]\npolicy = \"sometimes\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w.notify()

	if err := atomicfile.Write(path, []byte("[cancel]\npolicy = \"exit\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// The first event may not have been consumed yet; keep nudging until a
	// config is applied.
	deadline := time.After(5 * time.Second)
	for {
		w.notify()
		select {
		case cfg := <-applied:
			if cfg.Cancel.Policy != "exit" {
				t.Fatalf("applied policy %q, invalid config leaked through", cfg.Cancel.Policy)
			}
			cancel()
			<-done
			return
		case <-deadline:
			t.Fatal("valid config never applied")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
