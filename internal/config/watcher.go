package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher reports changes to the config file. It watches the file's
// directory rather than the file, because editors and [Config.Save] replace
// the file by rename. When fsnotify is unavailable it polls the file's
// modification time instead.
type Watcher struct {
	// path is the config file being monitored.
	path string
	// events carries one pending change; back-to-back writes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close] to stop the goroutines.
	done chan struct{}
	// fsw is the fsnotify watcher, owned by the watch goroutine; nil when polling.
	fsw *fsnotify.Watcher
	// once makes [Watcher.Close] idempotent.
	once sync.Once
	// mu guards fsw between the watch goroutine and Close.
	mu sync.Mutex
	// polling is true once the watcher has fallen back to stat polling.
	polling atomic.Bool
	// pollInterval is the duration between stat calls in polling mode.
	pollInterval time.Duration
}

// NewWatcher starts watching the config file at path.
func NewWatcher(path string) *Watcher {
	return newWatcher(path, 2*time.Second, true)
}

// newWatcher lets tests shorten the poll interval or force polling.
func newWatcher(path string, pollInterval time.Duration, useNotify bool) *Watcher {
	w := &Watcher{
		path:         path,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}
	if !useNotify {
		w.startPolling()
		return w
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, polling config file", "error", err)
		w.startPolling()
		return w
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		slog.Info("cannot watch config directory, polling config file", "path", path, "error", err)
		fsw.Close()
		w.startPolling()
		return w
	}
	w.fsw = fsw
	go w.watch(fsw)
	return w
}

// Events returns a channel that receives a value when the config file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
			w.fsw = nil
		}
	})
	return err
}

// watch forwards write, create and rename events for the config file. On an
// fsnotify error it drops the native watcher and switches to polling.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	name := filepath.Clean(w.path)
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			if w.fsw != nil {
				w.fsw.Close()
				w.fsw = nil
			}
			w.mu.Unlock()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// poll stats the config file every pollInterval and notifies when its
// modification time or size changes.
func (w *Watcher) poll() {
	lastMod, lastSize := w.stat()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			mod, size := w.stat()
			if !mod.Equal(lastMod) || size != lastSize {
				lastMod, lastSize = mod, size
				w.notify()
			}
		}
	}
}

func (w *Watcher) stat() (time.Time, int64) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}

// notify queues one change; if one is already pending the call is a no-op.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

// ///////////////////////////////////////////////
// Reload
// ///////////////////////////////////////////////

// Follow reloads the config from path on every watcher event and passes each
// valid result to apply. An invalid file is logged and skipped; the previous
// settings stay in effect. Follow returns when ctx is done.
func Follow(ctx context.Context, w *Watcher, path string, apply func(*Config)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Events():
			cfg, err := Load(path)
			if err != nil {
				slog.Warn("config reload rejected", "path", path, "error", err)
				continue
			}
			slog.Info("config reloaded", "path", path)
			apply(cfg)
		}
	}
}
