package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher calls a reload function after the config file changes.
// It watches the file's directory rather than the file, since editors
// and atomic writers replace the file instead of modifying it in place.
// Bursts of events are coalesced with a debounce timer.
type ConfigWatcher struct {
	path       string
	reload     func(ctx context.Context) error
	logger     *slog.Logger
	debounce   time.Duration
	pollPeriod time.Duration
}

// New creates a watcher for the config file at path.
func New(path string, reload func(ctx context.Context) error, logger *slog.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		path:       filepath.Clean(path),
		reload:     reload,
		logger:     logger.With(slog.String("component", "config-watcher")),
		debounce:   500 * time.Millisecond,
		pollPeriod: 30 * time.Second,
	}
}

// SetDebounce overrides the default debounce interval (for testing).
func (w *ConfigWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// SetPollPeriod overrides how often the file is stat'ed when fsnotify is
// unavailable.
func (w *ConfigWatcher) SetPollPeriod(d time.Duration) {
	w.pollPeriod = d
}

// Start blocks until ctx is canceled. If fsnotify cannot watch the
// directory, the watcher falls back to comparing modification times.
func (w *ConfigWatcher) Start(ctx context.Context) {
	var eventCh <-chan fsnotify.Event
	var errCh <-chan error
	var pollCh <-chan time.Time

	fw, err := fsnotify.NewWatcher()
	if err == nil {
		err = fw.Add(filepath.Dir(w.path))
	}
	if err != nil {
		w.logger.Warn("fsnotify unavailable, polling config file", "error", err)
		if fw != nil {
			fw.Close() //nolint:errcheck
		}
		ticker := time.NewTicker(w.pollPeriod)
		defer ticker.Stop()
		pollCh = ticker.C
	} else {
		defer fw.Close() //nolint:errcheck
		eventCh = fw.Events
		errCh = fw.Errors
	}

	// Starts stopped; reset on each relevant event.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	lastMod := modTime(w.path)
	w.logger.Debug("watching config file", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-errCh:
			if !ok {
				return
			}
			w.logger.Error("fsnotify error", "error", err)

		case <-pollCh:
			if m := modTime(w.path); !m.Equal(lastMod) {
				lastMod = m
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			lastMod = modTime(w.path)
			w.logger.Info("config file changed, reloading", "path", w.path)
			if err := w.reload(ctx); err != nil {
				w.logger.Error("config reload failed", "error", err)
			}
		}
	}
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
