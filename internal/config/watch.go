package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses bursts of editor writes into one reload.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives the result of each reload. On failure the result is
// nil and the previous settings stay in effect.
type ReloadFunc func(*Result, error)

// Watcher reloads a settings directory when its .cue files change.
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
	debounce time.Duration
	logger   *slog.Logger
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// NewWatcher starts watching dir. Call Run to process changes.
func NewWatcher(dir string, onReload ReloadFunc, opts ...WatchOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	w := &Watcher{
		dir:      dir,
		watcher:  fw,
		onReload: onReload,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes filesystem events until ctx is cancelled or the watcher
// is closed. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.logger.Debug("settings file changed", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("settings watcher error", "dir", w.dir, "error", err)

		case <-pending:
			pending = nil
			res, err := LoadDir(w.dir)
			if err != nil {
				w.logger.Warn("settings reload failed", "dir", w.dir, "error", err)
			} else {
				w.logger.Info("settings reloaded", "dir", w.dir, "files", res.FileCount)
			}
			w.onReload(res, err)
		}
	}
}

// Close stops the watcher. Run returns shortly after.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func relevant(ev fsnotify.Event) bool {
	if filepath.Ext(ev.Name) != ".cue" {
		return false
	}
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
