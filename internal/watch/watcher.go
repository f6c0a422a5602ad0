// Package watch re-runs loaders when their config documents change on
// disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/alexjbarnes/credbroker/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events editors produce for a
// single save.
const DefaultDebounce = 250 * time.Millisecond

// Handler reloads the document at path.
type Handler func(ctx context.Context, path string) error

// Watcher calls a handler after a watched file is written or replaced.
type Watcher struct {
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
}

// New creates a watcher. A non-positive debounce uses DefaultDebounce.
func New(logger *slog.Logger, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		logger:   logging.OrDiscard(logger),
		debounce: debounce,
		handlers: make(map[string]Handler),
	}
}

// Add registers h for the file at path. It must be called before Run.
func (w *Watcher) Add(path string, h Handler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	w.mu.Lock()
	w.handlers[filepath.Clean(abs)] = h
	w.mu.Unlock()

	return nil
}

// Run watches the registered files until ctx is cancelled. The parent
// directories are watched rather than the files so that editors which
// save by renaming a temp file over the original are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	w.mu.Lock()
	handlers := make(map[string]Handler, len(w.handlers))
	dirs := make(map[string]struct{})

	for path, h := range w.handlers {
		handlers[path] = h
		dirs[filepath.Dir(path)] = struct{}{}
	}
	w.mu.Unlock()

	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	fire := make(chan string, len(handlers))
	timers := make(map[string]*time.Timer)

	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			path := filepath.Clean(event.Name)
			if _, watched := handlers[path]; !watched {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.schedule(ctx, timers, fire, path)

		case path := <-fire:
			delete(timers, path)

			w.logger.Info("config changed, reloading", slog.String("path", path))

			if err := handlers[path](ctx, path); err != nil {
				w.logger.Error("reloading config",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			// Non-fatal, e.g. an event queue overflow.
			w.logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// schedule debounces a reload of path. A timer that has already fired
// has a reload queued on fire that will read the latest contents, so it
// is left alone rather than re-armed.
func (w *Watcher) schedule(ctx context.Context, timers map[string]*time.Timer, fire chan<- string, path string) {
	if t, ok := timers[path]; ok {
		if t.Stop() {
			t.Reset(w.debounce)
		}

		return
	}

	timers[path] = time.AfterFunc(w.debounce, func() {
		select {
		case fire <- path:
		case <-ctx.Done():
		}
	})
}
