// Package watch re-runs a handler when a watched manifest changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler is called with the absolute path of a changed file.
type Handler func(ctx context.Context, path string) error

// Options configures the watcher.
type Options struct {
	// Delay is the debounce window between the last event and the handler.
	Delay time.Duration
	// InitialRun calls the handler for every path on start.
	InitialRun bool
}

// DefaultOptions returns a 300ms debounce with an initial run.
func DefaultOptions() Options {
	return Options{Delay: 300 * time.Millisecond, InitialRun: true}
}

// Watcher watches individual files. Their parent directories are watched so
// editors that save by rename are still seen.
type Watcher struct {
	opts    Options
	paths   map[string]bool
	handle  Handler
	watcher *fsnotify.Watcher
}

// New creates a watcher for paths.
func New(paths []string, opts Options, handle Handler) (*Watcher, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files to watch")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{opts: opts, paths: map[string]bool{}, handle: handle, watcher: fw}
	dirs := map[string]bool{}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		w.paths[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) sortedPaths(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) shouldHandle(event fsnotify.Event) bool {
	if !w.paths[filepath.Clean(event.Name)] {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) run(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		slog.Warn("watched file is gone, skipping", "file", path)
		return
	}
	if err := w.handle(ctx, path); err != nil {
		slog.Warn("rescan failed", "file", path, "error", err)
	}
}

// Run blocks until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	if w.opts.InitialRun {
		for _, p := range w.sortedPaths(w.paths) {
			w.run(ctx, p)
		}
	}

	debounce := time.NewTimer(w.opts.Delay)
	debounce.Stop()
	changed := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.shouldHandle(event) {
				continue
			}
			slog.Debug("file changed", "file", event.Name, "op", event.Op.String())
			changed[filepath.Clean(event.Name)] = true
			debounce.Reset(w.opts.Delay)

		case <-debounce.C:
			for _, p := range w.sortedPaths(changed) {
				slog.Info("file changed, rescanning", "file", p)
				w.run(ctx, p)
			}
			changed = map[string]bool{}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}
