package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dusk-indust/logicgate/internal/graph"
)

// ChangeHandler is called with the batch of changed source paths once the
// debounce window closes without further events.
type ChangeHandler func(ctx context.Context, paths []string)

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Debounce is how long to wait for more changes before flushing.
	// Default: 300ms.
	Debounce time.Duration

	// ExcludeDirs are never watched. Nil uses DefaultExcludeDirs.
	ExcludeDirs []string

	Logger *slog.Logger
}

// Watcher batches file system events under root and calls its handler with
// the changed source files. Since the call graph is rebuilt wholesale, the
// handler typically triggers a full rescan.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	names    map[string]bool
	paths    map[string]bool
	logger   *slog.Logger
}

// NewWatcher creates a Watcher for root. Call Run to start watching.
func NewWatcher(root string, handler ChangeHandler, opts WatchOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.ExcludeDirs == nil {
		opts.ExcludeDirs = DefaultExcludeDirs
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	names, paths := splitExcludes(opts.ExcludeDirs)
	return &Watcher{
		root:     root,
		fsw:      fsw,
		handler:  handler,
		debounce: opts.Debounce,
		names:    names,
		paths:    paths,
		logger:   opts.Logger,
	}, nil
}

// Run watches until ctx is cancelled. Pending changes are flushed before
// Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	pending := make(map[string]bool)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(pending) == 0 {
			return
		}
		batch := make([]string, 0, len(pending))
		for p := range pending {
			batch = append(batch, p)
		}
		slices.Sort(batch)
		clear(pending)
		w.handler(ctx, batch)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return nil
			}
			rel, relevant := w.classify(event)
			if !relevant {
				continue
			}
			pending[rel] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				flush()
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			flush()
		}
	}
}

// classify reports the repo-relative path of a source file event. New
// directories are added to the watch list and are not themselves reported.
func (w *Watcher) classify(event fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.excluded(rel) {
		return "", false
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Debug("watch new directory failed", "path", rel, "error", err)
			}
			return "", false
		}
	}
	if event.Op == fsnotify.Chmod {
		return "", false
	}
	if _, ok := graph.DialectForPath(rel); !ok {
		return "", false
	}
	return rel, true
}

// excluded reports whether any segment of rel is an excluded directory.
func (w *Watcher) excluded(rel string) bool {
	dir := filepath.ToSlash(filepath.Dir(rel))
	for dir != "." && dir != "/" && dir != "" {
		if w.paths[dir] || w.names[filepath.Base(dir)] {
			return true
		}
		dir = filepath.ToSlash(filepath.Dir(dir))
	}
	return false
}

// addRecursive adds a directory and all non-excluded subdirectories.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // ignore errors, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root {
			rel, _ := filepath.Rel(w.root, path)
			rel = filepath.ToSlash(rel)
			if w.names[d.Name()] || w.paths[rel] {
				return filepath.SkipDir
			}
		}
		return w.fsw.Add(path)
	})
}
