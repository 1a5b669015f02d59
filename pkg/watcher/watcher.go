// Package watcher monitors workspace roots for corpus changes. fsnotify
// events are debounced into batches so editor save storms and git
// checkouts trigger one callback instead of hundreds.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/jingkaihe/promptpack/pkg/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher watches a set of workspace roots.
type Watcher struct {
	roots    []string
	debounce time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the batching window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over the given roots. Roots that do not exist yet
// are skipped.
func New(roots []string, opts ...Option) *Watcher {
	w := &Watcher{roots: roots, debounce: defaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until the context is cancelled, invoking onChange with each
// debounced batch of changed paths. New directories are added to the
// watch as they appear.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer fsw.Close()

	watched := 0
	for _, root := range w.roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		if err := addRecursive(fsw, root); err != nil {
			return err
		}
		watched++
	}
	if watched == 0 {
		return errors.New("no workspace roots exist to watch")
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ignored(event.Name) {
				continue
			}

			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addRecursive(fsw, event.Name); err != nil {
						logger.G(ctx).WithError(err).WithField("path", event.Name).Warn("Failed to watch new directory")
					}
				}
			}

			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.G(ctx).WithError(err).Warn("File watcher error")

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]struct{})
			onChange(paths)
		}
	}
}

// addRecursive watches root and every non-ignored directory below it.
func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(entry.Name(), ".") {
			return fs.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return errors.Wrapf(err, "failed to watch '%s'", path)
		}
		return nil
	})
}

// ignored filters out dotfiles and the index database (including its WAL
// companions), which churn during sync.
func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") && base != "." {
		return true
	}
	return strings.HasPrefix(base, "index.db")
}
