// Package watch reports batches of file changes under a project root.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/moasq/storecheck/internal/logging"
	"github.com/moasq/storecheck/internal/source"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	Debounce    time.Duration
	ExcludeDirs []string
	// Ignore lists files whose changes never trigger a batch, such as the
	// report the caller writes into the project.
	Ignore []string
	Logger *zap.SugaredLogger
}

// ChangeHandler receives the sorted paths that changed during one quiet
// period. An error is logged and watching continues.
type ChangeHandler func(ctx context.Context, paths []string) error

// Watcher watches every directory below a root, skipping excluded and hidden
// directories.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	debounce time.Duration
	exclude  map[string]bool
	ignore   map[string]bool
	log      *zap.SugaredLogger
}

// New starts watching root recursively.
func New(root string, opts Options) (*Watcher, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("invalid root path: %s is not a directory", root)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		root:     filepath.Clean(root),
		debounce: opts.Debounce,
		exclude:  make(map[string]bool, len(opts.ExcludeDirs)),
		ignore:   make(map[string]bool, len(opts.Ignore)),
		log:      opts.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.log == nil {
		w.log = logging.Nop()
	}
	for _, d := range opts.ExcludeDirs {
		w.exclude[d] = true
	}
	for _, p := range opts.Ignore {
		if abs, err := filepath.Abs(p); err == nil {
			w.ignore[abs] = true
		}
	}

	if err := w.addRecursive(w.root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return source.Walk(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory removed mid-walk is not an error.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) skipDir(name string) bool {
	return w.exclude[name] || strings.HasPrefix(name, ".")
}

// relevant drops hidden files, ignored files and anything below an excluded
// directory.
func (w *Watcher) relevant(path string) bool {
	if abs, err := filepath.Abs(path); err == nil && w.ignore[abs] {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	for _, dir := range parts[:len(parts)-1] {
		if w.skipDir(dir) {
			return false
		}
	}
	return !strings.HasPrefix(parts[len(parts)-1], ".")
}

// Run delivers change batches to onChange until ctx is cancelled. Events are
// coalesced until the tree has been quiet for the debounce period.
func (w *Watcher) Run(ctx context.Context, onChange ChangeHandler) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]bool)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if w.skipDir(info.Name()) {
						continue
					}
					if err := w.addRecursive(event.Name); err != nil {
						w.log.Warnw("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			w.log.Debugw("file changed", "path", event.Name, "op", event.Op.String())
			pending[event.Name] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("file watcher error", "error", err)

		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(pending)
			if err := onChange(ctx, paths); err != nil {
				w.log.Warnw("change handler failed", "error", err)
			}
		}
	}
}
