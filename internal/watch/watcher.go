// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/devtask/devtask/internal/logging"
)

// DefaultDebounce is the quiet period used when Config.Debounce is unset.
const DefaultDebounce = 300 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Watcher.Run.
var ErrAlreadyRunning = errors.New("watcher already running")

// defaultIgnores are always excluded: VCS metadata, editor swap files and
// dependency caches produce change storms unrelated to the work.
var defaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swx",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// BaseDir is the watched root; empty means the working directory.
		BaseDir  string
		// Patterns select the files that trigger OnChange, relative to
		// BaseDir. Empty matches every file that is not ignored.
		Patterns []string
		// Ignore adds to the built-in ignore patterns.
		Ignore   []string
		// Debounce is the quiet period before OnChange fires.
		Debounce time.Duration
		// OnChange receives the sorted changed paths, relative to BaseDir.
		OnChange func(ctx context.Context, changed []string) error
		Logger   *log.Logger
	}

	// Watcher fires Config.OnChange after bursts of filesystem changes.
	Watcher struct {
		cfg     Config
		fsw     *fsnotify.Watcher
		baseDir string
		ignores []string
		logger  *log.Logger
		started atomic.Bool
	}
)

// InvalidPatternError reports a glob that doublestar cannot parse.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid watch pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// Validate checks every pattern and ignore glob.
func (c Config) Validate() error {
	var errs []error
	for _, pat := range append(slices.Clone(c.Patterns), c.Ignore...) {
		if !doublestar.ValidatePattern(pat) {
			errs = append(errs, &InvalidPatternError{Pattern: pat, Err: doublestar.ErrBadPattern})
		}
	}
	return errors.Join(errs...)
}

// New validates cfg and registers the directory tree below BaseDir.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		base = wd
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		cfg:     cfg,
		fsw:     fsw,
		baseDir: abs,
		ignores: append(slices.Clone(defaultIgnores), cfg.Ignore...),
		logger:  logger,
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// BaseDir returns the absolute watched root.
func (w *Watcher) BaseDir() string {
	return w.baseDir
}

// Run dispatches debounced callbacks until ctx is done. It returns nil on
// cancellation and an error when the underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("Closing file watcher failed", "error", err)
		}
	}()

	b := newBatch(w.cfg.Debounce, w.dispatch)
	defer b.stop()

	w.logger.Debug("Watching for changes", "dir", w.baseDir, "patterns", w.cfg.Patterns)
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("file watcher closed its event channel")
			}
			if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) {
				continue
			}
			rel := w.relative(evt.Name)
			if w.ignored(rel) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.addIfDir(evt.Name)
			}
			if !w.selected(rel) {
				continue
			}
			b.add(ctx, rel)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("file watcher closed its error channel")
			}
			if isFatalWatchError(err) {
				return fmt.Errorf("file watcher failed: %w", err)
			}
			w.logger.Warn("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, changed []string) {
	w.logger.Debug("Files changed", "count", len(changed), "files", changed)
	if w.cfg.OnChange == nil {
		return
	}
	if err := w.cfg.OnChange(ctx, changed); err != nil {
		w.logger.Warn("Change handler failed", "error", err)
	}
}

// addTree registers dir and every non-ignored directory below it.
// Unreadable directories are skipped.
func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Debug("Skipping unreadable path", "path", path, "error", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel := w.relative(path); rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register watch directories: %w", err)
	}
	return nil
}

func (w *Watcher) addIfDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(path); err != nil {
		w.logger.Warn("Could not watch new directory", "path", path, "error", err)
	}
}

func (w *Watcher) relative(path string) string {
	rel, err := filepath.Rel(w.baseDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func (w *Watcher) selected(rel string) bool {
	return len(w.cfg.Patterns) == 0 || matchAny(w.cfg.Patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}
