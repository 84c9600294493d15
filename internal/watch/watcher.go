// Package watch rebuilds on source changes. Filesystem events are
// debounced so a burst of writes reaches the callback as one batch.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/morozRed/husk/internal/ignore"
	"github.com/rs/zerolog"
)

const DefaultDebounce = 200 * time.Millisecond

// Config holds the parameters for a Watcher.
type Config struct {
	// Root is the directory watched recursively.
	Root string
	// Patterns are doublestar globs relative to Root selecting the files
	// that trigger a change. Empty matches every file.
	Patterns []string
	// Ignore holds gitignore-style rules, as in the project configuration.
	Ignore   []string
	Debounce time.Duration
	// OnChange receives the changed absolute paths, sorted.
	OnChange func(ctx context.Context, changed []string) error
	Logger   zerolog.Logger
}

// Watcher monitors Root and fires OnChange after a quiet period.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	matcher  *ignore.Matcher
	debounce time.Duration
	started  atomic.Bool

	mu      sync.Mutex
	pending map[string]bool
	timer   *time.Timer
	running atomic.Bool
}

// New validates cfg and registers every non-ignored directory under Root.
func New(cfg Config) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}
	cfg.Root = root

	for _, pattern := range cfg.Patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("watch: invalid pattern %q", pattern)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		matcher:  ignore.NewMatcher(cfg.Ignore),
		debounce: debounce,
		pending:  make(map[string]bool),
	}
	if err := w.addDirectories(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled. It returns nil on
// cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.cfg.Logger.Debug().Err(err).Msg("Failed to close watcher")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			w.handle(ctx, evt)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.cfg.Logger.Warn().Err(err).Msg("Watch events dropped")
				continue
			}
			w.cfg.Logger.Error().Err(err).Msg("Watch error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, evt fsnotify.Event) {
	if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) {
		return
	}
	rel, err := filepath.Rel(w.cfg.Root, evt.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if !w.matcher.ShouldIgnore(rel, true) {
				if err := w.fsw.Add(evt.Name); err != nil {
					w.cfg.Logger.Warn().Err(err).Str("dir", rel).Msg("Failed to watch new directory")
				}
			}
			return
		}
	}
	if !w.Matches(rel) {
		return
	}

	w.cfg.Logger.Trace().Str("file", rel).Str("op", evt.Op.String()).Msg("File event")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[evt.Name] = true
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, func() { w.fire(ctx) })
	} else {
		w.timer.Reset(w.debounce)
	}
}

// fire drains the pending set into one OnChange call. A call that finds a
// previous one still running reschedules instead of overlapping it.
func (w *Watcher) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !w.running.CompareAndSwap(false, true) {
		w.mu.Lock()
		w.timer.Reset(w.debounce)
		w.mu.Unlock()
		return
	}
	defer w.running.Store(false)

	w.mu.Lock()
	changed := make([]string, 0, len(w.pending))
	for path := range w.pending {
		changed = append(changed, path)
	}
	clear(w.pending)
	w.mu.Unlock()
	if len(changed) == 0 || w.cfg.OnChange == nil {
		return
	}
	sort.Strings(changed)

	if err := w.cfg.OnChange(ctx, changed); err != nil {
		w.cfg.Logger.Error().Err(err).Int("files", len(changed)).Msg("Rebuild failed")
	}
}

// Matches reports whether a root-relative path should trigger a change.
func (w *Watcher) Matches(rel string) bool {
	if w.matcher.ShouldIgnore(rel, false) {
		return false
	}
	if len(w.cfg.Patterns) == 0 {
		return true
	}
	for _, pattern := range w.cfg.Patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) addDirectories() error {
	return filepath.WalkDir(w.cfg.Root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.cfg.Logger.Debug().Err(walkErr).Str("path", path).Msg("Skipping inaccessible path")
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.cfg.Root, path)
		if err != nil {
			return nil
		}
		if rel != "." && w.matcher.ShouldIgnore(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add %s: %w", path, err)
		}
		return nil
	})
}

// ExtensionPatterns builds patterns matching files with the given extensions.
func ExtensionPatterns(extensions []string) []string {
	out := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		out = append(out, "**/*"+ext)
	}
	return out
}
