// Package watcher reloads GeoPackages when files in the data directory change.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Action says what the registry should do with a changed package file.
type Action int

// Package file actions.
const (
	ActionLoad Action = iota
	ActionReload
	ActionUnload
)

// String returns the action name used in logs.
func (a Action) String() string {
	switch a {
	case ActionLoad:
		return "load"
	case ActionReload:
		return "reload"
	case ActionUnload:
		return "unload"
	default:
		return "unknown"
	}
}

// Change is a settled change to one package file.
type Change struct {
	Path   string
	Action Action
}

// Handler applies a change, typically by loading or unloading a package.
type Handler func(ctx context.Context, change Change) error

// DefaultDebounce is the quiet period before a change is delivered.
const DefaultDebounce = 500 * time.Millisecond

// Config holds watcher configuration.
type Config struct {
	Dirs       []string
	Extensions []string // lower case, with dot; defaults to .gpkg
	Debounce   time.Duration
}

// Watcher coalesces bursts of file system events per path and delivers one
// Change after the path has been quiet for the debounce period.
type Watcher struct {
	fs         *fsnotify.Watcher
	handler    Handler
	logger     *slog.Logger
	dirs       []string
	extensions []string
	debounce   time.Duration

	mu      sync.Mutex
	pending map[string]*pendingChange
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

type pendingChange struct {
	action Action
	timer  *time.Timer
}

// New creates a watcher. Directories are added in Start.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".gpkg"}
	}

	return &Watcher{
		fs:         fs,
		handler:    handler,
		logger:     logger,
		dirs:       cfg.Dirs,
		extensions: cfg.Extensions,
		debounce:   cfg.Debounce,
		pending:    make(map[string]*pendingChange),
	}, nil
}

// Start watches the configured directories until ctx is done or Stop is
// called. Directories that cannot be watched are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	watched := 0
	for _, dir := range w.dirs {
		abs, err := filepath.Abs(dir)
		if err == nil {
			err = w.fs.Add(abs)
		}
		if err != nil {
			w.logger.Warn("cannot watch directory", "path", dir, "error", err)
			continue
		}
		watched++
		w.logger.Info("watching directory", "path", abs)
	}
	if watched == 0 && len(w.dirs) > 0 {
		return fmt.Errorf("none of %d directories could be watched", len(w.dirs))
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
	return nil
}

// Stop closes the watcher, drops undelivered changes and waits for running
// handlers.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fs.Close()

	w.mu.Lock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.matches(ev.Name) {
				w.logger.Debug("file event", "path", ev.Name, "op", ev.Op.String())
				w.schedule(ctx, ev.Name, actionFor(ev.Op))
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// schedule records action for path and restarts its quiet timer.
func (w *Watcher) schedule(ctx context.Context, path string, action Action) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.action = merge(p.action, action)
		p.timer.Reset(w.debounce)
		return
	}

	w.pending[path] = &pendingChange{
		action: action,
		timer:  time.AfterFunc(w.debounce, func() { w.deliver(ctx, path) }),
	}
}

func (w *Watcher) deliver(ctx context.Context, path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
	}
	if !ok || ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	change := Change{Path: path, Action: p.action}
	w.logger.Info("package file changed", "path", path, "action", change.Action.String())
	if err := w.handler(ctx, change); err != nil {
		w.logger.Error("applying package change failed",
			"path", path,
			"action", change.Action.String(),
			"error", err,
		)
	}
}

func (w *Watcher) matches(path string) bool {
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

// actionFor maps an fsnotify operation. A rename means the file left its
// original name.
func actionFor(op fsnotify.Op) Action {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ActionUnload
	case op.Has(fsnotify.Create):
		return ActionLoad
	default:
		return ActionReload
	}
}

// merge folds a new action into a pending one. An unload wins unless the file
// comes back, in which case it is loaded again.
func merge(pending, next Action) Action {
	switch {
	case next == ActionUnload:
		return ActionUnload
	case pending == ActionUnload && next == ActionLoad:
		return ActionLoad
	case pending == ActionUnload:
		return ActionUnload
	case pending == ActionLoad:
		return ActionLoad
	default:
		return next
	}
}
