// Package watcher reports layer file changes in source directories.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is a settled change of one file.
type Event struct {
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called once per settled file change.
type Handler func(ctx context.Context, event Event) error

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration // Quiet period before an event is delivered, default 500ms
	// Accept reports whether events on path are of interest. Nil accepts
	// every path.
	Accept func(path string) bool
}

// pendingEvent is a change waiting for its quiet period to pass.
type pendingEvent struct {
	op    Operation
	timer *time.Timer
}

// Watcher watches directory trees for layer file changes. Bursts of events
// on the same path collapse into one Event once the path stays quiet for
// the debounce interval. Directories created below a watched path are
// watched as well.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	accept    func(path string) bool
	logger    *slog.Logger
	paths     []string
	debounce  time.Duration

	mu      sync.Mutex
	ctx     context.Context
	pending map[string]*pendingEvent
	stopped bool
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Accept == nil {
		cfg.Accept = func(string) bool { return true }
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		accept:    cfg.Accept,
		logger:    logger,
		paths:     cfg.Paths,
		debounce:  cfg.Debounce,
		ctx:       context.Background(),
		pending:   make(map[string]*pendingEvent),
	}, nil
}

// Start watches the configured trees until ctx ends or Stop is called.
// Unreadable paths are logged and skipped.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	for _, path := range w.paths {
		if err := w.AddPath(path); err != nil {
			w.logger.Warn("failed to watch path", "path", path, "error", err)
		}
	}

	go w.eventLoop(ctx)
	return nil
}

// Stop stops the watcher and drops undelivered events.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	w.stopped = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	return w.fsWatcher.Close()
}

// AddPath watches path and every directory below it.
func (w *Watcher) AddPath(path string) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	err = filepath.WalkDir(root, func(dir string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsWatcher.Add(dir)
	})
	if err != nil {
		return err
	}

	w.logger.Info("watching directory", "path", root)
	return nil
}

// RemovePath stops watching path. Subdirectories stay watched.
func (w *Watcher) RemovePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Remove(absPath); err != nil {
		return err
	}

	w.logger.Info("removed watch path", "path", absPath)
	return nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.AddPath(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !w.accept(event.Name) {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	w.enqueue(event.Name, fsnotifyOpToOperation(event.Op))
}

// enqueue records op for path and restarts its quiet period.
func (w *Watcher) enqueue(path string, op Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	if p, ok := w.pending[path]; ok {
		p.op = mergeOperations(p.op, op)
		p.timer.Reset(w.debounce)
		return
	}

	w.pending[path] = &pendingEvent{
		op:    op,
		timer: time.AfterFunc(w.debounce, func() { w.deliver(path) }),
	}
}

func (w *Watcher) deliver(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
	}
	ctx := w.ctx
	w.mu.Unlock()

	if !ok || ctx.Err() != nil {
		return
	}

	w.logger.Info("layer file changed", "path", path, "operation", p.op.String())
	if err := w.handler(ctx, Event{Path: path, Operation: p.op}); err != nil {
		w.logger.Error("handler error",
			"path", path,
			"operation", p.op.String(),
			"error", err,
		)
	}
}

// mergeOperations folds a new operation into a pending one. A delete wins
// over what came before it and a file that reappears after a delete is a
// create.
func mergeOperations(pending, next Operation) Operation {
	switch {
	case next == OpDelete:
		return OpDelete
	case pending == OpDelete, pending == OpCreate:
		return OpCreate
	default:
		return next
	}
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		// A renamed file is gone from its original path.
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}
