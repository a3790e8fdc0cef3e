// Package watch re-runs module discovery when plugin directories change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/metrics"
	"github.com/kingrea/focus/internal/module"
)

const (
	DefaultWindow = 500 * time.Millisecond
	DefaultRetry  = 2 * time.Second
)

// Refresher re-runs discovery. It returns module.ErrInstancesOutstanding
// while a session holds instances.
type Refresher interface {
	RefreshCatalog(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) RefreshCatalog(ctx context.Context) error { return f(ctx) }

type Option func(*Watcher)

// WithWindow sets how long changes must settle before a refresh.
func WithWindow(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.window = d
		}
	}
}

// WithRetry sets how soon a refresh deferred by a running session is retried.
func WithRetry(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.retry = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watcher) {
		w.log = logger
	}
}

// Watcher watches search roots and their plugin directories.
type Watcher struct {
	refresher Refresher
	roots     []string
	window    time.Duration
	retry     time.Duration
	log       zerolog.Logger
	fsw       *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	watched map[string]struct{}
	ctx     context.Context
	stopped bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// New watches every existing root and its immediate subdirectories.
// Missing roots are skipped.
func New(roots []string, refresher Refresher, opts ...Option) (*Watcher, error) {
	if refresher == nil {
		return nil, errors.New("watch: refresher is required")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	w := &Watcher{
		refresher: refresher,
		window:    DefaultWindow,
		retry:     DefaultRetry,
		log:       zerolog.Nop(),
		fsw:       fsw,
		watched:   map[string]struct{}{},
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.log = w.log.With().Str("component", "watch").Logger()
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		w.roots = append(w.roots, abs)
		w.addTree(abs)
	}
	return w, nil
}

// Watched reports how many directories are being watched.
func (w *Watcher) Watched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

func (w *Watcher) addTree(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		w.log.Debug().Err(err).Str("root", root).Msg("search root not watchable")
		return
	}
	w.add(root)
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			w.add(filepath.Join(root, entry.Name()))
		}
	}
}

func (w *Watcher) add(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.watched[dir]; ok {
		return
	}
	if err := w.fsw.Add(dir); err != nil {
		w.log.Warn().Err(err).Str("dir", dir).Msg("watch directory")
		return
	}
	w.watched[dir] = struct{}{}
}

func (w *Watcher) isRoot(dir string) bool {
	for _, root := range w.roots {
		if root == dir {
			return true
		}
	}
	return false
}

// Start runs the event loop until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
	go w.eventLoop(ctx)
	w.log.Info().Strs("roots", w.roots).Msg("watching plugin roots")
}

// Stop ends the event loop and releases the underlying watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	started := w.ctx != nil
	w.mu.Unlock()
	close(w.stopCh)
	if started {
		<-w.doneCh
	}
	return w.fsw.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if event.Has(fsnotify.Create) && w.isRoot(filepath.Dir(event.Name)) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.add(event.Name)
		}
	}
	if !relevant(event.Name) {
		return
	}
	w.log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("plugin change")
	w.schedule(w.window)
}

// relevant reports whether a path can affect discovery: manifests,
// implementation sources and plugin directories themselves.
func relevant(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".go":
		return true
	case ".yaml", ".yml", ".json":
		return strings.HasPrefix(strings.ToLower(base), "manifest.")
	case "":
		return true
	}
	return false
}

func (w *Watcher) schedule(after time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(after, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	ctx := w.ctx
	stopped := w.stopped
	w.mu.Unlock()
	if stopped || ctx == nil || ctx.Err() != nil {
		return
	}
	err := w.refresher.RefreshCatalog(ctx)
	switch {
	case err == nil:
		metrics.RecordRefresh("ok")
		w.log.Info().Msg("module catalog refreshed")
	case errors.Is(err, module.ErrInstancesOutstanding):
		metrics.RecordRefresh("deferred")
		w.log.Debug().Dur("retry", w.retry).Msg("session running, refresh deferred")
		w.schedule(w.retry)
	default:
		metrics.RecordRefresh("error")
		w.log.Warn().Err(err).Msg("module catalog refresh failed")
	}
}
