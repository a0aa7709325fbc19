// Package configwatcher reloads the application manifest when its file changes.
package configwatcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/GoCodeAlone/appshell"
	"github.com/GoCodeAlone/appshell/manifest"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 250 * time.Millisecond

// ErrWatcherRunning is returned by Start on a running watcher.
var ErrWatcherRunning = errors.New("config watcher already running")

// Applier applies a reloaded manifest.
type Applier interface {
	Apply(ctx context.Context, m *manifest.Manifest) (manifest.Result, error)
}

// Reconciler is triggered after a reload changed the registry.
type Reconciler interface {
	Reconcile() *appshell.Future
}

// Watcher watches one manifest file. The containing directory is watched so
// files replaced by rename are picked up.
type Watcher struct {
	path     string
	applier  Applier
	target   Reconciler
	logger   appshell.Logger
	debounce time.Duration
	onReload func(manifest.Result, error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	reloads int
	lastErr error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period after the last event before reloading.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger appshell.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(manifest.Result, error)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// New creates a watcher for the manifest at path.
func New(path string, applier Applier, target Reconciler, opts ...Option) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		applier:  applier,
		target:   target,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The watch ends when ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return ErrWatcherRunning
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.watcher = fw
	w.done = make(chan struct{})
	go w.loop(ctx, fw, w.done)
	w.info("Manifest watcher started", "path", w.path)
	return nil
}

// Stop ends the watch and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	fw, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()
	if fw == nil {
		return nil
	}
	err := fw.Close()
	<-done
	return err
}

// Stats returns the number of reloads and the error of the last one.
func (w *Watcher) Stats() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.lastErr
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.warn("Manifest watcher error", "path", w.path, "error", err)
		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

// reload loads and applies the manifest. A file that does not load leaves the
// registry untouched.
func (w *Watcher) reload(ctx context.Context) {
	res, err := w.apply(ctx)

	w.mu.Lock()
	w.reloads++
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		w.warn("Manifest reload failed", "path", w.path, "error", err)
	} else {
		w.info("Manifest reloaded", "path", w.path, "added", res.Added, "removed", res.Removed, "skipped", res.Skipped)
	}
	if w.onReload != nil {
		w.onReload(res, err)
	}
}

func (w *Watcher) apply(ctx context.Context) (manifest.Result, error) {
	m, err := manifest.Load(w.path)
	if err != nil {
		return manifest.Result{}, err
	}
	res, err := w.applier.Apply(ctx, m)
	if res.Changed() && w.target != nil {
		w.target.Reconcile()
	}
	return res, err
}

func (w *Watcher) info(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Info(msg, args...)
	}
}

func (w *Watcher) warn(msg string, args ...any) {
	if w.logger != nil {
		w.logger.Warn(msg, args...)
	}
}
