// Package watcher triggers a refresh when the local source file changes, using fsnotify
// with debouncing.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// Watcher watches one file and invokes onChange after writes settle.
// The parent directory is watched so that replace-by-rename is seen.
type Watcher struct {
	file     string
	onChange func()
	debounce time.Duration
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	dir      string
	done     chan struct{}
	started  bool
	logger   *zap.Logger
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for watch events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long the file must stay quiet before onChange fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for file. An empty file means nothing is watched until SetFile.
func NewWatcher(file string, onChange func(), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
	}
	if file != "" {
		w.file = cleanAbs(file)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func cleanAbs(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
// A stopped watcher may be started again.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	if err := w.watchLocked(w.file); err != nil {
		_ = w.watcher.Close()
		w.watcher = nil
		w.started = false
		w.mu.Unlock()
		return err
	}
	w.done = make(chan struct{})
	go w.run(ctx, watcher.Events, watcher.Errors, w.done)
	w.mu.Unlock()
	return nil
}

// watchLocked moves the directory watch to file's parent.
func (w *Watcher) watchLocked(file string) error {
	if w.dir != "" {
		_ = w.watcher.Remove(w.dir)
		w.dir = ""
	}
	w.file = file
	if file == "" {
		return nil
	}
	dir := filepath.Dir(file)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.dir = dir
	w.logger.Info("watching source file", zap.String("path", file))
	return nil
}

// SetFile switches the watched file. An empty path stops watching without stopping the watcher.
func (w *Watcher) SetFile(file string) error {
	if file != "" {
		file = cleanAbs(file)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.watcher == nil {
		w.file = file
		return nil
	}
	if file == w.file {
		return nil
	}
	return w.watchLocked(file)
}

// File returns the watched file, or "".
func (w *Watcher) File() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			w.stop(done)
			return
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	w.mu.Lock()
	file := w.file
	w.mu.Unlock()
	if file == "" || filepath.Clean(ev.Name) != file {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
		w.schedule()
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.timer = nil
		stopped := !w.started
		w.mu.Unlock()
		if stopped {
			return
		}
		w.logger.Info("source file changed, refreshing")
		if w.onChange != nil {
			w.onChange()
		}
	})
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.stop(nil)
}

// stop stops the current run. A non-nil done only matches the run it belongs to.
func (w *Watcher) stop(done <-chan struct{}) {
	w.mu.Lock()
	if !w.started || w.watcher == nil || (done != nil && done != w.done) {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.dir = ""
	w.started = false
	close(w.done)
	w.mu.Unlock()
}
