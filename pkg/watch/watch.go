// Package watch notifies when a resultset file is rewritten.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jupierce/cov-loupe/pkg/coverage"
)

// DefaultDebounce collapses the burst of events a test run produces while
// it writes the resultset.
const DefaultDebounce = 250 * time.Millisecond

// Watcher observes the directory holding a file, so replacements by rename
// are seen as well as in-place writes.
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration
	logger   coverage.Logger
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before onChange fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger routes watcher errors.
func WithLogger(l coverage.Logger) Option {
	return func(w *Watcher) { w.logger = coverage.OrNop(l) }
}

// New starts watching the directory of path.
func New(path string, onChange func(), opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     abs,
		onChange: onChange,
		debounce: DefaultDebounce,
		logger:   coverage.NopLogger,
		watcher:  fw,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return w, nil
}

// Run delivers notifications until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stopTimer()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.SafeLog("Resultset watcher error: " + err.Error())

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Watch runs a Watcher on path until ctx is done.
func Watch(ctx context.Context, path string, onChange func(), opts ...Option) error {
	w, err := New(path, onChange, opts...)
	if err != nil {
		return err
	}
	defer w.Close()
	w.Run(ctx)
	return nil
}
