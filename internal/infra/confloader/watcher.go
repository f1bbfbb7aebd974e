package confloader

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
)

// Watcher invokes callbacks when a watched configuration file is
// rewritten. It watches the parent directory so editor rename-replace
// saves are seen too.
type Watcher struct {
	fw   *fsnotify.Watcher
	log  logger.Logger
	done chan struct{}

	mu        sync.Mutex
	callbacks []func(path string)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(log logger.Logger) WatcherOption {
	return func(w *Watcher) { w.log = log }
}

// NewWatcher builds an idle watcher; call Watch then StartAsync.
func NewWatcher(opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("confloader: %w", err)
	}
	w := &Watcher{
		fw:   fw,
		log:  logger.Default(),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch registers the file at path for change notifications.
func (w *Watcher) Watch(path string) error {
	dir := filepath.Dir(path)
	if err := w.fw.Add(dir); err != nil {
		return fmt.Errorf("confloader: watch %s: %w", dir, err)
	}
	w.log.Debug("watching config file", "file", path)
	return nil
}

// OnChange registers a callback invoked with the changed file's path.
func (w *Watcher) OnChange(fn func(path string)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// StartAsync runs the event loop in the background.
func (w *Watcher) StartAsync() {
	go w.run()
}

// Stop ends the event loop and releases the underlying watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fw.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.log.Debug("config file changed", "file", ev.Name, "op", ev.Op.String())
			w.notify(ev.Name)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) notify(path string) {
	w.mu.Lock()
	cbs := make([]func(string), len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.Unlock()

	for _, fn := range cbs {
		fn(path)
	}
}
