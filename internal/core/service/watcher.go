package service

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
	"github.com/docrelay/docrelay-go/internal/telemetry/metric"
)

// DefaultWatchInterval is the fallback poll interval for external change
// detection.
const DefaultWatchInterval = 5 * time.Second

// WatcherConfig configures the external change watcher.
type WatcherConfig struct {
	// Interval between store scans. Default: DefaultWatchInterval.
	Interval time.Duration

	// Dir, when non-empty, is watched with fsnotify so snapshots written
	// by another process trigger a scan immediately instead of waiting
	// for the next tick. Only meaningful for the file backend.
	Dir string
}

// Watcher periodically reconciles the coordinator against the snapshot
// store. The interval scan is the correctness mechanism; the filesystem
// notification only makes it prompt.
type Watcher struct {
	coord   *Coordinator
	cfg     WatcherConfig
	log     logger.Logger
	metrics *metric.Metrics

	nudge chan struct{}
	fsw   *fsnotify.Watcher
}

// NewWatcher creates a watcher over the coordinator.
func NewWatcher(coord *Coordinator, cfg WatcherConfig, log logger.Logger, metrics *metric.Metrics) (*Watcher, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultWatchInterval
	}
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = metric.New()
	}
	w := &Watcher{
		coord:   coord,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		nudge:   make(chan struct{}, 1),
	}
	if cfg.Dir != "" {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		if err := fsw.Add(cfg.Dir); err != nil {
			fsw.Close()
			return nil, err
		}
		w.fsw = fsw
	}
	return w, nil
}

// Run blocks until ctx is done, scanning on every tick and on filesystem
// events. A scan failure for one document never stops the loop.
func (w *Watcher) Run(ctx context.Context) {
	if w.fsw != nil {
		go w.forwardEvents(ctx)
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	w.log.Info("external change watcher started",
		"interval", w.cfg.Interval, "dir", w.cfg.Dir)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("external change watcher stopped")
			return
		case <-ticker.C:
		case <-w.nudge:
		}
		w.metrics.WatcherRunsTotal.Inc()
		merged, failed := w.coord.SyncFromStore(ctx)
		if merged > 0 || failed > 0 {
			w.log.Info("external change scan finished",
				"merged", merged, "failed", failed)
		}
	}
}

// Close releases the filesystem watcher, if any.
func (w *Watcher) Close() error {
	if w.fsw != nil {
		return w.fsw.Close()
	}
	return nil
}

// forwardEvents collapses filesystem events into at most one pending
// nudge. Only completed snapshot files matter; temp files mid-write are
// ignored, the rename that lands them fires its own event.
func (w *Watcher) forwardEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, ".snap") {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.nudge <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("filesystem watcher error", "error", err)
		}
	}
}
