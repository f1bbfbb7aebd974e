package backup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
	"github.com/docrelay/docrelay-go/internal/telemetry/metric"
)

// DefaultFlushInterval is the periodic flush cadence.
const DefaultFlushInterval = 5 * time.Minute

// DefaultMaxAttempts bounds upload retries per document per flush.
const DefaultMaxAttempts = 3

// backoffBase is the unit for exponential backoff between upload
// attempts: 1s, 2s, 4s, ...
const backoffBase = time.Second

// BatchError reports a flush in which some documents failed. Documents
// uploaded before the failures stay flushed; only the listed ids remain
// dirty.
type BatchError struct {
	Failed map[string]error
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Sprintf("backup: flush failed for %d document(s): %s", len(ids), strings.Join(ids, ", "))
}

// record tracks one document's backup state.
type record struct {
	data    []byte
	dirty   bool
	deleted bool
	synced  time.Time
}

// AdapterConfig configures the backup adapter.
type AdapterConfig struct {
	// Interval between periodic flushes. Default: DefaultFlushInterval.
	Interval time.Duration

	// MaxAttempts per document upload within one flush. Default: 3.
	MaxAttempts int

	// backoff overrides backoffBase in tests.
	backoff time.Duration
}

// Adapter mirrors durable document changes to a remote store. It
// implements service.ChangeListener: the coordinator pushes serialized
// documents into it, and the adapter owns when and how they reach the
// remote side.
type Adapter struct {
	remote  RemoteStore
	cfg     AdapterConfig
	log     logger.Logger
	metrics *metric.Metrics

	mu      sync.Mutex
	records map[string]*record
}

// NewAdapter creates the adapter.
func NewAdapter(remote RemoteStore, cfg AdapterConfig, log logger.Logger, metrics *metric.Metrics) *Adapter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultFlushInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.backoff <= 0 {
		cfg.backoff = backoffBase
	}
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = metric.New()
	}
	return &Adapter{
		remote:  remote,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		records: make(map[string]*record),
	}
}

// DocumentChanged marks id dirty with its latest serialized form.
func (a *Adapter) DocumentChanged(id string, data []byte) {
	a.mu.Lock()
	rec, ok := a.records[id]
	if !ok {
		rec = &record{}
		a.records[id] = rec
	}
	rec.data = data
	rec.dirty = true
	rec.deleted = false
	a.metrics.BackupDirtyDocuments.Set(float64(a.dirtyCountLocked()))
	a.mu.Unlock()
}

// DocumentDeleted marks id for remote deletion on the next flush.
func (a *Adapter) DocumentDeleted(id string) {
	a.mu.Lock()
	rec, ok := a.records[id]
	if !ok {
		rec = &record{}
		a.records[id] = rec
	}
	rec.data = nil
	rec.dirty = true
	rec.deleted = true
	a.metrics.BackupDirtyDocuments.Set(float64(a.dirtyCountLocked()))
	a.mu.Unlock()
}

func (a *Adapter) dirtyCountLocked() int {
	n := 0
	for _, rec := range a.records {
		if rec.dirty {
			n++
		}
	}
	return n
}

// DirtyCount reports how many documents await upload.
func (a *Adapter) DirtyCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirtyCountLocked()
}

// Flush uploads every dirty document. Each document gets up to
// MaxAttempts tries with exponential backoff on transient failures; a
// credential rejection aborts the whole flush since every remaining
// upload would fail the same way. Documents that made it stay clean even
// when the batch errors.
func (a *Adapter) Flush(ctx context.Context) error {
	type job struct {
		id      string
		data    []byte
		deleted bool
	}

	a.mu.Lock()
	jobs := make([]job, 0, len(a.records))
	for id, rec := range a.records {
		if rec.dirty {
			jobs = append(jobs, job{id: id, data: rec.data, deleted: rec.deleted})
		}
	}
	a.mu.Unlock()

	if len(jobs) == 0 {
		return nil
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].id < jobs[j].id })

	// Uploads run concurrently, one goroutine per dirty document. A
	// credential rejection cancels the batch: every remaining upload
	// would fail the same way.
	flushCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
	)
	failed := make(map[string]error)
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			var err error
			if j.deleted {
				err = a.withRetry(flushCtx, j.id, func() error {
					return a.remote.Delete(flushCtx, j.id)
				})
			} else {
				err = a.withRetry(flushCtx, j.id, func() error {
					return a.remote.Upload(flushCtx, j.id, j.data)
				})
			}
			if err != nil {
				failedMu.Lock()
				failed[j.id] = err
				failedMu.Unlock()
				a.log.Warn("backup flush failed for document", "document_id", j.id, "error", err)
				if isAuthErr(err) {
					cancel()
				}
				return
			}
			a.markClean(j.id, j.deleted)
		}(j)
	}
	wg.Wait()

	a.mu.Lock()
	a.metrics.BackupDirtyDocuments.Set(float64(a.dirtyCountLocked()))
	a.mu.Unlock()

	switch {
	case len(failed) == 0:
		a.metrics.BackupFlushesTotal.WithLabelValues("success").Inc()
		a.log.Info("backup flush complete", "documents", len(jobs))
		return nil
	case len(failed) < len(jobs):
		a.metrics.BackupFlushesTotal.WithLabelValues("partial").Inc()
		return &BatchError{Failed: failed}
	default:
		a.metrics.BackupFlushesTotal.WithLabelValues("failure").Inc()
		return &BatchError{Failed: failed}
	}
}

func (a *Adapter) markClean(id string, deleted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[id]
	if !ok {
		return
	}
	if deleted {
		delete(a.records, id)
		return
	}
	rec.dirty = false
	rec.synced = time.Now()
}

// withRetry runs fn up to MaxAttempts times, sleeping 2^attempt backoff
// units between tries. Auth errors and context cancellation are final.
func (a *Adapter) withRetry(ctx context.Context, id string, fn func() error) error {
	var err error
	for attempt := 0; attempt < a.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := a.cfg.backoff * (1 << (attempt - 1))
			a.metrics.BackupRetriesTotal.Inc()
			a.log.Debug("retrying backup upload",
				"document_id", id, "attempt", attempt+1, "delay", delay)
			if werr := waitWithContext(ctx, delay); werr != nil {
				return werr
			}
		}
		err = fn()
		if err == nil {
			return nil
		}
		if isAuthErr(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func isAuthErr(err error) bool {
	return errors.Is(err, domain.ErrBackupAuth)
}

// Run flushes on the configured interval until ctx is done, then performs
// one final flush so changes made just before shutdown are not lost.
func (a *Adapter) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	a.log.Info("backup adapter started", "interval", a.cfg.Interval)

	for {
		select {
		case <-ctx.Done():
			a.finalFlush()
			return
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				a.log.Warn("periodic backup flush incomplete", "error", err)
			}
		}
	}
}

func (a *Adapter) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Flush(ctx); err != nil {
		a.log.Error("final backup flush incomplete", "error", err)
		return
	}
	a.log.Info("final backup flush complete")
}

// Restore downloads the serialized document for id from the remote store.
func (a *Adapter) Restore(ctx context.Context, id string) ([]byte, error) {
	return a.remote.Download(ctx, id)
}

// RemoteIDs lists documents available remotely.
func (a *Adapter) RemoteIDs(ctx context.Context) ([]string, error) {
	return a.remote.List(ctx)
}

// waitWithContext sleeps for d unless ctx finishes first.
func waitWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
