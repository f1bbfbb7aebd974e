package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/storage"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
	"github.com/docrelay/docrelay-go/internal/telemetry/metric"
	"github.com/docrelay/docrelay-go/pkg/keyqueue"
)

// ChangeListener is notified after a document's durable state changed.
// data is the document's full serialized form at the time of the change.
// Listeners must not block; heavy work belongs on the listener's side.
type ChangeListener interface {
	DocumentChanged(id string, data []byte)
	DocumentDeleted(id string)
}

// docState is the canonical in-memory state for one document. Access is
// serialized by the per-document FIFO lock; the struct itself carries no
// locking.
type docState struct {
	doc *domain.Document
	// cursors holds per-peer sync state, keyed by peer id.
	cursors map[string]*domain.SyncCursor
}

// Coordinator owns the canonical in-memory documents and serializes all
// access to them. Every mutation is written back to the snapshot store
// before the operation returns, and every read hands out a clone, never
// the canonical instance.
type Coordinator struct {
	store   storage.SnapshotStore
	locks   *keyqueue.Queue
	log     logger.Logger
	metrics *metric.Metrics

	mu   sync.RWMutex
	docs map[string]*docState

	subMu     sync.RWMutex
	subs      map[chan *domain.Patch]struct{}
	listeners []ChangeListener
}

// NewCoordinator creates a coordinator over the given store. Call Recover
// before serving traffic to load persisted documents.
func NewCoordinator(store storage.SnapshotStore, log logger.Logger, metrics *metric.Metrics) *Coordinator {
	if log == nil {
		log = logger.NewNop()
	}
	if metrics == nil {
		metrics = metric.New()
	}
	return &Coordinator{
		store:   store,
		locks:   keyqueue.New(),
		log:     log,
		metrics: metrics,
		docs:    make(map[string]*docState),
		subs:    make(map[chan *domain.Patch]struct{}),
	}
}

// AddChangeListener registers a listener for durable document changes.
// Register listeners before serving traffic; registration is not
// synchronized against in-flight operations.
func (c *Coordinator) AddChangeListener(l ChangeListener) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Subscribe returns a channel of patches for applied remote changes. Slow
// subscribers lose patches rather than blocking document operations.
func (c *Coordinator) Subscribe() (<-chan *domain.Patch, func()) {
	ch := make(chan *domain.Patch, 64)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	cancel := func() {
		c.subMu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *Coordinator) publishPatch(p *domain.Patch) {
	if p == nil {
		return
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for ch := range c.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

func (c *Coordinator) notifyChanged(id string, data []byte) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, l := range c.listeners {
		l.DocumentChanged(id, data)
	}
}

func (c *Coordinator) notifyDeleted(id string) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for _, l := range c.listeners {
		l.DocumentDeleted(id)
	}
}

// Recover loads every readable snapshot into memory. Corrupt snapshots
// were already skipped by the store; recovery never fails on one bad
// document.
func (c *Coordinator) Recover(ctx context.Context) error {
	docs, err := c.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for id, doc := range docs {
		c.docs[id] = &docState{doc: doc, cursors: make(map[string]*domain.SyncCursor)}
	}
	total := len(c.docs)
	c.mu.Unlock()

	c.metrics.DocumentsActive.Set(float64(total))
	c.log.Info("documents recovered", "count", total)
	return nil
}

func (c *Coordinator) getState(id string) *docState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs[id]
}

// ensureState returns the in-memory state for id, lazily loading it from
// the store. Caller must hold the document lock. When createMissing is
// set a fresh empty document is created instead of returning not-found.
func (c *Coordinator) ensureState(ctx context.Context, id string, createMissing bool) (*docState, error) {
	if st := c.getState(id); st != nil {
		return st, nil
	}
	doc, err := c.store.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrSnapshotNotFound) {
			return nil, err
		}
		if !createMissing {
			return nil, domain.ErrDocumentNotFound.WithDetails(id)
		}
		doc = domain.NewDocument()
	}
	st := &docState{doc: doc, cursors: make(map[string]*domain.SyncCursor)}
	c.mu.Lock()
	c.docs[id] = st
	c.metrics.DocumentsActive.Set(float64(len(c.docs)))
	c.mu.Unlock()
	return st, nil
}

// reconcile folds newer persisted state into the in-memory document.
// Caller must hold the document lock.
//
// The persisted copy can be ahead of memory when another process (or a
// restore tool) wrote the snapshot directly. In that case the merged
// result becomes the new canonical document, existing peer cursors are
// rebound onto it, and the merge is written back so store and memory
// agree again. An unreadable snapshot falls back to the in-memory copy.
func (c *Coordinator) reconcile(ctx context.Context, id string, st *docState) (bool, error) {
	c.metrics.ReconciliationsTotal.Inc()

	persisted, err := c.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			return false, nil
		}
		if errors.Is(err, domain.ErrDocumentCorrupt) {
			c.log.Warn("persisted snapshot unreadable, keeping in-memory state",
				"document_id", id, "error", err)
			return false, nil
		}
		return false, err
	}
	if persisted.HistoryLen() <= st.doc.HistoryLen() {
		return false, nil
	}

	// Merge into a clone so a merge failure cannot corrupt the canonical
	// document.
	merged := st.doc.Clone()
	if err := merged.Merge(persisted); err != nil {
		return false, err
	}
	if err := c.store.Store(ctx, id, merged); err != nil {
		return false, err
	}
	st.doc = merged
	for peer, cursor := range st.cursors {
		if err := cursor.Rebind(merged); err != nil {
			c.log.Warn("resetting sync cursor after reconcile",
				"document_id", id, "peer_id", peer, "error", err)
			st.cursors[peer] = domain.NewSyncCursor(merged)
		}
	}

	c.metrics.ReconciliationsMerged.Inc()
	c.metrics.MergesTotal.Inc()
	c.log.Info("merged external changes from persisted snapshot",
		"document_id", id, "history_len", merged.HistoryLen())
	return true, nil
}

// ============================================================================
// Document lifecycle
// ============================================================================

// Create creates a new empty document, optionally populated with initial
// top-level values, and persists it. Returns ErrDocumentExists when the
// id is already in use in memory or in the store.
func (c *Coordinator) Create(ctx context.Context, id string, initial map[string]any) (*domain.Document, error) {
	if err := domain.ValidateDocumentID(id); err != nil {
		return nil, err
	}
	if err := c.locks.Lock(ctx, id); err != nil {
		return nil, err
	}
	defer c.locks.Unlock(id)

	if st := c.getState(id); st != nil {
		return nil, domain.ErrDocumentExists.WithDetails(id)
	}
	if _, err := c.store.Load(ctx, id); err == nil {
		return nil, domain.ErrDocumentExists.WithDetails(id)
	} else if !errors.Is(err, domain.ErrSnapshotNotFound) && !errors.Is(err, domain.ErrDocumentCorrupt) {
		return nil, err
	}

	doc := domain.NewDocument()
	if len(initial) > 0 {
		err := doc.Apply("create", func(d *domain.Document) error {
			for k, v := range initial {
				if err := d.Set(k, v); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if err := c.store.Store(ctx, id, doc); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.docs[id] = &docState{doc: doc, cursors: make(map[string]*domain.SyncCursor)}
	c.metrics.DocumentsActive.Set(float64(len(c.docs)))
	c.mu.Unlock()

	c.metrics.DocumentsCreated.Inc()
	c.notifyChanged(id, doc.Save())
	c.log.Info("document created", "document_id", id)
	return doc.Clone(), nil
}

// Get reconciles the canonical copy against the store and returns a
// clone. The caller can read and even mutate the clone freely without
// affecting canonical state.
func (c *Coordinator) Get(ctx context.Context, id string) (*domain.Document, error) {
	if err := domain.ValidateDocumentID(id); err != nil {
		return nil, err
	}
	if err := c.locks.Lock(ctx, id); err != nil {
		return nil, err
	}
	defer c.locks.Unlock(id)

	st, err := c.ensureState(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if _, err := c.reconcile(ctx, id, st); err != nil {
		return nil, err
	}
	return st.doc.Clone(), nil
}

// IDs lists documents known in memory or in the store, sorted.
func (c *Coordinator) IDs(ctx context.Context) ([]string, error) {
	ids, err := c.store.IDs(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	c.mu.RLock()
	for id := range c.docs {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Update applies a local mutation as one committed change, reconciles
// against the store first, and persists the result. An unknown id is
// created as an empty document before the mutation runs.
func (c *Coordinator) Update(ctx context.Context, id, message string, fn func(*domain.Document) error) (*domain.Patch, error) {
	if err := domain.ValidateDocumentID(id); err != nil {
		return nil, err
	}
	if err := c.locks.Lock(ctx, id); err != nil {
		return nil, err
	}
	defer c.locks.Unlock(id)

	st, err := c.ensureState(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if _, err := c.reconcile(ctx, id, st); err != nil {
		return nil, err
	}

	before := st.doc.HistoryLen()
	if err := st.doc.Apply(message, fn); err != nil {
		return nil, err
	}
	if err := c.store.Store(ctx, id, st.doc); err != nil {
		return nil, err
	}

	data := st.doc.Save()
	c.notifyChanged(id, data)
	patch := &domain.Patch{
		DocumentID: id,
		Before:     before,
		After:      st.doc.HistoryLen(),
		Heads:      st.doc.Heads(),
	}
	c.publishPatch(patch)
	return patch, nil
}

// Delete removes the document from memory and from the store. Unknown
// ids return ErrDocumentNotFound.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	if err := domain.ValidateDocumentID(id); err != nil {
		return err
	}
	if err := c.locks.Lock(ctx, id); err != nil {
		return err
	}
	defer c.locks.Unlock(id)

	known := c.getState(id) != nil
	if !known {
		ids, err := c.store.IDs(ctx)
		if err != nil {
			return err
		}
		for _, sid := range ids {
			if sid == id {
				known = true
				break
			}
		}
	}
	if !known {
		return domain.ErrDocumentNotFound.WithDetails(id)
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.docs, id)
	c.metrics.DocumentsActive.Set(float64(len(c.docs)))
	c.mu.Unlock()

	c.metrics.DocumentsDeleted.Inc()
	c.notifyDeleted(id)
	c.log.Info("document deleted", "document_id", id)
	return nil
}

// ============================================================================
// Sync protocol
// ============================================================================

func (st *docState) cursor(peerID string) *domain.SyncCursor {
	cur, ok := st.cursors[peerID]
	if !ok {
		cur = domain.NewSyncCursor(st.doc)
		st.cursors[peerID] = cur
	}
	return cur
}

// HandleIncomingChanges applies a peer's sync message to the document,
// creating the document if this peer is the first to mention it. The
// updated document is persisted whether or not the message changed
// anything, so a replayed or empty message still refreshes the snapshot.
// The returned patch is nil when nothing changed.
func (c *Coordinator) HandleIncomingChanges(ctx context.Context, docID, peerID string, message []byte) (*domain.Patch, error) {
	if err := domain.ValidateDocumentID(docID); err != nil {
		return nil, err
	}
	if peerID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("peer_id is required")
	}
	if len(message) == 0 {
		return nil, domain.ErrSyncMessageInvalid.WithDetails("empty sync message")
	}
	if err := c.locks.Lock(ctx, docID); err != nil {
		return nil, err
	}
	defer c.locks.Unlock(docID)

	st, err := c.ensureState(ctx, docID, true)
	if err != nil {
		return nil, err
	}
	if _, err := c.reconcile(ctx, docID, st); err != nil {
		return nil, err
	}

	patch, err := st.cursor(peerID).ReceiveMessage(st.doc, docID, message)
	if err != nil {
		return nil, err
	}
	c.metrics.SyncMessagesReceived.Inc()

	if err := c.store.Store(ctx, docID, st.doc); err != nil {
		return nil, err
	}
	c.notifyChanged(docID, st.doc.Save())

	if patch != nil {
		c.metrics.MergesTotal.Inc()
		c.publishPatch(patch)
		c.log.Debug("applied sync message",
			"document_id", docID, "peer_id", peerID,
			"history_before", patch.Before, "history_after", patch.After)
	}
	return patch, nil
}

// GenerateSyncMessage produces the minimal outbound message for peerID.
// ok is false when the peer is already up to date; no message bytes are
// produced then, so idle peers generate no traffic.
func (c *Coordinator) GenerateSyncMessage(ctx context.Context, docID, peerID string) (msg []byte, ok bool, err error) {
	if err := domain.ValidateDocumentID(docID); err != nil {
		return nil, false, err
	}
	if peerID == "" {
		return nil, false, domain.ErrMissingArgument.WithDetails("peer_id is required")
	}
	if err := c.locks.Lock(ctx, docID); err != nil {
		return nil, false, err
	}
	defer c.locks.Unlock(docID)

	st, err := c.ensureState(ctx, docID, false)
	if err != nil {
		return nil, false, err
	}
	if _, err := c.reconcile(ctx, docID, st); err != nil {
		return nil, false, err
	}

	msg, ok = st.cursor(peerID).GenerateMessage()
	if ok {
		c.metrics.SyncMessagesGenerated.Inc()
	}
	return msg, ok, nil
}

// ============================================================================
// External change detection
// ============================================================================

// SyncFromStore reconciles every persisted document against memory,
// picking up snapshots written by other processes. Errors are isolated
// per document: one unreadable document never stops the pass.
func (c *Coordinator) SyncFromStore(ctx context.Context) (merged, failed int) {
	ids, err := c.store.IDs(ctx)
	if err != nil {
		c.log.Error("external change scan failed", "error", err)
		return 0, 0
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return merged, failed
		}
		didMerge, err := c.syncOne(ctx, id)
		if err != nil {
			failed++
			c.metrics.WatcherDocumentErrors.Inc()
			c.log.Warn("external change check failed for document",
				"document_id", id, "error", err)
			continue
		}
		if didMerge {
			merged++
			c.metrics.WatcherDocsMerged.Inc()
		}
	}
	return merged, failed
}

// MergeRemote folds a full serialized document copy, typically restored
// from the remote backup store, into local state. Unknown ids are
// created. The merged result is persisted; nothing is lost when the
// local copy already carries newer history.
func (c *Coordinator) MergeRemote(ctx context.Context, id string, data []byte) error {
	if err := domain.ValidateDocumentID(id); err != nil {
		return err
	}
	remote, err := domain.LoadDocument(data)
	if err != nil {
		return err
	}

	if err := c.locks.Lock(ctx, id); err != nil {
		return err
	}
	defer c.locks.Unlock(id)

	st, err := c.ensureState(ctx, id, true)
	if err != nil {
		return err
	}

	before := st.doc.HistoryLen()
	merged := st.doc.Clone()
	if err := merged.Merge(remote); err != nil {
		return err
	}
	if merged.HistoryLen() == before && before > 0 {
		return nil
	}
	if err := c.store.Store(ctx, id, merged); err != nil {
		return err
	}
	st.doc = merged
	for peer, cursor := range st.cursors {
		if err := cursor.Rebind(merged); err != nil {
			c.log.Warn("resetting sync cursor after remote merge",
				"document_id", id, "peer_id", peer, "error", err)
			st.cursors[peer] = domain.NewSyncCursor(merged)
		}
	}

	c.metrics.MergesTotal.Inc()
	c.log.Info("merged remote document copy",
		"document_id", id, "history_len", merged.HistoryLen())
	return nil
}

func (c *Coordinator) syncOne(ctx context.Context, id string) (bool, error) {
	if err := c.locks.Lock(ctx, id); err != nil {
		return false, err
	}
	defer c.locks.Unlock(id)

	st := c.getState(id)
	if st == nil {
		// New document that appeared in the store; loading it is the
		// whole merge.
		_, err := c.ensureState(ctx, id, false)
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return c.reconcile(ctx, id, st)
}
