package domain

import (
	"fmt"
	"strings"

	"github.com/automerge/automerge-go"
)

// MaxDocumentIDLength bounds document ids so they stay usable as file
// names and remote object keys.
const MaxDocumentIDLength = 128

// ValidateDocumentID checks that an id is non-empty, within length limits,
// and free of path separators (ids become snapshot file names).
func ValidateDocumentID(id string) error {
	if id == "" {
		return ErrDocumentIDInvalid.WithDetails("id is empty")
	}
	if len(id) > MaxDocumentIDLength {
		return ErrDocumentIDInvalid.WithDetails(fmt.Sprintf("id exceeds %d bytes", MaxDocumentIDLength))
	}
	if strings.ContainsAny(id, "/\\") {
		return ErrDocumentIDInvalid.WithDetails("id contains a path separator")
	}
	return nil
}

// Document wraps a CRDT document. The canonical in-memory copy is owned by
// the coordinator and never handed out: Clone() is the only way a caller
// obtains document state, so a merge can never corrupt the canonical copy
// through an aliased reference.
type Document struct {
	inner *automerge.Doc
}

// NewDocument creates an empty document.
func NewDocument() *Document {
	return &Document{inner: automerge.New()}
}

// LoadDocument decodes a document from its serialized snapshot form.
func LoadDocument(raw []byte) (*Document, error) {
	d, err := automerge.Load(raw)
	if err != nil {
		return nil, ErrDocumentCorrupt.WithCause(err)
	}
	return &Document{inner: d}, nil
}

// Save returns the complete serialized form of the document.
func (d *Document) Save() []byte {
	return d.inner.Save()
}

// Clone returns an independent copy sharing the full causal history.
func (d *Document) Clone() *Document {
	forked, err := d.inner.Fork()
	if err != nil {
		// Fork of a healthy document does not fail; a save/load round
		// trip is the conservative fallback.
		reloaded, loadErr := automerge.Load(d.inner.Save())
		if loadErr != nil {
			panic(fmt.Sprintf("domain: clone document: %v", loadErr))
		}
		return &Document{inner: reloaded}
	}
	return &Document{inner: forked}
}

// Merge folds the other document's history into this one. CRDT merge is
// commutative, associative, and idempotent, so any ordering or repetition
// of merges is safe and there is no conflict error class.
func (d *Document) Merge(other *Document) error {
	if other == nil {
		return nil
	}
	if _, err := d.inner.Merge(other.inner); err != nil {
		return ErrDocumentCorrupt.WithDetails("merge failed").WithCause(err)
	}
	return nil
}

// HistoryLen counts the causally ordered changes applied to the document.
// It is the cheap staleness comparator: persisted > in-memory means the
// persisted copy carries operations the in-memory one has not seen.
func (d *Document) HistoryLen() uint64 {
	changes, err := d.inner.Changes()
	if err != nil {
		return 0
	}
	return uint64(len(changes))
}

// Heads returns the hex-encoded hashes of the current history frontier.
func (d *Document) Heads() []string {
	hashes := d.inner.Heads()
	heads := make([]string, 0, len(hashes))
	for _, h := range hashes {
		heads = append(heads, fmt.Sprintf("%x", h))
	}
	return heads
}

// headsEqual reports whether two head sets describe the same frontier.
func headsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, h := range a {
		seen[h] = struct{}{}
	}
	for _, h := range b {
		if _, ok := seen[h]; !ok {
			return false
		}
	}
	return true
}

// Apply runs fn against the document and commits the result as a single
// CRDT change with the given message. A mutator that performs no
// operations commits nothing.
func (d *Document) Apply(message string, fn func(*Document) error) error {
	if err := fn(d); err != nil {
		return err
	}
	// A mutator that performed no operations leaves nothing to record. The
	// library reports that case as a plain error with no sentinel, so we
	// have to match the message.
	if _, err := d.inner.Commit(message); err != nil && !isEmptyCommit(err) {
		return ErrInternalServer.WithDetails("commit change").WithCause(err)
	}
	return nil
}

func isEmptyCommit(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Commit is empty")
}

// Set assigns a value at a top-level key.
func (d *Document) Set(key string, value any) error {
	return d.inner.Path(key).Set(value)
}

// GetString reads a top-level string value. The second return is false
// when the key is absent or holds a non-string value.
func (d *Document) GetString(key string) (string, bool) {
	v, err := automerge.As[string](d.inner.Path(key).Get())
	if err != nil {
		return "", false
	}
	return v, true
}

// Content materializes the document's root map as plain Go values.
func (d *Document) Content() (map[string]any, error) {
	m, err := automerge.As[map[string]any](d.inner.Path().Get())
	if err != nil {
		return nil, ErrInternalServer.WithDetails("materialize content").WithCause(err)
	}
	return m, nil
}

// Patch describes the structural effect of an applied sync message. A nil
// patch means the message produced no change (for example an already-seen
// duplicate).
type Patch struct {
	DocumentID string   `json:"document_id"`
	Before     uint64   `json:"before"`
	After      uint64   `json:"after"`
	Heads      []string `json:"heads"`
}

// SyncCursor is the per-(document, peer) sync state: it tracks which
// operations have already been exchanged with that peer so that generated
// messages carry only the minimal diff.
type SyncCursor struct {
	state *automerge.SyncState
}

// NewSyncCursor creates a fresh cursor bound to the given document.
func NewSyncCursor(doc *Document) *SyncCursor {
	return &SyncCursor{state: automerge.NewSyncState(doc.inner)}
}

// Rebind transfers the cursor onto a new canonical document instance,
// preserving the peer's position. Used when reconciliation replaces the
// in-memory document with a merged copy.
func (c *SyncCursor) Rebind(doc *Document) error {
	raw := c.state.Save()
	state, err := automerge.LoadSyncState(doc.inner, raw)
	if err != nil {
		return ErrInternalServer.WithDetails("rebind sync cursor").WithCause(err)
	}
	c.state = state
	return nil
}

// GenerateMessage computes the minimal outbound diff for the peer. The
// second return is false when the peer is already up to date; no bytes are
// produced in that case, so an idle pair of peers exchanges no traffic.
func (c *SyncCursor) GenerateMessage() ([]byte, bool) {
	msg, valid := c.state.GenerateMessage()
	if !valid {
		return nil, false
	}
	return msg.Bytes(), true
}

// ReceiveMessage applies an incoming sync message to the bound document.
// The returned patch is nil when the message produced no structural change.
func (c *SyncCursor) ReceiveMessage(doc *Document, docID string, raw []byte) (*Patch, error) {
	before := doc.Heads()
	beforeLen := doc.HistoryLen()
	if _, err := c.state.ReceiveMessage(raw); err != nil {
		return nil, ErrSyncMessageInvalid.WithCause(err)
	}
	after := doc.Heads()
	if headsEqual(before, after) {
		return nil, nil
	}
	return &Patch{
		DocumentID: docID,
		Before:     beforeLen,
		After:      doc.HistoryLen(),
		Heads:      after,
	}, nil
}
