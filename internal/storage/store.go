package storage

import (
	"context"

	"github.com/docrelay/docrelay-go/internal/core/domain"
)

// SnapshotStore persists serialized documents keyed by document id.
//
// Implementation requirements:
//   - Thread-safe: concurrent calls for different ids must be safe
//   - Durable: a returned Store must survive process restarts
//   - Isolated: a corrupt entry must not prevent access to other entries
type SnapshotStore interface {
	// Store durably writes the document's full serialized form,
	// replacing any previous snapshot for the id.
	Store(ctx context.Context, id string, doc *domain.Document) error

	// Load reads and decodes the snapshot for id.
	// Returns domain.ErrSnapshotNotFound if no snapshot exists and
	// domain.ErrDocumentCorrupt if the stored bytes fail verification.
	Load(ctx context.Context, id string) (*domain.Document, error)

	// LoadAll decodes every readable snapshot. Corrupt entries are
	// skipped, not fatal: recovery of the healthy documents must not be
	// blocked by one bad snapshot.
	LoadAll(ctx context.Context) (map[string]*domain.Document, error)

	// IDs lists the ids that currently have a snapshot, sorted.
	IDs(ctx context.Context) ([]string, error)

	// Delete removes the snapshot for id. Deleting an id with no
	// snapshot is a no-op.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources. The store is unusable after.
	Close() error
}
