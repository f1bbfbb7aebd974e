package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/core/service"
	"github.com/docrelay/docrelay-go/internal/storage/snapshot"
)

// DocumentCounts defines the store sizes used by scaling benchmarks.
var DocumentCounts = []int{100, 1000, 5000}

// newStore creates a file snapshot store under the benchmark's temp dir.
func newStore(b *testing.B, passphrase string) *snapshot.Store {
	b.Helper()
	cfg := snapshot.Config{Dir: b.TempDir()}
	if passphrase != "" {
		cfg.Passphrase = []byte(passphrase)
	}
	store, err := snapshot.New(cfg, nil)
	if err != nil {
		b.Fatalf("snapshot store: %v", err)
	}
	b.Cleanup(func() { store.Close() })
	return store
}

// newCoordinator creates a coordinator over a fresh file store.
func newCoordinator(b *testing.B) *service.Coordinator {
	b.Helper()
	return newCoordinatorOver(b, newStore(b, ""))
}

// newCoordinatorOver creates a coordinator over an existing store.
func newCoordinatorOver(b *testing.B, store *snapshot.Store) *service.Coordinator {
	b.Helper()
	return service.NewCoordinator(store, nil, nil)
}

// newDocument builds a document with a few populated fields.
func newDocument(b *testing.B, i int) *domain.Document {
	b.Helper()
	doc := domain.NewDocument()
	if err := doc.Set("title", fmt.Sprintf("document %d", i)); err != nil {
		b.Fatalf("set title: %v", err)
	}
	if err := doc.Set("owner", fmt.Sprintf("user-%d", i%100)); err != nil {
		b.Fatalf("set owner: %v", err)
	}
	return doc
}

// prefill stores count documents and returns their ids.
func prefill(b *testing.B, store *snapshot.Store, count int) []string {
	b.Helper()
	ctx := context.Background()
	ids := make([]string, count)
	for i := 0; i < count; i++ {
		ids[i] = fmt.Sprintf("doc-%06d", i)
		if err := store.Store(ctx, ids[i], newDocument(b, i)); err != nil {
			b.Fatalf("store %s: %v", ids[i], err)
		}
	}
	return ids
}

// reportMemory reports heap usage after a GC pass.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
}

// runWithDocumentCounts runs benchFn once per store size.
func runWithDocumentCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("documents_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
