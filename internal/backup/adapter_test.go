package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docrelay/docrelay-go/internal/core/domain"
)

// fakeRemote is an in-memory RemoteStore with programmable failures.
type fakeRemote struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]int
	deletes map[string]int

	// failures maps id to the number of transient failures to inject
	// before an upload succeeds. -1 fails forever.
	failures map[string]int

	// authFail makes every upload fail with a credential rejection.
	authFail bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		objects:  make(map[string][]byte),
		uploads:  make(map[string]int),
		deletes:  make(map[string]int),
		failures: make(map[string]int),
	}
}

func (f *fakeRemote) Authorize(ctx context.Context) error { return nil }

func (f *fakeRemote) Upload(ctx context.Context, id string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[id]++
	if f.authFail {
		return domain.ErrBackupAuth.WithDetails("credentials rejected after re-authentication")
	}
	if n, ok := f.failures[id]; ok && (n == -1 || n > 0) {
		if n > 0 {
			f.failures[id] = n - 1
		}
		return domain.ErrBackupUpload.WithDetails(id).WithCause(&HTTPError{StatusCode: 503})
	}
	f.objects[id] = append([]byte(nil), data...)
	return nil
}

func (f *fakeRemote) Download(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[id]
	if !ok {
		return nil, &HTTPError{StatusCode: 404}
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeRemote) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.objects))
	for id := range f.objects {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[id]++
	delete(f.objects, id)
	return nil
}

func (f *fakeRemote) uploadCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads[id]
}

func newTestAdapter(remote RemoteStore) *Adapter {
	return NewAdapter(remote, AdapterConfig{
		Interval:    time.Hour,
		MaxAttempts: 3,
		backoff:     time.Millisecond,
	}, nil, nil)
}

func TestFlushUploadsDirtyDocuments(t *testing.T) {
	remote := newFakeRemote()
	a := newTestAdapter(remote)

	a.DocumentChanged("doc-a", []byte("payload-a"))
	a.DocumentChanged("doc-b", []byte("payload-b"))
	if got := a.DirtyCount(); got != 2 {
		t.Fatalf("DirtyCount = %d, want 2", got)
	}

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := a.DirtyCount(); got != 0 {
		t.Fatalf("DirtyCount after flush = %d, want 0", got)
	}
	if string(remote.objects["doc-a"]) != "payload-a" || string(remote.objects["doc-b"]) != "payload-b" {
		t.Fatalf("remote objects = %v", remote.objects)
	}

	// Clean documents are not re-uploaded.
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if got := remote.uploadCount("doc-a"); got != 1 {
		t.Fatalf("doc-a uploaded %d times, want 1", got)
	}
}

func TestFlushRetriesTransientFailures(t *testing.T) {
	remote := newFakeRemote()
	remote.failures["doc-a"] = 2 // fail twice, succeed on the third try
	a := newTestAdapter(remote)
	a.DocumentChanged("doc-a", []byte("payload"))

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := remote.uploadCount("doc-a"); got != 3 {
		t.Fatalf("upload attempts = %d, want 3", got)
	}
	if got := a.DirtyCount(); got != 0 {
		t.Fatalf("DirtyCount = %d, want 0", got)
	}
}

func TestFlushPartialSuccessKeepsProgress(t *testing.T) {
	remote := newFakeRemote()
	remote.failures["doc-bad"] = -1
	a := newTestAdapter(remote)
	a.DocumentChanged("doc-bad", []byte("x"))
	a.DocumentChanged("doc-good", []byte("y"))

	err := a.Flush(context.Background())
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("Flush error = %v, want BatchError", err)
	}
	if len(batch.Failed) != 1 {
		t.Fatalf("failed set = %v, want only doc-bad", batch.Failed)
	}
	if _, ok := batch.Failed["doc-bad"]; !ok {
		t.Fatalf("failed set = %v, want doc-bad", batch.Failed)
	}

	// The successful document stays flushed; only the failed one is
	// retried next time.
	if got := a.DirtyCount(); got != 1 {
		t.Fatalf("DirtyCount = %d, want 1", got)
	}
	goodUploads := remote.uploadCount("doc-good")

	remote.mu.Lock()
	remote.failures["doc-bad"] = 0
	remote.mu.Unlock()
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("recovery Flush: %v", err)
	}
	if got := remote.uploadCount("doc-good"); got != goodUploads {
		t.Fatalf("doc-good re-uploaded: %d -> %d", goodUploads, got)
	}
	if got := a.DirtyCount(); got != 0 {
		t.Fatalf("DirtyCount = %d, want 0", got)
	}
}

func TestFlushAbortsOnAuthFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.authFail = true
	a := newTestAdapter(remote)
	a.DocumentChanged("doc-a", []byte("x"))
	a.DocumentChanged("doc-b", []byte("y"))

	err := a.Flush(context.Background())
	var batch *BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("Flush error = %v, want BatchError", err)
	}
	// A credential rejection is final: no document is retried, and
	// nothing is marked clean.
	if got := remote.uploadCount("doc-a"); got > 1 {
		t.Fatalf("doc-a attempts = %d, want at most 1 (no retry on auth failure)", got)
	}
	if got := remote.uploadCount("doc-b"); got > 1 {
		t.Fatalf("doc-b attempts = %d, want at most 1 (batch aborted)", got)
	}
	if got := a.DirtyCount(); got != 2 {
		t.Fatalf("DirtyCount = %d, want 2", got)
	}
}

// gatedRemote blocks every upload on a shared gate and records the peak
// number of uploads in flight at once.
type gatedRemote struct {
	*fakeRemote
	gate    chan struct{}
	mu      sync.Mutex
	inAir   int
	peakAir int
}

func (g *gatedRemote) Upload(ctx context.Context, id string, data []byte) error {
	g.mu.Lock()
	g.inAir++
	if g.inAir > g.peakAir {
		g.peakAir = g.inAir
	}
	g.mu.Unlock()

	select {
	case <-g.gate:
	case <-ctx.Done():
	}

	g.mu.Lock()
	g.inAir--
	g.mu.Unlock()
	return g.fakeRemote.Upload(ctx, id, data)
}

func TestFlushUploadsConcurrently(t *testing.T) {
	remote := &gatedRemote{fakeRemote: newFakeRemote(), gate: make(chan struct{})}
	a := newTestAdapter(remote)
	const docs = 4
	for i := 0; i < docs; i++ {
		a.DocumentChanged(fmt.Sprintf("doc-%d", i), []byte("x"))
	}

	// Hold the gate long enough for all uploads to pile up in flight.
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(remote.gate)
	}()
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	remote.mu.Lock()
	peak := remote.peakAir
	remote.mu.Unlock()
	if peak != docs {
		t.Fatalf("peak uploads in flight = %d, want %d", peak, docs)
	}
	if got := a.DirtyCount(); got != 0 {
		t.Fatalf("DirtyCount = %d, want 0", got)
	}
}

func TestDeleteFlushesTombstone(t *testing.T) {
	remote := newFakeRemote()
	a := newTestAdapter(remote)
	ctx := context.Background()

	a.DocumentChanged("doc-a", []byte("x"))
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	a.DocumentDeleted("doc-a")
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush after delete: %v", err)
	}
	if remote.deletes["doc-a"] != 1 {
		t.Fatalf("remote deletes = %v", remote.deletes)
	}
	if _, ok := remote.objects["doc-a"]; ok {
		t.Fatal("object still present remotely")
	}
	if got := a.DirtyCount(); got != 0 {
		t.Fatalf("DirtyCount = %d, want 0", got)
	}
}

func TestChangedAfterDeleteWins(t *testing.T) {
	remote := newFakeRemote()
	a := newTestAdapter(remote)

	a.DocumentDeleted("doc-a")
	a.DocumentChanged("doc-a", []byte("recreated"))
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if string(remote.objects["doc-a"]) != "recreated" {
		t.Fatalf("remote objects = %v", remote.objects)
	}
	if remote.deletes["doc-a"] != 0 {
		t.Fatal("delete issued despite later change")
	}
}

func TestRunFinalFlushOnShutdown(t *testing.T) {
	remote := newFakeRemote()
	a := newTestAdapter(remote)
	a.DocumentChanged("doc-a", []byte("last write"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if string(remote.objects["doc-a"]) != "last write" {
		t.Fatal("final flush did not upload pending change")
	}
}

func TestRestore(t *testing.T) {
	remote := newFakeRemote()
	remote.objects["doc-a"] = []byte("remote copy")
	a := newTestAdapter(remote)

	data, err := a.Restore(context.Background(), "doc-a")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if string(data) != "remote copy" {
		t.Fatalf("Restore = %q", data)
	}
	ids, err := a.RemoteIDs(context.Background())
	if err != nil || len(ids) != 1 || ids[0] != "doc-a" {
		t.Fatalf("RemoteIDs = %v, %v", ids, err)
	}
}
