package service

import (
	"context"
	"testing"
	"time"

	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/storage/snapshot"
)

func TestWatcherMergesExternalChanges(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := newCoordinatorAt(t, dir)
	if _, err := c.Create(ctx, "doc", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w, err := NewWatcher(c, WatcherConfig{Interval: 50 * time.Millisecond, Dir: dir}, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	go w.Run(ctx)

	// Simulate another process extending the snapshot on disk.
	ext, err := snapshot.New(snapshot.Config{Dir: dir}, nil)
	if err != nil {
		t.Fatalf("external store: %v", err)
	}
	defer ext.Close()
	extDoc, err := ext.Load(ctx, "doc")
	if err != nil {
		t.Fatalf("external load: %v", err)
	}
	err = extDoc.Apply("external", func(d *domain.Document) error {
		return d.Set("external", "merged")
	})
	if err != nil {
		t.Fatalf("external apply: %v", err)
	}
	if err := ext.Store(ctx, "doc", extDoc); err != nil {
		t.Fatalf("external write: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		doc, err := c.Get(ctx, "doc")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got, _ := doc.GetString("external"); got == "merged" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not merge external change in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestWatcherDefaultInterval(t *testing.T) {
	c, _ := newTestCoordinator(t)
	w, err := NewWatcher(c, WatcherConfig{}, nil, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if w.cfg.Interval != DefaultWatchInterval {
		t.Fatalf("interval = %v, want %v", w.cfg.Interval, DefaultWatchInterval)
	}
}
