package localserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/docrelay/docrelay-go/internal/backup"
	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/core/service"
	"github.com/docrelay/docrelay-go/internal/routes"
	"github.com/docrelay/docrelay-go/internal/storage/snapshot"
)

// memoryRemote is a minimal in-memory backup.RemoteStore.
type memoryRemote struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryRemote) Authorize(ctx context.Context) error { return nil }

func (m *memoryRemote) Upload(ctx context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = append([]byte(nil), data...)
	return nil
}

func (m *memoryRemote) Download(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[id], nil
}

func (m *memoryRemote) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryRemote) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
	return nil
}

type testEnv struct {
	socket   string
	coord    *service.Coordinator
	registry *routes.Registry
	remote   *memoryRemote
}

func newTestEnv(t *testing.T, withBackup bool) *testEnv {
	t.Helper()

	dir := t.TempDir()
	store, err := snapshot.New(snapshot.Config{Dir: filepath.Join(dir, "snapshots")}, nil)
	if err != nil {
		t.Fatalf("snapshot store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	coord := service.NewCoordinator(store, nil, nil)

	registry, err := routes.New(filepath.Join(dir, "routes.json"), nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if _, err := registry.Load(); err != nil {
		t.Fatalf("registry load: %v", err)
	}

	env := &testEnv{
		socket:   filepath.Join(dir, "ctl.sock"),
		coord:    coord,
		registry: registry,
	}

	var adapter *backup.Adapter
	if withBackup {
		env.remote = &memoryRemote{objects: make(map[string][]byte)}
		adapter = backup.NewAdapter(env.remote, backup.AdapterConfig{Interval: time.Hour}, nil, nil)
		coord.AddChangeListener(adapter)
	}

	handler := NewHandler(coord, registry, adapter, nil)
	srv := New(env.socket, handler)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		if err := <-errc; err != nil {
			t.Errorf("serve: %v", err)
		}
	})

	waitForSocket(t, env.socket)
	return env
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("socket %s never came up", path)
}

type cmdResult struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (e *testEnv) send(t *testing.T, cmd string) cmdResult {
	t.Helper()
	conn, err := net.Dial("unix", e.socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		t.Fatalf("write: %v", err)
	}
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response for %q: %v", cmd, scanner.Err())
	}
	var res cmdResult
	if err := json.Unmarshal(scanner.Bytes(), &res); err != nil {
		t.Fatalf("decode %q: %v", scanner.Text(), err)
	}
	return res
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, false)

	res := env.send(t, "ping")
	if !res.OK {
		t.Fatalf("ping failed: %s", res.Error)
	}
	var pong string
	if err := json.Unmarshal(res.Data, &pong); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if pong != "pong" {
		t.Errorf("data = %q, want %q", pong, "pong")
	}
}

func TestUnknownCommand(t *testing.T) {
	env := newTestEnv(t, false)

	res := env.send(t, "bogus")
	if res.OK {
		t.Fatal("unknown command reported ok")
	}
	if res.Error == "" {
		t.Error("unknown command has no error message")
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	if _, err := env.coord.Create(ctx, "doc-1", map[string]any{"title": "hello"}); err != nil {
		t.Fatalf("create document: %v", err)
	}

	bundle := filepath.Join(t.TempDir(), "app.bundle")
	if err := os.WriteFile(bundle, []byte("bundle"), 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if _, err := env.registry.Register(domain.RouteRecord{
		BundleName: "app",
		BundlePath: bundle,
		Route:      "/apps/app",
	}); err != nil {
		t.Fatalf("register route: %v", err)
	}

	res := env.send(t, "status")
	if !res.OK {
		t.Fatalf("status failed: %s", res.Error)
	}
	var status statusData
	if err := json.Unmarshal(res.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Documents != 1 {
		t.Errorf("documents = %d, want 1", status.Documents)
	}
	if status.Routes != 1 {
		t.Errorf("routes = %d, want 1", status.Routes)
	}
	if !status.BackupEnabled {
		t.Error("backup reported disabled")
	}
	if status.BackupDirty != 1 {
		t.Errorf("backup dirty = %d, want 1", status.BackupDirty)
	}
	if status.Version == "" {
		t.Error("version is empty")
	}
}

func TestFlush(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()

	if _, err := env.coord.Create(ctx, "doc-1", map[string]any{"title": "hello"}); err != nil {
		t.Fatalf("create document: %v", err)
	}

	res := env.send(t, "flush")
	if !res.OK {
		t.Fatalf("flush failed: %s", res.Error)
	}

	env.remote.mu.Lock()
	_, uploaded := env.remote.objects["doc-1"]
	env.remote.mu.Unlock()
	if !uploaded {
		t.Error("flush did not upload doc-1")
	}
}

func TestFlushBackupDisabled(t *testing.T) {
	env := newTestEnv(t, false)

	res := env.send(t, "flush")
	if res.OK {
		t.Fatal("flush succeeded with backup disabled")
	}
	if res.Error != "backup is disabled" {
		t.Errorf("error = %q, want %q", res.Error, "backup is disabled")
	}
}

func TestSync(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()

	if _, err := env.coord.Create(ctx, "doc-1", map[string]any{"title": "hello"}); err != nil {
		t.Fatalf("create document: %v", err)
	}

	res := env.send(t, "sync")
	if !res.OK {
		t.Fatalf("sync failed: %s", res.Error)
	}
	var data syncData
	if err := json.Unmarshal(res.Data, &data); err != nil {
		t.Fatalf("decode sync data: %v", err)
	}
	if data.Failed != 0 {
		t.Errorf("failed = %d, want 0", data.Failed)
	}
}

func TestRoutesCommand(t *testing.T) {
	env := newTestEnv(t, false)

	bundle := filepath.Join(t.TempDir(), "app.bundle")
	if err := os.WriteFile(bundle, []byte("bundle"), 0o600); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	if _, err := env.registry.Register(domain.RouteRecord{
		BundleName: "app",
		BundlePath: bundle,
		Route:      "/apps/app",
	}); err != nil {
		t.Fatalf("register route: %v", err)
	}

	res := env.send(t, "routes")
	if !res.OK {
		t.Fatalf("routes failed: %s", res.Error)
	}
	var list []routeData
	if err := json.Unmarshal(res.Data, &list); err != nil {
		t.Fatalf("decode routes: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(routes) = %d, want 1", len(list))
	}
	if list[0].Route != "/apps/app" {
		t.Errorf("route = %q, want %q", list[0].Route, "/apps/app")
	}
}

func TestMultipleCommandsPerConnection(t *testing.T) {
	env := newTestEnv(t, false)

	conn, err := net.Dial("unix", env.socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for i := 0; i < 3; i++ {
		if _, err := fmt.Fprintln(conn, "ping"); err != nil {
			t.Fatalf("write: %v", err)
		}
		if !scanner.Scan() {
			t.Fatalf("no response %d: %v", i, scanner.Err())
		}
		var res cmdResult
		if err := json.Unmarshal(scanner.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !res.OK {
			t.Fatalf("ping %d failed: %s", i, res.Error)
		}
	}
}

func TestStaleSocketRemoved(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "ctl.sock")

	// Leave a stale socket file behind, as an unclean shutdown would.
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l.Close()
	if _, err := os.Stat(sock); err != nil {
		if err := os.WriteFile(sock, nil, 0o600); err != nil {
			t.Fatalf("recreate stale socket file: %v", err)
		}
	}

	srv := New(sock, NewHandler(nil, nil, nil, nil))
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	waitForSocket(t, sock)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("serve: %v", err)
	}
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("socket file not cleaned up: %v", err)
	}
}
