package routes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
)

// fileVersion is bumped when the on-disk layout changes.
const fileVersion = 1

// registryFile is the persisted form of the registry.
type registryFile struct {
	Version   int                  `json:"version"`
	UpdatedAt time.Time            `json:"updated_at"`
	Routes    []domain.RouteRecord `json:"routes"`
}

// Registry keeps the set of registered routes in memory and mirrors every
// change to a JSON file via atomic replace.
type Registry struct {
	path string
	log  logger.Logger

	mu      sync.Mutex
	records map[string]domain.RouteRecord
}

// New creates a registry backed by the file at path. Call Load before use.
func New(path string, log logger.Logger) (*Registry, error) {
	if path == "" {
		return nil, domain.ErrMissingArgument.WithDetails("route registry file path is required")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		path:    path,
		log:     log,
		records: make(map[string]domain.RouteRecord),
	}, nil
}

// Load reads the persisted registry and prunes records whose bundle no
// longer exists on disk, rewriting the file when anything was pruned. A
// missing file yields an empty registry. The pruned records are returned.
func (r *Registry) Load() ([]domain.RouteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.records = make(map[string]domain.RouteRecord)
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrStorageError.WithDetails(r.path).WithCause(err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, domain.ErrRouteFileCorrupt.WithDetails(r.path).WithCause(err)
	}
	if file.Version != fileVersion {
		return nil, domain.ErrRouteFileCorrupt.
			WithDetails(fmt.Sprintf("unsupported version %d", file.Version))
	}

	records := make(map[string]domain.RouteRecord, len(file.Routes))
	var pruned []domain.RouteRecord
	for _, rec := range file.Routes {
		if rec.ID == "" {
			continue
		}
		if !rec.BundleExists() {
			pruned = append(pruned, rec)
			r.log.Warn("pruning route with missing bundle",
				"route_id", rec.ID, "route", rec.Route, "bundle_path", rec.BundlePath)
			continue
		}
		records[rec.ID] = rec
	}
	r.records = records

	if len(pruned) > 0 {
		if err := r.persistLocked(); err != nil {
			return pruned, err
		}
	}
	r.log.Info("route registry loaded", "routes", len(records), "pruned", len(pruned))
	return pruned, nil
}

// Register stores the record and persists the registry. An empty ID gets
// generated; a zero StartTime is set to now. Registering an existing ID
// replaces the record.
func (r *Registry) Register(rec domain.RouteRecord) (domain.RouteRecord, error) {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Now().UTC()
	}
	if err := rec.Validate(); err != nil {
		return domain.RouteRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, existed := r.records[rec.ID]
	r.records[rec.ID] = rec
	if err := r.persistLocked(); err != nil {
		// Keep memory and disk consistent on failure.
		if existed {
			r.records[rec.ID] = prev
		} else {
			delete(r.records, rec.ID)
		}
		return domain.RouteRecord{}, err
	}
	r.log.Info("route registered",
		"route_id", rec.ID, "route", rec.Route, "bundle", rec.BundleName)
	return rec, nil
}

// Unregister removes the record for id and persists the registry.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.ErrRouteNotFound.WithDetails(id)
	}
	delete(r.records, id)
	if err := r.persistLocked(); err != nil {
		r.records[id] = rec
		return err
	}
	r.log.Info("route unregistered", "route_id", id, "route", rec.Route)
	return nil
}

// SetRunning flips the record's running flag and persists the registry.
func (r *Registry) SetRunning(id string, running bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.ErrRouteNotFound.WithDetails(id)
	}
	if rec.IsRunning == running {
		return nil
	}
	prev := rec
	rec.IsRunning = running
	r.records[id] = rec
	if err := r.persistLocked(); err != nil {
		r.records[id] = prev
		return err
	}
	return nil
}

// Get returns the record for id.
func (r *Registry) Get(id string) (domain.RouteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return domain.RouteRecord{}, domain.ErrRouteNotFound.WithDetails(id)
	}
	return rec, nil
}

// List returns all records ordered by route path.
func (r *Registry) List() []domain.RouteRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []domain.RouteRecord {
	out := make([]domain.RouteRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Route != out[j].Route {
			return out[i].Route < out[j].Route
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// persistLocked writes the registry file via tmp + rename so readers
// never observe a half-written file.
func (r *Registry) persistLocked() error {
	file := registryFile{
		Version:   fileVersion,
		UpdatedAt: time.Now().UTC(),
		Routes:    r.listLocked(),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return domain.ErrStorageError.WithDetails(dir).WithCause(err)
	}
	tmp, err := os.CreateTemp(dir, ".routes-*.tmp")
	if err != nil {
		return domain.ErrStorageError.WithCause(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.ErrStorageError.WithCause(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.ErrStorageError.WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return domain.ErrStorageError.WithCause(err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return domain.ErrStorageError.WithCause(err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return domain.ErrStorageError.WithDetails(r.path).WithCause(err)
	}
	return nil
}
