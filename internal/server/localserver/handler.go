package localserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docrelay/docrelay-go/internal/backup"
	"github.com/docrelay/docrelay-go/internal/core/service"
	"github.com/docrelay/docrelay-go/internal/infra/buildinfo"
	"github.com/docrelay/docrelay-go/internal/routes"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
)

// Handler executes management commands received over the local socket.
type Handler struct {
	coord    *service.Coordinator
	registry *routes.Registry
	adapter  *backup.Adapter // nil when backup is disabled
	log      logger.Logger
	started  time.Time
}

// NewHandler creates a new command handler.
func NewHandler(coord *service.Coordinator, registry *routes.Registry, adapter *backup.Adapter, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		coord:    coord,
		registry: registry,
		adapter:  adapter,
		log:      log,
		started:  time.Now(),
	}
}

// result is the envelope written for every command, one JSON line each.
type result struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// statusData reports the server's live state.
type statusData struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Documents     int    `json:"documents"`
	Routes        int    `json:"routes"`
	BackupEnabled bool   `json:"backup_enabled"`
	BackupDirty   int    `json:"backup_dirty"`
}

// syncData reports the outcome of a store reconciliation pass.
type syncData struct {
	Merged int `json:"merged"`
	Failed int `json:"failed"`
}

// routeData is one registered route entry.
type routeData struct {
	ID         string `json:"id"`
	BundleName string `json:"bundle_name"`
	Route      string `json:"route"`
	IsRunning  bool   `json:"is_running"`
}

// Execute runs a command and writes one JSON line to w.
func (h *Handler) Execute(ctx context.Context, w io.Writer, cmd string, args []string) error {
	switch cmd {
	case "ping":
		return h.write(w, result{OK: true, Data: "pong"})
	case "version":
		return h.write(w, result{OK: true, Data: buildinfo.Get()})
	case "status":
		return h.handleStatus(ctx, w)
	case "flush":
		return h.handleFlush(ctx, w)
	case "sync":
		return h.handleSync(ctx, w)
	case "routes":
		return h.handleRoutes(w)
	default:
		return h.write(w, result{Error: fmt.Sprintf("unknown command: %s", cmd)})
	}
}

func (h *Handler) handleStatus(ctx context.Context, w io.Writer) error {
	ids, err := h.coord.IDs(ctx)
	if err != nil {
		return h.write(w, result{Error: err.Error()})
	}
	data := statusData{
		Version:       buildinfo.Version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Documents:     len(ids),
		Routes:        len(h.registry.List()),
	}
	if h.adapter != nil {
		data.BackupEnabled = true
		data.BackupDirty = h.adapter.DirtyCount()
	}
	return h.write(w, result{OK: true, Data: data})
}

func (h *Handler) handleFlush(ctx context.Context, w io.Writer) error {
	if h.adapter == nil {
		return h.write(w, result{Error: "backup is disabled"})
	}
	before := h.adapter.DirtyCount()
	if err := h.adapter.Flush(ctx); err != nil {
		h.log.Warn("manual backup flush failed", "error", err)
		return h.write(w, result{Error: err.Error()})
	}
	return h.write(w, result{OK: true, Data: map[string]int{"flushed": before}})
}

func (h *Handler) handleSync(ctx context.Context, w io.Writer) error {
	merged, failed := h.coord.SyncFromStore(ctx)
	return h.write(w, result{OK: true, Data: syncData{Merged: merged, Failed: failed}})
}

func (h *Handler) handleRoutes(w io.Writer) error {
	records := h.registry.List()
	out := make([]routeData, 0, len(records))
	for _, rec := range records {
		out = append(out, routeData{
			ID:         rec.ID,
			BundleName: rec.BundleName,
			Route:      rec.Route,
			IsRunning:  rec.IsRunning,
		})
	}
	return h.write(w, result{OK: true, Data: out})
}

func (h *Handler) write(w io.Writer, res result) error {
	enc := json.NewEncoder(w)
	return enc.Encode(res)
}
