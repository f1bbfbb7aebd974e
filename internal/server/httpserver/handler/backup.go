// Package handler provides HTTP request handlers for DocRelay.
package handler

import (
	"errors"
	"net/http"
	"sort"

	"github.com/docrelay/docrelay-go/internal/backup"
)

// handleBackupStatus handles GET /v1/backup/status.
func (h *Handler) handleBackupStatus(w http.ResponseWriter, r *http.Request) {
	if h.adapter == nil {
		h.writeJSON(w, r, http.StatusOK, BackupStatusResponse{Enabled: false})
		return
	}

	h.writeJSON(w, r, http.StatusOK, BackupStatusResponse{
		Enabled:    true,
		DirtyCount: h.adapter.DirtyCount(),
	})
}

// handleBackupFlush handles POST /v1/backup/flush.
func (h *Handler) handleBackupFlush(w http.ResponseWriter, r *http.Request) {
	if h.adapter == nil {
		h.writeError(w, r, http.StatusConflict, "DR-SYS-4000", "backup is not enabled", nil)
		return
	}

	err := h.adapter.Flush(r.Context())
	if err == nil {
		h.writeJSON(w, r, http.StatusOK, BackupFlushResponse{Flushed: true})
		return
	}

	// A partial flush still made progress; report which documents failed
	// instead of a bare error.
	var batch *backup.BatchError
	if errors.As(err, &batch) {
		failed := make([]string, 0, len(batch.Failed))
		for id := range batch.Failed {
			failed = append(failed, id)
		}
		sort.Strings(failed)
		h.writeJSON(w, r, http.StatusBadGateway, BackupFlushResponse{
			Flushed: false,
			Failed:  failed,
		})
		return
	}

	h.handleServiceError(w, r, err)
}

// handleBackupRemote handles GET /v1/backup/remote.
func (h *Handler) handleBackupRemote(w http.ResponseWriter, r *http.Request) {
	if h.adapter == nil {
		h.writeError(w, r, http.StatusConflict, "DR-SYS-4000", "backup is not enabled", nil)
		return
	}

	ids, err := h.adapter.RemoteIDs(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	sort.Strings(ids)

	h.writeJSON(w, r, http.StatusOK, BackupRemoteResponse{IDs: ids})
}
