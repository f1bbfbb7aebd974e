// Package handler provides HTTP request handlers for DocRelay.
package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /ready.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness means the snapshot store answers; a failing store would
	// surface on the first document operation anyway.
	if _, err := h.coord.IDs(r.Context()); err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "DR-STOR-5001", "snapshot store unavailable", nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
