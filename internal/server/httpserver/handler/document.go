// Package handler provides HTTP request handlers for DocRelay.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/docrelay/docrelay-go/internal/core/domain"
)

// handleCreateDocument handles PUT /v1/documents/{id}.
func (h *Handler) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req CreateDocumentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, http.StatusBadRequest, "DR-SYS-4000", "invalid request body", nil)
			return
		}
	}

	doc, err := h.coord.Create(r.Context(), id, req.Initial)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, documentToResponse(id, doc, false))
}

// handleGetDocument handles GET /v1/documents/{id}.
func (h *Handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doc, err := h.coord.Get(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, documentToResponse(id, doc, true))
}

// handleListDocuments handles GET /v1/documents.
func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	ids, err := h.coord.IDs(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, ListDocumentsResponse{IDs: ids, Total: len(ids)})
}

// handleUpdateDocument handles POST /v1/documents/{id}.
func (h *Handler) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "DR-SYS-4000", "invalid request body", nil)
		return
	}
	if len(req.Set) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "DR-ARG-1002", "set must not be empty", nil)
		return
	}

	patch, err := h.coord.Update(r.Context(), id, req.Message, func(doc *domain.Document) error {
		for key, value := range req.Set {
			if err := doc.Set(key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, patchToResponse(id, patch))
}

// handleDeleteDocument handles DELETE /v1/documents/{id}.
func (h *Handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.coord.Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

// handleIncomingChanges handles POST /v1/documents/{id}/sync/{peer_id}.
func (h *Handler) handleIncomingChanges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	peerID := r.PathValue("peer_id")

	var req SyncMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "DR-SYS-4000", "invalid request body", nil)
		return
	}
	if len(req.Message) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "DR-ARG-1002", "message is required", nil)
		return
	}

	patch, err := h.coord.HandleIncomingChanges(r.Context(), id, peerID, req.Message)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, patchToResponse(id, patch))
}

// handleGenerateSyncMessage handles GET /v1/documents/{id}/sync/{peer_id}.
func (h *Handler) handleGenerateSyncMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	peerID := r.PathValue("peer_id")

	msg, ok, err := h.coord.GenerateSyncMessage(r.Context(), id, peerID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, SyncMessageResponse{
		Message:  msg,
		UpToDate: !ok,
	})
}

// handleSyncFromStore handles POST /v1/sync/store.
func (h *Handler) handleSyncFromStore(w http.ResponseWriter, r *http.Request) {
	merged, failed := h.coord.SyncFromStore(r.Context())
	h.writeJSON(w, r, http.StatusOK, SyncFromStoreResponse{Merged: merged, Failed: failed})
}

// documentToResponse converts a document to its API representation.
func documentToResponse(id string, doc *domain.Document, withContent bool) DocumentResponse {
	resp := DocumentResponse{
		ID:         id,
		Heads:      doc.Heads(),
		HistoryLen: doc.HistoryLen(),
	}
	if withContent {
		// Content failures leave the field empty rather than failing the
		// whole response; heads and history still identify the document.
		if content, err := doc.Content(); err == nil {
			resp.Content = content
		}
	}
	return resp
}

// patchToResponse converts a patch to its API representation. A nil patch
// means the change was a no-op.
func patchToResponse(id string, patch *domain.Patch) PatchResponse {
	if patch == nil {
		return PatchResponse{DocumentID: id, Changed: false}
	}
	return PatchResponse{
		DocumentID: patch.DocumentID,
		Before:     patch.Before,
		After:      patch.After,
		Heads:      patch.Heads,
		Changed:    true,
	}
}
