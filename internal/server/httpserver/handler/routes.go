// Package handler provides HTTP request handlers for DocRelay.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/docrelay/docrelay-go/internal/core/domain"
)

// handleRegisterRoute handles POST /v1/routes.
func (h *Handler) handleRegisterRoute(w http.ResponseWriter, r *http.Request) {
	var req RegisterRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "DR-SYS-4000", "invalid request body", nil)
		return
	}

	rec, err := h.registry.Register(domain.RouteRecord{
		BundleName: req.BundleName,
		BundlePath: req.BundlePath,
		Route:      req.Route,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, routeToResponse(rec))
}

// handleListRoutes handles GET /v1/routes.
func (h *Handler) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	records := h.registry.List()
	items := make([]RouteResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, routeToResponse(rec))
	}

	h.writeJSON(w, r, http.StatusOK, ListRoutesResponse{Routes: items, Total: len(items)})
}

// handleGetRoute handles GET /v1/routes/{id}.
func (h *Handler) handleGetRoute(w http.ResponseWriter, r *http.Request) {
	rec, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, routeToResponse(rec))
}

// handleUnregisterRoute handles DELETE /v1/routes/{id}.
func (h *Handler) handleUnregisterRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.registry.Unregister(id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{"id": id, "status": "unregistered"})
}

// handleUpdateRouteStatus handles POST /v1/routes/{id}/status.
func (h *Handler) handleUpdateRouteStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateRouteStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "DR-SYS-4000", "invalid request body", nil)
		return
	}

	id := r.PathValue("id")
	if err := h.registry.SetRunning(id, req.Running); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	rec, err := h.registry.Get(id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, routeToResponse(rec))
}

// routeToResponse converts a route record to its API representation.
func routeToResponse(rec domain.RouteRecord) RouteResponse {
	return RouteResponse{
		ID:         rec.ID,
		BundleName: rec.BundleName,
		BundlePath: rec.BundlePath,
		Route:      rec.Route,
		StartTime:  rec.StartTime,
		IsRunning:  rec.IsRunning,
	}
}
