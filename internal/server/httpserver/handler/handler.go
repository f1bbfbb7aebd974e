// Package handler provides HTTP request handlers for DocRelay.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/docrelay/docrelay-go/internal/backup"
	"github.com/docrelay/docrelay-go/internal/core/domain"
	"github.com/docrelay/docrelay-go/internal/core/service"
	"github.com/docrelay/docrelay-go/internal/routes"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
	"github.com/docrelay/docrelay-go/internal/telemetry/metric"
)

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	coord    *service.Coordinator
	registry *routes.Registry
	adapter  *backup.Adapter // nil when backup is disabled
	metrics  *metric.Metrics
	log      logger.Logger
	mux      *http.ServeMux
}

// New creates a new Handler. adapter may be nil when backup is disabled;
// the backup endpoints then report it as such.
func New(coord *service.Coordinator, registry *routes.Registry, adapter *backup.Adapter, metrics *metric.Metrics, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	h := &Handler{
		coord:    coord,
		registry: registry,
		adapter:  adapter,
		metrics:  metrics,
		log:      log,
		mux:      http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all HTTP routes.
func (h *Handler) registerRoutes() {
	// Health endpoints (no auth required)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	// Metrics endpoint (Prometheus format)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics.Handler())
	}

	// Document endpoints
	h.mux.HandleFunc("GET /v1/documents", h.handleListDocuments)
	h.mux.HandleFunc("PUT /v1/documents/{id}", h.handleCreateDocument)
	h.mux.HandleFunc("GET /v1/documents/{id}", h.handleGetDocument)
	h.mux.HandleFunc("POST /v1/documents/{id}", h.handleUpdateDocument)
	h.mux.HandleFunc("DELETE /v1/documents/{id}", h.handleDeleteDocument)

	// Sync endpoints
	h.mux.HandleFunc("POST /v1/documents/{id}/sync/{peer_id}", h.handleIncomingChanges)
	h.mux.HandleFunc("GET /v1/documents/{id}/sync/{peer_id}", h.handleGenerateSyncMessage)
	h.mux.HandleFunc("POST /v1/sync/store", h.handleSyncFromStore)

	// Route registry endpoints
	h.mux.HandleFunc("GET /v1/routes", h.handleListRoutes)
	h.mux.HandleFunc("POST /v1/routes", h.handleRegisterRoute)
	h.mux.HandleFunc("GET /v1/routes/{id}", h.handleGetRoute)
	h.mux.HandleFunc("DELETE /v1/routes/{id}", h.handleUnregisterRoute)
	h.mux.HandleFunc("POST /v1/routes/{id}/status", h.handleUpdateRouteStatus)

	// Backup endpoints
	h.mux.HandleFunc("GET /v1/backup/status", h.handleBackupStatus)
	h.mux.HandleFunc("POST /v1/backup/flush", h.handleBackupFlush)
	h.mux.HandleFunc("GET /v1/backup/remote", h.handleBackupRemote)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// getRequestID extracts request ID from the header set by middleware.
func getRequestID(r *http.Request) string {
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := errorCodeToHTTPStatus(code)
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	// Generic internal error
	h.log.Error("internal error", "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "DR-SYS-5000", "internal server error", nil)
}

// errorCodeToHTTPStatus maps error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasPrefix(code, "DR-BAK-"):
		return http.StatusBadGateway
	case strings.HasSuffix(code, "-4040"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.HasSuffix(code, "-4000"), strings.HasSuffix(code, "-4001"):
		return http.StatusBadRequest
	case strings.HasSuffix(code, "-4010"), strings.HasSuffix(code, "-4011"):
		return http.StatusUnauthorized
	case strings.HasPrefix(code, "DR-ARG-"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
