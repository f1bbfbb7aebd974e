// Package handler provides HTTP request handlers for DocRelay.
package handler

import "time"

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"` // Additional error details
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// CreateDocumentRequest is the request body for PUT /v1/documents/{id}.
type CreateDocumentRequest struct {
	Initial map[string]any `json:"initial,omitempty"`
}

// DocumentResponse represents a document in API responses.
type DocumentResponse struct {
	ID         string         `json:"id"`
	Heads      []string       `json:"heads"`
	HistoryLen uint64         `json:"history_len"`
	Content    map[string]any `json:"content,omitempty"`
}

// ListDocumentsResponse is the response body for GET /v1/documents.
type ListDocumentsResponse struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

// UpdateDocumentRequest is the request body for POST /v1/documents/{id}.
type UpdateDocumentRequest struct {
	Message string         `json:"message,omitempty"`
	Set     map[string]any `json:"set"`
}

// PatchResponse describes the effect of a change on a document.
type PatchResponse struct {
	DocumentID string   `json:"document_id"`
	Before     uint64   `json:"before"`
	After      uint64   `json:"after"`
	Heads      []string `json:"heads"`
	Changed    bool     `json:"changed"`
}

// SyncMessageRequest is the request body for POST /v1/documents/{id}/sync/{peer_id}.
type SyncMessageRequest struct {
	// Message is the base64-encoded sync message from the peer.
	Message []byte `json:"message"`
}

// SyncMessageResponse is the response body for GET /v1/documents/{id}/sync/{peer_id}.
type SyncMessageResponse struct {
	// Message is the base64-encoded sync message for the peer. Empty
	// when the peer is already up to date.
	Message  []byte `json:"message,omitempty"`
	UpToDate bool   `json:"up_to_date"`
}

// SyncFromStoreResponse is the response body for POST /v1/sync/store.
type SyncFromStoreResponse struct {
	Merged int `json:"merged"`
	Failed int `json:"failed"`
}

// RegisterRouteRequest is the request body for POST /v1/routes.
type RegisterRouteRequest struct {
	BundleName string `json:"bundle_name"`
	BundlePath string `json:"bundle_path"`
	Route      string `json:"route"`
}

// RouteResponse represents a registered route in API responses.
type RouteResponse struct {
	ID         string    `json:"id"`
	BundleName string    `json:"bundle_name"`
	BundlePath string    `json:"bundle_path"`
	Route      string    `json:"route"`
	StartTime  time.Time `json:"start_time"`
	IsRunning  bool      `json:"is_running"`
}

// ListRoutesResponse is the response body for GET /v1/routes.
type ListRoutesResponse struct {
	Routes []RouteResponse `json:"routes"`
	Total  int             `json:"total"`
}

// UpdateRouteStatusRequest is the request body for POST /v1/routes/{id}/status.
type UpdateRouteStatusRequest struct {
	Running bool `json:"running"`
}

// BackupStatusResponse is the response body for GET /v1/backup/status.
type BackupStatusResponse struct {
	Enabled    bool `json:"enabled"`
	DirtyCount int  `json:"dirty_count"`
}

// BackupFlushResponse is the response body for POST /v1/backup/flush.
type BackupFlushResponse struct {
	Flushed bool     `json:"flushed"`
	Failed  []string `json:"failed,omitempty"`
}

// BackupRemoteResponse is the response body for GET /v1/backup/remote.
type BackupRemoteResponse struct {
	IDs []string `json:"ids"`
}
