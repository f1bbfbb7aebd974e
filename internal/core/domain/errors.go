// Package domain defines the core domain models for DocRelay.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "DR-DOC-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Document Errors (DOC)
// ============================================================================

var (
	// ErrDocumentNotFound indicates the document exists neither in memory
	// nor in the durable snapshot store.
	ErrDocumentNotFound = NewDomainError("DR-DOC-4040", "document not found")

	// ErrDocumentExists indicates a create collided with an existing document.
	ErrDocumentExists = NewDomainError("DR-DOC-4090", "document already exists")

	// ErrDocumentCorrupt indicates the serialized document could not be loaded.
	ErrDocumentCorrupt = NewDomainError("DR-DOC-4220", "document bytes corrupt")

	// ErrSyncMessageInvalid indicates a peer sent a malformed sync message.
	// Only that exchange fails; other peers and documents are unaffected.
	ErrSyncMessageInvalid = NewDomainError("DR-DOC-4000", "invalid sync message")

	// ErrDocumentIDInvalid indicates an empty or malformed document id.
	ErrDocumentIDInvalid = NewDomainError("DR-DOC-4001", "invalid document id")
)

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrSnapshotNotFound indicates no persisted snapshot exists for the id.
	ErrSnapshotNotFound = NewDomainError("DR-STOR-4040", "snapshot not found")

	// ErrStorageError indicates a snapshot store failure.
	ErrStorageError = NewDomainError("DR-STOR-5001", "storage error")
)

// ============================================================================
// Backup Errors (BAK)
// ============================================================================

var (
	// ErrBackupAuth indicates remote object-store authentication failed.
	ErrBackupAuth = NewDomainError("DR-BAK-4010", "backup authentication failed")

	// ErrBackupUpload indicates an upload exhausted its retries.
	ErrBackupUpload = NewDomainError("DR-BAK-5020", "backup upload failed")

	// ErrBackupRemote indicates a remote object-store request failed.
	ErrBackupRemote = NewDomainError("DR-BAK-5021", "backup remote error")
)

// ============================================================================
// Route Registry Errors (ROUTE)
// ============================================================================

var (
	// ErrRouteFileCorrupt indicates the persisted route registry could not
	// be decoded. A missing file is not an error.
	ErrRouteFileCorrupt = NewDomainError("DR-ROUTE-4220", "route registry file corrupt")

	// ErrRouteNotFound indicates no registered route exists for the id.
	ErrRouteNotFound = NewDomainError("DR-ROUTE-4040", "route not found")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("DR-SYS-5000", "internal server error")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("DR-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("DR-SYS-4290", "too many requests")

	// ErrUnauthorized indicates a missing or invalid API token.
	ErrUnauthorized = NewDomainError("DR-SYS-4010", "unauthorized")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("DR-ARG-1002", "missing required argument")
)
