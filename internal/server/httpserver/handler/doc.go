// Package handler provides HTTP request handlers for DocRelay.
//
// This package implements the HTTP API endpoints for document
// synchronization, route registration, and backup operations.
package handler
