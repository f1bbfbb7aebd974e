// Package httpserver provides the HTTP/HTTPS server for DocRelay.
//
// The server exposes the document synchronization API:
//
//   - Document CRUD and change application under /v1/documents
//   - Peer synchronization message exchange under /v1/documents/{id}/sync
//   - Route registry management under /v1/routes
//   - Backup status and manual flush under /v1/backup
//   - Health, readiness and Prometheus metrics endpoints
//
// Requests pass through a middleware chain: panic recovery, request ID
// assignment, optional CORS, per-IP rate limiting, bearer token
// authentication, audit logging and metrics instrumentation.
package httpserver
