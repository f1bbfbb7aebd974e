// Package localserver provides Unix socket server for local management.
//
// This package implements a local-only management interface via Unix
// domain socket. It bypasses normal bearer token authentication for
// localhost administrative operations:
//
//   - Server status and health checks
//   - Manual backup flush
//   - Store-wide reconciliation
//   - Route registry inspection
//
// Security:
//
//   - Only accessible via Unix domain socket
//   - File system permissions control access
//   - No token required (physical/local access only)
//
// The wire protocol is line based: the client sends one command per
// line ("status", "flush", ...) and the server answers with a single
// JSON line per command.
package localserver
