// Package main provides the entry point for docrelay-server.
//
// The server is the core DocRelay service that provides:
//
//   - HTTP/HTTPS API for document storage and CRDT synchronization
//   - Durable snapshot store (plain-file or Badger backend)
//   - External change watcher for out-of-band snapshot edits
//   - Remote backup mirroring with retry and re-authentication
//   - Route registry persisted across restarts
//   - Local Unix socket for management access (no bearer token required)
//
// Usage:
//
//	docrelay-server [flags]
//	docrelay-server --config /path/to/config.yaml
//
// The server loads configuration, initializes infrastructure components,
// and starts all configured listeners.
package main
