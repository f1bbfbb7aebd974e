// Package main provides the entry point for docrelayctl.
//
// The CLI tool provides command-line access to a DocRelay server for:
//
//   - Document management (create, list, get, set, delete)
//   - Route registry management (register, list, enable, unregister)
//   - Backup operations (status, flush, remote listing)
//   - Local system administration over the management socket
//
// Usage:
//
//	docrelayctl [command] [flags]
//	docrelayctl doc list --output json
//	docrelayctl system status --socket /var/run/docrelay-server/docrelay-server.sock
package main
