// Package domain defines the core domain models for DocRelay.
//
// It contains:
//
//   - Document: the CRDT document wrapper and the only place where the
//     underlying CRDT engine (automerge) is touched directly
//   - SyncCursor: per-(document, peer) incremental sync state
//   - Patch: result of applying an incoming sync message
//   - RouteRecord: durable record of a running application bundle
//   - DomainError: the structured error taxonomy (DR-* codes)
//
// Higher layers (coordinator, storage, backup, transport) depend on this
// package and never on the CRDT engine itself.
package domain
