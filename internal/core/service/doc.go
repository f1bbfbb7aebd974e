// Package service provides domain services for DocRelay.
//
// Domain services contain the synchronization business logic and
// orchestrate operations on domain models. They define interfaces for
// storage dependencies, allowing for dependency injection and
// testability.
//
// This package contains:
//
//   - Coordinator: document lifecycle, per-document FIFO serialization,
//     incoming/outgoing sync message handling, and reconciliation of
//     in-memory state against the durable snapshot store
//   - Watcher: periodic detection of externally written snapshots, with
//     per-document error isolation
//
// Services are thread-safe. All operations on the same document are
// serialized in strict arrival order; operations on different documents
// proceed concurrently.
package service
