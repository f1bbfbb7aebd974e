// Package storage defines the durable snapshot store abstraction for
// DocRelay.
//
// A SnapshotStore persists full serialized CRDT documents keyed by
// document id. Two backends implement it:
//
//   - snapshot: one checksummed file per document, optionally encrypted
//   - badgerstore: documents as values in an embedded Badger database
//
// The coordinator treats the store as the durability source of truth: on
// every mutation it writes the updated document back, and on recovery it
// reconciles in-memory state against what the store holds.
package storage
