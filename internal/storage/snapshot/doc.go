// Package snapshot implements the file-backed snapshot store.
//
// Each document is persisted as one file named <id>.snap in the
// configured directory:
//
//	magic "DRELSNAP"
//	uint32 header length | JSON header
//	uint32 data length   | document bytes (optionally encrypted)
//	sha256 checksum over everything above
//
// Files are written to a temp path and renamed into place, so a crash
// mid-write never leaves a partially written snapshot under the final
// name. The checksum trailer catches torn or bit-rotted files at load
// time; a corrupt file is reported per document and never blocks loading
// the rest of the directory.
package snapshot
