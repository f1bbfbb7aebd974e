package storage

import (
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docrelay/docrelay-go/internal/storage/badgerstore"
	"github.com/docrelay/docrelay-go/internal/storage/snapshot"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Config selects and configures a snapshot store backend.
type Config struct {
	// Backend is "file" (default) or "badger".
	Backend string

	// DataDir is the root data directory; each backend uses a
	// subdirectory of it.
	DataDir string

	// EncryptionPassphrase enables at-rest encryption (file backend
	// only) when non-empty.
	EncryptionPassphrase []byte

	// EncryptionAlgorithm selects the cipher for the file backend.
	EncryptionAlgorithm string

	// Badger carries tuning for the badger backend. Dir is derived from
	// DataDir and may be left empty.
	Badger badgerstore.Config
}

// Open creates the configured snapshot store. The prometheus registry may
// be nil; backend metrics are then not exported.
func Open(cfg Config, log logger.Logger, registry *prometheus.Registry) (SnapshotStore, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data dir is required")
	}
	switch cfg.Backend {
	case "", BackendFile:
		return snapshot.New(snapshot.Config{
			Dir:        filepath.Join(cfg.DataDir, "snapshots"),
			Passphrase: cfg.EncryptionPassphrase,
			Algorithm:  cfg.EncryptionAlgorithm,
		}, log)
	case BackendBadger:
		bcfg := cfg.Badger
		bcfg.Dir = filepath.Join(cfg.DataDir, "badger")
		store, err := badgerstore.New(bcfg, log)
		if err != nil {
			return nil, err
		}
		if registry != nil {
			store.RegisterMetrics(registry)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend: %s", cfg.Backend)
	}
}
