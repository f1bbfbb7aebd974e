// Package config defines the server configuration structure.
package config

import (
	"errors"
	"fmt"
	"os"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyWatcher(&cfg.Watcher); err != nil {
		return err
	}
	if err := verifyBackup(&cfg.Backup); err != nil {
		return err
	}
	if cfg.Routes.File == "" {
		return errors.New("routes.file is required")
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if cfg.HTTP.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	if cfg.HTTP.TLSCertFile != "" {
		if _, err := os.Stat(cfg.HTTP.TLSCertFile); err != nil {
			return fmt.Errorf("server.http.tls_cert_file: %w", err)
		}
		if _, err := os.Stat(cfg.HTTP.TLSKeyFile); err != nil {
			return fmt.Errorf("server.http.tls_key_file: %w", err)
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		return errors.New("server.http.rate_limit must not be negative")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}

	switch cfg.Backend {
	case "", "file", "badger":
	default:
		return fmt.Errorf("storage.backend must be \"file\" or \"badger\", got %q", cfg.Backend)
	}
	switch cfg.EncryptionAlgorithm {
	case "", "auto", "aes-gcm", "chacha20-poly1305":
	default:
		return fmt.Errorf("storage.encryption_algorithm: unsupported algorithm %q", cfg.EncryptionAlgorithm)
	}
	if cfg.Backend == "badger" && cfg.EncryptionPassphrase != "" {
		return errors.New("storage.encryption_passphrase is only supported by the file backend")
	}
	return nil
}

func verifyWatcher(cfg *WatcherSection) error {
	if cfg.Enabled && cfg.Interval <= 0 {
		return errors.New("watcher.interval must be positive")
	}
	return nil
}

func verifyBackup(cfg *BackupSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BaseURL == "" {
		return errors.New("backup.base_url is required when backup is enabled")
	}
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return errors.New("backup.app_key and backup.app_secret are required when backup is enabled")
	}
	if cfg.Bucket == "" {
		return errors.New("backup.bucket is required when backup is enabled")
	}
	if cfg.Interval <= 0 {
		return errors.New("backup.interval must be positive")
	}
	if cfg.MaxAttempts < 1 {
		return errors.New("backup.max_attempts must be at least 1")
	}
	return nil
}
