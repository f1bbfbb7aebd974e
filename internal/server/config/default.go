// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr    = "127.0.0.1:7421"
	DefaultLocalSocket = "/var/run/docrelay-server/docrelay-server.sock"

	DefaultDataDir        = "/var/lib/docrelay-server/data"
	DefaultStorageBackend = "file"

	DefaultWatcherInterval = 5 * time.Second

	DefaultBackupInterval    = 5 * time.Minute
	DefaultBackupMaxAttempts = 3
	DefaultBackupTimeout     = 15 * time.Second
	DefaultBackupBucket      = "docrelay"

	DefaultRoutesFile = "/var/lib/docrelay-server/routes.json"

	DefaultRateLimit      = 50.0
	DefaultRateLimitBurst = 100

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:           DefaultHTTPAddr,
				RateLimit:      DefaultRateLimit,
				RateLimitBurst: DefaultRateLimitBurst,
			},
			Local: LocalConfig{
				Path: DefaultLocalSocket,
			},
		},
		Storage: StorageSection{
			Backend: DefaultStorageBackend,
			DataDir: DefaultDataDir,
			Badger: BadgerConfig{
				GCInterval:  "10m",
				GCThreshold: 0.5,
				CacheSize:   64 << 20,
				SyncWrites:  true,
			},
		},
		Watcher: WatcherSection{
			Enabled:  true,
			Interval: DefaultWatcherInterval,
		},
		Backup: BackupSection{
			Enabled:     false,
			Bucket:      DefaultBackupBucket,
			Interval:    DefaultBackupInterval,
			MaxAttempts: DefaultBackupMaxAttempts,
			Timeout:     DefaultBackupTimeout,
		},
		Routes: RoutesSection{
			File: DefaultRoutesFile,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
