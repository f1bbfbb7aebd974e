// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for docrelay-server.
type ServerConfig struct {
	Server  ServerSection  `koanf:"server"`
	Storage StorageSection `koanf:"storage"`
	Watcher WatcherSection `koanf:"watcher"`
	Backup  BackupSection  `koanf:"backup"`
	Routes  RoutesSection  `koanf:"routes"`
	Log     LogSection     `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Local LocalConfig `koanf:"local"`
}

// HTTPConfig configures the HTTP API server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// AuthToken, when set, requires every API request to carry it as a
	// bearer token.
	AuthToken string `koanf:"auth_token"`

	// RateLimit is the sustained per-client request rate. Zero disables
	// limiting.
	RateLimit      float64 `koanf:"rate_limit"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`
}

// LocalConfig configures the local management socket.
type LocalConfig struct {
	Path string `koanf:"path"`
}

// StorageSection configures the durable snapshot store.
type StorageSection struct {
	// Backend is "file" or "badger".
	Backend string `koanf:"backend"`
	DataDir string `koanf:"data_dir"`

	// EncryptionPassphrase enables at-rest snapshot encryption (file
	// backend) when non-empty.
	EncryptionPassphrase string `koanf:"encryption_passphrase"`

	// EncryptionAlgorithm is "auto", "aes-gcm" or "chacha20-poly1305".
	EncryptionAlgorithm string `koanf:"encryption_algorithm"`

	Badger BadgerConfig `koanf:"badger"`
}

// BadgerConfig carries tuning for the badger backend.
type BadgerConfig struct {
	GCInterval  string  `koanf:"gc_interval"`
	GCThreshold float64 `koanf:"gc_threshold"`
	CacheSize   int64   `koanf:"cache_size"`
	SyncWrites  bool    `koanf:"sync_writes"`
}

// WatcherSection configures the external change watcher.
type WatcherSection struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// BackupSection configures the remote backup adapter.
type BackupSection struct {
	Enabled bool `koanf:"enabled"`

	// BaseURL of the backup service, e.g. "https://backup.example.com".
	BaseURL string `koanf:"base_url"`

	// AppKey and AppSecret are exchanged for a bearer token.
	AppKey    string `koanf:"app_key"`
	AppSecret string `koanf:"app_secret"`

	// Bucket holds this instance's document objects on the backup service.
	Bucket string `koanf:"bucket"`

	// CACertFile optionally trusts a private CA for the backup service.
	CACertFile string `koanf:"ca_cert_file"`

	// Interval between periodic flushes.
	Interval time.Duration `koanf:"interval"`

	// MaxAttempts per document upload within one flush.
	MaxAttempts int `koanf:"max_attempts"`

	// Timeout per HTTP request to the backup service.
	Timeout time.Duration `koanf:"timeout"`
}

// RoutesSection configures the route persistence registry.
type RoutesSection struct {
	File string `koanf:"file"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
