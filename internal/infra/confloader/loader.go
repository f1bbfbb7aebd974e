// Package confloader loads DocRelay configuration through koanf.
// Precedence from lowest to highest: struct defaults, YAML file,
// DOCRELAY_-prefixed environment variables. A companion Watcher
// re-reads the file on change for hot-reloadable settings.
package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix.
const DefaultEnvPrefix = "DOCRELAY_"

// Loader merges configuration sources into a target struct.
type Loader struct {
	envPrefix string
	filePath  string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix overrides the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the YAML file to load.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// NewLoader builds a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the configured file (when set) and the environment, then
// unmarshals the merged tree into target. Fields absent from every
// source keep whatever defaults target already carries.
func (l *Loader) Load(target any) error {
	k := koanf.New(".")

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("confloader: read %s: %w", l.filePath, err)
		}
	}

	// DOCRELAY_SERVER_HTTP_ADDRESS becomes server.http.address.
	toKey := func(s string) string {
		s = strings.TrimPrefix(s, l.envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(l.envPrefix, ".", toKey), nil); err != nil {
		return fmt.Errorf("confloader: read environment: %w", err)
	}

	if err := k.Unmarshal("", target); err != nil {
		return fmt.Errorf("confloader: unmarshal: %w", err)
	}
	return nil
}
