// Package logger is DocRelay's structured logging layer over log/slog.
// Every record passes through a redaction hook so backup credentials
// and secret-like fields never reach the log stream.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the logging interface handed to DocRelay components.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// Config selects the output level, format and destination.
type Config struct {
	Level     string    // debug, info, warn, error
	Format    string    // json (default) or text
	Output    io.Writer // defaults to os.Stderr
	AddSource bool
}

// DefaultConfig returns the production defaults: info-level JSON on stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// levelVar backs every logger built by New, so SetLevel reaches all of
// them at once.
var levelVar = new(slog.LevelVar)

type slogged struct {
	s *slog.Logger
}

// New builds a Logger from cfg.
func New(cfg Config) (Logger, error) {
	levelVar.Set(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       levelVar,
		AddSource:   cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr { return redact(a) },
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return &slogged{s: slog.New(h)}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4})
	return &slogged{s: slog.New(h)}
}

func (l *slogged) Debug(msg string, args ...any) { l.s.Debug(msg, args...) }
func (l *slogged) Info(msg string, args ...any)  { l.s.Info(msg, args...) }
func (l *slogged) Warn(msg string, args ...any)  { l.s.Warn(msg, args...) }
func (l *slogged) Error(msg string, args ...any) { l.s.Error(msg, args...) }

func (l *slogged) With(args ...any) Logger {
	return &slogged{s: l.s.With(args...)}
}

// SetLevel adjusts the level of every logger built by New. Driven by
// config hot reload.
func SetLevel(level string) {
	levelVar.Set(parseLevel(level))
}

// GetLevel reports the current level.
func GetLevel() string {
	switch l := levelVar.Level(); {
	case l <= slog.LevelDebug:
		return "debug"
	case l <= slog.LevelInfo:
		return "info"
	case l <= slog.LevelWarn:
		return "warn"
	default:
		return "error"
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var fallback atomic.Pointer[slogged]

func init() {
	l, _ := New(DefaultConfig())
	fallback.Store(l.(*slogged))
}

// SetDefault replaces the process-wide fallback logger used by the
// package-level functions.
func SetDefault(l Logger) {
	if s, ok := l.(*slogged); ok {
		fallback.Store(s)
	}
}

// Default returns the process-wide fallback logger.
func Default() Logger {
	return fallback.Load()
}

// Debug logs on the fallback logger.
func Debug(msg string, args ...any) { fallback.Load().Debug(msg, args...) }

// Info logs on the fallback logger.
func Info(msg string, args ...any) { fallback.Load().Info(msg, args...) }

// Warn logs on the fallback logger.
func Warn(msg string, args ...any) { fallback.Load().Warn(msg, args...) }

// Error logs on the fallback logger.
func Error(msg string, args ...any) { fallback.Load().Error(msg, args...) }
