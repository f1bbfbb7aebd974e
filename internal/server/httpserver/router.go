// Package httpserver provides the HTTP/HTTPS server for DocRelay.
package httpserver

import (
	"net/http"

	"github.com/docrelay/docrelay-go/internal/backup"
	"github.com/docrelay/docrelay-go/internal/core/service"
	"github.com/docrelay/docrelay-go/internal/routes"
	"github.com/docrelay/docrelay-go/internal/server/httpserver/handler"
	"github.com/docrelay/docrelay-go/internal/telemetry/logger"
	"github.com/docrelay/docrelay-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Coordinator handles document operations.
	Coordinator *service.Coordinator

	// Registry handles route registration.
	Registry *routes.Registry

	// Backup is the backup adapter; nil when backup is disabled.
	Backup *backup.Adapter

	// Metrics exposes the /metrics endpoint and request instrumentation.
	Metrics *metric.Metrics

	// Logger for request logging.
	Logger logger.Logger

	// AuthToken protects the API when non-empty.
	AuthToken string

	// SkipAuthPaths are paths that don't require authentication.
	SkipAuthPaths []string

	// CORSAllowedOrigins is the list of allowed CORS origins (empty = allow all).
	CORSAllowedOrigins []string

	// RateLimit is the per-IP request rate (requests/second). Zero disables.
	RateLimit      float64
	RateLimitBurst int

	// EnableAudit enables audit logging for all requests.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		SkipAuthPaths:  []string{"/health", "/ready", "/metrics"},
		RateLimit:      50,
		RateLimitBurst: 100,
		EnableAudit:    true,
	}
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	h := handler.New(cfg.Coordinator, cfg.Registry, cfg.Backup, cfg.Metrics, log)

	// Order: Recover -> RequestID -> CORS -> RateLimit -> Auth -> Audit
	// -> Instrument -> Handler
	middlewares := []Middleware{
		Recover(log),
		RequestID(),
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		middlewares = append(middlewares, CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimit(cfg.RateLimit, cfg.RateLimitBurst))
	}
	if cfg.AuthToken != "" {
		middlewares = append(middlewares, Auth(AuthConfig{
			Token:     cfg.AuthToken,
			SkipPaths: cfg.SkipAuthPaths,
		}))
	}
	if cfg.EnableAudit {
		middlewares = append(middlewares, Audit(log))
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, Instrument(cfg.Metrics))
	}

	return Chain(h, middlewares...)
}
