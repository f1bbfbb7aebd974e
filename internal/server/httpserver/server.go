// Package httpserver provides the HTTP/HTTPS server for DocRelay.
//
// It uses the Go standard library net/http for implementation,
// providing RESTful API endpoints for document synchronization, route
// registration and backup management.
package httpserver

import (
	"context"
	"crypto/tls"
	"net/http"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// New creates a new HTTP server.
func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		handler: handler,
	}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS starts the HTTPS server. The certificate is resolved
// through getCert on every handshake, so callers can rotate certificates
// without restarting the server.
func (s *Server) ListenAndServeTLS(getCert func(*tls.ClientHelloInfo) (*tls.Certificate, error)) error {
	s.httpServer.TLSConfig = &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: getCert,
	}
	return s.httpServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
