// Package localserver provides the local management server.
package localserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Server represents the local management server.
type Server struct {
	listener net.Listener
	path     string
	handler  *Handler
	running  atomic.Bool
	wg       sync.WaitGroup
}

// New creates a new local server.
func New(socketPath string, handler *Handler) *Server {
	return &Server{
		path:    socketPath,
		handler: handler,
	}
}

// ListenAndServe starts the local server.
func (s *Server) ListenAndServe() error {
	// A stale socket file from an unclean shutdown blocks the bind.
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}

	var err error
	s.listener, err = net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		s.listener.Close()
		return err
	}

	s.running.Store(true)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if server is shutting down
			if !s.running.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		// Track goroutine for graceful shutdown
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// Shutdown gracefully shuts down the server.
//
// This method:
//  1. Sets running flag to false
//  2. Closes the listener to stop accepting new connections
//  3. Waits for all active connections to finish (respects context timeout)
func (s *Server) Shutdown(ctx context.Context) error {
	// Mark server as shutting down
	s.running.Store(false)

	// Close listener to stop accepting new connections
	var closeErr error
	if s.listener != nil {
		closeErr = s.listener.Close()
	}

	// Wait for all goroutines to finish
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		os.Remove(s.path)
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" {
			return
		}
		if err := s.handler.Execute(context.Background(), conn, cmd, args); err != nil {
			return
		}
	}
}
