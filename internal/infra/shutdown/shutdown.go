// Package shutdown coordinates graceful process termination. Components
// register cleanup hooks during startup; on SIGINT or SIGTERM the hooks
// run in reverse registration order under a shared deadline, so the
// outermost surfaces (servers) drain before the layers beneath them
// (backup flush, storage) close.
package shutdown

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Handler collects cleanup hooks and runs them once a termination
// signal arrives.
type Handler struct {
	timeout time.Duration

	mu    sync.Mutex
	hooks []func(context.Context) error

	done chan struct{}
}

// NewHandler returns a Handler whose hooks share one deadline of the
// given length.
func NewHandler(timeout time.Duration) *Handler {
	return &Handler{timeout: timeout, done: make(chan struct{})}
}

// OnShutdown registers a hook. Hooks run in reverse registration order,
// last registered first.
func (h *Handler) OnShutdown(hook func(context.Context) error) {
	h.mu.Lock()
	h.hooks = append(h.hooks, hook)
	h.mu.Unlock()
}

// Wait blocks until SIGINT or SIGTERM, then runs every hook. All hooks
// run even when earlier ones fail; the last error is returned.
func (h *Handler) Wait() error {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]func(context.Context) error, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	var lastErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](ctx); err != nil {
			lastErr = err
		}
	}
	close(h.done)
	return lastErr
}

// Done is closed after every hook has run.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
