package keyqueue

import (
	"context"
	"sync"
)

// entry tracks one key's lock: whether it is held and who waits, in order.
type entry struct {
	held    bool
	waiters []chan struct{}
}

// Queue is a keyed FIFO lock. The zero value is not usable; call New.
type Queue struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{entries: make(map[string]*entry)}
}

// Lock acquires the lock for key, waiting behind earlier callers. It
// returns ctx.Err() if the context is done before the lock is granted; in
// that case the caller does not hold the lock and must not call Unlock.
func (q *Queue) Lock(ctx context.Context, key string) error {
	q.mu.Lock()
	e := q.entries[key]
	if e == nil {
		q.entries[key] = &entry{held: true}
		q.mu.Unlock()
		return nil
	}
	grant := make(chan struct{})
	e.waiters = append(e.waiters, grant)
	q.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
	}

	q.mu.Lock()
	select {
	case <-grant:
		// The grant raced the cancellation: we briefly hold the lock
		// and must pass it on before reporting the context error.
		q.mu.Unlock()
		q.Unlock(key)
		return ctx.Err()
	default:
	}
	for i, w := range e.waiters {
		if w == grant {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	return ctx.Err()
}

// Unlock releases the lock for key and wakes the oldest waiter, if any.
// Unlocking a key that is not held panics, matching sync.Mutex.
func (q *Queue) Unlock(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.entries[key]
	if e == nil || !e.held {
		panic("keyqueue: unlock of unheld key: " + key)
	}
	if len(e.waiters) == 0 {
		delete(q.entries, key)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}

// With runs fn while holding the lock for key.
func (q *Queue) With(ctx context.Context, key string, fn func() error) error {
	if err := q.Lock(ctx, key); err != nil {
		return err
	}
	defer q.Unlock(key)
	return fn()
}

// Len reports how many keys currently have a held lock.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Waiters reports how many callers are queued behind the holder of key.
func (q *Queue) Waiters(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.entries[key]; e != nil {
		return len(e.waiters)
	}
	return 0
}
