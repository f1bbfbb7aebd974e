// Package keyqueue provides a keyed FIFO lock for DocRelay.
//
// Each key gets an independent lock with a strict first-in-first-out
// waiter queue: callers acquire the lock for a key in exactly the order
// they asked for it. This is stronger than a plain mutex, whose wakeup
// order is unspecified, and it is what keeps concurrent operations on the
// same document serialized in arrival order while operations on different
// documents proceed in parallel.
//
// Usage:
//
//	q := keyqueue.New()
//	if err := q.Lock(ctx, docID); err != nil {
//		return err
//	}
//	defer q.Unlock(docID)
//
// Queue state for a key is released once the last holder unlocks and no
// waiters remain, so the map does not grow with the set of keys ever seen.
package keyqueue
