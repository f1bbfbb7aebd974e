// Package cmap provides a sharded concurrent map for workloads where
// many goroutines touch mostly disjoint keys, such as the HTTP layer's
// per-client rate limiter table. Each shard has its own RWMutex, so
// operations on different shards never contend.
package cmap

import (
	"hash/maphash"
	"iter"
	"sync"
)

// defaultShards is enough parallelism for the request-path tables this
// package backs. Must be a power of two.
const defaultShards = 16

// Map is a concurrent map split across independently locked shards.
type Map[K comparable, V any] struct {
	seed   maphash.Seed
	mask   uint64
	shards []shard[K, V]
}

type shard[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// New returns an empty map with the default shard count.
func New[K comparable, V any]() *Map[K, V] {
	return NewWithShards[K, V](defaultShards)
}

// NewWithShards returns an empty map with n shards, rounded up to the
// next power of two.
func NewWithShards[K comparable, V any](n int) *Map[K, V] {
	size := 1
	for size < n {
		size <<= 1
	}
	m := &Map[K, V]{
		seed:   maphash.MakeSeed(),
		mask:   uint64(size - 1),
		shards: make([]shard[K, V], size),
	}
	for i := range m.shards {
		m.shards[i].m = make(map[K]V)
	}
	return m
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[maphash.Comparable(m.seed, key)&m.mask]
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.m[key]
	s.mu.RUnlock()
	return v, ok
}

// Set stores value under key, replacing any existing entry.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

// GetOrSet returns the existing value for key, storing and returning
// value when the key is absent. The second result reports whether the
// key was already present.
func (m *Map[K, V]) GetOrSet(key K, value V) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[key]; ok {
		return existing, true
	}
	s.m[key] = value
	return value, false
}

// Delete removes key from the map.
func (m *Map[K, V]) Delete(key K) {
	s := m.shardFor(key)
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// Pop removes key and returns the value it held.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return v, ok
}

// Len returns the total number of entries across all shards.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// All iterates over every entry. Each shard is read-locked only while
// its entries are yielded, so the sequence is not a consistent snapshot
// when the map is written concurrently.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range m.shards {
			s := &m.shards[i]
			s.mu.RLock()
			for k, v := range s.m {
				if !yield(k, v) {
					s.mu.RUnlock()
					return
				}
			}
			s.mu.RUnlock()
		}
	}
}

// Clear removes every entry.
func (m *Map[K, V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		s.m = make(map[K]V)
		s.mu.Unlock()
	}
}
