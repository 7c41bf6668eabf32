// Package cache provides a TTL-bounded, size-limited in-memory key-value
// store. The gateway keeps two instances: one for sanitized completions and
// one, with a shorter TTL, for upstream failures (negative caching).
package cache

import (
	"sync"
	"time"
)

// entry wraps a stored value with its creation and expiry times.
type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
}

// Store is a bounded in-memory cache with a default TTL that individual
// entries may override. Expired entries are removed lazily on Get; a
// background goroutine prunes entries that are never requested again. When
// maxEntries is exceeded the oldest entry is evicted.
type Store[V any] struct {
	mu         sync.Mutex
	entries    map[string]entry[V]
	ttl        time.Duration
	maxEntries int
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a Store whose entries expire after ttl unless Set is given an
// explicit one, evicting the oldest entry when maxEntries is exceeded.
func New[V any](ttl time.Duration, maxEntries int) *Store[V] {
	s := &Store[V]{
		entries:    make(map[string]entry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		stop:       make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Get returns the cached value if it exists and has not expired. An expired
// entry is removed and reported as a miss.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value under the given key for ttl; a non-positive ttl uses the
// store default. If the store is at capacity and the key is not already
// present, the oldest entry is evicted to make room.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.ttl
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}

	now := time.Now()
	s.entries[key] = entry[V]{value: value, createdAt: now, expiresAt: now.Add(ttl)}
}

// Delete removes a key. Missing keys are a no-op.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of stored entries, including any not yet pruned.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop terminates the background cleanup goroutine. Safe to call twice.
func (s *Store[V]) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// cleanupLoop removes expired entries every defaultTTL/2 so that keys which
// are never re-requested do not accumulate. Correctness does not depend on
// it; Get already treats expired entries as misses.
func (s *Store[V]) cleanupLoop() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.prune()
		case <-s.stop:
			return
		}
	}
}

// prune removes all expired entries.
func (s *Store[V]) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// evictOldest removes the entry with the earliest createdAt. Caller must hold s.mu.
func (s *Store[V]) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, e := range s.entries {
		if first || e.createdAt.Before(oldestTime) {
			oldestKey = k
			oldestTime = e.createdAt
			first = false
		}
	}
	if !first {
		delete(s.entries, oldestKey)
	}
}
