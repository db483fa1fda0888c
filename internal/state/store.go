// Package state holds process-lifetime keyed stores with TTL eviction:
// per-user wizard state and search-result caches.
package state

import (
	"context"
	"sync"
	"time"
)

// Store is a keyed store whose entries expire after a TTL.
type Store[K comparable, V any] interface {
	// Get returns the value and true if present and not expired.
	Get(key K) (V, bool)

	// Set stores value, resetting its expiry.
	Set(key K, value V)

	// Delete removes key.
	Delete(key K)

	// Len returns the number of unexpired entries.
	Len() int

	// Sweep removes expired entries and returns how many were removed.
	Sweep() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryStore implements Store with a mutex-guarded map.
type MemoryStore[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]entry[V]
	now     func() time.Time
}

// NewMemoryStore creates a store whose entries live for ttl.
func NewMemoryStore[K comparable, V any](ttl time.Duration) *MemoryStore[K, V] {
	return &MemoryStore[K, V]{
		ttl:     ttl,
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// SetClock replaces the time source (tests).
func (s *MemoryStore[K, V]) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Get returns the value and true if present and not expired.
// Expired entries are removed on access.
func (s *MemoryStore[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value, resetting its expiry.
func (s *MemoryStore[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[V]{value: value, expiresAt: s.now().Add(s.ttl)}
}

// Delete removes key.
func (s *MemoryStore[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len returns the number of unexpired entries.
func (s *MemoryStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, e := range s.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Sweep removes expired entries and returns how many were removed.
func (s *MemoryStore[K, V]) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Sweeper is anything with a Sweep method.
type Sweeper interface {
	Sweep() int
}

// RunSweeper calls Sweep on every store each interval until ctx is done.
// onSweep, if non-nil, receives the number of entries removed per tick.
func RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int), stores ...Sweeper) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := 0
			for _, s := range stores {
				removed += s.Sweep()
			}
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}
