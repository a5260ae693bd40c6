// Package cache provides a small get-or-compute memo used for pass-scoped
// caches (compiled templates, the loaded manifest).
package cache

import (
	"sync"
	"sync/atomic"
)

// Memo caches computed values by key until InvalidateAll is called.
// Failed computations are not cached.
type Memo[K comparable, V any] struct {
	entries map[K]V
	mutex   sync.RWMutex

	// Statistics tracking (atomic for thread safety)
	hits          int64
	misses        int64
	invalidations int64
}

// Stats is a snapshot of a Memo's counters.
type Stats struct {
	Entries       int
	Hits          int64
	Misses        int64
	Invalidations int64
}

// New creates an empty memo.
func New[K comparable, V any]() *Memo[K, V] {
	return &Memo[K, V]{entries: make(map[K]V)}
}

// Get retrieves a cached value.
func (m *Memo[K, V]) Get(key K) (V, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	value, ok := m.entries[key]
	if ok {
		atomic.AddInt64(&m.hits, 1)
	} else {
		atomic.AddInt64(&m.misses, 1)
	}

	return value, ok
}

// Set stores a value, replacing any previous one.
func (m *Memo[K, V]) Set(key K, value V) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries[key] = value
}

// GetOrCompute returns the cached value for key, calling compute on a miss.
func (m *Memo[K, V]) GetOrCompute(key K, compute func() (V, error)) (V, error) {
	if value, ok := m.Get(key); ok {
		return value, nil
	}

	value, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	m.Set(key, value)

	return value, nil
}

// InvalidateAll drops every cached value. Counters are kept.
func (m *Memo[K, V]) InvalidateAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.entries = make(map[K]V)
	atomic.AddInt64(&m.invalidations, 1)
}

// Len returns the number of cached values.
func (m *Memo[K, V]) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.entries)
}

// Stats returns the current counters.
func (m *Memo[K, V]) Stats() Stats {
	return Stats{
		Entries:       m.Len(),
		Hits:          atomic.LoadInt64(&m.hits),
		Misses:        atomic.LoadInt64(&m.misses),
		Invalidations: atomic.LoadInt64(&m.invalidations),
	}
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}
