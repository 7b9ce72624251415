package utils

import (
	"sync"
	"time"
)

// TTLMap provides a thread-safe map with expiring entries.
// Entries can carry their own TTL; expired entries are swept periodically.
type TTLMap[K comparable, V any] struct {
	mu      sync.RWMutex
	data    map[K]V
	expires map[K]time.Time
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewTTLMap creates a new TTLMap with the specified default TTL duration.
func NewTTLMap[K comparable, V any](ttl time.Duration) *TTLMap[K, V] {
	m := &TTLMap[K, V]{
		data:    make(map[K]V),
		expires: make(map[K]time.Time),
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go m.cleanup()

	return m
}

// Get retrieves a value from the map.
// Returns the value and whether it exists and has not expired.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists || !m.now().Before(m.expires[key]) {
		var zero V
		return zero, false
	}

	return value, true
}

// Set adds or updates a value using the default TTL.
func (m *TTLMap[K, V]) Set(key K, value V) {
	m.SetWithTTL(key, value, m.ttl)
}

// SetWithTTL adds or updates a value that expires after the given duration.
func (m *TTLMap[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	m.expires[key] = m.now().Add(ttl)
}

// Remaining returns how long the entry stays valid, or zero if it is absent.
func (m *TTLMap[K, V]) Remaining(key K) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expires, exists := m.expires[key]
	if !exists {
		return 0
	}

	return max(expires.Sub(m.now()), 0)
}

// Delete removes a key from the map.
func (m *TTLMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	delete(m.expires, key)
}

// Close stops the background sweeper. Safe to call multiple times.
func (m *TTLMap[K, V]) Close() {
	m.once.Do(func() {
		close(m.stop)
	})
}

// cleanup periodically removes expired entries.
func (m *TTLMap[K, V]) cleanup() {
	ticker := time.NewTicker(max(m.ttl, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			now := m.now()
			for key, expires := range m.expires {
				if !now.Before(expires) {
					delete(m.data, key)
					delete(m.expires, key)
				}
			}
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}
