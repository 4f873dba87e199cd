package cache

import (
	"sync"
	"time"
)

// TTL constants for device data
const (
	// Invocation - one resolution run; device numbers may be reused after that
	TTLInvocation = 30 * time.Second

	// Topology - geom mesh, dm tables; changes only when storage is reconfigured
	TTLTopology = 5 * time.Second
)

// Entry holds a cached value with expiration
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
	FetchedAt time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache provides thread-safe TTL-based memoisation. Instances are owned by
// the client that fills them; there is no process-wide cache.
type Cache[K comparable, V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[K]*Entry[V]
}

// New creates a cache whose entries live for ttl
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[K]*Entry[V]),
	}
}

// Get retrieves a value, reporting false if expired or not found
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || entry.IsExpired(c.now()) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores a value with the cache TTL, dropping entries that have
// expired since the last store.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)
	c.entries[key] = &Entry[V]{
		Value:     value,
		ExpiresAt: now.Add(c.ttl),
		FetchedAt: now,
	}
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// sweep removes expired entries. Callers hold the write lock.
func (c *Cache[K, V]) sweep(now time.Time) {
	for k, v := range c.entries {
		if v.IsExpired(now) {
			delete(c.entries, k)
		}
	}
}
