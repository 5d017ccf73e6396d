package infra

import (
	"sync"
	"time"
)

// TTLCache is a thread-safe, fixed-capacity-free cache with per-entry
// expiration. internal/llmbreaker uses one, keyed by a hash that includes
// the bot ID, to cache completion responses for CacheTTL so an identical
// prompt within the window skips the upstream provider entirely.
type TTLCache[K comparable, V any] struct {
	mu         sync.RWMutex
	entries    map[K]*cacheEntry[V]
	defaultTTL time.Duration
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// CacheConfig configures a TTL cache.
type CacheConfig struct {
	// DefaultTTL is the time-to-live applied by Set.
	DefaultTTL time.Duration
}

// NewTTLCache creates a TTL cache, defaulting DefaultTTL to 5 minutes if
// unset.
func NewTTLCache[K comparable, V any](config CacheConfig) *TTLCache[K, V] {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}

	return &TTLCache[K, V]{
		entries:    make(map[K]*cacheEntry[V]),
		defaultTTL: config.DefaultTTL,
	}
}

// Set stores a value under the cache's default TTL.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value that expires after ttl.
func (c *TTLCache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Get returns the cached value and true, or the zero value and false if
// the key is absent or has expired. A lookup that finds an expired entry
// evicts it.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}

	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		var zero V
		return zero, false
	}

	return entry.value, true
}
