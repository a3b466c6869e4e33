// Package cache provides a small in-memory TTL cache used for profile
// snapshot lookups on the data-import hot path.
package cache

import (
	"sync"
	"time"
)

// Cache is the read-through interface handed to consumers.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

type entry[V any] struct {
	value     V
	expiresAt int64 // unix nanos, 0 = no expiry
}

// TTLCache stores values in-memory with per-entry TTLs. Expired entries are
// dropped lazily on read and swept opportunistically on write.
type TTLCache[K comparable, V any] struct {
	mu     sync.RWMutex
	items  map[K]entry[V]
	writes int
}

// sweep cadence in writes between full scans
const sweepEvery = 256

func NewTTLCache[K comparable, V any]() *TTLCache[K, V] {
	return &TTLCache[K, V]{items: make(map[K]entry[V])}
}

func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if e.expiresAt != 0 && time.Now().UnixNano() > e.expiresAt {
		c.Delete(key)
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.writes++
	if c.writes%sweepEvery == 0 {
		now := time.Now().UnixNano()
		for k, e := range c.items {
			if e.expiresAt != 0 && now > e.expiresAt {
				delete(c.items, k)
			}
		}
	}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(key K) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// NoopCache always misses; used where caching is disabled.
type NoopCache[K comparable, V any] struct{}

func (NoopCache[K, V]) Get(key K) (V, bool) {
	var zero V
	return zero, false
}

func (NoopCache[K, V]) Set(key K, value V, ttl time.Duration) {}

func (NoopCache[K, V]) Delete(key K) {}
