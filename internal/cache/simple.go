// Package cache provides the TTL caches used for remote template content.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL is used when Set is called without a positive TTL.
const DefaultTTL = 5 * time.Minute

type entry[T any] struct {
	value   T
	expires time.Time
}

// SimpleCache is an in-process map with per-entry expiry. Expired entries
// are removed lazily on read or eagerly through Cleanup.
type SimpleCache[T any] struct {
	mu         sync.Mutex
	items      map[string]entry[T]
	defaultTTL time.Duration
	now        func() time.Time
}

// NewSimple creates a cache whose entries live for defaultTTL unless Set is
// given an explicit TTL. A non-positive defaultTTL selects DefaultTTL.
func NewSimple[T any](defaultTTL time.Duration) *SimpleCache[T] {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &SimpleCache[T]{
		items:      make(map[string]entry[T]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Set stores value under key until now+ttl.
func (c *SimpleCache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.items[key] = entry[T]{value: value, expires: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Get returns the live value stored under key.
func (c *SimpleCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().After(e.expires) {
		delete(c.items, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Has reports whether a live value is stored under key.
func (c *SimpleCache[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (c *SimpleCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

// Clear drops every entry.
func (c *SimpleCache[T]) Clear() {
	c.mu.Lock()
	c.items = make(map[string]entry[T])
	c.mu.Unlock()
}

// Cleanup removes every expired entry.
func (c *SimpleCache[T]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.items {
		if now.After(e.expires) {
			delete(c.items, key)
		}
	}
}

// Size returns the number of live entries after a cleanup pass.
func (c *SimpleCache[T]) Size() int {
	c.Cleanup()
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
