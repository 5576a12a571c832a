// Package lrucache provides a bounded in-memory cache backed by a
// hashicorp/golang-lru LRU with per-entry TTL expiry.
//
// It implements the realtime.Cache interface and is the default cache for
// revoked tokens and session activity when no persistence is configured.
package lrucache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coregx/realtime"
)

// DefaultCapacity bounds the cache when no explicit capacity is given.
const DefaultCapacity = 10000

type entry struct {
	value   any
	expires time.Time // zero means never
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// Cache is a bounded in-memory realtime.Cache. Least recently used entries
// are evicted when the capacity is reached; expired entries are dropped
// lazily on read.
//
// NoPersist options are accepted and ignored: the cache is memory-only.
type Cache struct {
	entries *lru.Cache[string, entry]
	now     func() time.Time
}

// New creates a cache bounded to the given capacity. A capacity below 1
// falls back to DefaultCapacity.
func New(capacity int) (*Cache, error) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	entries, err := lru.New[string, entry](capacity)
	if err != nil {
		return nil, realtime.NewErrorWithCause(realtime.ErrCodeConfiguration, "failed to create lru cache", err)
	}
	return &Cache{
		entries: entries,
		now:     time.Now,
	}, nil
}

// Get retrieves the value stored under key, reporting presence. An expired
// entry is removed and reported absent.
func (c *Cache) Get(key string) (any, bool, error) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(c.now()) {
		c.entries.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key, expiring it after opts.TTL when set.
func (c *Cache) Set(key string, value any, opts realtime.CacheSetOptions) error {
	e := entry{value: value}
	if opts.TTL > 0 {
		e.expires = c.now().Add(opts.TTL)
	}
	c.entries.Add(key, e)
	return nil
}

// Remove deletes the entry under key.
func (c *Cache) Remove(key string, opts realtime.CacheRemoveOptions) error {
	c.entries.Remove(key)
	return nil
}

// Keys returns the unexpired keys currently stored, in LRU order.
func (c *Cache) Keys() []string {
	now := c.now()
	keys := make([]string, 0, c.entries.Len())
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && !e.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Clear removes all entries.
func (c *Cache) Clear() error {
	c.entries.Purge()
	return nil
}
