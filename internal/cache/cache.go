// Package cache provides a small TTL cache keyed by an arbitrary string,
// used by the schedule provider and by the machine-translation collaborator
// for per-sentence translation results. Generalized from the per-service caches the
// teacher kept inline; this package owns the eviction loop once.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Cache is a sync.Map-backed TTL cache. The zero value is not usable;
// construct with New.
type Cache struct {
	store      sync.Map
	defaultTTL time.Duration
	stopClean  chan struct{}
	closeOnce  sync.Once
}

// New starts a Cache with the given default TTL and a background cleanup
// loop running every interval.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		defaultTTL: defaultTTL,
		stopClean:  make(chan struct{}),
	}
	go c.cleanupLoop(cleanupInterval)
	return c
}

// Key hashes parts into a single cache key, so callers don't need to worry
// about delimiter collisions between variable-length fields (e.g. a
// translated sentence that happens to contain the separator).
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached value and whether it was present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	v, ok := c.store.Load(key)
	if !ok {
		return "", false
	}
	e := v.(entry)
	if time.Now().After(e.expiresAt) {
		c.store.Delete(key)
		return "", false
	}
	return e.value, true
}

// Set stores a value under the default TTL.
func (c *Cache) Set(key, value string) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores a value with an explicit TTL.
func (c *Cache) SetTTL(key, value string, ttl time.Duration) {
	c.store.Store(key, entry{value: value, expiresAt: time.Now().Add(ttl)})
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	c.store.Delete(key)
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.store.Range(func(k, v interface{}) bool {
				if now.After(v.(entry).expiresAt) {
					c.store.Delete(k)
				}
				return true
			})
		case <-c.stopClean:
			return
		}
	}
}

// Close stops the cleanup loop.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stopClean) })
}
