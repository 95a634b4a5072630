package client

import (
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type cacheEntry struct {
	data    []byte
	expires time.Time
}

// queryCache keeps raw response payloads keyed by query. Every
// invalidation bumps the generation so responses fetched before it are dropped
// instead of stored.
type queryCache struct {
	mu         sync.Mutex
	now        func() time.Time
	generation uint64
	items      *ttlcache.Cache[string, cacheEntry]
}

func newQueryCache(now func() time.Time) *queryCache {
	if now == nil {
		now = time.Now
	}
	return &queryCache{
		now:   now,
		items: ttlcache.New[string, cacheEntry](ttlcache.WithDisableTouchOnHit[string, cacheEntry]()),
	}
}

func (c *queryCache) get(key string) ([]byte, bool) {
	item := c.items.Get(key)
	if item == nil {
		return nil, false
	}
	// ttlcache expires on wall time; the injected clock decides freshness too.
	entry := item.Value()
	if !c.now().Before(entry.expires) {
		c.items.Delete(key)
		return nil, false
	}
	return entry.data, true
}

// begin returns the generation a fetch must present to put.
func (c *queryCache) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *queryCache) put(key string, generation uint64, data []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return false
	}
	c.items.Set(key, cacheEntry{data: data, expires: c.now().Add(ttl)}, ttl)
	return true
}

// invalidate drops every entry equal to a prefix or nested under it
// ("enrollment-status" also drops "enrollment-status:2001").
func (c *queryCache) invalidate(prefixes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	for _, key := range c.items.Keys() {
		for _, prefix := range prefixes {
			if key == prefix || strings.HasPrefix(key, prefix+":") {
				c.items.Delete(key)
				break
			}
		}
	}
}
