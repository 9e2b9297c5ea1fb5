package lookup

import (
	"sync"
	"time"
)

type localEntry struct {
	result    Result
	expiresAt time.Time
}

// localCache is a small in-process layer in front of the shared cache. It
// absorbs the burst of lookups a multi-page job generates without a network
// round trip per page.
type localCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]localEntry
	now     func() time.Time
}

func newLocalCache(ttl time.Duration) *localCache {
	return &localCache{
		ttl:     ttl,
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

func (c *localCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Result{}, false
	}
	return entry.result, true
}

func (c *localCache) set(key string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{result: result, expiresAt: c.now().Add(c.ttl)}
}
