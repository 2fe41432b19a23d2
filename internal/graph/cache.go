package graph

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value  interface{}
	expiry time.Time
}

// TTLCache is an explicit key -> (value, expiry) cache for KGS reads. Writes
// to the store must call Invalidate for the affected keys before they
// commit. Fills are generation-checked: capture Generation before the
// backing lookup and pass it to Set, so a fill that raced an invalidation
// is dropped instead of caching a stale read until TTL expiry.
type TTLCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]cacheEntry
	gens  map[string]uint64

	// now is swappable for tests.
	now func() time.Time
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		ttl:   ttl,
		items: make(map[string]cacheEntry),
		gens:  make(map[string]uint64),
		now:   time.Now,
	}
}

func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiry) {
		delete(c.items, key)
		return nil, false
	}
	return entry.value, true
}

// Generation returns the invalidation counter for a key.
func (c *TTLCache) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

// Set stores the value unless the key was invalidated after gen was
// captured.
func (c *TTLCache) Set(key string, value interface{}, gen uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return
	}
	c.items[key] = cacheEntry{value: value, expiry: c.now().Add(c.ttl)}
}

func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	delete(c.items, key)
}
