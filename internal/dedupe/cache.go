package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

type fingerprint struct {
	sum string
	ts  time.Time
}

// Cache remembers the content fingerprint of recently indexed catalog
// records, bounded by capacity and ttl. A record is skipped only when its
// key was indexed inside the window with the same fingerprint.
type Cache struct {
	mu       sync.Mutex
	items    map[string]fingerprint
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]fingerprint, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Unchanged reports whether key was remembered inside the ttl window with
// the same fingerprint. It does not record anything; use Remember.
func (c *Cache) Unchanged(key, sum string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	fp, ok := c.items[key]
	if !ok {
		return false
	}
	return fp.sum == sum && c.now().Sub(fp.ts) <= c.ttl
}

// Remember records the fingerprint indexed for key.
func (c *Cache) Remember(key, sum string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.items[key] = fingerprint{sum: sum, ts: now}
	c.order = append(c.order, entry{key: key, ts: now})
	c.compact(now)
}

// Len returns the number of remembered keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		// a later Remember for the same key owns the map slot
		if fp, ok := c.items[oldest.key]; ok && fp.ts.Equal(oldest.ts) {
			delete(c.items, oldest.key)
		}
	}
}
