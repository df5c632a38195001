// Package overlay proxies third-party map tile overlays, such as the daily
// NO2 layer, through the API with an in-memory cache.
package overlay

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Tile addresses one web-mercator tile of a dated layer.
type Tile struct {
	Z, X, Y int
	Date    string // YYYY-MM-DD
}

// Cache is a concurrency-safe LRU of tile bodies with a TTL.
type Cache struct {
	mu    sync.Mutex
	max   int
	ttl   time.Duration
	clock clockwork.Clock
	order *list.List // front is most recently used
	items map[Tile]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	tile   Tile
	data   []byte
	stored time.Time
}

// CacheStats reports cache occupancy and effectiveness.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewCache creates a Cache holding at most maxEntries tiles, each for at
// most ttl. A nil clock uses the real clock.
func NewCache(maxEntries int, ttl time.Duration, clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{
		max:   max(maxEntries, 1),
		ttl:   ttl,
		clock: clock,
		order: list.New(),
		items: make(map[Tile]*list.Element),
	}
}

// Get returns the cached body of t. Expired entries are evicted and count
// as misses.
func (c *Cache) Get(t Tile) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[t]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e := el.Value.(*cacheEntry)
	if c.ttl > 0 && c.clock.Since(e.stored) > c.ttl {
		c.order.Remove(el)
		delete(c.items, t)
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(el)
	c.hits.Add(1)
	return e.data, true
}

// Put stores the body of t, evicting the least recently used tile when
// full.
func (c *Cache) Put(t Tile, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if el, ok := c.items[t]; ok {
		e := el.Value.(*cacheEntry)
		e.data, e.stored = data, now
		c.order.MoveToFront(el)
		return
	}
	for c.order.Len() >= c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).tile)
	}
	c.items[t] = c.order.PushFront(&cacheEntry{tile: t, data: data, stored: now})
}

// Stats returns the current counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	n := c.order.Len()
	c.mu.Unlock()
	st := CacheStats{Entries: n, MaxEntries: c.max, Hits: c.hits.Load(), Misses: c.misses.Load()}
	if total := st.Hits + st.Misses; total > 0 {
		st.HitRate = float64(st.Hits) / float64(total)
	}
	return st
}
