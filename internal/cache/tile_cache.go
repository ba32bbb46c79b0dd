// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package cache

import (
	"sync"

	"github.com/deathatlas/atlas/internal/metrics"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/tile"
)

// DefaultTileCacheSize is the entry ceiling used when none is configured.
const DefaultTileCacheSize = 400

// tileEntry is a node in the insertion-order list.
type tileEntry struct {
	key    tile.Key
	points []models.GeoPoint
	prev   *tileEntry
	next   *tileEntry
}

// TileCache maps tile keys to the points last fetched for them. Once more
// than capacity keys are held, the oldest-inserted key is evicted. Get does
// not refresh an entry's position: this is a FIFO bound, not LRU.
type TileCache struct {
	mu       sync.Mutex
	capacity int
	items    map[tile.Key]*tileEntry

	// Sentinels: head.next is the newest entry, tail.prev the oldest.
	head *tileEntry
	tail *tileEntry

	// epoch advances on every Clear so writes computed before it can be
	// refused.
	epoch uint64

	hits      int64
	misses    int64
	evictions int64
}

// TileCacheStats is a snapshot of cache counters.
type TileCacheStats struct {
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// NewTileCache creates a cache holding at most capacity tiles.
func NewTileCache(capacity int) *TileCache {
	if capacity <= 0 {
		capacity = DefaultTileCacheSize
	}
	c := &TileCache{
		capacity: capacity,
		items:    make(map[tile.Key]*tileEntry, capacity),
		head:     &tileEntry{},
		tail:     &tileEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head
	return c
}

// Get returns the cached points for key. The returned slice is shared and
// must be treated as read-only.
func (c *TileCache) Get(key tile.Key) ([]models.GeoPoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		c.misses++
		metrics.TileCacheMisses.Inc()
		return nil, false
	}
	c.hits++
	metrics.TileCacheHits.Inc()
	return e.points, true
}

// Set stores points for key. Replacing an existing key keeps its original
// insertion position. A nil slice is stored as an empty, non-nil one so
// that an empty tile is still a hit.
func (c *TileCache) Set(key tile.Key, points []models.GeoPoint) {
	if points == nil {
		points = []models.GeoPoint{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, points)
}

func (c *TileCache) setLocked(key tile.Key, points []models.GeoPoint) {
	if e, ok := c.items[key]; ok {
		e.points = points
		return
	}

	e := &tileEntry{key: key, points: points}
	c.pushFront(e)
	c.items[key] = e

	for len(c.items) > c.capacity {
		c.evictOldest()
	}
	metrics.TileCacheSize.Set(float64(len(c.items)))
}

// Epoch returns the number of Clear calls so far.
func (c *TileCache) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// SetIfEpoch stores points for key only if the cache has not been cleared
// since epoch was read. It reports whether the write happened.
func (c *TileCache) SetIfEpoch(key tile.Key, points []models.GeoPoint, epoch uint64) bool {
	if points == nil {
		points = []models.GeoPoint{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return false
	}
	c.setLocked(key, points)
	return true
}

// Delete drops key if present.
func (c *TileCache) Delete(key tile.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return false
	}
	c.unlink(e)
	delete(c.items, key)
	metrics.TileCacheSize.Set(float64(len(c.items)))
	return true
}

// Clear drops every entry. Used after the point store changes.
func (c *TileCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[tile.Key]*tileEntry, c.capacity)
	c.epoch++
	c.head.next = c.tail
	c.tail.prev = c.head
	metrics.TileCacheSize.Set(0)
}

// Len returns the number of cached tiles.
func (c *TileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// keys returns cached keys from oldest to newest.
func (c *TileCache) keys() []tile.Key {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]tile.Key, 0, len(c.items))
	for e := c.tail.prev; e != c.head; e = e.prev {
		keys = append(keys, e.key)
	}
	return keys
}

// Stats returns a snapshot of the cache counters.
func (c *TileCache) Stats() TileCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TileCacheStats{
		Size:      len(c.items),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *TileCache) pushFront(e *tileEntry) {
	e.prev = c.head
	e.next = c.head.next
	c.head.next.prev = e
	c.head.next = e
}

func (c *TileCache) unlink(e *tileEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

func (c *TileCache) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.unlink(oldest)
	delete(c.items, oldest.key)
	c.evictions++
	metrics.TileCacheEvictions.Inc()
}
