// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deathatlas/atlas/internal/cache"
	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/metrics"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/pointsource"
	"github.com/deathatlas/atlas/internal/tile"
)

// ErrRefreshSuperseded is returned by a refresh that a newer one replaced.
// It is not a user-facing error.
var ErrRefreshSuperseded = errors.New("refresh superseded by a newer viewport")

// TileSource fetches the points inside one tile.
type TileSource interface {
	FetchTile(ctx context.Context, key tile.Key) ([]models.GeoPoint, error)
}

// Config tunes a Coordinator.
type Config struct {
	Ring          int           // Tiles of padding on each side
	TileTimeout   time.Duration // Deadline for one tile request
	MaxConcurrent int           // Tile requests in flight per refresh
	MaxTiles      int           // Zoom is lowered until the tile set fits
	MaxTileZoom   int           // Tile zoom never exceeds this
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		Ring:          1,
		TileTimeout:   8 * time.Second,
		MaxConcurrent: 9,
		MaxTiles:      64,
		MaxTileZoom:   14,
	}
}

// ConfigFromMap converts the loaded map configuration.
func ConfigFromMap(m config.MapConfig) Config {
	return Config{
		Ring:          m.RingPadding,
		TileTimeout:   m.TileTimeout,
		MaxConcurrent: m.MaxConcurrentTiles,
		MaxTiles:      m.MaxTiles,
		MaxTileZoom:   m.MaxTileZoom,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Ring < 0 {
		c.Ring = 0
	}
	if c.TileTimeout <= 0 {
		c.TileTimeout = d.TileTimeout
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.MaxTiles <= 0 {
		c.MaxTiles = d.MaxTiles
	}
	if c.MaxTileZoom <= 0 || c.MaxTileZoom > models.MaxZoom {
		c.MaxTileZoom = models.MaxZoom
	}
	return c
}

// Result is the outcome of one committed refresh.
type Result struct {
	Generation  uint64
	Zoom        int // Tile zoom actually fetched
	Tiles       []tile.Key
	Points      []models.GeoPoint
	FailedTiles int
	Failures    []*pointsource.TileFetchError
	CacheHits   int
	Duration    time.Duration
}

// Coordinator runs refreshes against a TileSource through a TileCache.
type Coordinator struct {
	source TileSource
	cache  *cache.TileCache
	cfg    Config

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
}

// New creates a coordinator. A nil cache gets a default-sized one.
func New(source TileSource, tiles *cache.TileCache, cfg Config) *Coordinator {
	if tiles == nil {
		tiles = cache.NewTileCache(cache.DefaultTileCacheSize)
	}
	return &Coordinator{
		source: source,
		cache:  tiles,
		cfg:    cfg.withDefaults(),
	}
}

// Cache returns the tile cache the coordinator writes to.
func (c *Coordinator) Cache() *cache.TileCache { return c.cache }

// Generation returns the number of the latest refresh started.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// IsCurrent reports whether gen is still the latest refresh.
func (c *Coordinator) IsCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// Cancel supersedes any in-flight refresh without starting a new one.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Plan returns the tile zoom and tile set a refresh of v at zoom would use.
func (c *Coordinator) Plan(v models.Viewport, zoom int) (int, []tile.Key) {
	z := tile.ClampZoom(zoom)
	if z > c.cfg.MaxTileZoom {
		z = c.cfg.MaxTileZoom
	}
	b := v.Bounds()
	for z > 0 && tile.CountCovering(b, z, c.cfg.Ring) > c.cfg.MaxTiles {
		z--
	}
	return z, tile.CoveringBounds(b, z, c.cfg.Ring)
}

func (c *Coordinator) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.generation++
	rctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return c.generation, rctx, cancel
}

func (c *Coordinator) finish(gen uint64, cancel context.CancelFunc) {
	c.mu.Lock()
	if c.generation == gen {
		c.cancel = nil
	}
	c.mu.Unlock()
	cancel()
}

// Refresh fetches and merges the points for v at zoom. It returns
// ErrRefreshSuperseded when another Refresh or Cancel happened before it
// finished, and ctx's error when ctx ended first.
func (c *Coordinator) Refresh(ctx context.Context, v models.Viewport, zoom int) (*Result, error) {
	start := time.Now()
	gen, rctx, cancel := c.begin(ctx)
	defer c.finish(gen, cancel)

	z, keys := c.Plan(v, zoom)
	log := logging.Ctx(ctx).With().Uint64("generation", gen).Int("tile_zoom", z).Int("tiles", len(keys)).Logger()

	lists := make([][]models.GeoPoint, len(keys))
	errs := make([]error, len(keys))
	hits := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(rctx)
	g.SetLimit(c.cfg.MaxConcurrent)
	for i, key := range keys {
		if cached, ok := c.cache.Get(key); ok {
			lists[i] = cached
			hits[i] = true
			continue
		}
		g.Go(func() error {
			lists[i], errs[i] = c.fetchTile(gctx, gen, key)
			return nil
		})
	}
	_ = g.Wait()

	if !c.IsCurrent(gen) {
		metrics.RecordRefresh(false, 0, 0)
		log.Debug().Msg("Refresh superseded")
		return nil, ErrRefreshSuperseded
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refresh aborted: %w", err)
	}

	res := &Result{Generation: gen, Zoom: z, Tiles: keys}
	for i, err := range errs {
		if hits[i] {
			res.CacheHits++
		}
		if err == nil {
			continue
		}
		tfe := pointsource.AsTileFetchError(keys[i], err)
		res.FailedTiles++
		res.Failures = append(res.Failures, tfe)
		log.Warn().Err(tfe).Str("tile", keys[i].String()).Str("reason", tfe.Reason).Msg("Tile fetch failed, rendering without it")
	}
	res.Points = Merge(lists...)
	res.Duration = time.Since(start)

	metrics.RecordRefresh(true, res.Duration, len(res.Points))
	log.Debug().
		Int("points", len(res.Points)).
		Int("cache_hits", res.CacheHits).
		Int("failed_tiles", res.FailedTiles).
		Dur("duration", res.Duration).
		Msg("Refresh complete")
	return res, nil
}

// fetchTile requests one tile under the tile timeout and caches the result
// if gen is still current when it arrives and the cache was not cleared
// while the request was in flight.
func (c *Coordinator) fetchTile(ctx context.Context, gen uint64, key tile.Key) ([]models.GeoPoint, error) {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.TileTimeout)
	defer cancel()

	epoch := c.cache.Epoch()
	start := time.Now()
	points, err := c.source.FetchTile(tctx, key)
	if err != nil {
		if ctx.Err() != nil {
			// Superseded or caller gone; not a tile failure.
			return nil, nil
		}
		tfe := pointsource.AsTileFetchError(key, err)
		metrics.RecordTileFetch(time.Since(start), true, tfe.Reason)
		return nil, tfe
	}
	metrics.RecordTileFetch(time.Since(start), false, "")

	valid := make([]models.GeoPoint, 0, len(points))
	dropped := 0
	for _, p := range points {
		if p.Validate() != nil {
			dropped++
			continue
		}
		valid = append(valid, p)
	}
	metrics.RecordInvalidPoints("fetch", dropped)

	if c.IsCurrent(gen) && !c.cache.SetIfEpoch(key, valid, epoch) {
		logging.Ctx(ctx).Debug().Str("tile", key.String()).Msg("Tile cache cleared during fetch, result not cached")
	}
	return valid, nil
}
