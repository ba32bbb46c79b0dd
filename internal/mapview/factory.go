// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package mapview

import (
	"context"
	"sync"

	"github.com/deathatlas/atlas/internal/cache"
	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/fetch"
	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/render"
)

// PointSource serves tiles and same-spot lookups for one coordinate kind.
type PointSource interface {
	fetch.TileSource
	render.SameSpotFinder
}

// SourceFunc returns the source bound to kind.
type SourceFunc func(kind models.CoordinateKind) PointSource

// Factory builds sessions that share one tile cache per coordinate kind.
// Tiles of different kinds cover the same keys with different points, so
// the caches are never shared across kinds.
type Factory struct {
	source SourceFunc
	cfg    config.MapConfig

	mu    sync.Mutex
	tiles map[models.CoordinateKind]*cache.TileCache
}

// NewFactory creates a factory for the given sources and map settings.
func NewFactory(source SourceFunc, cfg config.MapConfig) *Factory {
	return &Factory{
		source: source,
		cfg:    cfg,
		tiles:  make(map[models.CoordinateKind]*cache.TileCache),
	}
}

// Tiles returns the shared cache for kind, creating it on first use.
func (f *Factory) Tiles(kind models.CoordinateKind) *cache.TileCache {
	kind = normalizeKind(kind)

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.tiles[kind]
	if !ok {
		c = cache.NewTileCache(f.cfg.TileCacheSize)
		f.tiles[kind] = c
	}
	return c
}

// New creates a session for kind. onUpdate may be nil for one-shot use.
func (f *Factory) New(ctx context.Context, kind models.CoordinateKind, onUpdate func(RenderablePoints)) *Session {
	kind = normalizeKind(kind)
	src := f.source(kind)
	return New(ctx, Options{
		Source: src,
		Finder: src,
		Tiles:  f.Tiles(kind),
		Fetch:  fetch.ConfigFromMap(f.cfg),
		Interaction: render.InteractionConfig{
			DetailZoom:      f.cfg.DetailZoom,
			SameSpotRadiusM: f.cfg.SameSpotRadiusM,
		},
		Debounce: f.cfg.DebounceDelay,
		OnUpdate: onUpdate,
	})
}

// InvalidateTiles empties every shared tile cache and reports how many
// tiles were dropped.
func (f *Factory) InvalidateTiles() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	dropped := 0
	for _, c := range f.tiles {
		dropped += c.Len()
		c.Clear()
	}
	logging.Debug().Int("tiles", dropped).Msg("shared tile caches invalidated")
	return dropped
}

// TileStats reports the counters of every tile cache created so far.
func (f *Factory) TileStats() map[models.CoordinateKind]cache.TileCacheStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[models.CoordinateKind]cache.TileCacheStats, len(f.tiles))
	for kind, c := range f.tiles {
		out[kind] = c.Stats()
	}
	return out
}

func normalizeKind(kind models.CoordinateKind) models.CoordinateKind {
	if kind == "" {
		return models.KindDeath
	}
	return kind
}
