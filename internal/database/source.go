// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package database

import (
	"context"

	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/tile"
)

// Source serves map tiles and same-spot lookups straight from the store,
// for deployments where the map sessions and the Point Store share a
// process.
type Source struct {
	db            *DB
	kind          models.CoordinateKind
	publishedOnly bool
}

// NewSource creates a Source for kind.
func NewSource(db *DB, kind models.CoordinateKind, publishedOnly bool) *Source {
	if kind == "" {
		kind = models.KindDeath
	}
	return &Source{db: db, kind: kind, publishedOnly: publishedOnly}
}

// ForKind returns a Source for kind sharing s's store and published flag.
func (s *Source) ForKind(kind models.CoordinateKind) *Source {
	return NewSource(s.db, kind, s.publishedOnly)
}

// Kind returns the coordinate kind s plots.
func (s *Source) Kind() models.CoordinateKind { return s.kind }

// FetchTile returns the points inside key, aggregated like the HTTP API
// would at key's zoom.
func (s *Source) FetchTile(ctx context.Context, key tile.Key) ([]models.GeoPoint, error) {
	return s.db.QueryPoints(ctx, PointQuery{
		Bounds:        key.Bounds(),
		Kind:          s.kind,
		Zoom:          key.Z,
		PublishedOnly: s.publishedOnly,
	})
}

// SameSpot returns every record within radiusMeters of (lat, lng). id is
// accepted for interface parity with the HTTP client and not used.
func (s *Source) SameSpot(ctx context.Context, lat, lng, radiusMeters float64, _ string) ([]models.GeoPoint, error) {
	return s.db.SameSpot(ctx, SameSpotQuery{
		Lat:           lat,
		Lng:           lng,
		RadiusM:       radiusMeters,
		Kind:          s.kind,
		PublishedOnly: s.publishedOnly,
	})
}
