// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/golang/geo/s2"

	"github.com/deathatlas/atlas/internal/database/query"
	"github.com/deathatlas/atlas/internal/metrics"
	"github.com/deathatlas/atlas/internal/models"
)

// Same-spot radius limits in meters.
const (
	DefaultSameSpotRadiusM = 5.0
	MaxSameSpotRadiusM     = 50.0
)

// earthRadiusMeters is the IUGG mean radius.
const earthRadiusMeters = 6371008.8

type coordColumns struct {
	lat, lng string
}

var kindColumns = map[models.CoordinateKind]coordColumns{
	models.KindDeath:   {"death_lat", "death_lng"},
	models.KindBurial:  {"burial_lat", "burial_lng"},
	models.KindMissing: {"last_seen_lat", "last_seen_lng"},
}

func columnsFor(kind models.CoordinateKind) coordColumns {
	if c, ok := kindColumns[kind]; ok {
		return c
	}
	return kindColumns[models.KindDeath]
}

// PointQuery selects the points of one kind inside a rectangle.
type PointQuery struct {
	Bounds        models.Bounds
	Kind          models.CoordinateKind
	Zoom          int // Negative disables aggregation
	PublishedOnly bool
	Limit         int // Zero means the store's limit
}

// QueryPoints returns the points q selects, ordered by ID. Below the
// aggregation zoom the result is passed through Aggregate, and the scan may
// read up to ten times the row limit so centroid counts stay meaningful.
func (db *DB) QueryPoints(ctx context.Context, q PointQuery) ([]models.GeoPoint, error) {
	if q.Kind == "" {
		q.Kind = models.KindDeath
	}
	aggregate := q.Zoom >= 0 && q.Zoom < db.aggregateBelow

	limit := db.queryLimit
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}
	if aggregate {
		limit *= 10
	}

	cols := columnsFor(q.Kind)
	wb := query.NewWhereBuilder()
	wb.AddNotNull(cols.lat, cols.lng)
	wb.AddBounds(cols.lat, cols.lng, q.Bounds.South, q.Bounds.West, q.Bounds.North, q.Bounds.East)
	if q.PublishedOnly {
		wb.AddEquals("published", true)
	}

	points, err := db.selectPoints(ctx, "query_points", cols, q.Kind, wb, limit)
	if err != nil {
		return nil, err
	}
	if aggregate {
		points = Aggregate(points, q.Zoom, db.aggregateMin)
	}
	return points, nil
}

// SameSpotQuery selects every record within RadiusM of a coordinate.
type SameSpotQuery struct {
	Lat, Lng      float64
	RadiusM       float64
	Kind          models.CoordinateKind
	PublishedOnly bool
}

// ClampSameSpotRadius bounds r to (0, MaxSameSpotRadiusM], defaulting
// non-positive values.
func ClampSameSpotRadius(r float64) float64 {
	if r <= 0 || math.IsNaN(r) {
		return DefaultSameSpotRadiusM
	}
	return math.Min(r, MaxSameSpotRadiusM)
}

// SameSpot returns the records within the radius, nearest first and then
// by ID.
func (db *DB) SameSpot(ctx context.Context, q SameSpotQuery) ([]models.GeoPoint, error) {
	if q.Kind == "" {
		q.Kind = models.KindDeath
	}
	radius := ClampSameSpotRadius(q.RadiusM)

	dLat := radius / earthRadiusMeters * 180 / math.Pi
	dLng := 180.0
	if c := math.Cos(q.Lat * math.Pi / 180); c > 1e-6 {
		dLng = math.Min(dLat/c, 180)
	}

	cols := columnsFor(q.Kind)
	wb := query.NewWhereBuilder()
	wb.AddNotNull(cols.lat, cols.lng)
	wb.AddBounds(cols.lat, cols.lng, q.Lat-dLat, q.Lng-dLng, q.Lat+dLat, q.Lng+dLng)
	if q.PublishedOnly {
		wb.AddEquals("published", true)
	}

	candidates, err := db.selectPoints(ctx, "same_spot", cols, q.Kind, wb, db.queryLimit)
	if err != nil {
		return nil, err
	}

	origin := s2.LatLngFromDegrees(q.Lat, q.Lng)
	type hit struct {
		p models.GeoPoint
		d float64
	}
	hits := make([]hit, 0, len(candidates))
	for _, p := range candidates {
		d := origin.Distance(s2.LatLngFromDegrees(p.Lat, p.Lng)).Radians() * earthRadiusMeters
		if d <= radius {
			hits = append(hits, hit{p, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].d != hits[j].d {
			return hits[i].d < hits[j].d
		}
		return hits[i].p.ID < hits[j].p.ID
	})

	out := make([]models.GeoPoint, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out, nil
}

func (db *DB) selectPoints(ctx context.Context, op string, cols coordColumns, kind models.CoordinateKind, wb *query.WhereBuilder, limit int) (out []models.GeoPoint, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery(op, time.Since(start), err) }()

	where, args := wb.BuildWithPrefix()
	stmt := fmt.Sprintf(`
		SELECT id, title, category, death_date, %s, %s, source_url, wikidata_id, confidence, coord_source
		FROM death_locations
		%s
		ORDER BY id
		LIMIT %d`, cols.lat, cols.lng, where, limit)

	rows, err := db.conn.QueryContext(ctx, db.bind(stmt), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", classifyError(err))
	}
	defer closeWithLog(rows, "rows")

	for rows.Next() {
		var (
			p          models.GeoPoint
			meta       models.PointMeta
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.Title, &p.Category, &p.Date, &p.Lat, &p.Lng,
			&meta.SourceURL, &meta.WikidataID, &confidence, &meta.CoordSource); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		if confidence.Valid {
			meta.Confidence = confidence.Float64
		}
		if meta != (models.PointMeta{}) {
			m := meta
			p.Meta = &m
		}
		p.Kind = kind
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate points: %w", classifyError(err))
	}
	return out, nil
}
