// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package cache

import (
	"math"
	"sort"
	"sync"

	"github.com/golang/geo/s2"

	"github.com/deathatlas/atlas/internal/models"
)

const (
	// EarthRadiusMeters is the mean Earth radius used for s2 angle conversion.
	EarthRadiusMeters = 6371008.8

	metersPerDegree = 111320.0

	// DefaultIndexCellMeters sizes grid cells so same-spot queries touch at
	// most a 3x3 block away from the poles.
	DefaultIndexCellMeters = 500.0
)

type cellKey struct {
	X, Y int
}

type indexedPoint struct {
	point models.GeoPoint
	cell  cellKey
}

// PointIndex holds every identified point a session has seen, keyed by ID
// and bucketed into a uniform lat/lng grid for radius queries. Points without
// an ID (server centroids) are not indexed.
type PointIndex struct {
	mu       sync.RWMutex
	cellSize float64 // degrees
	cells    map[cellKey]map[string]struct{}
	points   map[string]*indexedPoint
}

// NewPointIndex creates an index whose grid cells are roughly cellMeters wide.
func NewPointIndex(cellMeters float64) *PointIndex {
	if cellMeters <= 0 {
		cellMeters = DefaultIndexCellMeters
	}
	return &PointIndex{
		cellSize: cellMeters / metersPerDegree,
		cells:    make(map[cellKey]map[string]struct{}),
		points:   make(map[string]*indexedPoint),
	}
}

func (ix *PointIndex) cellFor(lat, lng float64) cellKey {
	return cellKey{
		X: int(math.Floor(lng / ix.cellSize)),
		Y: int(math.Floor(lat / ix.cellSize)),
	}
}

// Upsert adds or replaces points. Cluster points contribute their members.
// It returns how many IDs were new to the index.
func (ix *PointIndex) Upsert(points ...models.GeoPoint) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	added := 0
	for _, p := range points {
		if p.IsCluster {
			for _, m := range p.Members {
				if ix.upsertLocked(m) {
					added++
				}
			}
			continue
		}
		if ix.upsertLocked(p) {
			added++
		}
	}
	return added
}

func (ix *PointIndex) upsertLocked(p models.GeoPoint) bool {
	if p.ID == "" {
		return false
	}
	existing, found := ix.points[p.ID]
	if found {
		ix.removeFromCellLocked(p.ID, existing.cell)
	}
	cell := ix.cellFor(p.Lat, p.Lng)
	ix.points[p.ID] = &indexedPoint{point: p, cell: cell}

	bucket, ok := ix.cells[cell]
	if !ok {
		bucket = make(map[string]struct{}, 4)
		ix.cells[cell] = bucket
	}
	bucket[p.ID] = struct{}{}
	return !found
}

func (ix *PointIndex) removeFromCellLocked(id string, cell cellKey) {
	bucket, ok := ix.cells[cell]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(ix.cells, cell)
	}
}

// Remove drops id from the index.
func (ix *PointIndex) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.points[id]
	if !ok {
		return false
	}
	ix.removeFromCellLocked(id, e.cell)
	delete(ix.points, id)
	return true
}

// Get returns the point stored under id.
func (ix *PointIndex) Get(id string) (models.GeoPoint, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.points[id]
	if !ok {
		return models.GeoPoint{}, false
	}
	return e.point, true
}

// Len returns the number of indexed points.
func (ix *PointIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.points)
}

// Prune drops indexed points inside b whose ID is not in keep. It returns
// how many were removed.
func (ix *PointIndex) Prune(b models.Bounds, keep map[string]struct{}) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	for id, e := range ix.points {
		if _, ok := keep[id]; ok || !b.Contains(e.point.Lat, e.point.Lng) {
			continue
		}
		ix.removeFromCellLocked(id, e.cell)
		delete(ix.points, id)
		removed++
	}
	return removed
}

// Filter returns the indexed points f matches, ordered by ID.
func (ix *PointIndex) Filter(f models.Filter) []models.GeoPoint {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]models.GeoPoint, 0, len(ix.points))
	for _, e := range ix.points {
		if f.Matches(e.point) {
			out = append(out, e.point)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InBounds returns indexed points inside b that f matches, ordered by ID.
func (ix *PointIndex) InBounds(b models.Bounds, f models.Filter) []models.GeoPoint {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]models.GeoPoint, 0, len(ix.points))
	for _, e := range ix.points {
		if b.Contains(e.point.Lat, e.point.Lng) && f.Matches(e.point) {
			out = append(out, e.point)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Near returns points within radiusMeters of (lat, lng), nearest first,
// ties broken by ID.
func (ix *PointIndex) Near(lat, lng, radiusMeters float64) []models.GeoPoint {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	origin := s2.LatLngFromDegrees(lat, lng)
	type hit struct {
		p models.GeoPoint
		d float64
	}
	var hits []hit
	consider := func(e *indexedPoint) {
		d := DistanceMeters(origin, e.point.Lat, e.point.Lng)
		if d <= radiusMeters {
			hits = append(hits, hit{p: e.point, d: d})
		}
	}

	dy := int(math.Ceil(radiusMeters/metersPerDegree/ix.cellSize)) + 1
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-3 {
		for _, e := range ix.points {
			consider(e)
		}
	} else {
		dx := int(math.Ceil(radiusMeters/(metersPerDegree*cosLat)/ix.cellSize)) + 1
		center := ix.cellFor(lat, lng)
		for x := center.X - dx; x <= center.X+dx; x++ {
			for y := center.Y - dy; y <= center.Y+dy; y++ {
				for id := range ix.cells[cellKey{X: x, Y: y}] {
					consider(ix.points[id])
				}
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].d != hits[j].d {
			return hits[i].d < hits[j].d
		}
		return hits[i].p.ID < hits[j].p.ID
	})
	out := make([]models.GeoPoint, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out
}

// Clear empties the index.
func (ix *PointIndex) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.cells = make(map[cellKey]map[string]struct{})
	ix.points = make(map[string]*indexedPoint)
}

// DistanceMeters is the great-circle distance from origin to (lat, lng).
func DistanceMeters(origin s2.LatLng, lat, lng float64) float64 {
	return origin.Distance(s2.LatLngFromDegrees(lat, lng)).Radians() * EarthRadiusMeters
}
