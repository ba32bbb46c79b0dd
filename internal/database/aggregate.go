// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package database

import (
	"sort"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"

	"github.com/deathatlas/atlas/internal/models"
)

const (
	minAggregateLevel = 2
	maxAggregateLevel = 18
)

// AggregateLevel maps a map zoom to the S2 level whose cells are roughly
// an eighth of a tile across.
func AggregateLevel(zoom int) int {
	return min(max(zoom+3, minAggregateLevel), maxAggregateLevel)
}

type aggrUnit struct {
	sum     r3.Vector // Weighted sum of unit vectors
	cnt     int
	members []models.GeoPoint
}

// Aggregate collapses every S2 cell at AggregateLevel(zoom) holding at
// least minCount records into one centroid. The centroid is the weighted
// mean direction of its members, has no ID and carries the record count.
// Cells below minCount keep their members. Output is ordered by cell, then
// by ID within a cell.
func Aggregate(points []models.GeoPoint, zoom, minCount int) []models.GeoPoint {
	if len(points) == 0 {
		return points
	}
	level := AggregateLevel(zoom)

	units := make(map[s2.CellID]*aggrUnit)
	for _, p := range points {
		ll := s2.LatLngFromDegrees(p.Lat, p.Lng)
		cell := s2.CellIDFromLatLng(ll).Parent(level)
		u, ok := units[cell]
		if !ok {
			u = &aggrUnit{}
			units[cell] = u
		}
		w := p.Weight()
		u.sum = u.sum.Add(s2.PointFromLatLng(ll).Vector.Mul(float64(w)))
		u.cnt += w
		u.members = append(u.members, p)
	}

	cells := make([]s2.CellID, 0, len(units))
	for c := range units {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

	out := make([]models.GeoPoint, 0, len(points))
	for _, c := range cells {
		u := units[c]
		if u.cnt < minCount || len(u.members) < 2 {
			sort.SliceStable(u.members, func(i, j int) bool { return u.members[i].ID < u.members[j].ID })
			out = append(out, u.members...)
			continue
		}

		var ll s2.LatLng
		if u.sum.Norm() == 0 {
			ll = c.LatLng()
		} else {
			ll = s2.LatLngFromPoint(s2.Point{Vector: u.sum.Normalize()})
		}
		out = append(out, models.GeoPoint{
			Lat:   ll.Lat.Degrees(),
			Lng:   ll.Lng.Degrees(),
			Kind:  u.members[0].Kind,
			Count: u.cnt,
		})
	}
	return out
}
