// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package cluster

import (
	"math"
	"sort"
	"strconv"

	"github.com/deathatlas/atlas/internal/metrics"
	"github.com/deathatlas/atlas/internal/models"
)

// Precision is the number of decimal places coordinates are rounded to
// before grouping.
const Precision = 5

var scale = math.Pow10(Precision)

// BucketKey returns the grouping key for a coordinate.
func BucketKey(lat, lng float64) string {
	return strconv.FormatInt(round(lat), 10) + ":" + strconv.FormatInt(round(lng), 10)
}

func round(v float64) int64 {
	r := math.Round(v * scale)
	if r == 0 {
		return 0 // fold -0
	}
	return int64(r)
}

// Cluster groups points by rounded coordinate. Groups appear in order of
// their first member's position in the input. Cluster points already present
// in the input are expanded first, so Cluster(Cluster(p)) == Cluster(p).
func Cluster(points []models.GeoPoint) []models.GeoPoint {
	if len(points) == 0 {
		return []models.GeoPoint{}
	}

	var (
		order  []string
		groups = make(map[string][]models.GeoPoint)
	)
	add := func(p models.GeoPoint) {
		k := BucketKey(p.Lat, p.Lng)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}
	for _, p := range points {
		if p.IsCluster {
			for _, m := range p.Members {
				add(m)
			}
			continue
		}
		add(p)
	}

	out := make([]models.GeoPoint, 0, len(order))
	built := 0
	for _, k := range order {
		g := groups[k]
		if len(g) == 1 {
			out = append(out, g[0])
			continue
		}
		out = append(out, newCluster(g))
		built++
	}
	if built > 0 {
		metrics.ClustersBuilt.Add(float64(built))
	}
	return out
}

// newCluster builds the synthetic pin for a group of two or more points. It
// sits at the first member's coordinate after sorting, which keeps the
// position stable when the group is flattened and clustered again.
func newCluster(group []models.GeoPoint) models.GeoPoint {
	members := make([]models.GeoPoint, len(group))
	copy(members, group)
	SortMembers(members)

	first := members[0]
	c := models.GeoPoint{
		Lat:       first.Lat,
		Lng:       first.Lng,
		Kind:      first.Kind,
		Count:     len(members),
		IsCluster: true,
		Members:   members,
	}
	category := first.Category
	for _, m := range members[1:] {
		if m.Category != category {
			category = ""
			break
		}
	}
	c.Category = category
	return c
}

// SortMembers orders points by display name, then ID, then coordinate.
func SortMembers(ps []models.GeoPoint) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if an, bn := a.DisplayName(), b.DisplayName(); an != bn {
			return an < bn
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Lat != b.Lat {
			return a.Lat < b.Lat
		}
		return a.Lng < b.Lng
	})
}

// Flatten expands cluster points into their members, preserving order.
func Flatten(points []models.GeoPoint) []models.GeoPoint {
	n := 0
	for _, p := range points {
		if p.IsCluster {
			n += len(p.Members)
		} else {
			n++
		}
	}
	out := make([]models.GeoPoint, 0, n)
	for _, p := range points {
		if p.IsCluster {
			out = append(out, p.Members...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Total returns the number of records represented by points, counting
// centroid weights and cluster members.
func Total(points []models.GeoPoint) int {
	n := 0
	for _, p := range points {
		if p.IsCluster {
			n += Total(p.Members)
			continue
		}
		n += p.Weight()
	}
	return n
}
