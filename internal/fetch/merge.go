// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package fetch

import (
	"math"
	"sort"

	"github.com/deathatlas/atlas/internal/models"
)

// MergePrecision is the number of decimal places used by the merge key.
const MergePrecision = 6

var mergeScale = math.Pow10(MergePrecision)

type mergeKey struct {
	lat, lng int64
	count    int
	id       string
}

func keyOf(p models.GeoPoint) mergeKey {
	return mergeKey{
		lat:   roundScaled(p.Lat),
		lng:   roundScaled(p.Lng),
		count: p.Weight(),
		id:    p.ID,
	}
}

func roundScaled(v float64) int64 {
	r := math.Round(v * mergeScale)
	if r == 0 {
		return 0
	}
	return int64(r)
}

// Merge unions per-tile point lists, keeping one point per merge key. The
// result does not depend on argument order: on a key collision the
// lexically smaller record wins, and the output is sorted.
func Merge(tiles ...[]models.GeoPoint) []models.GeoPoint {
	n := 0
	for _, t := range tiles {
		n += len(t)
	}
	seen := make(map[mergeKey]int, n)
	out := make([]models.GeoPoint, 0, n)

	for _, t := range tiles {
		for _, p := range t {
			k := keyOf(p)
			if i, ok := seen[k]; ok {
				if recordLess(p, out[i]) {
					out[i] = p
				}
				continue
			}
			seen[k] = len(out)
			out = append(out, p)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := keyOf(out[i]), keyOf(out[j])
		if a.lat != b.lat {
			return a.lat < b.lat
		}
		if a.lng != b.lng {
			return a.lng < b.lng
		}
		if a.id != b.id {
			return a.id < b.id
		}
		return a.count < b.count
	})
	return out
}

// recordLess orders records sharing a merge key.
func recordLess(a, b models.GeoPoint) bool {
	if a.Title != b.Title {
		return a.Title < b.Title
	}
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.Lat != b.Lat {
		return a.Lat < b.Lat
	}
	return a.Lng < b.Lng
}
