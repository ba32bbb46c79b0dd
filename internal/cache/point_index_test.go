// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package cache

import (
	"testing"

	"github.com/golang/geo/s2"

	"github.com/deathatlas/atlas/internal/models"
)

func TestPointIndex_UpsertAndGet(t *testing.T) {
	ix := NewPointIndex(0)

	added := ix.Upsert(
		models.GeoPoint{ID: "a", Lat: 40, Lng: -74, Title: "First"},
		models.GeoPoint{ID: "b", Lat: 41, Lng: -73},
		models.GeoPoint{Lat: 10, Lng: 10, Count: 30}, // centroid, not indexed
	)
	if added != 2 {
		t.Errorf("Expected 2 new points, got %d", added)
	}

	// Moving a point re-buckets it.
	if n := ix.Upsert(models.GeoPoint{ID: "a", Lat: -20, Lng: 30, Title: "Moved"}); n != 0 {
		t.Errorf("Replacing an existing ID should not count as added, got %d", n)
	}
	p, ok := ix.Get("a")
	if !ok || p.Title != "Moved" {
		t.Errorf("Expected replaced point, got %+v", p)
	}
	if near := ix.Near(40, -74, 1000); len(near) != 0 {
		t.Errorf("Old position should be empty, got %d", len(near))
	}
	if ix.Len() != 2 {
		t.Errorf("Expected 2 indexed points, got %d", ix.Len())
	}
}

func TestPointIndex_UpsertClusterIndexesMembers(t *testing.T) {
	ix := NewPointIndex(0)
	cluster := models.GeoPoint{
		Lat: 1, Lng: 1, Count: 2, IsCluster: true,
		Members: []models.GeoPoint{{ID: "m1", Lat: 1, Lng: 1}, {ID: "m2", Lat: 1, Lng: 1}},
	}
	ix.Upsert(cluster)

	for _, id := range []string{"m1", "m2"} {
		if _, ok := ix.Get(id); !ok {
			t.Errorf("Expected member %s to be indexed", id)
		}
	}
}

func TestPointIndex_Near(t *testing.T) {
	ix := NewPointIndex(0)
	ix.Upsert(
		models.GeoPoint{ID: "here", Lat: 48.8584, Lng: 2.2945},
		models.GeoPoint{ID: "same", Lat: 48.8584, Lng: 2.2945},
		models.GeoPoint{ID: "three-metres", Lat: 48.85843, Lng: 2.2945},
		models.GeoPoint{ID: "far", Lat: 48.8606, Lng: 2.3376},
	)

	got := ix.Near(48.8584, 2.2945, 5)
	if len(got) != 3 {
		t.Fatalf("Expected 3 points within 5m, got %d: %+v", len(got), got)
	}
	if got[0].ID != "here" || got[1].ID != "same" || got[2].ID != "three-metres" {
		t.Errorf("Unexpected order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestPointIndex_NearAcrossCellBoundary(t *testing.T) {
	ix := NewPointIndex(100)
	// Straddle a grid line at lng 0.
	ix.Upsert(
		models.GeoPoint{ID: "west", Lat: 10, Lng: -0.00001},
		models.GeoPoint{ID: "east", Lat: 10, Lng: 0.00001},
	)
	if got := ix.Near(10, 0, 5); len(got) != 2 {
		t.Errorf("Expected both points across the cell boundary, got %d", len(got))
	}
}

func TestPointIndex_InBoundsAppliesFilter(t *testing.T) {
	ix := NewPointIndex(0)
	ix.Upsert(
		models.GeoPoint{ID: "c", Lat: 1, Lng: 1, Title: "Carol", Category: "accident"},
		models.GeoPoint{ID: "a", Lat: 2, Lng: 2, Title: "Alice", Category: "murder"},
		models.GeoPoint{ID: "b", Lat: 50, Lng: 50, Title: "Bob", Category: "murder"},
	)
	b := models.Bounds{South: 0, West: 0, North: 10, East: 10}

	all := ix.InBounds(b, models.Filter{})
	if len(all) != 2 || all[0].ID != "a" || all[1].ID != "c" {
		t.Errorf("Expected [a c], got %+v", all)
	}

	murders := ix.InBounds(b, models.Filter{Categories: []string{"murder"}})
	if len(murders) != 1 || murders[0].ID != "a" {
		t.Errorf("Expected only a, got %+v", murders)
	}
}

func TestPointIndex_RemoveAndClear(t *testing.T) {
	ix := NewPointIndex(0)
	ix.Upsert(models.GeoPoint{ID: "a", Lat: 1, Lng: 1}, models.GeoPoint{ID: "b", Lat: 1, Lng: 1})

	if !ix.Remove("a") || ix.Remove("a") {
		t.Error("Remove should succeed once")
	}
	if got := ix.Near(1, 1, 1); len(got) != 1 {
		t.Errorf("Expected 1 remaining point, got %d", len(got))
	}
	ix.Clear()
	if ix.Len() != 0 {
		t.Error("Expected empty index after Clear")
	}
}

func TestPointIndex_PruneDropsMissingInBounds(t *testing.T) {
	ix := NewPointIndex(0)
	ix.Upsert(
		models.GeoPoint{ID: "a", Lat: 10, Lng: 10, Title: "Ada"},
		models.GeoPoint{ID: "c", Lat: 10.5, Lng: 10.5, Title: "Cy Smith"},
		models.GeoPoint{ID: "far", Lat: 50, Lng: 50, Title: "Outside"},
	)

	b := models.Bounds{South: 9, West: 9, North: 11, East: 11}
	removed := ix.Prune(b, map[string]struct{}{"a": {}})
	if removed != 1 {
		t.Errorf("Expected 1 pruned point, got %d", removed)
	}
	if _, ok := ix.Get("c"); ok {
		t.Error("Missing point inside bounds should be pruned")
	}
	if _, ok := ix.Get("a"); !ok {
		t.Error("Kept point should survive")
	}
	if _, ok := ix.Get("far"); !ok {
		t.Error("Point outside bounds should survive")
	}
	if near := ix.Near(10.5, 10.5, 100); len(near) != 0 {
		t.Errorf("Pruned point should leave its cell, got %+v", near)
	}
}

func TestDistanceMeters(t *testing.T) {
	origin := s2.LatLngFromDegrees(0, 0)
	d := DistanceMeters(origin, 0, 1)
	// One degree of longitude at the equator.
	if d < 111190 || d > 111200 {
		t.Errorf("Expected ~111195m, got %v", d)
	}
	if DistanceMeters(origin, 0, 0) != 0 {
		t.Error("Expected zero distance to self")
	}
}

func TestPointIndex_AllAndFilter(t *testing.T) {
	ix := NewPointIndex(0)
	ix.Upsert(
		models.GeoPoint{ID: "z", Lat: 1, Lng: 1, Title: "Zelda Fitzgerald"},
		models.GeoPoint{ID: "m", Lat: 2, Lng: 2, Title: "Marilyn Monroe"},
	)

	all := ix.Filter(models.Filter{})
	if len(all) != 2 || all[0].ID != "m" {
		t.Errorf("Expected ID-ordered points, got %+v", all)
	}
	got := ix.Filter(models.Filter{Query: "zelda"})
	if len(got) != 1 || got[0].ID != "z" {
		t.Errorf("Expected search to match z only, got %+v", got)
	}
}
