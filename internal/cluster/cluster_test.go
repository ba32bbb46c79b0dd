// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package cluster

import (
	"fmt"
	"math/rand"
	"reflect"
	"sort"
	"testing"

	"github.com/deathatlas/atlas/internal/models"
)

func TestCluster_Empty(t *testing.T) {
	if got := Cluster(nil); got == nil || len(got) != 0 {
		t.Errorf("Expected empty non-nil slice, got %#v", got)
	}
}

func TestCluster_SubMetreScenario(t *testing.T) {
	points := []models.GeoPoint{
		{ID: "b", Lat: 40.0000001, Lng: -74.0000001, Title: "Bravo"},
		{ID: "a", Lat: 40.0000002, Lng: -74.0000002, Title: "Alpha"},
		{ID: "c", Lat: 41.0, Lng: -75.0, Title: "Charlie"},
	}

	got := Cluster(points)
	if len(got) != 2 {
		t.Fatalf("Expected 2 pins, got %d: %+v", len(got), got)
	}

	c := got[0]
	if !c.IsCluster || c.Count != 2 {
		t.Fatalf("Expected cluster of 2 first, got %+v", c)
	}
	if c.Members[0].Title != "Alpha" || c.Members[1].Title != "Bravo" {
		t.Errorf("Members not sorted by name: %s, %s", c.Members[0].Title, c.Members[1].Title)
	}
	if c.Lat != 40.0000002 || c.Lng != -74.0000002 {
		t.Errorf("Expected cluster at first sorted member, got (%v, %v)", c.Lat, c.Lng)
	}

	if got[1].IsCluster || got[1].ID != "c" {
		t.Errorf("Expected singleton c, got %+v", got[1])
	}
}

func TestCluster_AllSameCoordinate(t *testing.T) {
	var points []models.GeoPoint
	for i := 9; i >= 0; i-- {
		points = append(points, models.GeoPoint{ID: fmt.Sprint(i), Lat: 51.5, Lng: -0.12, Title: fmt.Sprintf("Person %d", i)})
	}

	got := Cluster(points)
	if len(got) != 1 || got[0].Count != 10 || len(got[0].Members) != 10 {
		t.Fatalf("Expected one cluster of 10, got %+v", got)
	}
	if got[0].Members[0].Title != "Person 0" {
		t.Errorf("Expected Person 0 first, got %s", got[0].Members[0].Title)
	}
}

func TestCluster_DistinctNearbyNotMerged(t *testing.T) {
	// About 2 metres apart: different buckets.
	points := []models.GeoPoint{
		{ID: "a", Lat: 48.85840, Lng: 2.29450},
		{ID: "b", Lat: 48.85842, Lng: 2.29450},
	}
	if got := Cluster(points); len(got) != 2 {
		t.Errorf("Expected no merge of distinct coordinates, got %d pins", len(got))
	}
}

func TestCluster_CategoryOnlyWhenShared(t *testing.T) {
	same := Cluster([]models.GeoPoint{
		{ID: "a", Lat: 1, Lng: 1, Category: "battle"},
		{ID: "b", Lat: 1, Lng: 1, Category: "battle"},
	})
	mixed := Cluster([]models.GeoPoint{
		{ID: "a", Lat: 1, Lng: 1, Category: "battle"},
		{ID: "b", Lat: 1, Lng: 1, Category: "accident"},
	})
	if same[0].Category != "battle" {
		t.Errorf("Expected shared category, got %q", same[0].Category)
	}
	if mixed[0].Category != "" {
		t.Errorf("Expected empty category for mixed cluster, got %q", mixed[0].Category)
	}
}

func randomPoints(r *rand.Rand, n int) []models.GeoPoint {
	// A small coordinate pool forces collisions.
	pool := [][2]float64{
		{40.7128, -74.0060}, {40.71280004, -74.00600003}, {34.0522, -118.2437},
		{-33.8688, 151.2093}, {0, 0}, {-0.000001, 0.000001}, {89.99999, 179.99999},
	}
	points := make([]models.GeoPoint, n)
	for i := range points {
		c := pool[r.Intn(len(pool))]
		points[i] = models.GeoPoint{
			ID:    fmt.Sprintf("p%03d", i),
			Lat:   c[0],
			Lng:   c[1],
			Title: fmt.Sprintf("name-%d", r.Intn(5)),
		}
	}
	return points
}

func TestCluster_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		points := randomPoints(r, 1+r.Intn(40))
		once := Cluster(points)
		twice := Cluster(Flatten(once))
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("trial %d: clustering not idempotent\nonce:  %+v\ntwice: %+v", trial, once, twice)
		}
		if direct := Cluster(once); !reflect.DeepEqual(once, direct) {
			t.Fatalf("trial %d: clustering cluster output changed it", trial)
		}
	}
}

func TestCluster_NoPointDroppedOrDuplicated(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	for trial := 0; trial < 50; trial++ {
		points := randomPoints(r, r.Intn(60))
		out := Cluster(points)

		var ids []string
		for _, p := range Flatten(out) {
			ids = append(ids, p.ID)
		}
		var want []string
		for _, p := range points {
			want = append(want, p.ID)
		}
		sort.Strings(ids)
		sort.Strings(want)
		if !reflect.DeepEqual(ids, want) {
			t.Fatalf("trial %d: flattened IDs differ from input", trial)
		}

		for _, p := range out {
			if !p.IsCluster {
				continue
			}
			if p.Count != len(p.Members) || p.Count < 2 {
				t.Errorf("Cluster count %d does not match %d members", p.Count, len(p.Members))
			}
			key := BucketKey(p.Lat, p.Lng)
			for _, m := range p.Members {
				if BucketKey(m.Lat, m.Lng) != key {
					t.Errorf("Member %s outside cluster bucket %s", m.ID, key)
				}
			}
			// Every input point in this bucket is a member.
			inBucket := 0
			for _, in := range points {
				if BucketKey(in.Lat, in.Lng) == key {
					inBucket++
				}
			}
			if inBucket != p.Count {
				t.Errorf("Bucket %s holds %d inputs, cluster has %d", key, inBucket, p.Count)
			}
		}
	}
}

func TestBucketKey(t *testing.T) {
	tests := []struct {
		name       string
		a, b       [2]float64
		wantSameKy bool
	}{
		{"float noise", [2]float64{40.0000001, -74.0000001}, [2]float64{40.0000002, -74.0000002}, true},
		{"negative zero", [2]float64{-0.000001, -0.000001}, [2]float64{0, 0}, true},
		{"one metre apart", [2]float64{10.00001, 10}, [2]float64{10.00002, 10}, false},
		{"hemisphere", [2]float64{1, 1}, [2]float64{-1, -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			same := BucketKey(tt.a[0], tt.a[1]) == BucketKey(tt.b[0], tt.b[1])
			if same != tt.wantSameKy {
				t.Errorf("BucketKey equality = %v, want %v", same, tt.wantSameKy)
			}
		})
	}
}

func TestTotal(t *testing.T) {
	points := []models.GeoPoint{
		{ID: "a", Lat: 1, Lng: 1},
		{ID: "b", Lat: 1, Lng: 1},
		{Lat: 5, Lng: 5, Count: 40},
	}
	if got := Total(Cluster(points)); got != 42 {
		t.Errorf("Expected 42 records, got %d", got)
	}
}
