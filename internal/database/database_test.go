// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/tile"
)

// testDBSemaphore serializes DuckDB instances across parallel tests.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := New(&config.DatabaseConfig{
		Driver:             DriverDuckDB,
		Path:               ":memory:",
		MaxMemory:          "512MB",
		Threads:            2,
		AggregateBelowZoom: 6,
		AggregateMinCount:  3,
		QueryLimit:         1000,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func seed(t *testing.T, db *DB, rows ...models.RawRow) IngestResult {
	t.Helper()
	res, err := db.Ingest(context.Background(), rows)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	return res
}

var nyc = models.Bounds{South: 40.5, West: -74.3, North: 40.9, East: -73.7}

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(&config.DatabaseConfig{Driver: "oracle"}); err == nil {
		t.Fatal("Expected error for unsupported driver")
	}
}

func TestIngest_AcceptsAndRejects(t *testing.T) {
	db := setupTestDB(t)

	res := seed(t, db,
		models.RawRow{"id": "Q1", "name": "Ada", "death_lat": 40.7128, "death_lng": -74.006},
		models.RawRow{"qid": 42, "title": "Numeric", "lat": "40.71", "lon": "-74.01"},
		models.RawRow{"title": "No id", "lat": 1, "lng": 1},
		models.RawRow{"id": "Q3", "death_lat": 91, "death_lng": 0},
		models.RawRow{"id": "Q4", "burial_lat": 48.8566, "burial_lng": 2.3522},
	)

	if res.Received != 5 || res.Accepted != 3 {
		t.Errorf("result = %+v, want 5 received and 3 accepted", res)
	}
	if len(res.Rejected) != 2 {
		t.Fatalf("rejected = %+v, want 2 rows", res.Rejected)
	}
	if res.Rejected[0].Index != 2 || res.Rejected[1].ID != "Q3" {
		t.Errorf("rejected = %+v, want rows 2 and Q3", res.Rejected)
	}

	counts, err := db.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts.Total != 3 || counts.Death != 2 || counts.Burial != 1 || counts.Published != 3 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestQueryPoints_ByKind(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db,
		models.RawRow{"id": "a", "title": "Ada", "death_lat": 40.7, "death_lng": -74.0, "burial_lat": 40.8, "burial_lng": -73.9},
		models.RawRow{"id": "b", "title": "Bea", "lat": 40.6, "lng": -74.1, "category": "accident"},
		models.RawRow{"id": "c", "title": "Cy", "last_seen_lat": 40.75, "last_seen_lng": -73.95},
		models.RawRow{"id": "d", "title": "Far", "lat": 10, "lng": 10},
	)
	ctx := context.Background()

	tests := []struct {
		kind models.CoordinateKind
		want []string
	}{
		{models.KindDeath, []string{"a", "b"}},
		{models.KindBurial, []string{"a"}},
		{models.KindMissing, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got, err := db.QueryPoints(ctx, PointQuery{Bounds: nyc, Kind: tt.kind, Zoom: 12})
			if err != nil {
				t.Fatalf("QueryPoints() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d points, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id || got[i].Kind != tt.kind {
					t.Errorf("point %d = %s/%s, want %s/%s", i, got[i].ID, got[i].Kind, id, tt.kind)
				}
			}
		})
	}

	got, _ := db.QueryPoints(ctx, PointQuery{Bounds: nyc, Kind: models.KindBurial, Zoom: 12})
	if len(got) == 1 && (got[0].Lat != 40.8 || got[0].Lng != -73.9) {
		t.Errorf("burial point at (%v,%v), want (40.8,-73.9)", got[0].Lat, got[0].Lng)
	}
}

func TestQueryPoints_PublishedOnly(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db,
		models.RawRow{"id": "pub", "lat": 40.7, "lng": -74.0},
		models.RawRow{"id": "draft", "lat": 40.7, "lng": -74.0, "published": false},
	)
	ctx := context.Background()

	all, err := db.QueryPoints(ctx, PointQuery{Bounds: nyc, Zoom: 12})
	if err != nil {
		t.Fatalf("QueryPoints() error = %v", err)
	}
	pub, err := db.QueryPoints(ctx, PointQuery{Bounds: nyc, Zoom: 12, PublishedOnly: true})
	if err != nil {
		t.Fatalf("QueryPoints() error = %v", err)
	}
	if len(all) != 2 || len(pub) != 1 || pub[0].ID != "pub" {
		t.Errorf("all = %d, published = %+v", len(all), pub)
	}
}

func TestQueryPoints_AggregatesLowZoom(t *testing.T) {
	db := setupTestDB(t)
	var rows []models.RawRow
	for i, id := range []string{"p1", "p2", "p3", "p4"} {
		rows = append(rows, models.RawRow{"id": id, "lat": 40.7 + float64(i)*0.0001, "lng": -74.0})
	}
	rows = append(rows, models.RawRow{"id": "lonely", "lat": -33.86, "lng": 151.2})
	seed(t, db, rows...)

	world := models.Bounds{South: -85, West: -180, North: 85, East: 180}
	got, err := db.QueryPoints(context.Background(), PointQuery{Bounds: world, Zoom: 3})
	if err != nil {
		t.Fatalf("QueryPoints() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d points, want a centroid and one record: %+v", len(got), got)
	}
	var centroid, single models.GeoPoint
	for _, p := range got {
		if p.IsCentroid() {
			centroid = p
		} else {
			single = p
		}
	}
	if centroid.Count != 4 || centroid.ID != "" {
		t.Errorf("centroid = %+v, want count 4 and no id", centroid)
	}
	if single.ID != "lonely" {
		t.Errorf("single = %+v, want lonely", single)
	}

	detail, err := db.QueryPoints(context.Background(), PointQuery{Bounds: world, Zoom: 12})
	if err != nil {
		t.Fatalf("QueryPoints() error = %v", err)
	}
	if len(detail) != 5 {
		t.Errorf("zoom 12 returned %d points, want 5 records", len(detail))
	}
}

func TestUpsert_ReplacesByID(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, models.RawRow{"id": "x", "title": "Old", "lat": 40.7, "lng": -74.0})
	seed(t, db, models.RawRow{"id": "x", "title": "New", "lat": 40.71, "lng": -74.01, "confidence": 0.9})

	got, err := db.QueryPoints(context.Background(), PointQuery{Bounds: nyc, Zoom: 12})
	if err != nil {
		t.Fatalf("QueryPoints() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d points, want 1", len(got))
	}
	p := got[0]
	if p.Title != "New" || p.Lat != 40.71 {
		t.Errorf("point = %+v, want the replacement", p)
	}
	if p.Meta == nil || p.Meta.Confidence != 0.9 {
		t.Errorf("meta = %+v, want confidence 0.9", p.Meta)
	}
}

func TestUpsert_EmptyBatch(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.Upsert(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("Upsert(nil) error = %v, want ErrEmptyBatch", err)
	}
}

func TestSameSpot(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db,
		models.RawRow{"id": "here", "lat": 40.748817, "lng": -73.985428},
		models.RawRow{"id": "also-here", "lat": 40.748817, "lng": -73.985428},
		models.RawRow{"id": "three-m", "lat": 40.748844, "lng": -73.985428},
		models.RawRow{"id": "block-away", "lat": 40.7497, "lng": -73.9854},
	)
	ctx := context.Background()

	got, err := db.SameSpot(ctx, SameSpotQuery{Lat: 40.748817, Lng: -73.985428, RadiusM: 5})
	if err != nil {
		t.Fatalf("SameSpot() error = %v", err)
	}
	want := []string{"also-here", "here", "three-m"}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("record %d = %s, want %s", i, got[i].ID, want[i])
		}
	}

	wide, err := db.SameSpot(ctx, SameSpotQuery{Lat: 40.748817, Lng: -73.985428, RadiusM: 5000})
	if err != nil {
		t.Fatalf("SameSpot() error = %v", err)
	}
	if len(wide) != 3 {
		t.Errorf("radius is capped at %vm, got %d records", MaxSameSpotRadiusM, len(wide))
	}
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, models.RawRow{"id": "gone", "lat": 40.7, "lng": -74.0})
	ctx := context.Background()

	ok, err := db.Delete(ctx, "gone")
	if err != nil || !ok {
		t.Fatalf("Delete() = %v, %v, want true", ok, err)
	}
	ok, err = db.Delete(ctx, "gone")
	if err != nil || ok {
		t.Errorf("second Delete() = %v, %v, want false", ok, err)
	}
}

func TestSource_FetchTile(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db,
		models.RawRow{"id": "in", "lat": 40.6, "lng": -74.0},
		models.RawRow{"id": "burial", "burial_lat": 40.6, "burial_lng": -74.0},
	)
	key := tile.PointToTile(40.6, -74.0, 12)
	src := NewSource(db, models.KindDeath, true)

	got, err := src.FetchTile(context.Background(), key)
	if err != nil {
		t.Fatalf("FetchTile() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "in" {
		t.Errorf("death tile = %+v, want [in]", got)
	}

	got, err = src.ForKind(models.KindBurial).FetchTile(context.Background(), key)
	if err != nil {
		t.Fatalf("FetchTile() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "burial" {
		t.Errorf("burial tile = %+v, want [burial]", got)
	}

	near, err := src.SameSpot(context.Background(), 40.6, -74.0, 5, "in")
	if err != nil {
		t.Fatalf("SameSpot() error = %v", err)
	}
	if len(near) != 1 || near[0].ID != "in" {
		t.Errorf("same spot = %+v, want [in]", near)
	}
}
