// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package render

import (
	"context"
	"errors"
	"testing"

	"github.com/deathatlas/atlas/internal/cache"
	"github.com/deathatlas/atlas/internal/cluster"
	"github.com/deathatlas/atlas/internal/models"
)

type fakeFinder struct {
	points []models.GeoPoint
	err    error
	calls  int
	radius float64
	id     string
}

func (f *fakeFinder) SameSpot(_ context.Context, _, _, radius float64, id string) ([]models.GeoPoint, error) {
	f.calls++
	f.radius = radius
	f.id = id
	return f.points, f.err
}

var (
	alice = models.GeoPoint{ID: "alice", Lat: 40.0000001, Lng: -74.0000001, Title: "Alice"}
	bob   = models.GeoPoint{ID: "bob", Lat: 40.0000002, Lng: -74.0000002, Title: "Bob"}
	carol = models.GeoPoint{ID: "carol", Lat: 41, Lng: -75, Title: "Carol"}
)

func TestMarkerKey(t *testing.T) {
	clustered := cluster.Cluster([]models.GeoPoint{alice, bob})[0]
	centroid := models.GeoPoint{Lat: 10, Lng: 20, Count: 7}

	if got := MarkerKey(carol); got != "carol@41,-75" {
		t.Errorf("Unexpected record key %q", got)
	}
	if got := MarkerKey(clustered); got != "cluster:"+cluster.BucketKey(40, -74) {
		t.Errorf("Unexpected cluster key %q", got)
	}
	if got := MarkerKey(centroid); got != "centroid:10,20" {
		t.Errorf("Unexpected centroid key %q", got)
	}

	moved := carol
	moved.Lat = 41.5
	if MarkerKey(moved) == MarkerKey(carol) {
		t.Error("A moved record must get a new key")
	}
	retitled := carol
	retitled.Title = "Caroline"
	if MarkerKey(retitled) != MarkerKey(carol) {
		t.Error("Display fields must not change the key")
	}

	if m := NewMarker(centroid); m.Badge != 7 {
		t.Errorf("Expected centroid badge 7, got %d", m.Badge)
	}
	if m := NewMarker(carol); m.Badge != 0 {
		t.Errorf("Expected no badge on a record, got %d", m.Badge)
	}
}

func TestLayer_UpdateChangeDetection(t *testing.T) {
	l := NewLayer()

	_, changed := l.Update([]models.GeoPoint{alice, carol})
	if !changed {
		t.Fatal("First update must render")
	}
	v1 := l.Version()

	if _, changed := l.Update([]models.GeoPoint{carol, alice}); changed {
		t.Error("Same keyed set in another order must not re-render")
	}
	if l.Version() != v1 {
		t.Error("Version must not move without a rebuild")
	}

	if _, changed := l.Update([]models.GeoPoint{alice, carol, bob}); !changed {
		t.Error("Added marker must re-render")
	}
	if _, changed := l.Update(nil); !changed {
		t.Error("Clearing the map must re-render")
	}
	if _, changed := l.Update(nil); changed {
		t.Error("Empty to empty must not re-render")
	}
}

func TestLayer_UpdateRefreshesContentAtSameKey(t *testing.T) {
	old := models.GeoPoint{ID: "x1", Lat: 51.5, Lng: -0.12, Title: "Old Name", Category: "writer"}
	l := NewLayer()
	l.Update([]models.GeoPoint{old, carol})
	l.Select(MarkerKey(old))
	v := l.Version()

	renamed := old
	renamed.Title = "New Name"
	renamed.Meta = &models.PointMeta{WikidataID: "Q42"}
	markers, changed := l.Update([]models.GeoPoint{renamed, carol})
	if !changed {
		t.Error("New title at the same key must be reported as changed")
	}
	if l.Version() != v {
		t.Errorf("Version = %d, want %d (keys unchanged)", l.Version(), v)
	}

	m, ok := l.Lookup(MarkerKey(old))
	if !ok {
		t.Fatal("Expected marker to keep its key")
	}
	if m.Point.Title != "New Name" {
		t.Errorf("Expected title New Name, got %q", m.Point.Title)
	}
	if m.Point.Meta == nil || m.Point.Meta.WikidataID != "Q42" {
		t.Errorf("Expected refreshed meta, got %+v", m.Point.Meta)
	}
	found := false
	for _, mk := range markers {
		if mk.Key == MarkerKey(old) {
			found = true
			if !mk.Selected || mk.Point.Title != "New Name" {
				t.Errorf("Expected selected marker with new title, got %+v", mk)
			}
		}
	}
	if !found {
		t.Error("Expected renamed marker in snapshot")
	}

	if _, changed := l.Update([]models.GeoPoint{renamed, carol}); changed {
		t.Error("Identical content must not be reported as changed")
	}
}

func TestLayer_ClusterMembershipChange(t *testing.T) {
	dave := models.GeoPoint{ID: "dave", Lat: 40, Lng: -74, Title: "Dave"}
	l := NewLayer()
	l.Update(cluster.Cluster([]models.GeoPoint{alice, bob}))

	_, changed := l.Update(cluster.Cluster([]models.GeoPoint{alice, dave}))
	if !changed {
		t.Error("Swapping a cluster member must re-render even with the same count")
	}
}

func TestLayer_Selection(t *testing.T) {
	l := NewLayer()
	l.Update([]models.GeoPoint{alice, carol})
	key := MarkerKey(carol)

	if l.Select("nope") {
		t.Error("Selecting an unknown key must fail")
	}
	if !l.Select(key) {
		t.Fatal("Select failed")
	}

	if _, changed := l.Update([]models.GeoPoint{carol, alice}); changed {
		t.Error("Selection must not force a re-render")
	}
	sel, ok := l.Selected()
	if !ok || sel.Key != key || !sel.Selected {
		t.Errorf("Expected carol selected, got %+v", sel)
	}

	count := 0
	for _, m := range l.Markers() {
		if m.Selected {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected exactly one selected marker, got %d", count)
	}

	l.Update([]models.GeoPoint{alice})
	if _, ok := l.Selected(); ok {
		t.Error("Selection must clear when its marker leaves the map")
	}

	l.Select(MarkerKey(alice))
	l.ClearSelection()
	if _, ok := l.Selected(); ok {
		t.Error("Expected no selection after ClearSelection")
	}
}

func setup(points []models.GeoPoint, index *cache.PointIndex, finder SameSpotFinder) (*Layer, *Interactor) {
	l := NewLayer()
	l.Update(cluster.Cluster(points))
	return l, NewInteractor(l, index, finder, InteractionConfig{})
}

func TestTap_ClusterBelowDetailZoomRecenters(t *testing.T) {
	_, it := setup([]models.GeoPoint{alice, bob}, nil, nil)
	key := "cluster:" + cluster.BucketKey(40, -74)

	tests := []struct {
		zoom, want int
	}{
		{3, 5},
		{10, 12},
		{15, 16},
	}
	for _, tt := range tests {
		a, err := it.Tap(context.Background(), key, tt.zoom)
		if err != nil {
			t.Fatalf("Tap: %v", err)
		}
		if a.Kind != ActionRecenterAndZoom || a.Zoom != tt.want {
			t.Errorf("zoom %d: got %s to %d, want recenter to %d", tt.zoom, a.Kind, a.Zoom, tt.want)
		}
		if a.Lat != bob.Lat && a.Lat != alice.Lat {
			t.Errorf("Expected recenter on the cluster coordinate, got %v", a.Lat)
		}
		if it.State() != StateIdle {
			t.Error("Recenter must return to idle")
		}
	}
}

func TestTap_ClusterAtDetailZoomOpensPicker(t *testing.T) {
	l, it := setup([]models.GeoPoint{bob, alice, carol}, nil, nil)
	key := "cluster:" + cluster.BucketKey(40, -74)

	a, err := it.Tap(context.Background(), key, 16)
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if a.Kind != ActionShowPicker || len(a.Members) != 2 {
		t.Fatalf("Expected picker with 2 members, got %+v", a)
	}
	if a.Members[0].ID != "alice" || a.Members[1].ID != "bob" {
		t.Errorf("Picker not sorted by name: %s, %s", a.Members[0].ID, a.Members[1].ID)
	}
	if it.State() != StatePicker {
		t.Errorf("Expected picker state, got %s", it.State())
	}
	if sel, _ := l.Selected(); sel.Key != key {
		t.Errorf("Expected cluster selected, got %q", sel.Key)
	}

	if _, err := it.Pick(context.Background(), key, "carol", 16); !errors.Is(err, ErrUnknownMember) {
		t.Errorf("Expected ErrUnknownMember, got %v", err)
	}

	d, err := it.Pick(context.Background(), key, "bob", 16)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if d.Kind != ActionShowDetail || len(d.Records) != 1 || d.Records[0].ID != "bob" {
		t.Errorf("Expected detail for bob, got %+v", d)
	}
	if d.Lat != bob.Lat || d.Lng != bob.Lng || d.Zoom != 16 {
		t.Errorf("Expected tight recenter on bob, got %v,%v z%d", d.Lat, d.Lng, d.Zoom)
	}
	if it.State() != StateIdle {
		t.Error("Detail must return to idle")
	}

	if _, err := it.Pick(context.Background(), key, "alice", 16); !errors.Is(err, ErrNoPicker) {
		t.Errorf("Expected ErrNoPicker after the picker closed, got %v", err)
	}
}

func TestTap_PickerDismissed(t *testing.T) {
	_, it := setup([]models.GeoPoint{alice, bob}, nil, nil)
	key := "cluster:" + cluster.BucketKey(40, -74)

	if _, err := it.Tap(context.Background(), key, 18); err != nil {
		t.Fatalf("Tap: %v", err)
	}
	it.Dismiss()
	if _, err := it.Pick(context.Background(), key, "alice", 18); !errors.Is(err, ErrNoPicker) {
		t.Errorf("Expected ErrNoPicker, got %v", err)
	}
}

func TestTap_UnknownMarker(t *testing.T) {
	_, it := setup([]models.GeoPoint{carol}, nil, nil)
	if _, err := it.Tap(context.Background(), "ghost@0,0", 10); !errors.Is(err, ErrUnknownMarker) {
		t.Errorf("Expected ErrUnknownMarker, got %v", err)
	}
}

func TestTap_CentroidRecenters(t *testing.T) {
	centroid := models.GeoPoint{Lat: 48, Lng: 2, Count: 120}
	_, it := setup([]models.GeoPoint{centroid}, nil, nil)

	a, err := it.Tap(context.Background(), MarkerKey(centroid), 4)
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if a.Kind != ActionRecenterAndZoom || a.Zoom != 6 {
		t.Errorf("Expected recenter to zoom 6, got %+v", a)
	}
}

func TestTap_SingletonKnownLocallySkipsLookup(t *testing.T) {
	burial := models.GeoPoint{ID: "carol-burial", Lat: 41, Lng: -75, Title: "Carol (burial)", Kind: models.KindBurial}
	index := cache.NewPointIndex(0)
	index.Upsert(carol, burial)
	finder := &fakeFinder{}

	_, it := setup([]models.GeoPoint{carol}, index, finder)
	a, err := it.Tap(context.Background(), MarkerKey(carol), 12)
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if a.Kind != ActionShowDetail || a.Zoom != 16 {
		t.Errorf("Expected detail at zoom 16, got %+v", a)
	}
	if finder.calls != 0 {
		t.Errorf("Known record must not trigger a remote lookup, got %d calls", finder.calls)
	}
	if len(a.Records) != 2 || a.Records[0].ID != "carol" || a.Records[1].ID != "carol-burial" {
		t.Errorf("Expected tapped record then co-located record, got %+v", a.Records)
	}
}

func TestTap_SingletonUnknownUsesLookup(t *testing.T) {
	burial := models.GeoPoint{ID: "carol-burial", Lat: 41, Lng: -75, Title: "Carol (burial)"}
	finder := &fakeFinder{points: []models.GeoPoint{carol, burial}}
	index := cache.NewPointIndex(0)

	_, it := setup([]models.GeoPoint{carol}, index, finder)
	a, err := it.Tap(context.Background(), MarkerKey(carol), 17)
	if err != nil {
		t.Fatalf("Tap: %v", err)
	}
	if finder.calls != 1 || finder.id != "carol" || finder.radius != DefaultSameSpotRadius {
		t.Errorf("Unexpected lookup: calls=%d id=%q radius=%v", finder.calls, finder.id, finder.radius)
	}
	if len(a.Records) != 2 || a.Records[0].ID != "carol" {
		t.Errorf("Expected deduplicated records with tapped first, got %+v", a.Records)
	}
	if a.Warning != "" || a.Err != nil {
		t.Errorf("Unexpected warning %q", a.Warning)
	}
	if _, ok := index.Get("carol-burial"); !ok {
		t.Error("Lookup results should feed the point index")
	}
	if a.Zoom != 17 {
		t.Errorf("Detail must not zoom out, got %d", a.Zoom)
	}
}

func TestTap_LookupFailureFallsBack(t *testing.T) {
	finder := &fakeFinder{err: errors.New("503 from source")}
	_, it := setup([]models.GeoPoint{carol}, nil, finder)

	a, err := it.Tap(context.Background(), MarkerKey(carol), 16)
	if err != nil {
		t.Fatalf("Lookup failure must not fail the tap: %v", err)
	}
	if a.Kind != ActionShowDetail || len(a.Records) != 1 || a.Records[0].ID != "carol" {
		t.Errorf("Expected fallback to the tapped record, got %+v", a)
	}
	var sse *SameSpotLookupError
	if !errors.As(a.Err, &sse) || sse.ID != "carol" {
		t.Errorf("Expected *SameSpotLookupError, got %v", a.Err)
	}
	if a.Warning == "" {
		t.Error("Expected a soft warning")
	}
}

func TestInteractionConfig_Normalized(t *testing.T) {
	tests := []struct {
		in         InteractionConfig
		wantZoom   int
		wantRadius float64
	}{
		{InteractionConfig{}, 16, 5},
		{InteractionConfig{DetailZoom: 14, SameSpotRadiusM: 1}, 14, 2},
		{InteractionConfig{DetailZoom: 40, SameSpotRadiusM: 20}, 16, 9},
		{InteractionConfig{DetailZoom: 18, SameSpotRadiusM: 7.5}, 18, 7.5},
	}
	for _, tt := range tests {
		got := tt.in.normalized()
		if got.DetailZoom != tt.wantZoom || got.SameSpotRadiusM != tt.wantRadius {
			t.Errorf("normalized(%+v) = %+v", tt.in, got)
		}
	}
}
