// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package render

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/deathatlas/atlas/internal/cluster"
	"github.com/deathatlas/atlas/internal/models"
)

// Marker is one pin handed to a map surface.
type Marker struct {
	Key      string          `json:"key"`
	Point    models.GeoPoint `json:"point"`
	Badge    int             `json:"badge,omitempty"` // Count shown on clusters and centroids
	Selected bool            `json:"selected,omitempty"`

	members string // Member keys of a cluster, for change detection
}

// MarkerKey returns the stable identity of p.
func MarkerKey(p models.GeoPoint) string {
	lat := strconv.FormatFloat(p.Lat, 'f', -1, 64)
	lng := strconv.FormatFloat(p.Lng, 'f', -1, 64)
	switch {
	case p.IsCluster:
		return "cluster:" + cluster.BucketKey(p.Lat, p.Lng)
	case p.ID == "":
		return "centroid:" + lat + "," + lng
	}
	return p.ID + "@" + lat + "," + lng
}

// NewMarker wraps p.
func NewMarker(p models.GeoPoint) Marker {
	m := Marker{Key: MarkerKey(p), Point: p}
	if p.IsCluster || p.IsCentroid() {
		m.Badge = p.Weight()
	}
	if p.IsCluster {
		keys := make([]string, len(p.Members))
		for i, mem := range p.Members {
			keys[i] = MarkerKey(mem)
		}
		m.members = strings.Join(keys, "|")
	}
	return m
}

// Layer holds the markers of the last render and the current selection.
type Layer struct {
	mu       sync.RWMutex
	markers  []Marker
	index    map[string]int
	selected string
	version  uint64
}

// NewLayer returns an empty layer.
func NewLayer() *Layer {
	return &Layer{index: map[string]int{}}
}

// Update replaces the rendered points. The marker list is rebuilt only when
// the set of keys, a badge or a cluster's members changed. Otherwise markers
// keep their keys and take the new point data in place. changed reports
// whether anything a surface shows differs from the last render.
func (l *Layer) Update(points []models.GeoPoint) ([]Marker, bool) {
	next := make([]Marker, len(points))
	for i, p := range points {
		next[i] = NewMarker(p)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sameLocked(next) {
		return l.snapshotLocked(), l.refreshLocked(next)
	}

	l.markers = next
	l.index = make(map[string]int, len(next))
	for i, m := range next {
		l.index[m.Key] = i
	}
	if _, ok := l.index[l.selected]; !ok {
		l.selected = ""
	}
	l.version++
	return l.snapshotLocked(), true
}

func (l *Layer) sameLocked(next []Marker) bool {
	if l.version == 0 || len(next) != len(l.markers) {
		return false
	}
	for _, m := range next {
		i, ok := l.index[m.Key]
		if !ok || l.markers[i].Badge != m.Badge || l.markers[i].members != m.members {
			return false
		}
	}
	return true
}

// refreshLocked copies point data into markers whose key is unchanged.
func (l *Layer) refreshLocked(next []Marker) bool {
	changed := false
	for _, m := range next {
		i := l.index[m.Key]
		if !reflect.DeepEqual(l.markers[i].Point, m.Point) {
			l.markers[i].Point = m.Point
			changed = true
		}
	}
	return changed
}

func (l *Layer) snapshotLocked() []Marker {
	out := make([]Marker, len(l.markers))
	copy(out, l.markers)
	if i, ok := l.index[l.selected]; ok {
		out[i].Selected = true
	}
	return out
}

// Markers returns the current markers with selection applied.
func (l *Layer) Markers() []Marker {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Version increments on every rebuild.
func (l *Layer) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Lookup returns the marker for key.
func (l *Layer) Lookup(key string) (Marker, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[key]
	if !ok {
		return Marker{}, false
	}
	return l.markers[i], true
}

// Select marks key as selected. It reports false for unknown keys.
func (l *Layer) Select(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.index[key]; !ok {
		return false
	}
	l.selected = key
	return true
}

// ClearSelection deselects any marker.
func (l *Layer) ClearSelection() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selected = ""
}

// Selected returns the selected marker.
func (l *Layer) Selected() (Marker, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[l.selected]
	if !ok {
		return Marker{}, false
	}
	m := l.markers[i]
	m.Selected = true
	return m, true
}
