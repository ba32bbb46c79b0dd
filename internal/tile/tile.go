// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

// Package tile maps geographic points and viewports onto Web-Mercator
// slippy-map tiles and back. Everything here is pure; inputs are clamped
// rather than rejected so every call produces a valid tile set.
package tile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/deathatlas/atlas/internal/models"
)

// MercatorLatLimit is the latitude where the square Web-Mercator world ends.
const MercatorLatLimit = 85.05112877980659

// maxLng keeps lng=180 inside the last column instead of one past it.
const maxLng = 180.0 - 1e-9

// Key identifies a tile. 0 <= X, Y < 2^Z.
type Key struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

// String returns the z/x/y form used as the cache key.
func (k Key) String() string {
	return strconv.Itoa(k.Z) + "/" + strconv.Itoa(k.X) + "/" + strconv.Itoa(k.Y)
}

// Valid reports whether k addresses a real tile.
func (k Key) Valid() bool {
	if k.Z < 0 || k.Z > models.MaxZoom {
		return false
	}
	n := 1 << uint(k.Z)
	return k.X >= 0 && k.X < n && k.Y >= 0 && k.Y < n
}

// Bounds is shorthand for ToBounds(k).
func (k Key) Bounds() models.Bounds {
	return ToBounds(k)
}

func (k Key) maptile() maptile.Tile {
	return maptile.New(uint32(k.X), uint32(k.Y), maptile.Zoom(k.Z))
}

// ParseKey parses "z/x/y".
func ParseKey(s string) (Key, error) {
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("tile key %q: expected z/x/y", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Key{}, fmt.Errorf("tile key %q: %w", s, err)
		}
		nums[i] = n
	}
	k := Key{Z: nums[0], X: nums[1], Y: nums[2]}
	if !k.Valid() {
		return Key{}, fmt.Errorf("tile key %q: coordinates out of range for zoom %d", s, k.Z)
	}
	return k, nil
}

// ClampZoom forces zoom into [0, models.MaxZoom].
func ClampZoom(zoom int) int {
	if zoom < 0 {
		return 0
	}
	if zoom > models.MaxZoom {
		return models.MaxZoom
	}
	return zoom
}

// PointToTile returns the tile containing (lat, lng) at zoom.
// Latitudes beyond the Mercator limit snap to the edge rows.
func PointToTile(lat, lng float64, zoom int) Key {
	z := ClampZoom(zoom)
	if z == 0 {
		return Key{}
	}
	lat = clamp(lat, -MercatorLatLimit, MercatorLatLimit)
	lng = clamp(lng, -180, maxLng)

	t := maptile.At(orb.Point{lng, lat}, maptile.Zoom(z))
	last := (1 << uint(z)) - 1
	return Key{
		Z: z,
		X: clampInt(int(t.X), 0, last),
		Y: clampInt(int(t.Y), 0, last),
	}
}

// ToBounds returns the geographic rectangle of k.
func ToBounds(k Key) models.Bounds {
	b := k.maptile().Bound()
	return models.Bounds{
		South: b.Min.Lat(),
		West:  b.Min.Lon(),
		North: b.Max.Lat(),
		East:  b.Max.Lon(),
	}
}

// CoveringViewport returns the tiles covering v at zoom, grown by ring tiles
// on every side and clamped to the world, in row-major order.
func CoveringViewport(v models.Viewport, zoom, ring int) []Key {
	return CoveringBounds(v.Bounds(), zoom, ring)
}

// CoveringBounds is CoveringViewport for an explicit rectangle.
func CoveringBounds(b models.Bounds, zoom, ring int) []Key {
	z := ClampZoom(zoom)
	if z == 0 {
		return []Key{{}}
	}
	if ring < 0 {
		ring = 0
	}

	nw := PointToTile(b.North, b.West, z)
	se := PointToTile(b.South, b.East, z)
	last := (1 << uint(z)) - 1

	minX := clampInt(min(nw.X, se.X)-ring, 0, last)
	maxX := clampInt(max(nw.X, se.X)+ring, 0, last)
	minY := clampInt(min(nw.Y, se.Y)-ring, 0, last)
	maxY := clampInt(max(nw.Y, se.Y)+ring, 0, last)

	keys := make([]Key, 0, (maxX-minX+1)*(maxY-minY+1))
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			keys = append(keys, Key{Z: z, X: x, Y: y})
		}
	}
	return keys
}

// CountCovering is len(CoveringBounds(b, zoom, ring)) without allocating.
func CountCovering(b models.Bounds, zoom, ring int) int {
	z := ClampZoom(zoom)
	if z == 0 {
		return 1
	}
	if ring < 0 {
		ring = 0
	}
	nw := PointToTile(b.North, b.West, z)
	se := PointToTile(b.South, b.East, z)
	last := (1 << uint(z)) - 1
	w := clampInt(max(nw.X, se.X)+ring, 0, last) - clampInt(min(nw.X, se.X)-ring, 0, last) + 1
	h := clampInt(max(nw.Y, se.Y)+ring, 0, last) - clampInt(min(nw.Y, se.Y)-ring, 0, last) + 1
	return w * h
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
