// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package models

import (
	"errors"
	"math"
)

// MaxZoom is the deepest zoom level the pipeline works with.
const MaxZoom = 22

// Bounds is a geographic rectangle.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Contains is inclusive on every edge.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// Center returns the midpoint of b.
func (b Bounds) Center() (lat, lng float64) {
	return (b.South + b.North) / 2, (b.West + b.East) / 2
}

// Viewport is the visible map window as center plus spans in degrees.
type Viewport struct {
	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`
	LatDelta  float64 `json:"lat_delta"`
	LngDelta  float64 `json:"lng_delta"`
}

// ErrInvalidViewport is returned by Viewport.Validate.
var ErrInvalidViewport = errors.New("invalid viewport")

// Validate rejects non-finite values and non-positive spans.
func (v Viewport) Validate() error {
	for _, f := range []float64{v.CenterLat, v.CenterLng, v.LatDelta, v.LngDelta} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ErrInvalidViewport
		}
	}
	if v.LatDelta <= 0 || v.LngDelta <= 0 {
		return ErrInvalidViewport
	}
	if v.CenterLat < -90 || v.CenterLat > 90 || v.CenterLng < -180 || v.CenterLng > 180 {
		return ErrInvalidViewport
	}
	return nil
}

// Bounds converts the viewport into a rectangle clamped to the world.
func (v Viewport) Bounds() Bounds {
	halfLat, halfLng := v.LatDelta/2, v.LngDelta/2
	return Bounds{
		South: clamp(v.CenterLat-halfLat, -90, 90),
		North: clamp(v.CenterLat+halfLat, -90, 90),
		West:  clamp(v.CenterLng-halfLng, -180, 180),
		East:  clamp(v.CenterLng+halfLng, -180, 180),
	}
}

// ZoomLevel derives a slippy-map zoom from the longitude span, for surfaces
// that report deltas rather than zoom (the native mobile map view).
func (v Viewport) ZoomLevel() int {
	if v.LngDelta <= 0 || math.IsNaN(v.LngDelta) {
		return 0
	}
	z := int(math.Floor(math.Log2(360 / v.LngDelta)))
	return int(clamp(float64(z), 0, MaxZoom))
}

// ViewportAt builds a viewport centered on (lat, lng) whose span matches zoom.
// It is the inverse of ZoomLevel and is used for fly-to actions.
func ViewportAt(lat, lng float64, zoom int, aspect float64) Viewport {
	if aspect <= 0 {
		aspect = 1
	}
	lngDelta := 360 / math.Pow(2, float64(zoom))
	return Viewport{
		CenterLat: lat,
		CenterLng: lng,
		LatDelta:  lngDelta * aspect,
		LngDelta:  lngDelta,
	}
}

// ViewportFromBounds is the inverse of Viewport.Bounds for unclamped input.
func ViewportFromBounds(b Bounds) Viewport {
	lat, lng := b.Center()
	return Viewport{
		CenterLat: lat,
		CenterLng: lng,
		LatDelta:  b.North - b.South,
		LngDelta:  b.East - b.West,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
