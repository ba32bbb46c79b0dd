// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package models

import (
	"math"
	"strings"
)

// GeoPoint is the atomic renderable unit. Same-coordinate clusters reuse the
// shape with IsCluster set and Members populated.
type GeoPoint struct {
	ID        string         `json:"id,omitempty"`         // Empty for server-side centroids
	Lat       float64        `json:"lat"`                  // WGS84 latitude
	Lng       float64        `json:"lng"`                  // WGS84 longitude
	Title     string         `json:"title,omitempty"`      // Person or place name
	Category  string         `json:"category,omitempty"`   // Display category (e.g. "murder", "accident")
	Date      string         `json:"date,omitempty"`       // Free-form date as supplied by the source
	Kind      CoordinateKind `json:"kind,omitempty"`       // Which coordinate this pin plots
	Count     int            `json:"count,omitempty"`      // 0 or 1 for a record, N for clusters and centroids
	IsCluster bool           `json:"is_cluster,omitempty"` // Synthetic same-coordinate cluster
	Members   []GeoPoint     `json:"members,omitempty"`    // Cluster members sorted by display name
	Meta      *PointMeta     `json:"meta,omitempty"`       // Display-only metadata
}

// PointMeta is display-only and never consulted by clustering or merging.
type PointMeta struct {
	SourceURL   string  `json:"source_url,omitempty"`
	WikidataID  string  `json:"wikidata_id,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	CoordSource string  `json:"coord_source,omitempty"` // Provenance of the coordinate (geocoder, wikidata, manual)
}

// Validate returns an *InvalidPointError when the coordinate is non-finite
// or outside [-90,90] x [-180,180].
func (p GeoPoint) Validate() error {
	switch {
	case math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0):
		return &InvalidPointError{Index: -1, ID: p.ID, Reason: "latitude is not finite"}
	case math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0):
		return &InvalidPointError{Index: -1, ID: p.ID, Reason: "longitude is not finite"}
	case p.Lat < -90 || p.Lat > 90:
		return &InvalidPointError{Index: -1, ID: p.ID, Reason: "latitude out of range"}
	case p.Lng < -180 || p.Lng > 180:
		return &InvalidPointError{Index: -1, ID: p.ID, Reason: "longitude out of range"}
	}
	return nil
}

// Weight is the number of underlying records this point stands for.
func (p GeoPoint) Weight() int {
	if p.Count > 1 {
		return p.Count
	}
	return 1
}

// DisplayName is the label used for sorting picker entries.
func (p GeoPoint) DisplayName() string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return p.ID
}

// IsCentroid reports whether p is a pre-aggregated server centroid.
func (p GeoPoint) IsCentroid() bool {
	return p.ID == "" && !p.IsCluster && p.Count > 1
}
