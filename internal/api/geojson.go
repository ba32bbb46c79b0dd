// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package api

import (
	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/deathatlas/atlas/internal/mapview"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/render"
)

// ContentTypeGeoJSON is the media type of the markers endpoint.
const ContentTypeGeoJSON = "application/geo+json"

type goccyJSON struct{}

func (goccyJSON) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (goccyJSON) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func init() {
	geojson.CustomJSONMarshaler = goccyJSON{}
	geojson.CustomJSONUnmarshaler = goccyJSON{}
}

// memberRef is how a cluster lists its members in feature properties.
type memberRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Date  string `json:"date,omitempty"`
}

// markersToGeoJSON renders one marker set as a FeatureCollection. Every
// feature is a Point keyed by the marker key; status and zoom ride along as
// foreign members.
func markersToGeoJSON(out mapview.RenderablePoints) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range out.Markers {
		fc.Append(markerFeature(m))
	}

	b := out.Viewport.Bounds()
	fc.BBox = geojson.NewBBox(orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	})
	fc.ExtraMembers = geojson.Properties{
		"zoom":   out.Zoom,
		"status": out.Status,
	}
	return fc
}

func markerFeature(m render.Marker) *geojson.Feature {
	p := m.Point
	f := geojson.NewFeature(orb.Point{p.Lng, p.Lat})
	f.ID = m.Key

	props := f.Properties
	props["key"] = m.Key
	props["cluster"] = p.IsCluster
	props["centroid"] = p.IsCentroid()
	props["count"] = p.Weight()
	setIfNotEmpty(props, "id", p.ID)
	setIfNotEmpty(props, "title", p.Title)
	setIfNotEmpty(props, "category", p.Category)
	setIfNotEmpty(props, "date", p.Date)
	setIfNotEmpty(props, "kind", p.Kind.String())
	if m.Selected {
		props["selected"] = true
	}
	if p.Meta != nil {
		setIfNotEmpty(props, "source_url", p.Meta.SourceURL)
		setIfNotEmpty(props, "wikidata_id", p.Meta.WikidataID)
	}
	if p.IsCluster {
		props["members"] = memberRefs(p.Members)
	}
	return f
}

func memberRefs(members []models.GeoPoint) []memberRef {
	refs := make([]memberRef, len(members))
	for i, mp := range members {
		refs[i] = memberRef{ID: mp.ID, Title: mp.Title, Date: mp.Date}
	}
	return refs
}

func setIfNotEmpty(props geojson.Properties, key, value string) {
	if value != "" {
		props[key] = value
	}
}
