// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package models

import (
	"math"
	"strconv"
	"strings"
)

// RawRow is a decoded source row before field aliasing. Historical sources
// disagree on field names and on whether numbers arrive as numbers or strings.
type RawRow map[string]interface{}

type float64er interface {
	Float64() (float64, error)
}

// Float returns the first key present that holds a finite number or a
// numeric string.
func (r RawRow) Float(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// Int returns the first key present that holds an integral number.
func (r RawRow) Int(keys ...string) (int, bool) {
	f, ok := r.Float(keys...)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// String returns the first key present with a non-empty value. Numbers are
// formatted without exponent so numeric ids survive.
func (r RawRow) String(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case float64er:
			if f, err := v.Float64(); err == nil {
				return strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
	}
	return ""
}

// Bool returns the first key present that holds a boolean, a 0/1 number or
// a "true"/"false" style string.
func (r RawRow) Bool(keys ...string) (bool, bool) {
	for _, k := range keys {
		switch v := r[k].(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, true
			}
		default:
			if f, ok := toFloat(v); ok && (f == 0 || f == 1) {
				return f == 1, true
			}
		}
	}
	return false, false
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64er:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Field aliases shared by every source row, whatever its kind.
var (
	idKeys       = []string{"id", "uuid", "qid", "wikidata_id", "person_id"}
	titleKeys    = []string{"title", "name", "display_name", "person_name", "label"}
	categoryKeys = []string{"category", "type", "cause", "death_type"}
	dateKeys     = []string{"date", "death_date", "deathDate", "date_of_death", "died"}
	countKeys    = []string{"count", "point_count", "n"}
	sourceKeys   = []string{"source_url", "sourceUrl", "url", "wikipedia_url"}
	wikidataKeys = []string{"wikidata_id", "qid", "wikidata"}
	confKeys     = []string{"confidence", "coord_confidence"}
	provKeys     = []string{"coord_source", "coordinate_source", "geocoder"}
)

// Describe returns the display fields of r as a GeoPoint without a
// coordinate.
func (r RawRow) Describe() GeoPoint {
	p := GeoPoint{
		ID:       r.String(idKeys...),
		Title:    r.String(titleKeys...),
		Category: r.String(categoryKeys...),
		Date:     r.String(dateKeys...),
	}
	if n, ok := r.Int(countKeys...); ok && n > 1 {
		p.Count = n
	}

	meta := PointMeta{
		SourceURL:   r.String(sourceKeys...),
		WikidataID:  r.String(wikidataKeys...),
		CoordSource: r.String(provKeys...),
	}
	if c, ok := r.Float(confKeys...); ok {
		meta.Confidence = c
	}
	if meta != (PointMeta{}) {
		p.Meta = &meta
	}
	return p
}

// ToGeoPoint resolves r into a GeoPoint using kind's coordinate resolver.
// index is the row's position in its batch, used in the returned error.
func (r RawRow) ToGeoPoint(kind CoordinateKind, index int) (GeoPoint, error) {
	p := r.Describe()

	lat, lng, ok := ResolveCoordinates(kind, r)
	if !ok {
		return GeoPoint{}, &InvalidPointError{Index: index, ID: p.ID, Reason: "missing or non-numeric coordinates"}
	}
	p.Lat, p.Lng, p.Kind = lat, lng, kind

	if err := p.Validate(); err != nil {
		ipe := err.(*InvalidPointError)
		ipe.Index = index
		return GeoPoint{}, ipe
	}
	return p, nil
}
