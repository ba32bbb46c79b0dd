// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package models

import "strings"

// Filter is the search and category overlay applied to already-fetched points.
type Filter struct {
	Query      string   `json:"query,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// IsEmpty reports whether f matches everything.
func (f Filter) IsEmpty() bool {
	return strings.TrimSpace(f.Query) == "" && len(f.Categories) == 0
}

// Matches applies a case-insensitive substring match on title, category and
// id, and category membership. Centroids only pass an empty filter since
// they carry no searchable fields.
func (f Filter) Matches(p GeoPoint) bool {
	if f.IsEmpty() {
		return true
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if strings.EqualFold(strings.TrimSpace(c), p.Category) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Title), q) ||
		strings.Contains(strings.ToLower(p.Category), q) ||
		strings.Contains(strings.ToLower(p.ID), q)
}

// Apply returns the points of ps that f matches, preserving order.
func (f Filter) Apply(ps []GeoPoint) []GeoPoint {
	if f.IsEmpty() {
		return ps
	}
	out := make([]GeoPoint, 0, len(ps))
	for _, p := range ps {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	return out
}
