// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/validation"
)

// pointsRequest is GET /api/v1/points.
type pointsRequest struct {
	MinLat    float64 `query:"minLat" json:"minLat" validate:"latitude"`
	MinLng    float64 `query:"minLng" json:"minLng" validate:"longitude"`
	MaxLat    float64 `query:"maxLat" json:"maxLat" validate:"latitude,gtefield=MinLat"`
	MaxLng    float64 `query:"maxLng" json:"maxLng" validate:"longitude,gtefield=MinLng"`
	Zoom      int     `query:"zoom" json:"zoom" validate:"gte=-1,lte=22"` // -1 when absent, disabling aggregation
	Kind      string  `query:"kind" json:"kind" validate:"omitempty,coordkind"`
	Published bool    `query:"published" json:"published"`
	Limit     int     `query:"limit" json:"limit" validate:"gte=0,lte=50000"`
}

func (p pointsRequest) bounds() models.Bounds {
	return models.Bounds{South: p.MinLat, West: p.MinLng, North: p.MaxLat, East: p.MaxLng}
}

// sameSpotRequest is GET /api/v1/points/same-spot.
type sameSpotRequest struct {
	Lat       float64 `query:"lat" validate:"latitude"`
	Lng       float64 `query:"lng" validate:"longitude"`
	RadiusM   float64 `query:"radius_m" validate:"gte=0,lte=50"`
	Kind      string  `query:"kind" validate:"omitempty,coordkind"`
	ID        string  `query:"id" validate:"max=256"`
	Published bool    `query:"published"`
}

// tileRequest is GET /api/v1/tiles/{z}/{x}/{y}.
type tileRequest struct {
	Key       string `query:"tile" validate:"required,tilekey"`
	Kind      string `query:"kind" validate:"omitempty,coordkind"`
	Published bool   `query:"published"`
}

// markersRequest is GET /api/v1/map/markers.
type markersRequest struct {
	MinLat     float64  `query:"minLat" validate:"latitude"`
	MinLng     float64  `query:"minLng" validate:"longitude"`
	MaxLat     float64  `query:"maxLat" validate:"latitude,gtefield=MinLat"`
	MaxLng     float64  `query:"maxLng" validate:"longitude,gtefield=MinLng"`
	Zoom       int      `query:"zoom" validate:"gte=0,lte=22"`
	Kind       string   `query:"kind" validate:"omitempty,coordkind"`
	Query      string   `query:"q" validate:"max=200"`
	Categories []string `query:"category" validate:"max=20,dive,max=100"`
}

func (m markersRequest) viewport() models.Viewport {
	return models.ViewportFromBounds(models.Bounds{South: m.MinLat, West: m.MinLng, North: m.MaxLat, East: m.MaxLng})
}

func (m markersRequest) filter() models.Filter {
	return models.Filter{Query: m.Query, Categories: m.Categories}
}

// queryParser reads typed query parameters, collecting every parse failure
// so the client sees them all at once.
type queryParser struct {
	q    url.Values
	errs []map[string]interface{}
}

func newQueryParser(r *http.Request) *queryParser {
	return &queryParser{q: r.URL.Query()}
}

func (p *queryParser) fail(name, tag, message string) {
	p.errs = append(p.errs, map[string]interface{}{"field": name, "tag": tag, "message": message})
}

func (p *queryParser) float(name string, required bool) float64 {
	raw := strings.TrimSpace(p.q.Get(name))
	if raw == "" {
		if required {
			p.fail(name, "required", name+" is required")
		}
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(name, "number", name+" must be a number")
		return 0
	}
	return f
}

func (p *queryParser) int(name string, def int) int {
	raw := strings.TrimSpace(p.q.Get(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(name, "integer", name+" must be an integer")
		return def
	}
	return n
}

func (p *queryParser) bool(name string, def bool) bool {
	raw := strings.TrimSpace(p.q.Get(name))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(name, "boolean", name+" must be true or false")
		return def
	}
	return b
}

func (p *queryParser) string(name string) string {
	return strings.TrimSpace(p.q.Get(name))
}

// list accepts both repeated parameters and comma-separated values.
func (p *queryParser) list(name string) []string {
	var out []string
	for _, v := range p.q[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// finish writes a VALIDATION_ERROR for parse failures or failed struct
// validation of req, and reports whether the request may proceed.
func (p *queryParser) finish(rw *ResponseWriter, req interface{}) bool {
	if len(p.errs) > 0 {
		msg := fmt.Sprint(p.errs[0]["message"])
		if len(p.errs) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(p.errs)-1)
		}
		rw.ValidationError(msg, map[string]interface{}{"fields": p.errs})
		return false
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return false
	}
	return true
}

func parsePointsRequest(rw *ResponseWriter, r *http.Request) (pointsRequest, bool) {
	p := newQueryParser(r)
	req := pointsRequest{
		MinLat:    p.float("minLat", true),
		MinLng:    p.float("minLng", true),
		MaxLat:    p.float("maxLat", true),
		MaxLng:    p.float("maxLng", true),
		Zoom:      p.int("zoom", -1),
		Kind:      p.string("kind"),
		Published: p.bool("published", true),
		Limit:     p.int("limit", 0),
	}
	return req, p.finish(rw, &req)
}

func parseSameSpotRequest(rw *ResponseWriter, r *http.Request) (sameSpotRequest, bool) {
	p := newQueryParser(r)
	req := sameSpotRequest{
		Lat:       p.float("lat", true),
		Lng:       p.float("lng", true),
		RadiusM:   p.float("radius_m", false),
		Kind:      p.string("kind"),
		ID:        p.string("id"),
		Published: p.bool("published", true),
	}
	return req, p.finish(rw, &req)
}

func parseTileRequest(rw *ResponseWriter, r *http.Request, key string) (tileRequest, bool) {
	p := newQueryParser(r)
	req := tileRequest{
		Key:       key,
		Kind:      p.string("kind"),
		Published: p.bool("published", true),
	}
	return req, p.finish(rw, &req)
}

func parseMarkersRequest(rw *ResponseWriter, r *http.Request) (markersRequest, bool) {
	p := newQueryParser(r)
	req := markersRequest{
		MinLat:     p.float("minLat", true),
		MinLng:     p.float("minLng", true),
		MaxLat:     p.float("maxLat", true),
		MaxLng:     p.float("maxLng", true),
		Zoom:       p.int("zoom", -1),
		Kind:       p.string("kind"),
		Query:      p.string("q"),
		Categories: p.list("category"),
	}
	if req.Zoom < 0 {
		req.Zoom = req.viewport().ZoomLevel()
	}
	return req, p.finish(rw, &req)
}

// kindOf parses a validated kind parameter, defaulting to death.
func kindOf(s string) models.CoordinateKind {
	if k, err := models.ParseCoordinateKind(s); err == nil {
		return k
	}
	return models.KindDeath
}
