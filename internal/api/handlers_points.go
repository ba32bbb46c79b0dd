// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/deathatlas/atlas/internal/cache"
	"github.com/deathatlas/atlas/internal/database"
	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/tile"
)

// maxIngestBytes bounds an ingest request body.
const maxIngestBytes = 32 << 20

// ingestEnvelopeKeys are the object fields that may wrap an ingest array.
var ingestEnvelopeKeys = []string{"points", "data", "records"}

// pointRow is the wire form of a point. Metadata is flattened so any client
// that reads plain rows sees it.
type pointRow struct {
	ID          string  `json:"id,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Title       string  `json:"title,omitempty"`
	Category    string  `json:"category,omitempty"`
	Date        string  `json:"date,omitempty"`
	Kind        string  `json:"kind,omitempty"`
	Count       int     `json:"count,omitempty"`
	SourceURL   string  `json:"source_url,omitempty"`
	WikidataID  string  `json:"wikidata_id,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	CoordSource string  `json:"coord_source,omitempty"`
}

func toRows(points []models.GeoPoint) []pointRow {
	rows := make([]pointRow, len(points))
	for i, p := range points {
		row := pointRow{
			ID:       p.ID,
			Lat:      p.Lat,
			Lng:      p.Lng,
			Title:    p.Title,
			Category: p.Category,
			Date:     p.Date,
			Kind:     p.Kind.String(),
			Count:    p.Count,
		}
		if m := p.Meta; m != nil {
			row.SourceURL = m.SourceURL
			row.WikidataID = m.WikidataID
			row.Confidence = m.Confidence
			row.CoordSource = m.CoordSource
		}
		rows[i] = row
	}
	return rows
}

// Points handles GET /api/v1/points, the bbox query behind every tile fetch.
// Results are cached per parameter set until the TTL lapses or the data
// changes.
func (h *Handler) Points(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, ok := parsePointsRequest(rw, r)
	if !ok {
		return
	}

	points, hit, err := h.queryCached(r, req)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.SuccessWithMeta(toRows(points), &APIMeta{Count: intPtr(len(points)), Cache: cacheLabel(hit)})
}

func (h *Handler) queryCached(r *http.Request, req pointsRequest) ([]models.GeoPoint, bool, error) {
	key := cache.GenerateKey("points", req)
	if points, hit := h.cache.Get(key); hit {
		return points, true, nil
	}

	points, err := h.db.QueryPoints(r.Context(), database.PointQuery{
		Bounds:        req.bounds(),
		Kind:          kindOf(req.Kind),
		Zoom:          req.Zoom,
		PublishedOnly: req.Published,
		Limit:         req.Limit,
	})
	if err != nil {
		return nil, false, err
	}
	h.cache.Set(key, points)
	return points, false, nil
}

func cacheLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// TilePoints handles GET /api/v1/tiles/{z}/{x}/{y}. It answers exactly what a
// bbox query over the tile's bounds at zoom z would, sharing its cache.
func (h *Handler) TilePoints(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	raw := chi.URLParam(r, "z") + "/" + chi.URLParam(r, "x") + "/" + chi.URLParam(r, "y")
	req, ok := parseTileRequest(rw, r, raw)
	if !ok {
		return
	}
	key, err := tile.ParseKey(req.Key)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	b := key.Bounds()
	points, hit, err := h.queryCached(r, pointsRequest{
		MinLat:    b.South,
		MinLng:    b.West,
		MaxLat:    b.North,
		MaxLng:    b.East,
		Zoom:      key.Z,
		Kind:      req.Kind,
		Published: req.Published,
	})
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.SuccessWithMeta(toRows(points), &APIMeta{Count: intPtr(len(points)), Cache: cacheLabel(hit)})
}

// SameSpot handles GET /api/v1/points/same-spot. It returns every record
// within radius_m of the coordinate, nearest first.
func (h *Handler) SameSpot(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	req, ok := parseSameSpotRequest(rw, r)
	if !ok {
		return
	}

	points, err := h.db.SameSpot(r.Context(), database.SameSpotQuery{
		Lat:           req.Lat,
		Lng:           req.Lng,
		RadiusM:       req.RadiusM,
		Kind:          kindOf(req.Kind),
		PublishedOnly: req.Published,
	})
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if req.ID != "" {
		logging.Ctx(r.Context()).Debug().
			Str("anchor", sanitizeLogValue(req.ID)).
			Int("matches", len(points)).
			Msg("Same-spot lookup")
	}
	rw.SuccessWithMeta(toRows(points), &APIMeta{Count: intPtr(len(points))})
}

// IngestPoints handles POST /api/v1/points. The body is a JSON array of rows
// or an object wrapping one under points, data or records. Rows without a
// usable coordinate are reported in the result and do not fail the batch.
func (h *Handler) IngestPoints(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
				fmt.Sprintf("Request body exceeds %d bytes", maxIngestBytes))
			return
		}
		rw.BadRequest("Failed to read request body")
		return
	}

	rows, err := decodeIngestBody(body)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if len(rows) == 0 {
		rw.ValidationError("At least one row is required", map[string]interface{}{"field": "points"})
		return
	}
	if limit := h.maxIngestBatch(); len(rows) > limit {
		rw.ErrorWithDetails(http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge,
			fmt.Sprintf("Batch of %d rows exceeds the limit of %d", len(rows), limit),
			map[string]interface{}{"limit": limit, "received": len(rows)})
		return
	}

	res, err := h.db.Ingest(r.Context(), rows)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Int("received", res.Received).
		Int("accepted", res.Accepted).
		Int("rejected", len(res.Rejected)).
		Msg("Points ingested")

	if res.Accepted > 0 {
		h.OnPointsChanged(res.Accepted, len(res.Rejected), 0)
	}
	rw.Created(res)
}

// DeletePoint handles DELETE /api/v1/points/{id}.
func (h *Handler) DeletePoint(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > 256 {
		rw.ValidationError("id must be between 1 and 256 characters", map[string]interface{}{"field": "id"})
		return
	}

	found, err := h.db.Delete(r.Context(), id)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if !found {
		rw.NotFound(fmt.Sprintf("Point %q not found", id))
		return
	}
	h.OnPointsChanged(0, 0, 1)
	rw.Success(map[string]interface{}{"id": id, "deleted": true})
}

// decodeIngestBody accepts a bare array or an envelope object. Every element
// must be a JSON object.
func decodeIngestBody(body []byte) ([]models.RawRow, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("request body is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var items []interface{}
	switch v := doc.(type) {
	case []interface{}:
		items = v
	case map[string]interface{}:
		for _, k := range ingestEnvelopeKeys {
			if inner, ok := v[k].([]interface{}); ok {
				items = inner
				break
			}
		}
		if items == nil {
			return nil, errors.New("object body has no points, data or records array")
		}
	default:
		return nil, errors.New("body must be a JSON array or object")
	}

	rows := make([]models.RawRow, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("row %d is not an object", i)
		}
		rows[i] = models.RawRow(obj)
	}
	return rows, nil
}
