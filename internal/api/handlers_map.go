// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/models"
)

// MapMarkers handles GET /api/v1/map/markers. It runs one refresh through a
// throwaway session over the shared tile cache and returns the clustered
// markers as GeoJSON, for surfaces that cannot hold a websocket.
func (h *Handler) MapMarkers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.sessions == nil {
		rw.ServiceUnavailable("Map sessions are not configured")
		return
	}
	req, ok := parseMarkersRequest(rw, r)
	if !ok {
		return
	}

	ctx := r.Context()
	sess := h.sessions.New(ctx, kindOf(req.Kind), nil)
	defer sess.Close()

	out, err := sess.RefreshAt(ctx, req.viewport(), req.Zoom)
	switch {
	case errors.Is(err, models.ErrInvalidViewport):
		rw.ValidationError("Bounding box must have a positive area", map[string]interface{}{"field": "minLat"})
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rw.ServiceUnavailable("Map refresh did not complete")
		return
	case err != nil:
		logging.Ctx(ctx).Error().Err(err).Msg("Map refresh failed")
		rw.InternalError("Map refresh failed")
		return
	}
	if f := req.filter(); !f.IsEmpty() {
		out = sess.ApplyFilter(f)
	}

	data, err := markersToGeoJSON(out).MarshalJSON()
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to encode GeoJSON")
		rw.InternalError("Failed to encode markers")
		return
	}
	w.Header().Set("Content-Type", ContentTypeGeoJSON)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to write GeoJSON response")
	}
}
