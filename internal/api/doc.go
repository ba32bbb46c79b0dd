// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package api provides the HTTP surface of Death Atlas.

It serves two audiences. Map clients fetch tiles from the Point Source
endpoints exactly like the in-process refresh pipeline does, and interactive
clients hold a websocket session that runs the whole pipeline server side.

# Endpoints

Point Source:
  - GET /api/v1/points: points of one coordinate kind inside a bounding box
    (minLat, minLng, maxLat, maxLng, zoom, kind, published, limit). Below the
    aggregation zoom dense areas come back as centroids with a count.
  - GET /api/v1/tiles/{z}/{x}/{y}: the points query for one tile's bounds at
    zoom z, sharing the points response cache.
  - GET /api/v1/points/same-spot: every record within radius_m (max 50) of
    lat/lng, nearest first.
  - POST /api/v1/points: ingest a batch of raw rows; invalid rows are reported
    and skipped.
  - DELETE /api/v1/points/{id}: remove one record.

Map:
  - GET /api/v1/map/markers: clustered markers for a bounding box as a GeoJSON
    FeatureCollection, with optional q and category filters.
  - GET /api/v1/ws: interactive map session (see package websocket).

Health:
  - GET /api/v1/health, /api/v1/health/live, /api/v1/health/ready

Observability:
  - GET /metrics: Prometheus metrics

# Responses

Every JSON endpoint except the GeoJSON adapter answers with the envelope

	{"success": true, "data": ..., "meta": {"request_id": "...", "timestamp": "...", "count": 3}}

or, on failure,

	{"success": false, "error": {"code": "VALIDATION_ERROR", "message": "...", "details": {...}}}

Any data change through ingest or delete clears the response cache and the
shared tile caches, then broadcasts points_changed to websocket clients so
open sessions refetch their viewport.
*/
package api
