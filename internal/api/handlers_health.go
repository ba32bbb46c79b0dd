// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package api

import (
	"net/http"
	"time"

	"github.com/deathatlas/atlas/internal/cache"
	"github.com/deathatlas/atlas/internal/database"
	"github.com/deathatlas/atlas/internal/middleware"
	"github.com/deathatlas/atlas/internal/models"
)

// HealthStatus is the payload of GET /api/v1/health.
type HealthStatus struct {
	Status            string                                         `json:"status"`
	DatabaseConnected bool                                           `json:"database_connected"`
	DatabaseDriver    string                                         `json:"database_driver,omitempty"`
	Records           *database.RecordCounts                         `json:"records,omitempty"`
	WebSocketClients  int                                            `json:"websocket_clients"`
	ResponseCache     cache.TTLStats                                 `json:"response_cache"`
	TileCaches        map[models.CoordinateKind]cache.TileCacheStats `json:"tile_caches,omitempty"`
	Routes            []middleware.RouteStats                        `json:"routes,omitempty"`
	Uptime            float64                                        `json:"uptime_seconds"`
}

// Health reports database connectivity, record counts and cache state.
// The service is degraded, not down, when the database is unreachable:
// sessions keep serving cached tiles.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dbConnected := h.db != nil && h.db.Ping(ctx) == nil

	health := HealthStatus{
		Status:            "healthy",
		DatabaseConnected: dbConnected,
		ResponseCache:     h.cache.Stats(),
		Routes:            h.perfMon.Stats(),
		Uptime:            time.Since(h.startTime).Seconds(),
	}
	if !dbConnected {
		health.Status = "degraded"
	}
	if h.db != nil {
		health.DatabaseDriver = h.db.Driver()
	}
	if dbConnected {
		if counts, err := h.db.Counts(ctx); err == nil {
			health.Records = &counts
		}
	}
	if h.wsHub != nil {
		health.WebSocketClients = h.wsHub.GetClientCount()
	}
	if h.sessions != nil {
		health.TileCaches = h.sessions.TileStats()
	}

	NewResponseWriter(w, r).Success(health)
}

// HealthLive answers liveness probes regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady answers readiness probes: 200 only when the database responds.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.db == nil || h.db.Ping(r.Context()) != nil {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Database is not reachable",
			map[string]interface{}{"database_connected": false})
		return
	}
	rw.Success(map[string]interface{}{
		"database_connected": true,
		"ready_to_serve":     true,
		"uptime":             time.Since(h.startTime).Seconds(),
	})
}
