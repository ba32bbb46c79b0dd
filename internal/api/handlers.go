// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package api

import (
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gorilla/websocket"

	"github.com/deathatlas/atlas/internal/cache"
	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/database"
	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/mapview"
	"github.com/deathatlas/atlas/internal/middleware"
	"github.com/deathatlas/atlas/internal/models"
	ws "github.com/deathatlas/atlas/internal/websocket"
)

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, change notification
//   - handlers_points.go: Point Source endpoints (query, same-spot, ingest, delete)
//   - handlers_map.go: server-rendered markers as GeoJSON
//   - handlers_health.go: health and probe endpoints
//   - handlers_websocket.go: interactive map sessions
type Handler struct {
	db        *database.DB
	sessions  *mapview.Factory
	wsHub     *ws.Hub
	config    *config.Config
	cache     *cache.TTL[[]models.GeoPoint]
	perfMon   *middleware.PerformanceMonitor
	startTime time.Time
}

// NewHandler creates the API handler. sessions and wsHub may be nil, which
// disables the marker and websocket endpoints.
//
// Example:
//
//	handler := api.NewHandler(db, factory, hub, cfg)
//	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security)))
//	http.ListenAndServe(cfg.Server.Addr(), router.SetupChi())
func NewHandler(db *database.DB, sessions *mapview.Factory, wsHub *ws.Hub, cfg *config.Config) *Handler {
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.Database.ResponseCacheTTL
	}
	return &Handler{
		db:        db,
		sessions:  sessions,
		wsHub:     wsHub,
		config:    cfg,
		cache:     cache.NewTTL[[]models.GeoPoint](ttl),
		perfMon:   middleware.NewPerformanceMonitor(1000, middleware.DefaultSlowRequestThreshold),
		startTime: time.Now(),
	}
}

// Cache returns the point response cache so a supervisor can sweep it.
func (h *Handler) Cache() *cache.TTL[[]models.GeoPoint] {
	return h.cache
}

// PerformanceMonitor returns the request latency monitor.
func (h *Handler) PerformanceMonitor() *middleware.PerformanceMonitor {
	return h.perfMon
}

// OnPointsChanged runs after an ingest or delete committed. It drops the
// response cache and every cached tile, then tells connected sessions to
// refetch their viewport.
func (h *Handler) OnPointsChanged(accepted, rejected, deleted int) {
	h.cache.Clear()
	tiles := 0
	if h.sessions != nil {
		tiles = h.sessions.InvalidateTiles()
	}
	logging.Info().
		Int("accepted", accepted).
		Int("rejected", rejected).
		Int("deleted", deleted).
		Int("tiles_dropped", tiles).
		Msg("Point data changed, caches invalidated")

	if h.wsHub != nil {
		h.wsHub.BroadcastPointsChanged(accepted, rejected, deleted)
	}
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts only browser origins listed in the CORS
// configuration. A missing Origin header is rejected.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if h.config == nil {
		return true
	}
	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and bounds the length of
// client-supplied values before they reach the log.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}

func (h *Handler) maxIngestBatch() int {
	if h.config == nil || h.config.Security.MaxIngestBatch <= 0 {
		return 5000
	}
	return h.config.Security.MaxIngestBatch
}
