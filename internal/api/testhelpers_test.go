// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/database"
	"github.com/deathatlas/atlas/internal/mapview"
	"github.com/deathatlas/atlas/internal/models"
	ws "github.com/deathatlas/atlas/internal/websocket"
)

// testDBSemaphore serializes DuckDB instances across parallel tests.
var testDBSemaphore = make(chan struct{}, 1)

type testEnv struct {
	db      *database.DB
	handler *Handler
	hub     *ws.Hub
	server  http.Handler
}

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{ResponseCacheTTL: time.Minute},
		Map: config.MapConfig{
			TileCacheSize:      100,
			RingPadding:        0,
			TileTimeout:        5 * time.Second,
			MaxConcurrentTiles: 4,
			MaxTiles:           64,
			MaxTileZoom:        14,
			DetailZoom:         16,
			DebounceDelay:      10 * time.Millisecond,
			SameSpotRadiusM:    5,
		},
		Security: config.SecurityConfig{
			RateLimitDisabled: true,
			CORSOrigins:       []string{"*"},
			MaxIngestBatch:    10,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	db, err := database.New(&config.DatabaseConfig{
		Driver:             database.DriverDuckDB,
		Path:               ":memory:",
		MaxMemory:          "512MB",
		Threads:            2,
		AggregateBelowZoom: 6,
		AggregateMinCount:  3,
		QueryLimit:         1000,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	factory := mapview.NewFactory(func(kind models.CoordinateKind) mapview.PointSource {
		return database.NewSource(db, kind, true)
	}, cfg.Map)

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})

	h := NewHandler(db, factory, hub, cfg)
	router := NewRouter(h, NewChiMiddleware(ChiMiddlewareConfigFromSecurity(cfg.Security)))
	return &testEnv{db: db, handler: h, hub: hub, server: router.SetupChi()}
}

// seedRows is the fixture every handler test starts from: two records on
// one spot, one nearby, one unpublished, and one out of range.
const seedRows = `[
	{"id": "Q1", "name": "Ada", "death_lat": 40.7128, "death_lng": -74.006, "burial_lat": 40.75, "burial_lng": -73.98, "source_url": "https://example.org/ada"},
	{"id": "Q2", "name": "Bea", "death_lat": 40.7128, "death_lng": -74.006},
	{"id": "Q3", "name": "Cy", "category": "accident", "death_lat": 40.73, "death_lng": -73.99},
	{"id": "Q4", "name": "Hidden", "death_lat": 40.72, "death_lng": -74.0, "published": false},
	{"id": "bad", "death_lat": 95, "death_lng": 0}
]`

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	if rec := e.do(t, http.MethodPost, "/api/v1/points", seedRows); rec.Code != http.StatusCreated {
		t.Fatalf("seed: status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v\n%s", err, rec.Body.String())
	}
	return env
}
