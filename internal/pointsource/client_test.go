// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package pointsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/tile"
)

func testConfig(url string) *config.PointSourceConfig {
	return &config.PointSourceConfig{
		URL:            url,
		Kind:           "death",
		Published:      true,
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(testConfig(srv.URL+"/api/v1"), opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

var nyc = tile.Key{Z: 10, X: 301, Y: 385}

func TestNewClient_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		url  string
		kind string
	}{
		{"empty url", "", "death"},
		{"no scheme", "example.com/api", "death"},
		{"ftp", "ftp://example.com", "death"},
		{"bad kind", "http://example.com", "birth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(tt.url)
			cfg.Kind = tt.kind
			if _, err := NewClient(cfg); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestFetchTile_SendsBoundsQuery(t *testing.T) {
	var got http.Header
	var query map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/points" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		got = r.Header
		query = map[string]string{}
		for k := range r.URL.Query() {
			query[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	points, err := c.FetchTile(context.Background(), nyc)
	if err != nil {
		t.Fatalf("FetchTile: %v", err)
	}
	if points == nil || len(points) != 0 {
		t.Errorf("Expected empty non-nil result, got %#v", points)
	}

	b := nyc.Bounds()
	want := map[string]string{
		"minLat":    strconv.FormatFloat(b.South, 'f', -1, 64),
		"minLng":    strconv.FormatFloat(b.West, 'f', -1, 64),
		"maxLat":    strconv.FormatFloat(b.North, 'f', -1, 64),
		"maxLng":    strconv.FormatFloat(b.East, 'f', -1, 64),
		"zoom":      "10",
		"kind":      "death",
		"published": "true",
	}
	for k, v := range want {
		if query[k] != v {
			t.Errorf("query %s = %q, want %q", k, query[k], v)
		}
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Expected JSON Accept header, got %q", got.Get("Accept"))
	}
}

func TestFetchTile_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"id":"a","lat":40.7,"lng":-74}]`, 1},
		{"points envelope", `{"points":[{"id":"a","latitude":40.7,"longitude":-74},{"id":"b","lat":"40.71","lon":"-74.01"}]}`, 2},
		{"data envelope", `{"success":true,"data":[{"uuid":"x","death_lat":40.7,"death_lng":-74}]}`, 1},
		{"nested envelope", `{"data":{"points":[{"qid":"Q1","lat":1,"long":2}]}}`, 1},
		{"null data", `{"data":null}`, 0},
		{"invalid rows dropped", `[{"id":"ok","lat":1,"lng":1},{"id":"far","lat":91,"lng":0},{"id":"nan","lat":"abc","lng":0},"junk"]`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})
			points, err := c.FetchTile(context.Background(), nyc)
			if err != nil {
				t.Fatalf("FetchTile: %v", err)
			}
			if len(points) != tt.want {
				t.Errorf("Expected %d points, got %d: %+v", tt.want, len(points), points)
			}
		})
	}
}

func TestFetchTile_NumericIDAndAliases(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"id":12345,"lat":"40.5","lng":-73.9,"name":"Harry Houdini","type":"illness","deathDate":"1926-10-31","point_count":1}]`))
	})

	points, err := c.FetchTile(context.Background(), nyc)
	if err != nil {
		t.Fatalf("FetchTile: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(points))
	}
	p := points[0]
	if p.ID != "12345" || p.Title != "Harry Houdini" || p.Category != "illness" || p.Date != "1926-10-31" {
		t.Errorf("Unexpected aliasing result: %+v", p)
	}
	if p.Lat != 40.5 || p.Lng != -73.9 || p.Kind != models.KindDeath {
		t.Errorf("Unexpected coordinates: %+v", p)
	}
}

func TestFetchTile_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		ctype      string
		body       string
		wantReason string
		wantStatus int
	}{
		{"server error", http.StatusInternalServerError, "application/json", `{"error":"boom"}`, ReasonStatus, 500},
		{"not found", http.StatusNotFound, "text/plain", "nope", ReasonStatus, 404},
		{"html with 200", http.StatusOK, "text/html; charset=utf-8", "<html><body>Error</body></html>", ReasonMalformed, 200},
		{"html without content type", http.StatusOK, "", "  <!DOCTYPE html><html></html>", ReasonMalformed, 200},
		{"truncated json", http.StatusOK, "application/json", `[{"id":"a","lat":1`, ReasonMalformed, 200},
		{"object without rows", http.StatusOK, "application/json", `{"ok":true}`, ReasonMalformed, 200},
		{"empty body", http.StatusOK, "application/json", "", ReasonMalformed, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				if tt.ctype != "" {
					w.Header().Set("Content-Type", tt.ctype)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.FetchTile(context.Background(), nyc)
			var tfe *TileFetchError
			if !errors.As(err, &tfe) {
				t.Fatalf("Expected *TileFetchError, got %v", err)
			}
			if tfe.Reason != tt.wantReason || tfe.StatusCode != tt.wantStatus {
				t.Errorf("Got reason %q status %d, want %q %d", tfe.Reason, tfe.StatusCode, tt.wantReason, tt.wantStatus)
			}
			if tfe.Tile != nyc {
				t.Errorf("Expected tile %s on error, got %s", nyc, tfe.Tile)
			}
		})
	}
}

func TestFetchTile_RetriesTooManyRequests(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"a","lat":1,"lng":1}]`))
	})

	points, err := c.FetchTile(context.Background(), nyc)
	if err != nil {
		t.Fatalf("FetchTile: %v", err)
	}
	if len(points) != 1 || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected success on second call, got %d points after %d calls", len(points), calls)
	}
}

func TestFetchTile_GivesUpOnPersistentTooManyRequests(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchTile(context.Background(), nyc)
	var tfe *TileFetchError
	if !errors.As(err, &tfe) || tfe.Reason != ReasonRateLimited {
		t.Fatalf("Expected rate limited error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 1 attempt plus 2 retries, got %d", got)
	}
}

func TestFetchTile_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchTile(ctx, nyc)
	var tfe *TileFetchError
	if !errors.As(err, &tfe) || tfe.Reason != ReasonTimeout {
		t.Fatalf("Expected timeout error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Expected error to wrap context.DeadlineExceeded")
	}
}

func TestFetchTile_BreakerOpens(t *testing.T) {
	var calls int32
	settings := DefaultBreakerSettings()
	settings.Name = "test-breaker-opens"
	settings.MinRequests = 2
	settings.FailureRatio = 0.5
	settings.Timeout = time.Hour

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithBreaker(NewBreaker(settings)))

	for i := 0; i < 2; i++ {
		if _, err := c.FetchTile(context.Background(), nyc); err == nil {
			t.Fatal("Expected failure")
		}
	}

	_, err := c.FetchTile(context.Background(), nyc)
	var tfe *TileFetchError
	if !errors.As(err, &tfe) || tfe.Reason != ReasonBreakerOpen {
		t.Fatalf("Expected breaker_open, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Open breaker should not reach the server, got %d calls", got)
	}
	if c.breaker.State() != "open" {
		t.Errorf("Expected open state, got %s", c.breaker.State())
	}
}

func TestSameSpot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/points/same-spot" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "48.8584" || q.Get("lng") != "2.2945" || q.Get("radius_m") != "5" || q.Get("id") != "Q1" || q.Get("kind") != "burial" {
			t.Errorf("Unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"Q1","burial_lat":48.8584,"burial_lng":2.2945},{"id":"Q2","lat":48.8584,"lng":2.2945}]}`))
	})

	points, err := c.ForKind(models.KindBurial).SameSpot(context.Background(), 48.8584, 2.2945, 5, "Q1")
	if err != nil {
		t.Fatalf("SameSpot: %v", err)
	}
	if len(points) != 2 {
		t.Errorf("Expected 2 points, got %d", len(points))
	}
	if c.Kind() != models.KindDeath {
		t.Error("ForKind must not modify the original client")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"", 0, false},
		{"3", 3 * time.Second, true},
		{"-1", 0, false},
		{"soon", 0, false},
		{now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second, true},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0, true},
	}
	for _, tt := range tests {
		got, ok := parseRetryAfter(tt.in, now)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseRetryAfter(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: refused"), true},
		{&TileFetchError{Reason: ReasonMalformed}, false},
		{&TileFetchError{Reason: ReasonStatus, StatusCode: 404}, false},
		{&TileFetchError{Reason: ReasonStatus, StatusCode: 503}, true},
		{&TileFetchError{Reason: ReasonTimeout}, true},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
