// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestNewPerformanceMonitor_Defaults(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(0, 0)
	if len(pm.samples) != 1000 {
		t.Errorf("capacity = %d, want 1000", len(pm.samples))
	}
	if pm.slowThreshold != DefaultSlowRequestThreshold {
		t.Errorf("slowThreshold = %v", pm.slowThreshold)
	}
	if pm.Len() != 0 {
		t.Errorf("Len() = %d, want 0", pm.Len())
	}
}

func TestPerformanceMonitor_RingOverwritesOldest(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(3, time.Second)
	for i := 1; i <= 5; i++ {
		pm.Record(RequestSample{Route: "/r", Method: http.MethodGet, Duration: time.Duration(i) * time.Millisecond})
	}

	if pm.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", pm.Len())
	}
	recent := pm.Recent(10)
	want := []time.Duration{3 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond}
	if len(recent) != len(want) {
		t.Fatalf("Recent() returned %d samples", len(recent))
	}
	for i, s := range recent {
		if s.Duration != want[i] {
			t.Errorf("recent[%d] = %v, want %v", i, s.Duration, want[i])
		}
	}

	if got := pm.Recent(1); len(got) != 1 || got[0].Duration != 5*time.Millisecond {
		t.Errorf("Recent(1) = %+v", got)
	}
	if got := pm.Recent(0); got != nil {
		t.Errorf("Recent(0) = %+v, want nil", got)
	}
}

func TestPerformanceMonitor_Stats(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(100, time.Second)
	for i := 1; i <= 10; i++ {
		pm.Record(RequestSample{Route: "/api/v1/points", Method: http.MethodGet, Duration: time.Duration(i) * time.Millisecond, StatusCode: 200})
	}
	pm.Record(RequestSample{Route: "/api/v1/points", Method: http.MethodPost, Duration: 40 * time.Millisecond, StatusCode: 500})

	stats := pm.Stats()
	if len(stats) != 2 {
		t.Fatalf("Stats() returned %d routes, want 2", len(stats))
	}

	get := stats[0]
	if get.Route != "GET /api/v1/points" || get.RequestCount != 10 {
		t.Fatalf("busiest route = %+v", get)
	}
	if get.P50MS != 5 || get.MaxMS != 10 || get.AvgMS != 5.5 {
		t.Errorf("GET stats = %+v", get)
	}
	if get.ErrorCount != 0 {
		t.Errorf("GET error count = %d", get.ErrorCount)
	}

	post := stats[1]
	if post.ErrorCount != 1 || post.P99MS != 40 {
		t.Errorf("POST stats = %+v", post)
	}
}

func TestPerformanceMonitor_Middleware(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(10, time.Hour)
	r := chi.NewRouter()
	r.Use(pm.Middleware)
	r.Get("/api/v1/points/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/points/42", nil))

	recent := pm.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("recorded %d samples", len(recent))
	}
	if recent[0].Route != "/api/v1/points/{id}" {
		t.Errorf("route = %q", recent[0].Route)
	}
	if recent[0].StatusCode != http.StatusAccepted {
		t.Errorf("status = %d", recent[0].StatusCode)
	}
}
