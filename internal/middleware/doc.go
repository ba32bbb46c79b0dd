// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package middleware provides chi-compatible HTTP middleware for the Point
Source API and the map session endpoints.

Components:

  - RequestID: reuses or generates an X-Request-ID and seeds the logging
    context with request and correlation IDs
  - RequestLogger: one structured zerolog line per request
  - PrometheusMetrics: request counters and latency histograms labelled by
    chi route pattern, so /api/v1/points/{id} is one series
  - PerformanceMonitor: in-process latency percentiles per route, surfaced
    by the health endpoint

All middleware has the func(http.Handler) http.Handler shape and is meant to
be installed with chi's Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.PrometheusMetrics)
	r.Use(perf.Middleware)

Response compression is handled by chi's own middleware.Compress.
*/
package middleware
