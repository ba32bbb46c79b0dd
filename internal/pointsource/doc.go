// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package pointsource is the HTTP client for a Point Source: the REST service
that answers bounding-box queries with person records.

Request shape:

	GET {base}/points?minLat=..&minLng=..&maxLat=..&maxLng=..&zoom=..&kind=death&published=true
	GET {base}/points/same-spot?lat=..&lng=..&radius_m=5&id=..&kind=death

Responses may be a bare JSON array or an object wrapping the array under
"points" or "data". Rows are converted with the permissive field aliasing in
models.RawRow, so historical variants (latitude/lat, lon/lng/longitude, a
numeric or string id) all decode. Rows with missing or out-of-range
coordinates are dropped and counted; they never fail the batch.

A non-200 status, an HTML body (even one served with 200), or a body that is
not JSON fails the whole request with a *TileFetchError. The fetch
coordinator treats that as an empty tile for the current refresh.

Resilience:
  - A token-bucket limiter (golang.org/x/time/rate) spaces outbound requests
  - HTTP 429 is retried with exponential backoff, honoring Retry-After
  - An optional circuit breaker (sony/gobreaker) sheds load while the source
    is failing; cancelled requests do not count against it
*/
package pointsource
