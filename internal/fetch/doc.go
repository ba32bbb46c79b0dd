// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package fetch resolves a viewport into a merged, deduplicated point list.

Refresh is the only entry point. Each call:

 1. Takes the next generation number and cancels the previous refresh
 2. Computes the covering tiles, padded by a ring of off-screen tiles
 3. Serves each tile from the tile cache or one Point Source request
 4. Runs the tile fetches concurrently, each under its own timeout
 5. Merges the per-tile lists on (lat, lng, count, id) rounded to 6 places
 6. Returns ErrRefreshSuperseded if a newer refresh started meanwhile

Ordering is last-wins: a refresh that has been superseded never writes to
the cache and never returns points, even if its transport ignores
cancellation and answers late.

A tile that fails is logged, counted in Result.FailedTiles and contributes
no points. The other tiles still render.
*/
package fetch
