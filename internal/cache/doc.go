// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package cache provides the in-memory stores used by the map pipeline.

  - TileCache: bounded tile key -> points store with FIFO eviction. A miss
    only costs a re-fetch, never a wrong answer.
  - PointIndex: every point seen by a session, keyed by ID and bucketed in a
    spatial hash grid. Search and category filters re-filter from it without
    touching the network, and same-spot lookups check it before asking the
    Point Source.
  - TTL: expiring key/value store used by the Point Source API to cache
    encoded bbox responses between ingests.

All three are safe for concurrent use.
*/
package cache
