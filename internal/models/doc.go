// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package models defines the data shared by every stage of the map pipeline.

Key types:

  - GeoPoint: one renderable record (or a synthetic same-coordinate cluster
    when IsCluster is set, or a server-side centroid when ID is empty)
  - Bounds and Viewport: the geographic window the map is showing
  - CoordinateKind: which coordinate of a person record is plotted
    (death, burial, missing), each with its own field resolver
  - RawRow: a loosely typed source row before it is resolved into a GeoPoint
  - Filter: the search text and category overlay applied to cached points

Models carry no behaviour beyond validation and small derived values; fetching,
caching, clustering and rendering live in their own packages.
*/
package models
