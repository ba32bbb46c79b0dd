// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package cluster groups points that share a coordinate into a single pin.

Points are bucketed by latitude and longitude rounded to five decimal places
(roughly one metre). A bucket holding one point passes through unchanged; a
bucket holding two or more becomes a synthetic cluster point carrying every
member, sorted by display name for a stable picker order.

Only coordinate collisions merge. Nearby but distinct addresses are never
combined, so each record keeps its own pin once the map is zoomed in.

Usage:

	pins := cluster.Cluster(points)
	for _, p := range pins {
	    if p.IsCluster {
	        fmt.Println(p.Count, "people at", cluster.BucketKey(p.Lat, p.Lng))
	    }
	}

Cluster is idempotent: clustering the flattened output of a previous pass
yields the same pins.
*/
package cluster
