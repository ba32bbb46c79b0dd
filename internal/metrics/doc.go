// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

// Package metrics defines the Prometheus collectors for Death Atlas.
//
// Collectors are registered on the default registry through promauto and
// exported at /metrics. Record* helpers keep label handling in one place so
// call sites stay one line.
package metrics
