// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

// Package scheduler coalesces bursts of viewport and search/filter changes.
//
// Viewport changes debounce into one network refresh for the final
// viewport. Search text and category changes debounce into one re-filter of
// already-fetched points, which never touches the network.
package scheduler
