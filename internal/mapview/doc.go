// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package mapview is the UI-agnostic map core. A Session owns one map's state:
the viewport, the active filter, the merged points of the last committed
refresh and the marker layer built from them.

Adapters drive a Session in one of two ways. One-shot callers (the GeoJSON
endpoint) call Refresh directly and render the returned RenderablePoints.
Live callers (the websocket adapter) report raw viewport and filter changes
through ViewportChanged, SearchChanged and FilterChanged, and receive
debounced results through the OnUpdate callback.

Commits are serialized behind the session mutex. A refresh whose generation
is no longer current when it reaches the commit step is dropped, so the
layer only ever shows the result of the latest viewport.
*/
package mapview
