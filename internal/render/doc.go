// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package render turns clustered points into keyed markers and implements the
tap protocol shared by every map surface.

Marker identity is (id, lat, lng) for records and the coordinate bucket for
clusters, so a marker that did not move keeps its key across renders. Layer
rebuilds its marker list only when the keyed set changes. Selection is held
beside the list rather than in it, so selecting a pin never forces a
recompute.

Tap protocol:

	Idle --tap cluster, zoom < detail--> RecenterAndZoom(min(zoom+2, detail)) --> Idle
	Idle --tap cluster, zoom >= detail--> ShowPicker --pick--> ShowDetail --> Idle
	Idle --tap singleton--> ShowDetail --> Idle

ShowDetail for a singleton gathers every record at the same spot: first from
the local point index, then, when the tapped record is not already known
locally, from the Point Source same-spot lookup. If the lookup fails the
detail falls back to what is known locally and carries a soft warning.
*/
package render
