// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package websocket is the live map adapter. Every connection owns one
mapview.Session; the Hub tracks connections and fans out broadcasts.

Each client runs two goroutines:

  - readPump decodes frames and drives the session
  - writePump writes queued messages and keepalive pings

Frames are JSON objects of the form {"type": ..., "data": ...}.

Client to server:

	viewport  {"center_lat","center_lng","lat_delta","lng_delta","zoom"?}
	search    {"query"}
	filter    {"query","categories"}
	tap       {"key"}
	pick      {"cluster_key","member_id"}
	dismiss   no data
	ping      no data

Server to client:

	markers         mapview.RenderablePoints after each debounced refresh or refilter
	action          render.Action answering a tap or pick
	status          StatusData, sent on connect and after soft warnings
	points_changed  PointsChangedData after ingest; sessions then reload
	error           ErrorData for a rejected message
	pong            reply to ping

A recenter action is followed by a refresh of the new viewport, so the
client receives a markers message without reporting the move itself.
*/
package websocket
