// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package main is the entry point for the Death Atlas server.

The server stores people's death, burial and missing coordinates, answers
bounding-box point queries, and serves clustered map markers built by the
tile refresh pipeline. Connected map clients receive points_changed over a
websocket and reload their viewport.

# Supervision

	RootSupervisor ("deathatlas")
	├── StoreSupervisor ("store-layer")
	│   └── DuckDB checkpoint (duckdb driver only)
	├── SessionSupervisor ("session-layer")
	│   ├── WebSocket Hub
	│   └── Response cache sweeper
	└── APISupervisor ("api-layer")
	    └── HTTP Server

# Point Source

Map sessions read tiles straight from the local store unless
POINTSOURCE_URL names a remote Point Source API, in which case tiles are
fetched over HTTP with rate limiting, retries and a circuit breaker.

# Configuration

Koanf loads built-in defaults, then config.yaml, then environment variables:

	SERVER_PORT=8080
	DATABASE_DRIVER=duckdb DATABASE_PATH=/data/atlas.duckdb
	DATABASE_DRIVER=postgres DATABASE_DSN=postgres://...
	POINTSOURCE_URL=https://atlas.example.org
	MAP_DEBOUNCE_DELAY=250ms
	LOGGING_LEVEL=debug

SIGINT and SIGTERM cancel the root context; the HTTP server drains for up
to ten seconds and the database is checkpointed and closed.
*/
package main
