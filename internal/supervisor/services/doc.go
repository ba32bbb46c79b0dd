// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package services adapts Death Atlas components to suture's Serve pattern.

Each wrapper implements suture.Service and fmt.Stringer:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

HTTPServerService wraps *http.Server. Cancellation triggers Shutdown with a
bounded timeout so in-flight marker requests can drain.

WebSocketHubService runs the websocket.Hub that pushes points_changed to map
sessions. A hub that stopped without cancellation is terminal and returns
suture.ErrDoNotRestart.

CacheSweeperService runs cache.TTL.Run to expire /points responses.

CheckpointService issues CHECKPOINT on DuckDB at a fixed interval and once on
shutdown. It is only added when the database driver is duckdb.

# Placement

	tree.AddStoreService(services.NewCheckpointService(db, 5*time.Minute))
	tree.AddSessionService(services.NewWebSocketHubService(hub))
	tree.AddSessionService(services.NewCacheSweeperService(handler.Cache(), time.Minute))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
*/
package services
