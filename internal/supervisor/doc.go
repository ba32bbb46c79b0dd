// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
Package supervisor runs the long-lived parts of Death Atlas under suture v4.

The tree isolates failures by layer:

	RootSupervisor ("deathatlas")
	├── StoreSupervisor ("store-layer")
	│   ├── CacheSweeperService (response cache expiry)
	│   └── CheckpointService (DuckDB only)
	├── SessionSupervisor ("session-layer")
	│   └── WebSocketHubService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services restart with suture's backoff. Supervisor events go to the
zerolog logger through the slog adapter in package logging and sutureslog.

Typical setup:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddStoreService(services.NewCacheSweeperService(handler.Cache(), time.Minute))
	tree.AddSessionService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}
*/
package supervisor
