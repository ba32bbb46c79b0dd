// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deathatlas/atlas/internal/api"
	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/database"
	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/mapview"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/pointsource"
	"github.com/deathatlas/atlas/internal/supervisor"
	"github.com/deathatlas/atlas/internal/supervisor/services"
	ws "github.com/deathatlas/atlas/internal/websocket"
)

const (
	checkpointInterval = 5 * time.Minute
	sweepInterval      = time.Minute
	shutdownTimeout    = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	logging.Info().
		Str("driver", cfg.Database.Driver).
		Str("addr", cfg.Server.Addr()).
		Str("pointsource", pointSourceLabel(cfg)).
		Msg("Starting Death Atlas")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	source, err := newSourceFunc(cfg, db)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to configure point source")
		return
	}

	sessions := mapview.NewFactory(source, cfg.Map)
	wsHub := ws.NewHub()
	handler := api.NewHandler(db, sessions, wsHub, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(cfg.Security)))

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is disabled")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  shutdownTimeout,
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return
	}

	if db.Driver() == database.DriverDuckDB {
		tree.AddStoreService(services.NewCheckpointService(db, checkpointInterval))
	}
	tree.AddSessionService(services.NewWebSocketHubService(wsHub))
	tree.AddSessionService(services.NewCacheSweeperService(handler.Cache(), sweepInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, shutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		stop()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Death Atlas stopped")
}

// newSourceFunc picks where map sessions read tiles from.
func newSourceFunc(cfg *config.Config, db *database.DB) (mapview.SourceFunc, error) {
	if cfg.PointSource.URL == "" {
		published := cfg.PointSource.Published
		return func(kind models.CoordinateKind) mapview.PointSource {
			return database.NewSource(db, kind, published)
		}, nil
	}

	client, err := pointsource.NewClient(&cfg.PointSource)
	if err != nil {
		return nil, err
	}
	return func(kind models.CoordinateKind) mapview.PointSource {
		return client.ForKind(kind)
	}, nil
}

func pointSourceLabel(cfg *config.Config) string {
	if cfg.PointSource.URL == "" {
		return "local"
	}
	return cfg.PointSource.URL
}
