// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package services

import (
	"context"
	"time"

	"github.com/deathatlas/atlas/internal/logging"
)

// Sweeper is satisfied by *cache.TTL.
type Sweeper interface {
	Run(ctx context.Context, interval time.Duration) error
}

// CacheSweeperService drops expired response cache entries on an interval.
type CacheSweeperService struct {
	sweeper  Sweeper
	interval time.Duration
	name     string
}

// NewCacheSweeperService wraps sweeper. A non-positive interval lets the
// sweeper fall back to its own TTL.
func NewCacheSweeperService(sweeper Sweeper, interval time.Duration) *CacheSweeperService {
	return &CacheSweeperService{sweeper: sweeper, interval: interval, name: "cache-sweeper"}
}

// Serve implements suture.Service.
func (s *CacheSweeperService) Serve(ctx context.Context) error {
	return s.sweeper.Run(ctx, s.interval)
}

func (s *CacheSweeperService) String() string {
	return s.name
}

// Checkpointer is satisfied by *database.DB.
type Checkpointer interface {
	Checkpoint(ctx context.Context) error
}

// CheckpointService flushes the DuckDB write-ahead log on an interval and
// once more on shutdown. A failed checkpoint is logged and retried on the
// next tick; it does not restart the service.
type CheckpointService struct {
	db       Checkpointer
	interval time.Duration
	name     string
}

// NewCheckpointService wraps db. A non-positive interval means 5 minutes.
func NewCheckpointService(db Checkpointer, interval time.Duration) *CheckpointService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CheckpointService{db: db, interval: interval, name: "duckdb-checkpoint"}
}

// Serve implements suture.Service.
func (c *CheckpointService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			c.checkpoint(finalCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			c.checkpoint(ctx)
		}
	}
}

func (c *CheckpointService) checkpoint(ctx context.Context) {
	start := time.Now()
	if err := c.db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Database checkpoint failed")
		return
	}
	logging.Debug().Dur("duration", time.Since(start)).Msg("Database checkpoint complete")
}

func (c *CheckpointService) String() string {
	return c.name
}
