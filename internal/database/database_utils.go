// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package database

import (
	"context"
	"fmt"
	"time"
)

// ensureContext adds a 30-second timeout to contexts without a deadline.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}
	return ctx, func() {}
}

// Checkpoint forces a WAL checkpoint. It is a no-op on PostgreSQL.
func (db *DB) Checkpoint(ctx context.Context) error {
	if db.driver != DriverDuckDB {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// RecordCounts returns the number of rows with each coordinate kind.
type RecordCounts struct {
	Total     int64 `json:"total"`
	Death     int64 `json:"death"`
	Burial    int64 `json:"burial"`
	Missing   int64 `json:"missing"`
	Published int64 `json:"published"`
}

// Counts returns row counts for health and ingest reporting.
func (db *DB) Counts(ctx context.Context) (RecordCounts, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var c RecordCounts
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(death_lat),
			COUNT(burial_lat),
			COUNT(last_seen_lat),
			COUNT(CASE WHEN published THEN 1 END)
		FROM death_locations`).Scan(&c.Total, &c.Death, &c.Burial, &c.Missing, &c.Published)
	if err != nil {
		return RecordCounts{}, fmt.Errorf("failed to count records: %w", classifyError(err))
	}
	return c, nil
}
