// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

/*
database_schema.go - Database Schema Management

Tables:
  - death_locations: one row per person, with nullable death, burial and
    last-seen coordinate pairs, display fields and a published flag

Column types are the subset DuckDB and PostgreSQL spell the same way
(VARCHAR, FLOAT8, BOOLEAN, TIMESTAMP).

Index Strategy:
PostgreSQL gets a composite (lat, lng) index per coordinate kind. DuckDB
relies on its zone maps for range scans; ART indexes on the coordinate
columns would turn every coordinate update into a delete and insert.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", q, err)
		}
	}
	return nil
}

// getTableCreationQueries returns the table creation SQL statements
func (db *DB) getTableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS death_locations (
			id VARCHAR PRIMARY KEY,
			title VARCHAR NOT NULL DEFAULT '',
			category VARCHAR NOT NULL DEFAULT '',
			death_date VARCHAR NOT NULL DEFAULT '',
			death_lat FLOAT8,
			death_lng FLOAT8,
			burial_lat FLOAT8,
			burial_lng FLOAT8,
			last_seen_lat FLOAT8,
			last_seen_lng FLOAT8,
			source_url VARCHAR NOT NULL DEFAULT '',
			wikidata_id VARCHAR NOT NULL DEFAULT '',
			confidence FLOAT8,
			coord_source VARCHAR NOT NULL DEFAULT '',
			published BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
}

// createIndexes creates the driver's index set
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range db.getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to execute index query: %s: %w", q, err)
		}
	}
	return nil
}

// getIndexQueries returns index creation SQL statements
func (db *DB) getIndexQueries() []string {
	if db.driver != DriverPostgres {
		return nil
	}
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_death_locations_death ON death_locations(death_lat, death_lng);`,
		`CREATE INDEX IF NOT EXISTS idx_death_locations_burial ON death_locations(burial_lat, burial_lng);`,
		`CREATE INDEX IF NOT EXISTS idx_death_locations_last_seen ON death_locations(last_seen_lat, last_seen_lng);`,
		`CREATE INDEX IF NOT EXISTS idx_death_locations_published ON death_locations(published);`,
	}
}
