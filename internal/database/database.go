// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/deathatlas/atlas/internal/config"
	"github.com/deathatlas/atlas/internal/database/query"
	"github.com/deathatlas/atlas/internal/logging"
)

// Driver names accepted in DatabaseConfig.Driver.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// Defaults applied when the configuration leaves a field zero.
const (
	DefaultAggregateBelowZoom = 6
	DefaultAggregateMinCount  = 10
	DefaultQueryLimit         = 5000
)

// DB wraps the store connection and provides data access methods
type DB struct {
	conn   *sql.DB
	cfg    *config.DatabaseConfig
	driver string
	style  query.Placeholder

	aggregateBelow int
	aggregateMin   int
	queryLimit     int
}

// New opens the configured store and creates its schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverDuckDB
	}

	var (
		conn  *sql.DB
		err   error
		style query.Placeholder
	)
	switch driver {
	case DriverDuckDB:
		conn, err = openDuckDB(cfg)
		style = query.Question
	case DriverPostgres, "pgx":
		driver = DriverPostgres
		conn, err = sql.Open("pgx", cfg.DSN)
		style = query.Dollar
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn:           conn,
		cfg:            cfg,
		driver:         driver,
		style:          style,
		aggregateBelow: cfg.AggregateBelowZoom,
		aggregateMin:   cfg.AggregateMinCount,
		queryLimit:     cfg.QueryLimit,
	}
	if db.aggregateMin < 2 {
		db.aggregateMin = DefaultAggregateMinCount
	}
	if db.queryLimit <= 0 {
		db.queryLimit = DefaultQueryLimit
	}

	db.configureConnectionPool()

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("driver", driver).
		Int("aggregate_below_zoom", db.aggregateBelow).
		Msg("Point store ready")
	return db, nil
}

func openDuckDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	// Autoinstall stays off: the store needs no extensions and restricted
	// networks hang on extension downloads.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, threads, maxMemory)
	return sql.Open("duckdb", connStr)
}

// Driver returns the active driver name.
func (db *DB) Driver() string {
	return db.driver
}

// Conn returns the underlying SQL database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// AggregateBelowZoom returns the zoom under which queries aggregate.
func (db *DB) AggregateBelowZoom() int {
	return db.aggregateBelow
}

// Close flushes the DuckDB WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.driver == DriverDuckDB {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Checkpoint(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()
	}
	return db.conn.Close()
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// initialize creates tables and indexes
func (db *DB) initialize() error {
	if err := db.createTables(); err != nil {
		return err
	}
	return db.createIndexes()
}

// bind rewrites stmt for the active driver.
func (db *DB) bind(stmt string) string {
	return query.Rebind(db.style, stmt)
}
