// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	PointSource PointSourceConfig `koanf:"pointsource"`
	Map         MapConfig         `koanf:"map"`
	Logging     LoggingConfig     `koanf:"logging"`
	Security    SecurityConfig    `koanf:"security"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig configures the point store backing the Point Source API.
type DatabaseConfig struct {
	// Driver is duckdb (embedded, default) or postgres.
	Driver string `koanf:"driver"`

	// Path is the DuckDB file; ":memory:" or "" opens an in-memory database.
	Path string `koanf:"path"`

	// DSN is the PostgreSQL connection string when Driver is postgres.
	DSN string `koanf:"dsn"`

	MaxMemory    string `koanf:"max_memory"`
	Threads      int    `koanf:"threads"`
	MaxOpenConns int    `koanf:"max_open_conns"`

	// AggregateBelowZoom makes point queries at zooms below this value return
	// S2 cell centroids for dense cells instead of individual rows.
	AggregateBelowZoom int `koanf:"aggregate_below_zoom"`

	// AggregateMinCount is the smallest cell population that is collapsed.
	AggregateMinCount int `koanf:"aggregate_min_count"`

	// QueryLimit caps rows returned by a single bbox query.
	QueryLimit int `koanf:"query_limit"`

	ResponseCacheTTL time.Duration `koanf:"response_cache_ttl"`
}

// IsPostgres reports whether the postgres driver is selected.
func (d DatabaseConfig) IsPostgres() bool {
	return strings.EqualFold(d.Driver, "postgres") || strings.EqualFold(d.Driver, "pgx")
}

// PointSourceConfig configures the HTTP client the map core uses to fetch tiles.
type PointSourceConfig struct {
	// URL is the base URL of the Point Source API. Empty means this process's
	// own /api/v1 surface.
	URL string `koanf:"url"`

	// Kind selects which coordinate the source returns: death, burial or missing.
	Kind string `koanf:"kind"`

	// Published restricts results to published rows.
	Published bool `koanf:"published"`

	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	MaxRetries        int           `koanf:"max_retries"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
	BreakerEnabled    bool          `koanf:"breaker_enabled"`
}

// MapConfig tunes the refresh pipeline.
type MapConfig struct {
	TileCacheSize      int           `koanf:"tile_cache_size"`
	RingPadding        int           `koanf:"ring_padding"`
	TileTimeout        time.Duration `koanf:"tile_timeout"`
	MaxConcurrentTiles int           `koanf:"max_concurrent_tiles"`
	MaxTiles           int           `koanf:"max_tiles"`
	MaxTileZoom        int           `koanf:"max_tile_zoom"`
	DetailZoom         int           `koanf:"detail_zoom"`
	DebounceDelay      time.Duration `koanf:"debounce_delay"`
	SameSpotRadiusM    float64       `koanf:"same_spot_radius_m"`
}

// LoggingConfig mirrors logging.Config for the loadable fields.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig covers rate limiting, CORS and ingest limits.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	MaxIngestBatch    int           `koanf:"max_ingest_batch"`
}

// Load reads configuration from defaults, file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
