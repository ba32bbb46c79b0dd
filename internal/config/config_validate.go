// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validatePointSource(); err != nil {
		return err
	}
	if err := c.validateMap(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch strings.ToLower(c.Database.Driver) {
	case "duckdb":
	case "postgres", "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=%s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("DB_DRIVER must be duckdb or postgres, got %q", c.Database.Driver)
	}
	if c.Database.AggregateBelowZoom < 0 || c.Database.AggregateBelowZoom > 22 {
		return fmt.Errorf("DB_AGGREGATE_BELOW_ZOOM must be between 0 and 22, got %d", c.Database.AggregateBelowZoom)
	}
	if c.Database.AggregateMinCount < 2 {
		return fmt.Errorf("DB_AGGREGATE_MIN_COUNT must be at least 2, got %d", c.Database.AggregateMinCount)
	}
	if c.Database.QueryLimit < 1 {
		return fmt.Errorf("DB_QUERY_LIMIT must be positive, got %d", c.Database.QueryLimit)
	}
	return nil
}

func (c *Config) validatePointSource() error {
	ps := c.PointSource
	if ps.URL != "" {
		if err := validateHTTPURL(ps.URL, "POINT_SOURCE_URL"); err != nil {
			return err
		}
	}
	switch ps.Kind {
	case "death", "burial", "missing":
	default:
		return fmt.Errorf("POINT_SOURCE_KIND must be death, burial or missing, got %q", ps.Kind)
	}
	if ps.Timeout <= 0 {
		return fmt.Errorf("POINT_SOURCE_TIMEOUT must be positive, got %v", ps.Timeout)
	}
	if ps.RequestsPerSecond <= 0 || ps.Burst < 1 {
		return fmt.Errorf("POINT_SOURCE_RPS and POINT_SOURCE_BURST must be positive")
	}
	if ps.MaxRetries < 0 {
		return fmt.Errorf("POINT_SOURCE_MAX_RETRIES cannot be negative, got %d", ps.MaxRetries)
	}
	return nil
}

func (c *Config) validateMap() error {
	m := c.Map
	if m.TileCacheSize < 1 {
		return fmt.Errorf("MAP_TILE_CACHE_SIZE must be positive, got %d", m.TileCacheSize)
	}
	if m.RingPadding < 0 || m.RingPadding > 4 {
		return fmt.Errorf("MAP_RING_PADDING must be between 0 and 4, got %d", m.RingPadding)
	}
	if m.TileTimeout <= 0 {
		return fmt.Errorf("MAP_TILE_TIMEOUT must be positive, got %v", m.TileTimeout)
	}
	if m.MaxConcurrentTiles < 1 {
		return fmt.Errorf("MAP_MAX_CONCURRENT_TILES must be positive, got %d", m.MaxConcurrentTiles)
	}
	if m.MaxTiles < 1 {
		return fmt.Errorf("MAP_MAX_TILES must be positive, got %d", m.MaxTiles)
	}
	if m.MaxTileZoom < 0 || m.MaxTileZoom > 22 {
		return fmt.Errorf("MAP_MAX_TILE_ZOOM must be between 0 and 22, got %d", m.MaxTileZoom)
	}
	if m.DetailZoom < 1 || m.DetailZoom > 22 {
		return fmt.Errorf("MAP_DETAIL_ZOOM must be between 1 and 22, got %d", m.DetailZoom)
	}
	if m.DebounceDelay < 150*time.Millisecond || m.DebounceDelay > 250*time.Millisecond {
		return fmt.Errorf("MAP_DEBOUNCE_DELAY must be between 150ms and 250ms, got %v", m.DebounceDelay)
	}
	if m.SameSpotRadiusM < 2 || m.SameSpotRadiusM > 9 {
		return fmt.Errorf("MAP_SAME_SPOT_RADIUS_M must be between 2 and 9, got %v", m.SameSpotRadiusM)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQS must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", c.Security.RateLimitWindow)
		}
	}
	if c.Security.MaxIngestBatch < 1 {
		return fmt.Errorf("MAX_INGEST_BATCH must be positive, got %d", c.Security.MaxIngestBatch)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a recognised level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

// validateHTTPURL accepts http(s) base URLs, optionally with a path prefix.
func validateHTTPURL(rawURL, fieldName string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if u.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, u.RawQuery)
	}
	return nil
}
