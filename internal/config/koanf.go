// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/deathatlas/config.yaml",
	"/etc/deathatlas/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        3857,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Driver:             "duckdb",
			Path:               "/data/deathatlas.duckdb",
			MaxMemory:          "1GB",
			Threads:            0,
			MaxOpenConns:       8,
			AggregateBelowZoom: 6,
			AggregateMinCount:  10,
			QueryLimit:         5000,
			ResponseCacheTTL:   30 * time.Second,
		},
		PointSource: PointSourceConfig{
			URL:               "",
			Kind:              "death",
			Published:         true,
			Timeout:           15 * time.Second,
			RequestsPerSecond: 50,
			Burst:             20,
			MaxRetries:        3,
			RetryBaseDelay:    500 * time.Millisecond,
			BreakerEnabled:    true,
		},
		Map: MapConfig{
			TileCacheSize:      400,
			RingPadding:        1,
			TileTimeout:        8 * time.Second,
			MaxConcurrentTiles: 9,
			MaxTiles:           64,
			MaxTileZoom:        14,
			DetailZoom:         16,
			DebounceDelay:      200 * time.Millisecond,
			SameSpotRadiusM:    5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
			MaxIngestBatch:  5000,
		},
	}
}

// LoadWithKoanf loads defaults, then the optional YAML file, then environment
// variables, and validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok || raw == "" {
			continue
		}
		parts := make([]string, 0, 4)
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps flat environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	"db_driver":               "database.driver",
	"duckdb_path":             "database.path",
	"duckdb_max_memory":       "database.max_memory",
	"duckdb_threads":          "database.threads",
	"database_url":            "database.dsn",
	"db_max_open_conns":       "database.max_open_conns",
	"db_aggregate_below_zoom": "database.aggregate_below_zoom",
	"db_aggregate_min_count":  "database.aggregate_min_count",
	"db_query_limit":          "database.query_limit",
	"db_response_cache_ttl":   "database.response_cache_ttl",

	"point_source_url":              "pointsource.url",
	"point_source_kind":             "pointsource.kind",
	"point_source_published":        "pointsource.published",
	"point_source_timeout":          "pointsource.timeout",
	"point_source_rps":              "pointsource.requests_per_second",
	"point_source_burst":            "pointsource.burst",
	"point_source_max_retries":      "pointsource.max_retries",
	"point_source_retry_base_delay": "pointsource.retry_base_delay",
	"point_source_breaker_enabled":  "pointsource.breaker_enabled",

	"map_tile_cache_size":      "map.tile_cache_size",
	"map_ring_padding":         "map.ring_padding",
	"map_tile_timeout":         "map.tile_timeout",
	"map_max_concurrent_tiles": "map.max_concurrent_tiles",
	"map_max_tiles":            "map.max_tiles",
	"map_max_tile_zoom":        "map.max_tile_zoom",
	"map_detail_zoom":          "map.detail_zoom",
	"map_debounce_delay":       "map.debounce_delay",
	"map_same_spot_radius_m":   "map.same_spot_radius_m",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"rate_limit_reqs":    "security.rate_limit_reqs",
	"rate_limit_window":  "security.rate_limit_window",
	"disable_rate_limit": "security.rate_limit_disabled",
	"cors_origins":       "security.cors_origins",
	"max_ingest_batch":   "security.max_ingest_batch",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unmapped names return "" so koanf skips them.
//
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - MAP_DEBOUNCE_DELAY -> map.debounce_delay
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
