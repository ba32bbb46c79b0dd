// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

// Package config loads Death Atlas configuration with Koanf v2.
//
// Sources are layered, later layers winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. An optional YAML file (CONFIG_PATH, then config.yaml, then /etc/deathatlas/config.yaml)
//  3. Environment variables, mapped through envTransformFunc
//
// Example YAML:
//
//	server:
//	  port: 3857
//	database:
//	  driver: duckdb
//	  path: /data/deathatlas.duckdb
//	map:
//	  tile_cache_size: 400
//	  ring_padding: 1
//	  debounce_delay: 200ms
//
// Environment variables use flat legacy names (HTTP_PORT, DUCKDB_PATH,
// POINT_SOURCE_URL, MAP_TILE_CACHE_SIZE, ...). Unknown variables are ignored.
package config
