// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

// Package database is the Point Store: the death_locations table behind the
// Point Source API.
//
// # Overview
//
// One logical table holds every person record with up to three coordinates
// (death, burial, last seen). A query names the coordinate kind it plots,
// and only rows with that coordinate are returned.
//
// # Files
//
//   - database.go: lifecycle (open, close, ping) for both drivers
//   - database_connection.go: pool configuration and error classification
//   - database_schema.go: table and index creation
//   - database_utils.go: context defaults, checkpoint and counts
//   - points.go: bounding-box and same-spot queries
//   - ingest.go: raw row conversion and batch upsert
//   - aggregate.go: S2 centroid aggregation for low zooms
//   - source.go: Source, a local tile source over the store
//
// # Drivers
//
// DuckDB (github.com/duckdb/duckdb-go/v2) is the embedded default. PostgreSQL
// is reached through the pgx database/sql driver
// (github.com/jackc/pgx/v5/stdlib). Statements are written once with "?"
// placeholders and rebound for PostgreSQL by the query package.
//
// # Aggregation
//
// Below the configured zoom, dense S2 cells collapse into centroids that
// carry no ID and a Count of the records they stand for. Sparse cells keep
// their individual rows so isolated points stay tappable.
package database
