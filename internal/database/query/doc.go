// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

// Package query provides SQL query building utilities for the database package.
//
// # Overview
//
// WhereBuilder constructs parameterized WHERE clauses with a fluent
// interface. Clauses are written with "?" placeholders; Rebind converts a
// finished statement to the numbered "$n" form PostgreSQL expects, so the
// same builder serves both store drivers:
//
//	wb := query.NewWhereBuilder()
//	wb.AddNotNull("death_lat", "death_lng")
//	wb.AddBounds("death_lat", "death_lng", south, west, north, east)
//	wb.AddEquals("published", true)
//	where, args := wb.BuildWithPrefix()
//	stmt := query.Rebind(query.Dollar, "SELECT id FROM death_locations "+where)
//	// SELECT id FROM death_locations WHERE death_lat IS NOT NULL AND ...
//	//   death_lat BETWEEN $1 AND $2 AND death_lng BETWEEN $3 AND $4 AND published = $5
//
// # Safety
//
// Values are always bound as arguments. Column names are written into the
// SQL text and must come from code, never from request input.
package query
