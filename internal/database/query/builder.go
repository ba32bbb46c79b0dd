// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholder is a bind-parameter style.
type Placeholder int

const (
	Question Placeholder = iota // ? (DuckDB)
	Dollar                      // $1, $2 (PostgreSQL)
)

// WhereBuilder constructs SQL WHERE clauses with parameterized arguments.
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates a new WhereBuilder instance.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{
		clauses: []string{},
		args:    []interface{}{},
	}
}

// AddClause adds a raw WHERE clause with its arguments.
func (wb *WhereBuilder) AddClause(clause string, args ...interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	wb.args = append(wb.args, args...)
	return wb
}

// AddNotNull requires every column to be non-NULL.
func (wb *WhereBuilder) AddNotNull(columns ...string) *WhereBuilder {
	for _, c := range columns {
		wb.clauses = append(wb.clauses, c+" IS NOT NULL")
	}
	return wb
}

// AddBounds restricts a coordinate pair to an inclusive rectangle.
//
// Generates:
//   - "lat BETWEEN ? AND ?"
//   - "lng BETWEEN ? AND ?"
func (wb *WhereBuilder) AddBounds(latCol, lngCol string, south, west, north, east float64) *WhereBuilder {
	wb.clauses = append(wb.clauses,
		latCol+" BETWEEN ? AND ?",
		lngCol+" BETWEEN ? AND ?",
	)
	wb.args = append(wb.args, south, north, west, east)
	return wb
}

// AddEquals adds "column = ?".
func (wb *WhereBuilder) AddEquals(column string, value interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, column+" = ?")
	wb.args = append(wb.args, value)
	return wb
}

// AddIn adds "column IN (?, ?, ...)". An empty values slice is skipped.
func (wb *WhereBuilder) AddIn(column string, values []string) *WhereBuilder {
	if len(values) == 0 {
		return wb
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		wb.args = append(wb.args, v)
	}
	wb.clauses = append(wb.clauses, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return wb
}

// Build constructs the final WHERE clause and returns it with arguments.
// Clauses are joined with "AND". Returns ("1=1", []) if no clauses were added.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", []interface{}{}
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix returns the WHERE clause with "WHERE " prefix.
func (wb *WhereBuilder) BuildWithPrefix() (string, []interface{}) {
	whereClause, args := wb.Build()
	return "WHERE " + whereClause, args
}

// Count returns the number of clauses added to the builder.
func (wb *WhereBuilder) Count() int {
	return len(wb.clauses)
}

// IsEmpty returns true if no clauses have been added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}

// Rebind rewrites "?" placeholders into style. Question marks inside
// single-quoted literals are left alone.
func Rebind(style Placeholder, stmt string) string {
	if style == Question {
		return stmt
	}
	var (
		b       strings.Builder
		n       int
		inQuote bool
	)
	b.Grow(len(stmt) + 8)
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
