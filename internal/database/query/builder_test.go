// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package query

import "testing"

func TestWhereBuilder_Empty(t *testing.T) {
	wb := NewWhereBuilder()

	if !wb.IsEmpty() {
		t.Error("Expected new builder to be empty")
	}
	if wb.Count() != 0 {
		t.Errorf("Expected count 0, got %d", wb.Count())
	}

	whereClause, args := wb.Build()
	if whereClause != "1=1" {
		t.Errorf("Expected '1=1' for empty builder, got %q", whereClause)
	}
	if len(args) != 0 {
		t.Errorf("Expected 0 args, got %d", len(args))
	}
}

func TestWhereBuilder_AddBounds(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddBounds("death_lat", "death_lng", 40.5, -74.2, 40.9, -73.7)

	whereClause, args := wb.Build()
	expected := "death_lat BETWEEN ? AND ? AND death_lng BETWEEN ? AND ?"
	if whereClause != expected {
		t.Errorf("Expected %q, got %q", expected, whereClause)
	}
	want := []interface{}{40.5, 40.9, -74.2, -73.7}
	if len(args) != len(want) {
		t.Fatalf("Expected %d args, got %d", len(want), len(args))
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg[%d] = %v, want %v", i, args[i], want[i])
		}
	}
}

func TestWhereBuilder_Combined(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddNotNull("burial_lat", "burial_lng").
		AddEquals("published", true).
		AddIn("category", []string{"murder", "accident"}).
		AddIn("id", nil)

	whereClause, args := wb.BuildWithPrefix()
	expected := "WHERE burial_lat IS NOT NULL AND burial_lng IS NOT NULL AND published = ? AND category IN (?, ?)"
	if whereClause != expected {
		t.Errorf("Expected %q, got %q", expected, whereClause)
	}
	if len(args) != 3 {
		t.Errorf("Expected 3 args, got %d", len(args))
	}
	if wb.Count() != 4 {
		t.Errorf("Expected count 4, got %d", wb.Count())
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		name  string
		style Placeholder
		in    string
		want  string
	}{
		{"question unchanged", Question, "a = ? AND b = ?", "a = ? AND b = ?"},
		{"dollar numbered", Dollar, "a = ? AND b IN (?, ?)", "a = $1 AND b IN ($2, $3)"},
		{"quoted literal kept", Dollar, "a = '?' AND b = ?", "a = '?' AND b = $1"},
		{"no placeholders", Dollar, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Rebind(tt.style, tt.in); got != tt.want {
				t.Errorf("Rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}
