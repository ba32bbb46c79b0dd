// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package models

import "fmt"

// InvalidPointError marks a source row that cannot become a GeoPoint. The
// row is dropped; the batch it came from is not failed.
type InvalidPointError struct {
	Index  int // Position in the source batch, -1 when unknown
	ID     string
	Reason string
}

func (e *InvalidPointError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("invalid point %q: %s", e.ID, e.Reason)
	}
	if e.Index >= 0 {
		return fmt.Sprintf("invalid point at row %d: %s", e.Index, e.Reason)
	}
	return "invalid point: " + e.Reason
}
