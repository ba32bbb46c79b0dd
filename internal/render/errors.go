// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package render

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMarker is returned when a tap names a key not on the map.
	ErrUnknownMarker = errors.New("unknown marker")

	// ErrNoPicker is returned by Pick when no picker is open for the cluster.
	ErrNoPicker = errors.New("no picker open for cluster")

	// ErrUnknownMember is returned by Pick for an ID outside the cluster.
	ErrUnknownMember = errors.New("member not in cluster")
)

// SameSpotLookupError is the soft warning attached to a detail view when
// the same-spot lookup failed. The detail still shows the tapped record.
type SameSpotLookupError struct {
	ID       string
	Lat, Lng float64
	Err      error
}

func (e *SameSpotLookupError) Error() string {
	return fmt.Sprintf("could not load other records at %.6f,%.6f: %v", e.Lat, e.Lng, e.Err)
}

func (e *SameSpotLookupError) Unwrap() error { return e.Err }
