// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

// Package validation wraps go-playground/validator v10 for request
// parameters of the Point Source API.
//
// A single validator instance is shared process-wide. Field names in errors
// are taken from the `query` tag first, then `json`, so messages name the
// parameter the client actually sent:
//
//	type pointsRequest struct {
//	    MinLat float64 `query:"minLat" validate:"latitude"`
//	    MaxLat float64 `query:"maxLat" validate:"latitude,gtefield=MinLat"`
//	    Kind   string  `query:"kind"   validate:"omitempty,coordkind"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError() // Code "VALIDATION_ERROR"
//	}
//
// Custom tags:
//
//   - coordkind: one of death, burial, missing
//   - tilekey: a z/x/y string accepted by tile.ParseKey
package validation
