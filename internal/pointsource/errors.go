// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package pointsource

import (
	"context"
	"errors"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/deathatlas/atlas/internal/tile"
)

// Failure reasons reported on TileFetchError and in metrics.
const (
	ReasonNetwork     = "network"
	ReasonStatus      = "status"
	ReasonMalformed   = "malformed"
	ReasonTimeout     = "timeout"
	ReasonCancelled   = "cancelled"
	ReasonRateLimited = "rate_limited"
	ReasonBreakerOpen = "breaker_open"
)

// TileFetchError reports a failed fetch for one tile. The refresh that
// issued it still completes with the tile treated as empty.
type TileFetchError struct {
	Tile       tile.Key
	StatusCode int    // HTTP status when one was received
	Reason     string // One of the Reason* constants
	Err        error
}

func (e *TileFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tile %s fetch failed (%s, HTTP %d): %v", e.Tile, e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("tile %s fetch failed (%s): %v", e.Tile, e.Reason, e.Err)
}

func (e *TileFetchError) Unwrap() error { return e.Err }

// AsTileFetchError converts err into a *TileFetchError for key, classifying
// it when it is not one already.
func AsTileFetchError(key tile.Key, err error) *TileFetchError {
	if err == nil {
		return nil
	}
	var tfe *TileFetchError
	if errors.As(err, &tfe) {
		out := *tfe
		out.Tile = key
		return &out
	}
	return &TileFetchError{Tile: key, Reason: classify(err), Err: err}
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ReasonBreakerOpen
	}
	return ReasonNetwork
}
