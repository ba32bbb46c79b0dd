// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package database

import (
	"errors"
	"io"

	"github.com/deathatlas/atlas/internal/logging"
)

var (
	// ErrUnavailable wraps driver errors that mean the store cannot be reached.
	ErrUnavailable = errors.New("point store unavailable")

	// ErrEmptyBatch is returned by Upsert for a batch with no rows.
	ErrEmptyBatch = errors.New("empty batch")
)

// closeWithLog closes a resource and logs any error
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource and explicitly ignores any error
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
