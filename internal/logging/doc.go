// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

// Package logging provides the process-wide zerolog logger for Death Atlas.
//
// The package exposes a global logger configured once at startup, level
// helpers that mirror zerolog's event API, request and correlation IDs carried
// on context.Context, and an slog.Handler adapter so that libraries expecting
// log/slog (the suture supervisor) write through the same zerolog sink.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("tile", key.String()).Msg("tile fetched")
//	logging.Ctx(ctx).Warn().Err(err).Msg("same-spot lookup failed")
//
// Always terminate an event chain with Msg or Send; an unterminated chain is
// never written.
//
// # Components
//
// Long-lived workers take a child logger carrying a component field:
//
//	log := logging.WithComponent("fetch-coordinator")
//	log.Debug().Uint64("generation", gen).Msg("refresh committed")
package logging
