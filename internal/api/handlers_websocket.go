// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package api

import (
	"net/http"

	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/validation"
	ws "github.com/deathatlas/atlas/internal/websocket"
)

type websocketRequest struct {
	Kind string `query:"kind" validate:"omitempty,coordkind"`
}

// WebSocket handles GET /api/v1/ws. Each connection owns one map session;
// the optional kind parameter selects the coordinate it plots.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil || h.sessions == nil {
		WriteError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "WebSocket sessions are not configured")
		return
	}

	req := websocketRequest{Kind: r.URL.Query().Get("kind")}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		NewResponseWriter(w, r).ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.wsHub, conn, h.sessions, kindOf(req.Kind))
	if !h.wsHub.Add(client) {
		logging.Ctx(r.Context()).Warn().Msg("WebSocket hub is shut down, closing connection")
		client.Abort()
		return
	}
	client.Start()
}
