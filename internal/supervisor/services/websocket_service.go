// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package services

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
	Done() <-chan struct{}
}

// WebSocketHubService runs the hub that fans points_changed out to map
// sessions. A hub cannot be restarted once it has closed its clients, so a
// hub that stopped on its own is reported as terminal.
type WebSocketHubService struct {
	hub  ContextHub
	name string
}

// NewWebSocketHubService wraps hub.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	select {
	case <-w.hub.Done():
		return suture.ErrDoNotRestart
	default:
	}
	err := w.hub.RunWithContext(ctx)
	if ctx.Err() == nil {
		return suture.ErrDoNotRestart
	}
	return err
}

// String names the service in supervisor events.
func (w *WebSocketHubService) String() string {
	return w.name
}
