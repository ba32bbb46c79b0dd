// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/metrics"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Client to server message types.
const (
	MessageTypeViewport = "viewport"
	MessageTypeSearch   = "search"
	MessageTypeFilter   = "filter"
	MessageTypeTap      = "tap"
	MessageTypePick     = "pick"
	MessageTypeDismiss  = "dismiss"
	MessageTypePing     = "ping"
)

// Server to client message types.
const (
	MessageTypePong          = "pong"
	MessageTypeMarkers       = "markers"
	MessageTypeAction        = "action"
	MessageTypeStatus        = "status"
	MessageTypeError         = "error"
	MessageTypePointsChanged = "points_changed"
)

// Message is the envelope of every frame in either direction.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inboundMessage defers decoding of Data until the type is known.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Hub tracks the connected map clients and fans out broadcasts.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	done       chan struct{}
	doneOnce   sync.Once
	mu         sync.RWMutex
}

// NewHub creates a hub. Call RunWithContext to start it.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext serves registrations and broadcasts until ctx ends, then
// closes every client. Lifecycle events are drained before broadcasts so a
// client never misses a message sent right after it registered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	defer h.doneOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Add registers c, or closes it when the hub has already stopped.
func (h *Hub) Add(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		c.closeSend()
		return false
	}
}

// Remove unregisters c. It never blocks on a stopped hub.
func (h *Hub) Remove(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
		h.removeClient(c)
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WSActiveSessions.Set(float64(n))
	logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.closeSend()
	metrics.WSActiveSessions.Set(float64(n))
	logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client disconnected")
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	n := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", n).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClientsLocked returns clients in ID order so delivery order is
// reproducible.
func (h *Hub) sortedClientsLocked() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// broadcastToClients delivers message to every client. A client whose send
// buffer is full is dropped. points_changed also makes every session
// reload its viewport.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	clients := h.sortedClientsLocked()
	var slow []*Client
	for _, c := range clients {
		if !c.trySend(message) {
			slow = append(slow, c)
			delete(h.clients, c)
		}
	}
	n := len(h.clients)
	h.mu.Unlock()

	for _, c := range slow {
		logging.Warn().Uint64("client_id", c.id).Str("message_type", message.Type).Msg("websocket client too slow, disconnecting")
		c.closeSend()
	}
	if len(slow) > 0 {
		metrics.WSActiveSessions.Set(float64(n))
	}

	if message.Type == MessageTypePointsChanged {
		for _, c := range clients {
			c.reload()
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.sortedClientsLocked()
	for _, c := range clients {
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
	}
	metrics.WSActiveSessions.Set(0)
}

// BroadcastJSON queues a message for every client, dropping it when the
// broadcast buffer is full.
func (h *Hub) BroadcastJSON(messageType string, data interface{}) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// PointsChangedData is sent after the point store was written.
type PointsChangedData struct {
	Timestamp string `json:"timestamp"`
	Accepted  int    `json:"accepted"`
	Rejected  int    `json:"rejected"`
	Deleted   int    `json:"deleted,omitempty"`
}

// BroadcastPointsChanged tells every client that stored points changed. Each
// live session refetches its current viewport.
func (h *Hub) BroadcastPointsChanged(accepted, rejected, deleted int) {
	h.BroadcastJSON(MessageTypePointsChanged, PointsChangedData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Accepted:  accepted,
		Rejected:  rejected,
		Deleted:   deleted,
	})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage encodes msg as JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
