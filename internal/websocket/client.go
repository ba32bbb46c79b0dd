// Death Atlas - Map Clustering and Point Source Service
// Copyright 2026 The Death Atlas Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/deathatlas/atlas

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/deathatlas/atlas/internal/logging"
	"github.com/deathatlas/atlas/internal/mapview"
	"github.com/deathatlas/atlas/internal/metrics"
	"github.com/deathatlas/atlas/internal/models"
	"github.com/deathatlas/atlas/internal/render"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// clientIDCounter gives clients a stable order for broadcasts.
var clientIDCounter atomic.Uint64

// Client is one websocket connection driving one map session.
type Client struct {
	id      uint64
	hub     *Hub
	conn    *websocket.Conn
	session *mapview.Session // Nil for broadcast-only clients
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	send   chan Message
	closed bool
}

// NewClient creates a client with its own map session for kind. sessions
// may be nil, in which case the client only receives broadcasts.
func NewClient(hub *Hub, conn *websocket.Conn, sessions *mapview.Factory, kind models.CoordinateKind) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:     clientIDCounter.Add(1),
		hub:    hub,
		conn:   conn,
		cancel: cancel,
		send:   make(chan Message, sendBuffer),
	}
	if sessions != nil {
		c.session = sessions.New(ctx, kind, c.onUpdate)
		ctx = logging.ContextWithSessionID(ctx, c.session.ID())
	}
	c.ctx = ctx
	return c
}

// ID returns the client's ordering identifier.
func (c *Client) ID() uint64 {
	return c.id
}

// Session returns the client's map session, or nil.
func (c *Client) Session() *mapview.Session {
	return c.session
}

// StatusData is the payload of a status message.
type StatusData struct {
	SessionID string         `json:"session_id,omitempty"`
	Status    mapview.Status `json:"status"`
	Banner    string         `json:"banner,omitempty"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	For     string `json:"for,omitempty"` // Message type that failed
	Message string `json:"message"`
}

type viewportPayload struct {
	models.Viewport
	Zoom *int `json:"zoom,omitempty"`
}

type searchPayload struct {
	Query string `json:"query"`
}

type tapPayload struct {
	Key string `json:"key"`
}

type pickPayload struct {
	ClusterKey string `json:"cluster_key"`
	MemberID   string `json:"member_id"`
}

var errNoSession = errors.New("connection has no map session")

// trySend queues m without blocking. It reports false only when the buffer
// is full; sends to a closed client are silently dropped.
func (c *Client) trySend(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel once, which ends writePump.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) reload() {
	if c.session != nil {
		c.session.Reload()
	}
}

func (c *Client) onUpdate(out mapview.RenderablePoints) {
	if !c.trySend(Message{Type: MessageTypeMarkers, Data: out}) {
		logging.Ctx(c.ctx).Warn().Uint64("client_id", c.id).Msg("send buffer full, dropping markers update")
	}
}

func (c *Client) sendStatus() {
	if c.session == nil {
		return
	}
	st := c.session.Snapshot().Status
	c.trySend(Message{Type: MessageTypeStatus, Data: StatusData{
		SessionID: c.session.ID(),
		Status:    st,
		Banner:    st.Banner(),
	}})
}

func (c *Client) sendError(forType string, err error) {
	c.trySend(Message{Type: MessageTypeError, Data: ErrorData{For: forType, Message: err.Error()}})
}

// handle dispatches one inbound message. Errors are reported to the peer
// and never end the connection.
func (c *Client) handle(msg inboundMessage) {
	metrics.WSMessagesReceived.WithLabelValues(messageLabel(msg.Type)).Inc()

	if msg.Type == MessageTypePing {
		c.trySend(Message{Type: MessageTypePong})
		return
	}
	if c.session == nil {
		c.sendError(msg.Type, errNoSession)
		return
	}

	var err error
	switch msg.Type {
	case MessageTypeViewport:
		err = c.handleViewport(msg.Data)
	case MessageTypeSearch:
		var p searchPayload
		if err = decodePayload(msg.Data, &p); err == nil {
			c.session.SearchChanged(p.Query)
		}
	case MessageTypeFilter:
		var f models.Filter
		if err = decodePayload(msg.Data, &f); err == nil {
			c.session.FilterChanged(f)
		}
	case MessageTypeTap:
		err = c.handleTap(msg.Data)
	case MessageTypePick:
		err = c.handlePick(msg.Data)
	case MessageTypeDismiss:
		c.session.Dismiss()
	default:
		err = errors.New("unknown message type")
	}

	if err != nil {
		logging.Ctx(c.ctx).Debug().Err(err).Str("message_type", msg.Type).Msg("rejected websocket message")
		c.sendError(msg.Type, err)
	}
}

func (c *Client) handleViewport(data json.RawMessage) error {
	var p viewportPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	if err := p.Viewport.Validate(); err != nil {
		return err
	}
	zoom := -1
	if p.Zoom != nil {
		zoom = max(0, min(*p.Zoom, models.MaxZoom))
	}
	c.session.ViewportChangedAt(p.Viewport, zoom)
	return nil
}

func (c *Client) handleTap(data json.RawMessage) error {
	var p tapPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	a, err := c.session.Tap(c.ctx, p.Key)
	if err != nil {
		return err
	}
	c.sendAction(a)
	c.session.FlyTo(a)
	return nil
}

func (c *Client) handlePick(data json.RawMessage) error {
	var p pickPayload
	if err := decodePayload(data, &p); err != nil {
		return err
	}
	a, err := c.session.Pick(c.ctx, p.ClusterKey, p.MemberID)
	if err != nil {
		return err
	}
	c.sendAction(a)
	return nil
}

func (c *Client) sendAction(a render.Action) {
	c.trySend(Message{Type: MessageTypeAction, Data: a})
	if a.Warning != "" {
		c.sendStatus()
	}
}

func decodePayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New("message has no data")
	}
	return json.Unmarshal(data, v)
}

// messageLabel bounds the metric label set to known types.
func messageLabel(t string) string {
	switch t {
	case MessageTypeViewport, MessageTypeSearch, MessageTypeFilter, MessageTypeTap,
		MessageTypePick, MessageTypeDismiss, MessageTypePing:
		return t
	}
	return "unknown"
}

// readPump reads frames until the peer goes away, then tears the client
// down.
func (c *Client) readPump() {
	defer func() {
		c.hub.Remove(c)
		c.shutdown()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Ctx(c.ctx).Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Ctx(c.ctx).Warn().Err(err).Msg("unexpected websocket close error")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", errors.New("malformed message"))
			continue
		}
		c.handle(msg)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := MarshalMessage(message)
			if err != nil {
				logging.Ctx(c.ctx).Error().Err(err).Str("message_type", message.Type).Msg("failed to encode websocket message")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown stops the session and cancels in-flight work.
func (c *Client) shutdown() {
	c.cancel()
	if c.session != nil {
		c.session.Close()
	}
}

// Abort releases a client that was never started.
func (c *Client) Abort() {
	c.shutdown()
	_ = c.conn.Close()
}

// Start sends the initial status and begins reading and writing.
func (c *Client) Start() {
	c.sendStatus()
	go c.writePump()
	go c.readPump()
}
