// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// sendBufferSize bounds per-client queued messages; overflow sheds the
	// oldest message first.
	sendBufferSize = 256
)

// clientIDCounter assigns connection-order ids so fan-out iterates clients
// deterministically.
var clientIDCounter atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	id   uint64
	hub  *Hub
	conn *websocket.Conn
	send chan models.Message

	// wantRecords distinguishes /ws/logs subscribers from stats-only
	// /ws/live-stats subscribers.
	wantRecords bool

	// filter is the live subscription predicate, swapped whole by control
	// messages and read by the hub goroutine.
	filter atomic.Pointer[models.Filter]

	// failures counts consecutive delivery failures; owned by the hub.
	failures int

	// closeMu serializes trySend (read goroutine) against the hub closing
	// the send channel; a send on a closed channel panics.
	closeMu sync.Mutex
	closed  bool
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, wantRecords bool) *Client {
	return &Client{
		id:          clientIDCounter.Add(1),
		hub:         hub,
		conn:        conn,
		send:        make(chan models.Message, sendBufferSize),
		wantRecords: wantRecords,
	}
}

// Start registers the client and begins its pumps.
func (c *Client) Start() {
	c.hub.Register <- c
	go c.writePump()
	go c.readPump()
}

// SetFilter replaces the subscription predicate (nil clears it).
func (c *Client) SetFilter(f *models.Filter) {
	c.filter.Store(f)
}

// readPump consumes control messages until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var ctrl models.ControlMessage
		if err := c.conn.ReadJSON(&ctrl); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug().Err(err).Msg("unexpected websocket close")
			}
			return
		}
		c.handleControl(ctrl)
	}
}

// handleControl applies one client control message. Malformed actions are
// ignored rather than closing the connection.
func (c *Client) handleControl(ctrl models.ControlMessage) {
	action := ctrl.Action
	if action == "" {
		action = ctrl.Type
	}

	switch action {
	case models.ActionSubscribe:
		filter := ctrl.Filters
		if filter != nil {
			filter.Normalize()
		}
		c.SetFilter(filter)
		logging.Debug().Uint64("client_id", c.id).Msg("websocket subscription updated")
	case models.ActionUnsubscribe:
		c.SetFilter(nil)
	case models.ActionPing:
		c.trySend(models.Message{Type: models.MessageTypePong})
	case models.ActionRequestStats:
		if s := c.hub.LastStats(); s != nil {
			c.trySend(models.Message{Type: models.MessageTypeStatsUpdate, Stats: s})
		}
	default:
		logging.Debug().Str("action", action).Msg("ignoring unknown websocket action")
	}
}

// trySend enqueues best-effort from the client's own read goroutine.
func (c *Client) trySend(msg models.Message) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// closeSend closes the send channel exactly once. Called by the hub when it
// removes the client.
func (c *Client) closeSend() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// writePump drains the send buffer to the connection and keeps the
// keepalive pings flowing.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				logging.Debug().Err(err).Msg("websocket write failed")
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
