// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package websocket implements the live broadcaster: a hub fanning ingested
// records and rolling stats out to WebSocket subscribers.
//
// Subscribers never slow ingestion down. Every client owns a bounded send
// buffer; a full buffer drops the oldest message, and a client that keeps
// failing is removed. The hub goroutine owns all client state, so delivery
// order per client matches ingest order.
package websocket

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
	"github.com/tomtom215/logflux/internal/models"
)

// consecutiveFailureLimit removes a client after this many delivery failures
// in a row (a failure is a buffer still full after dropping the oldest).
const consecutiveFailureLimit = 2

// Hub maintains the set of active clients and broadcasts records and stats
// to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.Record
	stats      chan models.StatsSnapshot
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	// lastStats is the most recent snapshot, replayed to new connections.
	lastStats atomic.Pointer[models.StatsSnapshot]

	// counters roll with every Publish; the heartbeat snapshots them.
	counters Counters
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.Record, 256),
		stats:      make(chan models.StatsSnapshot, 8),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Publish hands one ingested record to the hub without blocking. When the
// hub's intake is full the record is dropped for live delivery only; both
// storage tiers already have it. The rolling counters advance either way:
// stats track ingestion, not delivery.
func (h *Hub) Publish(rec models.Record) {
	h.counters.Observe(&rec)
	select {
	case h.broadcast <- rec:
	default:
		logging.Warn().Str("correlation_id", rec.CorrelationID).
			Msg("hub intake full, record not broadcast live")
	}
}

// PublishStats queues a stats snapshot for all clients and remembers it for
// new connections.
func (h *Hub) PublishStats(s models.StatsSnapshot) {
	h.lastStats.Store(&s)
	select {
	case h.stats <- s:
	default:
	}
}

// LastStats returns the most recent snapshot, or nil before the first one.
func (h *Hub) LastStats() *models.StatsSnapshot {
	return h.lastStats.Load()
}

// Counters exposes the rolling totals for the heartbeat and its seeder.
func (h *Hub) Counters() *Counters { return &h.counters }

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve implements suture.Service. Selection is priority ordered: shutdown,
// then client lifecycle, then broadcasts, so client state is consistent
// before any message is fanned out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Priority 1: shutdown.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: client lifecycle.
		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		// Priority 3: broadcasts, or block until anything arrives.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case rec := <-h.broadcast:
			h.fanOutRecord(rec)
		case s := <-h.stats:
			h.fanOutStats(s)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.SubscribersActive.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")

	// New connections get the current stats immediately so dashboards render
	// without waiting for the next heartbeat.
	if s := h.lastStats.Load(); s != nil {
		h.deliver(client, models.Message{Type: models.MessageTypeInitialStats, Stats: s})
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.SubscribersActive.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// sortedClients returns clients in connection order for deterministic fan-out.
func (h *Hub) sortedClients() []*Client {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// fanOutRecord delivers a record to every record subscriber whose predicate
// matches.
func (h *Hub) fanOutRecord(rec models.Record) {
	for _, client := range h.sortedClients() {
		if !client.wantRecords {
			continue
		}
		if filter := client.filter.Load(); filter != nil && !filter.Matches(&rec) {
			continue
		}
		h.deliver(client, models.Message{Type: models.MessageTypeNewLog, Data: rec})
	}
}

// fanOutStats delivers a stats snapshot to every client.
func (h *Hub) fanOutStats(s models.StatsSnapshot) {
	for _, client := range h.sortedClients() {
		h.deliver(client, models.Message{Type: models.MessageTypeStatsUpdate, Stats: &s})
	}
}

// deliver enqueues a message on the client's buffer. A full buffer drops the
// oldest queued message first; if the buffer is still full the attempt counts
// as a failure, and consecutive failures remove the client.
func (h *Hub) deliver(client *Client, msg models.Message) {
	select {
	case client.send <- msg:
		client.failures = 0
		return
	default:
	}

	// Buffer full: shed the oldest message to keep the stream current.
	select {
	case <-client.send:
		metrics.SubscriberLagged.Inc()
	default:
	}

	select {
	case client.send <- msg:
		client.failures = 0
	default:
		client.failures++
		if client.failures >= consecutiveFailureLimit {
			logging.Warn().Uint64("client_id", client.id).
				Msg("removing websocket client after repeated delivery failures")
			metrics.SubscribersDropped.Inc()
			h.removeClient(client)
		}
	}
}

// shutdown closes every client before the hub stops.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	count := len(h.clients)
	for client := range h.clients {
		client.closeSend()
		delete(h.clients, client)
	}
	h.mu.Unlock()
	metrics.SubscribersActive.Set(0)

	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", count).
		Str("reason", reason(ctx)).
		Msg("websocket hub stopped")
}

// reason names the shutdown trigger for log filtering; cancellation is not
// an error here.
func reason(ctx context.Context) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "context_deadline"
	}
	return "context_canceled"
}
