// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/logflux/internal/logging"
)

// upgrader relies on the router's CORS middleware for origin policy; the
// checked origin set is configured there, not here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// ServeLogs upgrades a /ws/logs connection: records plus stats.
func (h *Hub) ServeLogs(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

// ServeLiveStats upgrades a /ws/live-stats connection: stats only.
func (h *Hub) ServeLiveStats(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, wantRecords bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	NewClient(h, conn, wantRecords).Start()
}
