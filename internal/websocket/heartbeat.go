// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package websocket

import (
	"context"
	"time"

	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/models"
)

// heartbeatInterval is the stats_update cadence.
const heartbeatInterval = 2 * time.Second

// StatsSource provides the historical totals that seed the hub's rolling
// counters, implemented by the aggregator.
type StatsSource interface {
	Stats(ctx context.Context) (*models.StatsSnapshot, error)
}

// Heartbeat pushes a stats snapshot through the hub every 2 seconds. The
// snapshot reads the hub's rolling counters, which Publish advances per
// record; the cold store is consulted exactly once, to seed the counters
// with the pre-existing history. An unreachable seed source only delays
// seeding to a later tick.
type Heartbeat struct {
	hub      *Hub
	seed     StatsSource
	interval time.Duration
	now      func() time.Time
}

// NewHeartbeat builds the heartbeat service.
func NewHeartbeat(hub *Hub, seed StatsSource) *Heartbeat {
	return &Heartbeat{hub: hub, seed: seed, interval: heartbeatInterval, now: time.Now}
}

// Serve implements suture.Service.
func (hb *Heartbeat) Serve(ctx context.Context) error {
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			counters := hb.hub.Counters()
			if !counters.Seeded() && hb.seed != nil {
				s, err := hb.seed.Stats(ctx)
				if err != nil {
					logging.Debug().Err(err).Msg("stats counter seed unavailable, retrying next tick")
					continue
				}
				counters.Seed(s.TotalLogs, s.ErrorLogs)
			}
			if hb.hub.ClientCount() == 0 {
				continue
			}
			hb.hub.PublishStats(counters.Snapshot(hb.now().UTC()))
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (hb *Heartbeat) String() string { return "stats-heartbeat" }
