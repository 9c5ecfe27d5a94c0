// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package websocket

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/tomtom215/logflux/internal/models"
)

// Counters are the rolling totals behind stats_update messages. Publish
// bumps them for every record, so snapshots cost two atomic loads instead
// of a count(*) against the cold store. Seed folds in the pre-existing
// history once at startup; publishes that land before the seed are not
// lost, they are added on top of it.
type Counters struct {
	total  atomic.Int64
	errors atomic.Int64
	seeded atomic.Bool
}

// Observe counts one published record.
func (c *Counters) Observe(rec *models.Record) {
	c.total.Add(1)
	if rec.IsError() {
		c.errors.Add(1)
	}
}

// Seed folds the historical totals in exactly once; later calls are no-ops.
func (c *Counters) Seed(total, errors int64) {
	if c.seeded.CompareAndSwap(false, true) {
		c.total.Add(total)
		c.errors.Add(errors)
	}
}

// Seeded reports whether the historical totals have been folded in.
func (c *Counters) Seeded() bool { return c.seeded.Load() }

// Snapshot materializes the current totals.
func (c *Counters) Snapshot(now time.Time) models.StatsSnapshot {
	total := c.total.Load()
	errs := c.errors.Load()
	var rate float64
	if total > 0 {
		rate = math.Floor(float64(total-errs)/float64(total)*100*100+0.5) / 100
	}
	return models.StatsSnapshot{
		TotalLogs:   total,
		SuccessLogs: total - errs,
		ErrorLogs:   errs,
		SuccessRate: rate,
		LastUpdated: now,
	}
}
