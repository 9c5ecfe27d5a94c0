// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package ingest

import (
	"context"
	"time"

	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
	"github.com/tomtom215/logflux/internal/models"
)

// replayInterval is how often the replayer probes the cold store while
// spilled batches are pending.
const replayInterval = 10 * time.Second

// Replayer drains the spill store back into the cold store. It runs from
// startup (picking up batches spilled before a crash) and keeps probing on a
// fixed interval; a failed upsert just means the cold store is still down.
type Replayer struct {
	cold  ColdWriter
	spill *Spill
}

// NewReplayer builds the replayer.
func NewReplayer(cold ColdWriter, spill *Spill) *Replayer {
	return &Replayer{cold: cold, spill: spill}
}

// Serve implements suture.Service.
func (r *Replayer) Serve(ctx context.Context) error {
	ticker := time.NewTicker(replayInterval)
	defer ticker.Stop()

	r.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (r *Replayer) String() string { return "spill-replayer" }

// drain replays batches oldest-first until the store empties or a write
// fails (cold store still unhealthy).
func (r *Replayer) drain(ctx context.Context) {
	replayed := 0
	for ctx.Err() == nil {
		processed, err := r.spill.ReplayOne(func(batch []models.Record) error {
			if err := r.cold.UpsertBatch(ctx, batch); err != nil {
				return err
			}
			metrics.RecordsIngested.Add(float64(len(batch)))
			replayed += len(batch)
			return nil
		})
		if err != nil {
			logging.Debug().Err(err).Msg("spill replay paused, cold store still failing")
			return
		}
		if !processed {
			break
		}
	}
	if replayed > 0 {
		logging.Info().Int("records", replayed).Msg("replayed spilled records to cold store")
	}
}
