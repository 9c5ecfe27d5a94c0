// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package ingest

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tomtom215/logflux/internal/config"
	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
	"github.com/tomtom215/logflux/internal/models"
)

// BatchWriter drains the pipeline queue into the cold store in batches.
// A batch flushes when it reaches the configured size or when the flush
// interval elapses with records pending.
//
// Cold failures are retried in place with exponential backoff (500 ms up to
// 30 s, indefinitely). While the writer is stuck the queue absorbs up to the
// memory cap and the pipeline spills past it, so a long outage costs disk,
// not records.
type BatchWriter struct {
	cfg   config.IngestConfig
	cold  ColdWriter
	queue <-chan models.Record
	spill *Spill
}

// NewBatchWriter builds the writer for a pipeline's queue.
func NewBatchWriter(cfg config.IngestConfig, cold ColdWriter, pipeline *Pipeline) *BatchWriter {
	return &BatchWriter{
		cfg:   cfg,
		cold:  cold,
		queue: pipeline.Queue(),
		spill: pipeline.spill,
	}
}

// Serve implements suture.Service.
func (w *BatchWriter) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]models.Record, 0, w.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			// Final flush is single-shot; anything undeliverable spills.
			w.drainQueue(&batch)
			if len(batch) > 0 {
				if err := w.cold.UpsertBatch(context.Background(), batch); err != nil {
					w.spillBatch(batch)
				} else {
					metrics.RecordsIngested.Add(float64(len(batch)))
				}
			}
			return ctx.Err()
		case rec := <-w.queue:
			metrics.IngestQueueDepth.Dec()
			batch = append(batch, rec)
			if len(batch) >= w.cfg.BatchSize {
				batch = w.flush(ctx, batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				batch = w.flush(ctx, batch)
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (w *BatchWriter) String() string { return "batch-writer" }

// flush upserts the batch, retrying until it lands or the context cancels.
// It returns the reset batch slice; on cancellation the batch spills first.
func (w *BatchWriter) flush(ctx context.Context, batch []models.Record) []models.Record {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until the context cancels

	attempt := 0
	err := backoff.Retry(func() error {
		if err := w.cold.UpsertBatch(ctx, batch); err != nil {
			attempt++
			metrics.ColdWriteFailures.Inc()
			logging.Warn().Err(err).
				Int("records", len(batch)).
				Int("attempt", attempt).
				Msg("cold-store batch write failed, backing off")
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		// Only context cancellation gets here.
		w.spillBatch(batch)
	} else {
		metrics.RecordsIngested.Add(float64(len(batch)))
		logging.Debug().Int("records", len(batch)).Msg("cold-store batch written")
	}
	return batch[:0]
}

// drainQueue moves whatever is still buffered in the channel into batch.
func (w *BatchWriter) drainQueue(batch *[]models.Record) {
	for {
		select {
		case rec := <-w.queue:
			metrics.IngestQueueDepth.Dec()
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}

// spillBatch parks an undeliverable batch on disk for the replayer.
func (w *BatchWriter) spillBatch(batch []models.Record) {
	if w.spill == nil {
		logging.Error().Int("records", len(batch)).
			Msg("dropping batch: cold store down and no spill store configured")
		return
	}
	if err := w.spill.Append(batch); err != nil {
		logging.Error().Err(err).Int("records", len(batch)).
			Msg("failed to spill batch, records lost until file re-tail")
		return
	}
	metrics.SpilledBatches.Inc()
}
