// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package ingest moves parsed records from the tailer into the storage tiers
// and the live broadcaster.
//
// Per record the pipeline stamps IngestedAt, writes the hot tier best-effort,
// publishes to subscribers, and enqueues for the batched cold upsert. The
// cold path is the only one that can push back: when the queue is full
// (cold store down long enough to exhaust the memory cap) whole batches
// spill to BadgerDB and a replayer drains them once the store recovers.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/logflux/internal/config"
	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
	"github.com/tomtom215/logflux/internal/models"
)

// ErrQueueFull reports that records could not be queued and no spill store
// is configured. The tailer reacts by holding the file position.
var ErrQueueFull = errors.New("ingest queue full")

// ColdWriter is the durable batch sink, implemented by the cold store.
type ColdWriter interface {
	UpsertBatch(ctx context.Context, records []models.Record) error
}

// HotWriter is the best-effort cache sink, implemented by the hot store.
type HotWriter interface {
	Put(ctx context.Context, rec *models.Record) error
}

// Broadcaster fans a record out to live subscribers, implemented by the hub.
type Broadcaster interface {
	Publish(rec models.Record)
}

// Pipeline implements tailer.Sink.
type Pipeline struct {
	cfg   config.IngestConfig
	hot   HotWriter
	hub   Broadcaster
	spill *Spill
	queue chan models.Record

	now func() time.Time
}

// NewPipeline wires the fan-out. The queue capacity is the memory cap: once
// it fills, overflow goes to the spill store instead of growing the heap.
func NewPipeline(cfg config.IngestConfig, hot HotWriter, hub Broadcaster, spill *Spill) *Pipeline {
	capacity := cfg.MemoryCap
	if capacity < cfg.BatchSize {
		capacity = cfg.BatchSize
	}
	return &Pipeline{
		cfg:   cfg,
		hot:   hot,
		hub:   hub,
		spill: spill,
		queue: make(chan models.Record, capacity),
		now:   time.Now,
	}
}

// Queue exposes the cold-path channel for the batch writer.
func (p *Pipeline) Queue() <-chan models.Record { return p.queue }

// Ingest accepts a parsed batch. It returns an error only when a record
// could neither be queued nor spilled; the tailer then holds the file
// position so the range is re-delivered.
func (p *Pipeline) Ingest(ctx context.Context, records []models.Record) error {
	now := p.now().UTC()
	var overflow []models.Record

	for i := range records {
		rec := records[i]
		if err := rec.Validate(); err != nil {
			// The parser rejects these already; a failure here means a
			// spill replay of a record written by an older build.
			logging.Warn().Err(err).Str("correlation_id", rec.CorrelationID).
				Msg("dropping invalid record at ingest")
			continue
		}
		rec.IngestedAt = now

		if p.hot != nil {
			if err := p.hot.Put(ctx, &rec); err != nil {
				logging.Debug().Err(err).Str("correlation_id", rec.CorrelationID).
					Msg("hot-store write skipped")
			}
		}
		if p.hub != nil {
			p.hub.Publish(rec)
		}

		select {
		case p.queue <- rec:
			metrics.IngestQueueDepth.Inc()
		default:
			overflow = append(overflow, rec)
		}
	}

	if len(overflow) > 0 {
		if p.spill == nil {
			return ErrQueueFull
		}
		if err := p.spill.Append(overflow); err != nil {
			return err
		}
		metrics.SpilledBatches.Inc()
		logging.Warn().Int("records", len(overflow)).
			Msg("ingest queue full, batch spilled to disk")
	}
	return nil
}
