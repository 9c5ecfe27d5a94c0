// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package metrics exposes Prometheus instrumentation for Logflux.
//
// The counters mirror the ingestion error taxonomy one to one, so every
// skip/degrade decision made by the pipeline is observable:
// frames rejected, required fields missing, cid mismatches, rotations,
// cache unavailability, cold-store write failures, and subscriber lag.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Parser counters (C1 taxonomy).

	FramesParsed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_frames_parsed_total",
			Help: "Total number of complete frames parsed into records",
		},
	)

	FramesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_frames_rejected_total",
			Help: "Total number of frames dropped due to invalid JSON payloads",
		},
	)

	RequiredFieldMissing = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_frames_required_field_missing_total",
			Help: "Total number of frames dropped due to missing required attributes",
		},
	)

	CidMismatch = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_frames_cid_mismatch_total",
			Help: "Total number of frames whose payload cid disagreed with the marker cid",
		},
	)

	FramesOversized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_frames_oversized_total",
			Help: "Total number of frames dropped for exceeding the size limit",
		},
	)

	// Tailer counters.

	FilesRotated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_files_rotated_total",
			Help: "Total number of detected log file rotations",
		},
	)

	BytesTailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_bytes_tailed_total",
			Help: "Total bytes read from tailed log files",
		},
	)

	FilesWatched = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logflux_files_watched",
			Help: "Number of log files currently tracked by the tailer",
		},
	)

	// Ingest pipeline counters.

	RecordsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_records_ingested_total",
			Help: "Total number of records handed to the ingest pipeline",
		},
	)

	CacheUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_cache_unavailable_total",
			Help: "Total number of hot-store writes skipped because Redis was unreachable",
		},
	)

	ColdWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_cold_write_failures_total",
			Help: "Total number of failed cold-store batch upserts (before retry)",
		},
	)

	ColdBatchesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_cold_batches_written_total",
			Help: "Total number of batches successfully upserted into the cold store",
		},
	)

	SpilledBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_spilled_batches_total",
			Help: "Total number of batches spilled to disk under cold-store pressure",
		},
	)

	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logflux_ingest_queue_depth",
			Help: "Records currently buffered for the next cold-store batch",
		},
	)

	// Broadcaster counters.

	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logflux_subscribers_active",
			Help: "Number of live WebSocket subscriptions",
		},
	)

	SubscriberLagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_subscriber_lagged_total",
			Help: "Total number of records dropped because a subscriber buffer was full",
		},
	)

	SubscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_subscribers_dropped_total",
			Help: "Total number of subscriptions removed after consecutive delivery failures",
		},
	)

	// Query router metrics.

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logflux_query_duration_seconds",
			Help:    "Duration of log queries by plan",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"plan"},
	)

	QueriesDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logflux_queries_degraded_total",
			Help: "Total number of queries answered partially after a tier failure",
		},
	)

	// HTTP metrics.

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logflux_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)
