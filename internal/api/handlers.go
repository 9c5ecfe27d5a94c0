// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package api is the HTTP boundary: chi routing, envelope encoding, and the
// translation of query parameters into the shared Filter type. Handlers are
// thin; tier routing lives in query, aggregate math in analytics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/logflux/internal/models"
)

// LogQuerier executes filtered queries and point lookups across the tiers.
type LogQuerier interface {
	Execute(ctx context.Context, filter *models.Filter) (*models.QueryResult, error)
	Lookup(ctx context.Context, correlationID string) (*models.Record, bool, error)
}

// MetaSource lists distinct attribute values for dashboard dropdowns.
type MetaSource interface {
	DistinctFilterOptions(ctx context.Context) (*models.FilterOptions, error)
}

// Pinger is a liveness probe on a storage tier.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler owns the non-analytics routes.
type Handler struct {
	querier LogQuerier
	meta    MetaSource

	dbPing    Pinger
	cachePing Pinger
	// watcherAlive reports whether the file watcher service is running.
	watcherAlive func() bool

	startTime time.Time
	now       func() time.Time
}

// NewHandler wires the query and health dependencies. watcherAlive may be nil
// when no file watcher is configured.
func NewHandler(querier LogQuerier, meta MetaSource, dbPing, cachePing Pinger, watcherAlive func() bool) *Handler {
	return &Handler{
		querier:      querier,
		meta:         meta,
		dbPing:       dbPing,
		cachePing:    cachePing,
		watcherAlive: watcherAlive,
		startTime:    time.Now(),
		now:          time.Now,
	}
}

// GetLogs handles GET /logs.
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeMalformedRequest, err.Error())
		return
	}
	h.serveQuery(w, r, start, filter)
}

// GetLogsToday handles GET /logs/today: records since midnight UTC.
func (h *Handler) GetLogsToday(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeMalformedRequest, err.Error())
		return
	}
	now := h.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	filter.StartDate = &midnight
	filter.EndDate = nil
	h.serveQuery(w, r, start, filter)
}

// GetErrorLogs handles GET /logs/error-logs: failed exchanges only.
func (h *Handler) GetErrorLogs(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	filter, err := parseFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeMalformedRequest, err.Error())
		return
	}
	filter.HasError = models.HasErrorTrue
	h.serveQuery(w, r, start, filter)
}

func (h *Handler) serveQuery(w http.ResponseWriter, r *http.Request, start time.Time, filter *models.Filter) {
	result, err := h.querier.Execute(r.Context(), filter)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     result,
		Metadata: metadata(start, result.FromCache && !result.FromDB),
	})
}

// GetLog handles GET /logs/{cid}: the record without its raw payloads.
func (h *Handler) GetLog(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	record, fromCache, ok := h.lookup(w, r)
	if !ok {
		return
	}

	// Trim the verbatim JSON blobs; /logs/details/{cid} serves them.
	trimmed := *record
	trimmed.Request = nil
	trimmed.Response = nil
	trimmed.HeaderLog = nil

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     &trimmed,
		Metadata: metadata(start, fromCache),
	})
}

// GetLogDetails handles GET /logs/details/{cid}: the full record including
// the retained request, response, and header payloads.
func (h *Handler) GetLogDetails(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	record, fromCache, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     record,
		Metadata: metadata(start, fromCache),
	})
}

// traceView is the error-focused projection served by /logs/trace/{cid}.
type traceView struct {
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
	APIName       string    `json:"api_name"`
	ServiceName   string    `json:"service_name"`
	LogLevel      string    `json:"log_level"`
	HasError      *string   `json:"has_error,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	ErrorTrace    string    `json:"error_trace,omitempty"`
}

// GetLogTrace handles GET /logs/trace/{cid}.
func (h *Handler) GetLogTrace(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	record, fromCache, ok := h.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: &traceView{
			CorrelationID: record.CorrelationID,
			Timestamp:     record.Timestamp,
			APIName:       record.APIName,
			ServiceName:   record.ServiceName,
			LogLevel:      record.LogLevel,
			HasError:      record.HasError,
			ErrorMessage:  record.ErrorMessage,
			ErrorTrace:    record.ErrorTrace,
		},
		Metadata: metadata(start, fromCache),
	})
}

// lookup resolves the {cid} path parameter. On failure it writes the error
// response itself and reports ok=false.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (record *models.Record, fromCache, ok bool) {
	cid := chi.URLParam(r, "cid")
	if cid == "" {
		respondError(w, r, http.StatusBadRequest, codeMalformedRequest, "correlation id is required")
		return nil, false, false
	}
	record, fromCache, err := h.querier.Lookup(r.Context(), cid)
	if err != nil {
		respondQueryError(w, r, err)
		return nil, false, false
	}
	return record, fromCache, true
}

// GetFilterOptions handles GET /logs/filter-options.
func (h *Handler) GetFilterOptions(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	options, err := h.meta.DistinctFilterOptions(r.Context())
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     options,
		Metadata: metadata(start, false),
	})
}

// GetHealth handles GET /health. The service answers 200 even when degraded;
// orchestrators read the status field, not the status code.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{
		"database":     probe(ctx, h.dbPing),
		"cache":        probe(ctx, h.cachePing),
		"file_watcher": models.HealthHealthy,
	}
	if h.watcherAlive != nil && !h.watcherAlive() {
		services["file_watcher"] = models.HealthDegraded
	}

	status := models.HealthHealthy
	for _, s := range services {
		if s != models.HealthHealthy {
			status = models.HealthDegraded
			break
		}
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: &models.HealthStatus{
			Status:   status,
			Services: services,
			Uptime:   time.Since(h.startTime).Seconds(),
		},
		Metadata: metadata(h.now(), false),
	})
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil || p.Ping(ctx) != nil {
		return models.HealthDegraded
	}
	return models.HealthHealthy
}
