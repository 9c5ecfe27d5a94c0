// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/logflux/internal/analytics"
	"github.com/tomtom215/logflux/internal/database"
	"github.com/tomtom215/logflux/internal/models"
)

// AnalyticsSource is the aggregate surface behind /analytics.
type AnalyticsSource interface {
	Stats(ctx context.Context) (*models.StatsSnapshot, error)
	GetOverview(ctx context.Context) (*analytics.Overview, error)
	GetSummary(ctx context.Context) (*analytics.Summary, error)
	GetPerformance(ctx context.Context) (*analytics.Performance, error)
	GetLogsPerDay(ctx context.Context, days int) ([]database.DayCount, error)
	GetErrorDistribution(ctx context.Context) ([]database.ErrorGroup, error)
	GetErrorBreakdown(ctx context.Context) ([]database.ErrorGroup, error)
	GetTopResponseTimeURLs(ctx context.Context, n int) ([]database.URLTiming, error)
	GetURLHeatMap(ctx context.Context) ([]database.GroupCount, error)
}

// AnalyticsHandler owns the /analytics routes.
type AnalyticsHandler struct {
	source AnalyticsSource
	now    func() time.Time
}

// NewAnalyticsHandler wires the aggregate source.
func NewAnalyticsHandler(source AnalyticsSource) *AnalyticsHandler {
	return &AnalyticsHandler{source: source, now: time.Now}
}

// respond runs one aggregate fetch and wraps the result.
func (h *AnalyticsHandler) respond(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context) (interface{}, error)) {
	start := h.now()
	data, err := fetch(r.Context())
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: metadata(start, false),
	})
}

// GetOverview handles GET /analytics/overview.
func (h *AnalyticsHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.GetOverview(ctx)
	})
}

// GetSummary handles GET /analytics/summary.
func (h *AnalyticsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.GetSummary(ctx)
	})
}

// GetPerformance handles GET /analytics/performance.
func (h *AnalyticsHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.GetPerformance(ctx)
	})
}

// GetStats handles GET /analytics/stats: the same snapshot pushed over the
// live-stats WebSocket, for clients that poll instead.
func (h *AnalyticsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.Stats(ctx)
	})
}

// GetErrorBreakdown handles GET /analytics/errors/breakdown.
func (h *AnalyticsHandler) GetErrorBreakdown(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.GetErrorBreakdown(ctx)
	})
}

// GetErrorDistribution handles GET /analytics/error-distribution.
func (h *AnalyticsHandler) GetErrorDistribution(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.GetErrorDistribution(ctx)
	})
}

// GetLogsPerDay handles GET /analytics/logs-per-day?days=N.
func (h *AnalyticsHandler) GetLogsPerDay(w http.ResponseWriter, r *http.Request) {
	days, err := parseIntParam(r.URL.Query().Get("days"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeMalformedRequest, "invalid days: "+err.Error())
		return
	}
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.GetLogsPerDay(ctx, days)
	})
}

// GetTopResponseTimeURLs handles GET /analytics/top-response-time-urls?limit=N.
func (h *AnalyticsHandler) GetTopResponseTimeURLs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query().Get("limit"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, codeMalformedRequest, "invalid limit: "+err.Error())
		return
	}
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.GetTopResponseTimeURLs(ctx, limit)
	})
}

// GetURLHeatMap handles GET /analytics/url-heat-map.
func (h *AnalyticsHandler) GetURLHeatMap(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func(ctx context.Context) (interface{}, error) {
		return h.source.GetURLHeatMap(ctx)
	})
}
