// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/logflux/internal/config"
	"github.com/tomtom215/logflux/internal/middleware"
	"github.com/tomtom215/logflux/internal/websocket"
)

// NewRouter assembles the full route tree. hub may be nil in tests that do
// not exercise the WebSocket endpoints.
func NewRouter(cfg config.ServerConfig, h *Handler, ah *AnalyticsHandler, hub *websocket.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
	}
	r.Use(middleware.Prometheus)

	r.Route("/logs", func(r chi.Router) {
		r.Get("/", h.GetLogs)
		r.Get("/today", h.GetLogsToday)
		r.Get("/error-logs", h.GetErrorLogs)
		r.Get("/filter-options", h.GetFilterOptions)
		r.Get("/trace/{cid}", h.GetLogTrace)
		r.Get("/details/{cid}", h.GetLogDetails)
		r.Get("/{cid}", h.GetLog)
	})

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/overview", ah.GetOverview)
		r.Get("/summary", ah.GetSummary)
		r.Get("/performance", ah.GetPerformance)
		r.Get("/stats", ah.GetStats)
		r.Get("/errors/breakdown", ah.GetErrorBreakdown)
		r.Get("/error-distribution", ah.GetErrorDistribution)
		r.Get("/logs-per-day", ah.GetLogsPerDay)
		r.Get("/top-response-time-urls", ah.GetTopResponseTimeURLs)
		r.Get("/url-heat-map", ah.GetURLHeatMap)
	})

	r.Get("/health", h.GetHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if hub != nil {
		r.Get("/ws/logs", hub.ServeLogs)
		r.Get("/ws/live-stats", hub.ServeLiveStats)
	}

	return r
}
