// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package models

import "time"

// APIResponse is the standardized wrapper used by all HTTP endpoints.
//
// Success:
//
//	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
//
// Error:
//
//	{"status": "error", "error": {"code": "NOT_FOUND", "message": "..."}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError carries a machine-readable code alongside the human message.
// Internal errors expose only an opaque reference id, never a stack trace.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// QueryResult is the envelope for log queries across the hot and cold tiers.
// FromCache / FromDB flag which tiers contributed; Degraded is set when a
// tier failed and the result is partial.
type QueryResult struct {
	Logs      []Record `json:"logs"`
	Total     int64    `json:"total"`
	FromCache bool     `json:"from_cache"`
	FromDB    bool     `json:"from_db"`
	Degraded  bool     `json:"degraded,omitempty"`
}

// FilterOptions lists the distinct values of each indexed attribute, used by
// dashboards to populate dropdowns.
type FilterOptions struct {
	APINames     []string `json:"api_names"`
	ServiceNames []string `json:"service_names"`
	LogLevels    []string `json:"log_levels"`
}

// Health statuses reported by /health.
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Uptime   float64           `json:"uptime_seconds"`
}

// WebSocket message types sent by the broadcaster.
const (
	MessageTypeNewLog       = "new_log"
	MessageTypeStatsUpdate  = "stats_update"
	MessageTypeInitialStats = "initial_stats"
	MessageTypePong         = "pong"
)

// WebSocket control actions accepted from subscribers.
const (
	ActionSubscribe    = "subscribe"
	ActionUnsubscribe  = "unsubscribe"
	ActionPing         = "ping"
	ActionRequestStats = "request_stats"
)

// Message is the WebSocket wire envelope for server-to-client traffic.
type Message struct {
	Type  string         `json:"type"`
	Data  interface{}    `json:"data,omitempty"`
	Stats *StatsSnapshot `json:"stats,omitempty"`
}

// ControlMessage is the client-to-server WebSocket envelope.
// {action: subscribe, filters: {...}} replaces the predicate,
// {action: unsubscribe} clears it, {action: ping} elicits a pong.
type ControlMessage struct {
	Action  string  `json:"action,omitempty"`
	Type    string  `json:"type,omitempty"` // legacy alias for Action
	Filters *Filter `json:"filters,omitempty"`
}

// StatsSnapshot is the rolling counter payload pushed with stats_update.
// SuccessRate is a percentage rounded half-up to two decimals.
type StatsSnapshot struct {
	TotalLogs   int64     `json:"total_logs"`
	SuccessLogs int64     `json:"success_logs"`
	ErrorLogs   int64     `json:"error_logs"`
	SuccessRate float64   `json:"success_rate"`
	LastUpdated time.Time `json:"last_updated"`
}
