// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package models

import "time"

// Pagination bounds enforced at the HTTP boundary.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// Filter is a conjunction of equality constraints over indexed attributes
// plus an optional time range. The zero value matches every record.
//
// The same type drives cold-store WHERE clauses, hot-store enumeration, and
// live-subscription predicates, so the three paths cannot drift apart.
type Filter struct {
	CorrelationID string     `json:"correlation_id,omitempty"`
	APIName       string     `json:"api_name,omitempty"`
	ServiceName   string     `json:"service_name,omitempty"`
	LogLevel      string     `json:"log_level,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	HasError      string     `json:"has_error,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Normalize clamps pagination to sane bounds.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// IsZero reports whether no constraint is set (pagination aside).
func (f *Filter) IsZero() bool {
	return f.CorrelationID == "" && f.APIName == "" && f.ServiceName == "" &&
		f.LogLevel == "" && f.SessionID == "" && f.HasError == "" &&
		f.StartDate == nil && f.EndDate == nil
}

// Matches evaluates the conjunction against a record. Used by hot-store
// enumeration and by the broadcaster's per-subscriber predicates; the cold
// store compiles the same constraints to SQL.
func (f *Filter) Matches(r *Record) bool {
	if f.CorrelationID != "" && r.CorrelationID != f.CorrelationID {
		return false
	}
	if f.APIName != "" && r.APIName != f.APIName {
		return false
	}
	if f.ServiceName != "" && r.ServiceName != f.ServiceName {
		return false
	}
	if f.LogLevel != "" && r.LogLevel != f.LogLevel {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.HasError != "" {
		if r.HasError == nil || *r.HasError != f.HasError {
			return false
		}
	}
	if f.StartDate != nil && r.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && r.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}

// QueryPlan selects which storage tiers a query consults.
type QueryPlan int

const (
	// PlanAuto tries the hot tier first and falls through to cold when the
	// hot result underfills the requested page.
	PlanAuto QueryPlan = iota
	// PlanHotOnly consults only the Redis tier.
	PlanHotOnly
	// PlanColdOnly consults only the PostgreSQL tier.
	PlanColdOnly
	// PlanBoth consults both tiers in parallel and merges.
	PlanBoth
)

// String implements fmt.Stringer for logging.
func (p QueryPlan) String() string {
	switch p {
	case PlanHotOnly:
		return "hot_only"
	case PlanColdOnly:
		return "cold_only"
	case PlanBoth:
		return "both"
	default:
		return "auto"
	}
}
