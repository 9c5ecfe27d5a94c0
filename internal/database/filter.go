// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package database

import (
	"fmt"
	"strings"

	"github.com/tomtom215/logflux/internal/models"
)

// errorPredicate is the SQL rendering of Record.IsError: explicit equality
// against 'True', falling back to level when has_error is absent.
const errorPredicate = `(has_error = 'True' OR (has_error IS NULL AND log_level IN ('ERROR', 'FATAL')))`

// buildFilterConditions compiles a models.Filter to a WHERE fragment with
// positional placeholders starting at $<start>. The fragment begins with
// " AND " so callers append it to a base query carrying "WHERE 1=1"; an empty
// filter yields an empty fragment.
//
// The compiled constraints mirror Filter.Matches exactly so the hot and cold
// tiers agree on what a filter selects.
func buildFilterConditions(f *models.Filter, start int) (string, []interface{}) {
	if f == nil {
		return "", nil
	}

	var conditions []string
	var args []interface{}
	next := func() int { return start + len(args) }

	if f.CorrelationID != "" {
		conditions = append(conditions, fmt.Sprintf("correlation_id = $%d", next()))
		args = append(args, f.CorrelationID)
	}
	if f.APIName != "" {
		conditions = append(conditions, fmt.Sprintf("api_name = $%d", next()))
		args = append(args, f.APIName)
	}
	if f.ServiceName != "" {
		conditions = append(conditions, fmt.Sprintf("service_name = $%d", next()))
		args = append(args, f.ServiceName)
	}
	if f.LogLevel != "" {
		conditions = append(conditions, fmt.Sprintf("log_level = $%d", next()))
		args = append(args, f.LogLevel)
	}
	if f.SessionID != "" {
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", next()))
		args = append(args, f.SessionID)
	}
	if f.HasError != "" {
		conditions = append(conditions, fmt.Sprintf("has_error = $%d", next()))
		args = append(args, f.HasError)
	}
	if f.StartDate != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", next()))
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		conditions = append(conditions, fmt.Sprintf("timestamp <= $%d", next()))
		args = append(args, *f.EndDate)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(conditions, " AND "), args
}
