// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/logflux/internal/database"
	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/middleware"
	"github.com/tomtom215/logflux/internal/models"
	"github.com/tomtom215/logflux/internal/query"
)

// Error codes in the boundary taxonomy.
const (
	codeMalformedRequest = "malformed_request"
	codeRecordNotFound   = "record_not_found"
	codeInternalError    = "internal_error"
)

// respondJSON sends a success envelope.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

// respondError sends an error envelope. Internal errors carry only the
// request id outward; the cause stays in the server log.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	apiErr := &models.APIError{Code: code, Message: message}
	if status >= http.StatusInternalServerError {
		apiErr.Details = map[string]interface{}{"request_id": middleware.GetRequestID(r.Context())}
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    apiErr,
	})
}

// respondQueryError maps domain errors to the boundary taxonomy.
func respondQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrNotFound), errors.Is(err, database.ErrNotFound):
		respondError(w, r, http.StatusNotFound, codeRecordNotFound, "record not found")
	default:
		logging.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		respondError(w, r, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

// metadata stamps the envelope with timing information.
func metadata(start time.Time, cached bool) models.Metadata {
	return models.Metadata{
		Timestamp:   time.Now().UTC(),
		QueryTimeMS: time.Since(start).Milliseconds(),
		Cached:      cached,
	}
}

// parseFilter builds a Filter from query parameters. Unknown parameters are
// ignored; invalid values are a malformed request.
func parseFilter(r *http.Request) (*models.Filter, error) {
	q := r.URL.Query()
	filter := &models.Filter{
		CorrelationID: q.Get("correlation_id"),
		APIName:       q.Get("api_name"),
		ServiceName:   q.Get("service_name"),
		LogLevel:      q.Get("log_level"),
		SessionID:     q.Get("session_id"),
	}

	if raw := q.Get("has_error"); raw != "" {
		switch raw {
		case models.HasErrorTrue, "true":
			filter.HasError = models.HasErrorTrue
		case models.HasErrorFalse, "false":
			filter.HasError = models.HasErrorFalse
		default:
			return nil, fmt.Errorf("has_error must be True or False, got %q", raw)
		}
	}

	for _, p := range []struct {
		name string
		dest **time.Time
	}{
		{"start_date", &filter.StartDate},
		{"end_date", &filter.EndDate},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		ts, err := parseBoundaryTime(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", p.name, err)
		}
		*p.dest = &ts
	}

	var err error
	if filter.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		return nil, fmt.Errorf("invalid limit: %w", err)
	}
	if filter.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		return nil, fmt.Errorf("invalid offset: %w", err)
	}

	filter.Normalize()
	return filter, nil
}

// parseBoundaryTime accepts RFC3339 or a bare date, normalized to UTC.
func parseBoundaryTime(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", raw)
	}
	return ts.UTC(), nil
}

// parseIntParam parses a non-negative integer parameter; empty is 0.
func parseIntParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("expected a non-negative integer, got %q", raw)
	}
	return n, nil
}
