// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Log levels accepted in the log_level attribute.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// Direction markers for the optional type attribute.
const (
	TypeIn    = "in"
	TypeOut   = "out"
	TypeError = "error"
)

// HasError is stored by upstream services as the literal strings "True" and
// "False", or omitted entirely. Comparisons must be explicit equality against
// these constants, never truthiness.
const (
	HasErrorTrue  = "True"
	HasErrorFalse = "False"
)

// Validation errors returned by Record.Validate.
var (
	ErrMissingCorrelationID = errors.New("missing required field: correlation_id")
	ErrMissingTimestamp     = errors.New("missing required field: timestamp")
	ErrMissingAPIName       = errors.New("missing required field: api_name")
	ErrMissingServiceName   = errors.New("missing required field: service_name")
	ErrMissingLogLevel      = errors.New("missing required field: log_level")
	ErrNegativeDuration     = errors.New("duration_ms must be non-negative")
)

// Record is the canonical unit of data: one request/response exchange.
//
// CorrelationID is the identity. Two records with the same correlation id
// refer to the same logical exchange and are merged last-write-wins on
// IngestedAt. Request, Response, and HeaderLog are retained verbatim as
// opaque JSON; only the indexed attributes are ever interpreted.
type Record struct {
	CorrelationID string `json:"correlation_id" validate:"required"`

	// Timestamp is event time normalized to UTC. TimestampRaw preserves the
	// exact string from the frame (including its original offset) for display.
	Timestamp    time.Time `json:"timestamp" validate:"required"`
	TimestampRaw string    `json:"timestamp_raw,omitempty"`

	APIName     string `json:"api_name" validate:"required"`
	ServiceName string `json:"service_name" validate:"required"`
	LogLevel    string `json:"log_level" validate:"required"`

	SessionID string `json:"session_id,omitempty"`
	PartyID   string `json:"party_id,omitempty"`
	Type      string `json:"type,omitempty"`

	// HasError is tri-valued: "True", "False", or absent (nil).
	HasError *string `json:"has_error,omitempty"`

	DurationMs *int64 `json:"duration_ms,omitempty" validate:"omitempty,gte=0"`
	URL        string `json:"url,omitempty"`

	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorTrace   string `json:"error_trace,omitempty"`

	HeaderLog json.RawMessage `json:"header_log,omitempty"`

	// LogTime is an auxiliary upstream timestamp string, stored as-is.
	LogTime string `json:"log_time,omitempty"`

	// SourceFile is provenance filled by the tailer.
	SourceFile string `json:"source_file,omitempty"`

	// IngestedAt is wall time at successful parse, filled by the ingest
	// pipeline. It breaks ties between replays of the same frame.
	IngestedAt time.Time `json:"ingested_at,omitempty"`
}

// validate checks the struct tags on Record; field order in the struct sets
// the order violations are reported in.
var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldErrors maps a violated field back onto its sentinel error.
var fieldErrors = map[string]error{
	"CorrelationID": ErrMissingCorrelationID,
	"Timestamp":     ErrMissingTimestamp,
	"APIName":       ErrMissingAPIName,
	"ServiceName":   ErrMissingServiceName,
	"LogLevel":      ErrMissingLogLevel,
	"DurationMs":    ErrNegativeDuration,
}

// Validate reports the first violated invariant, or nil.
func (r *Record) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var violations validator.ValidationErrors
	if errors.As(err, &violations) && len(violations) > 0 {
		if sentinel, ok := fieldErrors[violations[0].StructField()]; ok {
			return sentinel
		}
	}
	return err
}

// IsError reports whether the record represents a failed exchange.
// Explicit equality against "True"; an ERROR or FATAL level also counts so
// frames that omit has_error still show up in error rollups.
func (r *Record) IsError() bool {
	if r.HasError != nil {
		return *r.HasError == HasErrorTrue
	}
	return r.LogLevel == LevelError || r.LogLevel == LevelFatal
}

// ParseEventTime parses an RFC3339 timestamp preserving its offset, then
// normalizes to UTC. The raw string is returned unchanged for display.
//
// Upstream writers emit offsets like +02:00; these are parsed in full, never
// stripped.
func ParseEventTime(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Some writers omit the T separator.
		ts, err = time.Parse("2006-01-02 15:04:05Z07:00", raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse event time %q: %w", raw, err)
		}
	}
	return ts.UTC(), nil
}
