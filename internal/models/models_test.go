// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package models

import (
	"errors"
	"testing"
	"time"
)

func testRecord() Record {
	hasErr := HasErrorFalse
	dur := int64(42)
	return Record{
		CorrelationID: "a1b2c3d4-0000-0000-0000-000000000001",
		Timestamp:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		APIName:       "X",
		ServiceName:   "Y",
		LogLevel:      LevelInfo,
		SessionID:     "sess-1",
		HasError:      &hasErr,
		DurationMs:    &dur,
	}
}

func TestRecordValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Record)
		wantErr error
	}{
		{"valid", func(r *Record) {}, nil},
		{"missing correlation id", func(r *Record) { r.CorrelationID = "" }, ErrMissingCorrelationID},
		{"missing timestamp", func(r *Record) { r.Timestamp = time.Time{} }, ErrMissingTimestamp},
		{"missing api name", func(r *Record) { r.APIName = "" }, ErrMissingAPIName},
		{"missing service name", func(r *Record) { r.ServiceName = "" }, ErrMissingServiceName},
		{"missing log level", func(r *Record) { r.LogLevel = "" }, ErrMissingLogLevel},
		{"negative duration", func(r *Record) { d := int64(-1); r.DurationMs = &d }, ErrNegativeDuration},
		{"first violated field wins", func(r *Record) { r.CorrelationID = ""; r.APIName = "" }, ErrMissingCorrelationID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRecord()
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordIsError(t *testing.T) {
	r := testRecord()
	if r.IsError() {
		t.Error("has_error=False record should not be an error")
	}

	hasErr := HasErrorTrue
	r.HasError = &hasErr
	if !r.IsError() {
		t.Error("has_error=True record should be an error")
	}

	// Absent has_error falls back to the log level.
	r.HasError = nil
	r.LogLevel = LevelError
	if !r.IsError() {
		t.Error("ERROR-level record without has_error should count as error")
	}

	r.LogLevel = LevelInfo
	if r.IsError() {
		t.Error("INFO-level record without has_error should not count as error")
	}
}

func TestParseEventTimeNormalizesOffset(t *testing.T) {
	ts, err := ParseEventTime("2025-01-01T12:00:00+02:00")
	if err != nil {
		t.Fatalf("ParseEventTime: %v", err)
	}
	want := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("got %v, want %v", ts, want)
	}
	if ts.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", ts.Location())
	}
}

func TestParseEventTimeRejectsGarbage(t *testing.T) {
	if _, err := ParseEventTime("yesterday"); err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestFilterMatches(t *testing.T) {
	r := testRecord()

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero filter matches", Filter{}, true},
		{"api match", Filter{APIName: "X"}, true},
		{"api mismatch", Filter{APIName: "Z"}, false},
		{"service match", Filter{ServiceName: "Y"}, true},
		{"level mismatch", Filter{LogLevel: LevelError}, false},
		{"session match", Filter{SessionID: "sess-1"}, true},
		{"has_error explicit equality", Filter{HasError: HasErrorTrue}, false},
		{"correlation id match", Filter{CorrelationID: r.CorrelationID}, true},
		{"conjunction", Filter{APIName: "X", LogLevel: LevelInfo}, true},
		{"conjunction one fails", Filter{APIName: "X", LogLevel: LevelError}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(&r); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterMatchesTimeRange(t *testing.T) {
	r := testRecord()
	before := r.Timestamp.Add(-time.Hour)
	after := r.Timestamp.Add(time.Hour)

	in := Filter{StartDate: &before, EndDate: &after}
	if !in.Matches(&r) {
		t.Error("record inside range should match")
	}

	out := Filter{StartDate: &after}
	if out.Matches(&r) {
		t.Error("record before start_date should not match")
	}

	out = Filter{EndDate: &before}
	if out.Matches(&r) {
		t.Error("record after end_date should not match")
	}
}

func TestFilterNormalize(t *testing.T) {
	f := Filter{Limit: 0, Offset: -5}
	f.Normalize()
	if f.Limit != DefaultLimit || f.Offset != 0 {
		t.Errorf("Normalize() = limit %d offset %d", f.Limit, f.Offset)
	}

	f = Filter{Limit: 99999}
	f.Normalize()
	if f.Limit != MaxLimit {
		t.Errorf("limit not clamped: %d", f.Limit)
	}
}

func TestQueryPlanString(t *testing.T) {
	plans := map[QueryPlan]string{
		PlanAuto:     "auto",
		PlanHotOnly:  "hot_only",
		PlanColdOnly: "cold_only",
		PlanBoth:     "both",
	}
	for plan, want := range plans {
		if plan.String() != want {
			t.Errorf("QueryPlan(%d).String() = %q, want %q", plan, plan.String(), want)
		}
	}
}
