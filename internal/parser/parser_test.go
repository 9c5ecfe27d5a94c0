// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package parser

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

const (
	cid1 = "a1b2c3d4-0000-0000-0000-000000000001"
	cid2 = "a1b2c3d4-0000-0000-0000-000000000002"
)

func marker(cid string) string {
	return "**********" + cid + "**********"
}

func frame(cid, payload string) string {
	return marker(cid) + "\n" + payload + "\n" + marker(cid) + "\n"
}

func validPayload(cid string) string {
	return fmt.Sprintf(`{"correlationId":%q,"timestamp":"2025-01-01T00:00:00+00:00","apiName":"X","serviceName":"Y","logLevel":"INFO"}`, cid)
}

func TestParseSingleFrame(t *testing.T) {
	data := frame(cid1, validPayload(cid1))

	records, consumed, stats := New(0).Parse([]byte(data), "app.log")
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if stats.Parsed != 1 || stats.Rejected != 0 {
		t.Errorf("stats = %+v", stats)
	}

	r := records[0]
	if r.CorrelationID != cid1 {
		t.Errorf("correlation id = %s", r.CorrelationID)
	}
	if r.APIName != "X" || r.ServiceName != "Y" || r.LogLevel != "INFO" {
		t.Errorf("attributes = %s/%s/%s", r.APIName, r.ServiceName, r.LogLevel)
	}
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v", r.Timestamp)
	}
	if r.SourceFile != "app.log" {
		t.Errorf("source file = %s", r.SourceFile)
	}

	// Everything up to and including the closing marker is consumed; the
	// trailing newline is immaterial and re-read next pass.
	wantConsumed := len(data) - 1
	if consumed != wantConsumed {
		t.Errorf("consumed = %d, want %d", consumed, wantConsumed)
	}
}

func TestParseIncompleteTrailingFrame(t *testing.T) {
	// Only the opening marker and payload: no record, nothing consumed.
	data := marker(cid1) + "\n" + validPayload(cid1) + "\n"

	records, consumed, _ := New(0).Parse([]byte(data), "app.log")
	if len(records) != 0 {
		t.Fatalf("expected no records from partial frame, got %d", len(records))
	}
	if consumed != 0 {
		t.Errorf("consumed = %d, want 0", consumed)
	}

	// Appending the closing marker completes exactly one record.
	data += marker(cid1)
	records, consumed, _ = New(0).Parse([]byte(data), "app.log")
	if len(records) != 1 {
		t.Fatalf("expected 1 record after close, got %d", len(records))
	}
	if consumed != len(data) {
		t.Errorf("consumed = %d, want %d", consumed, len(data))
	}
}

func TestParseMalformedJSON(t *testing.T) {
	truncated := `{"correlationId":"` + cid1 + `", "apiName":`
	data := frame(cid1, truncated) + frame(cid2, validPayload(cid2))

	records, consumed, stats := New(0).Parse([]byte(data), "app.log")
	if stats.Rejected != 1 {
		t.Errorf("rejected = %d, want 1", stats.Rejected)
	}
	if len(records) != 1 || records[0].CorrelationID != cid2 {
		t.Fatalf("expected only the valid record, got %d", len(records))
	}
	// The rejected frame is consumed: position must advance past its close
	// so the stream does not wedge on a poison frame.
	if consumed != len(data)-1 {
		t.Errorf("consumed = %d, want %d", consumed, len(data)-1)
	}
}

func TestParseMissingRequiredField(t *testing.T) {
	payload := fmt.Sprintf(`{"correlationId":%q,"timestamp":"2025-01-01T00:00:00+00:00","apiName":"X","logLevel":"INFO"}`, cid1)
	records, consumed, stats := New(0).Parse([]byte(frame(cid1, payload)), "app.log")

	if len(records) != 0 {
		t.Fatalf("record without serviceName must be rejected")
	}
	if stats.MissingField != 1 {
		t.Errorf("missing field count = %d", stats.MissingField)
	}
	if consumed == 0 {
		t.Error("rejected frame must still be consumed")
	}
}

func TestParseCidMismatchMarkerWins(t *testing.T) {
	// Payload claims cid2 but the markers carry cid1.
	data := frame(cid1, validPayload(cid2))

	records, _, stats := New(0).Parse([]byte(data), "app.log")
	if len(records) != 1 {
		t.Fatalf("mismatching cid must still produce a record")
	}
	if records[0].CorrelationID != cid1 {
		t.Errorf("marker cid must be authoritative, got %s", records[0].CorrelationID)
	}
	if stats.CidMismatches != 1 {
		t.Errorf("cid mismatch count = %d", stats.CidMismatches)
	}
}

func TestParseInterleavedOpensPinConsumed(t *testing.T) {
	// openA, then a complete frame B, no close for A. Consuming past B
	// would discard A's open, so nothing is consumed.
	data := marker(cid1) + "\n" + frame(cid2, validPayload(cid2))

	records, consumed, _ := New(0).Parse([]byte(data), "app.log")
	if len(records) != 0 {
		t.Fatalf("frame B must not be emitted while open A pins the boundary")
	}
	if consumed != 0 {
		t.Errorf("consumed = %d, want 0", consumed)
	}

	// Closing A releases both frames.
	data += validPayload(cid1) + "\n" + marker(cid1)
	records, consumed, _ = New(0).Parse([]byte(data), "app.log")
	if len(records) != 2 {
		t.Fatalf("expected both records once A closes, got %d", len(records))
	}
	if consumed != len(data) {
		t.Errorf("consumed = %d, want %d", consumed, len(data))
	}
}

func TestParseOversizedFrameDropped(t *testing.T) {
	big := `{"padding":"` + strings.Repeat("x", 2048) + `"}`
	data := frame(cid1, big) + frame(cid2, validPayload(cid2))

	records, consumed, stats := New(1024).Parse([]byte(data), "app.log")
	if stats.Oversized != 1 {
		t.Errorf("oversized = %d, want 1", stats.Oversized)
	}
	if len(records) != 1 || records[0].CorrelationID != cid2 {
		t.Fatalf("only the small frame should survive, got %d records", len(records))
	}
	if consumed != len(data)-1 {
		t.Errorf("oversized frame markers must be discarded, consumed = %d", consumed)
	}
}

func TestParseNewlinesInsideJSONStrings(t *testing.T) {
	payload := fmt.Sprintf(`{"correlationId":%q,"timestamp":"2025-01-01T00:00:00+00:00","apiName":"X","serviceName":"Y","logLevel":"ERROR","errorTrace":"line one\nline two"}`, cid1)
	records, _, _ := New(0).Parse([]byte(frame(cid1, payload)), "app.log")

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].ErrorTrace != "line one\nline two" {
		t.Errorf("error trace = %q", records[0].ErrorTrace)
	}
}

func TestParseHasErrorNormalization(t *testing.T) {
	tests := []struct {
		raw  string
		want string // "" means nil
	}{
		{`"True"`, "True"},
		{`"False"`, "False"},
		{`true`, "True"},
		{`false`, "False"},
		{`null`, ""},
		{`"yes"`, ""},
	}

	for _, tt := range tests {
		payload := fmt.Sprintf(`{"correlationId":%q,"timestamp":"2025-01-01T00:00:00+00:00","apiName":"X","serviceName":"Y","logLevel":"INFO","hasError":%s}`, cid1, tt.raw)
		records, _, _ := New(0).Parse([]byte(frame(cid1, payload)), "app.log")
		if len(records) != 1 {
			t.Fatalf("hasError=%s: expected a record", tt.raw)
		}
		got := records[0].HasError
		if tt.want == "" {
			if got != nil {
				t.Errorf("hasError=%s: want nil, got %q", tt.raw, *got)
			}
		} else if got == nil || *got != tt.want {
			t.Errorf("hasError=%s: want %q, got %v", tt.raw, tt.want, got)
		}
	}
}

func TestParseTimestampOffsetNormalized(t *testing.T) {
	payload := fmt.Sprintf(`{"correlationId":%q,"timestamp":"2025-01-01T12:00:00+02:00","apiName":"X","serviceName":"Y","logLevel":"INFO"}`, cid1)
	records, _, _ := New(0).Parse([]byte(frame(cid1, payload)), "app.log")

	if len(records) != 1 {
		t.Fatal("expected a record")
	}
	want := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	if !records[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", records[0].Timestamp, want)
	}
	if records[0].TimestampRaw != "2025-01-01T12:00:00+02:00" {
		t.Errorf("raw timestamp not preserved: %s", records[0].TimestampRaw)
	}
}

func TestParseEmptyAndMarkerFree(t *testing.T) {
	for _, data := range []string{"", "plain text with no markers\n"} {
		records, consumed, _ := New(0).Parse([]byte(data), "app.log")
		if len(records) != 0 || consumed != 0 {
			t.Errorf("data %q: records=%d consumed=%d", data, len(records), consumed)
		}
	}
}

func TestParseMultipleFramesInOrder(t *testing.T) {
	var sb strings.Builder
	cids := []string{
		"a1b2c3d4-0000-0000-0000-00000000000a",
		"a1b2c3d4-0000-0000-0000-00000000000b",
		"a1b2c3d4-0000-0000-0000-00000000000c",
	}
	for _, c := range cids {
		sb.WriteString(frame(c, validPayload(c)))
	}

	records, consumed, _ := New(0).Parse([]byte(sb.String()), "app.log")
	if len(records) != len(cids) {
		t.Fatalf("expected %d records, got %d", len(cids), len(records))
	}
	for i, c := range cids {
		if records[i].CorrelationID != c {
			t.Errorf("record %d out of file order: %s", i, records[i].CorrelationID)
		}
	}
	if consumed != sb.Len()-1 {
		t.Errorf("consumed = %d, want %d", consumed, sb.Len()-1)
	}
}
