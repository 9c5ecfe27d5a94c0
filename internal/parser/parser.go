// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package parser recovers log records from sentinel-framed byte streams.
//
// A frame is:
//
//	**********<cid>**********
//	<json payload>
//	**********<cid>**********
//
// where the marker is exactly ten '*' characters and <cid> is a 36-character
// UUID-shaped identifier. Both markers must carry the same cid for the frame
// to be complete. The parser is stateless and byte-accurate: it never emits
// a record from a partial frame, and it reports how many bytes the caller
// may safely consume so an incomplete trailing frame is retried on the next
// read.
package parser

import (
	"bytes"
	"regexp"

	"github.com/goccy/go-json"

	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/models"
)

// DefaultMaxFrameBytes bounds the payload of a single frame. Larger frames
// are dropped with their markers so a runaway writer cannot force unbounded
// buffering.
const DefaultMaxFrameBytes = 8 << 20 // 8 MiB

// markerRe matches one sentinel marker and captures its cid.
var markerRe = regexp.MustCompile(`\*{10}([0-9a-f-]{36})\*{10}`)

// Stats counts the per-call outcomes of a Parse pass. The caller feeds these
// into the Prometheus taxonomy counters; keeping the parser metric-free makes
// it trivially testable.
type Stats struct {
	Parsed        int
	Rejected      int // invalid JSON payload
	MissingField  int // required attribute absent or unparseable
	CidMismatches int // payload cid disagreed with marker cid (record kept)
	Oversized     int // frame dropped for exceeding MaxFrameBytes
}

// Parser extracts bounded records from byte ranges. The zero value is not
// usable; construct with New.
type Parser struct {
	maxFrameBytes int
}

// New returns a Parser. maxFrameBytes <= 0 selects DefaultMaxFrameBytes.
func New(maxFrameBytes int) *Parser {
	if maxFrameBytes <= 0 {
		maxFrameBytes = DefaultMaxFrameBytes
	}
	return &Parser{maxFrameBytes: maxFrameBytes}
}

// pair is a matched open/close marker region within the scanned data.
type pair struct {
	openStart, openEnd   int
	closeStart, closeEnd int
	cid                  string
}

// Parse scans data for complete frames and returns the decoded records plus
// the number of bytes safely consumed.
//
// consumed is the length of the longest prefix that ends on a frame boundary
// and contains no unmatched marker, or zero when no complete frame exists.
// Everything before consumed has been either emitted or explicitly discarded;
// nothing at or beyond consumed is delivered. An unmatched open marker pins
// consumed before its own start so a later read can complete that frame.
func (p *Parser) Parse(data []byte, sourceHint string) ([]models.Record, int, Stats) {
	var stats Stats

	matches := markerRe.FindAllSubmatchIndex(data, -1)
	if len(matches) == 0 {
		return nil, 0, stats
	}

	// Pair markers with identical cids in order of appearance.
	pending := make(map[string]int) // cid -> index into matches of the open
	var pairs []pair
	unmatched := make([]int, 0, len(matches)) // marker start offsets

	for i, m := range matches {
		cid := string(data[m[2]:m[3]])
		if openIdx, ok := pending[cid]; ok {
			open := matches[openIdx]
			pairs = append(pairs, pair{
				openStart:  open[0],
				openEnd:    open[1],
				closeStart: m[0],
				closeEnd:   m[1],
				cid:        cid,
			})
			delete(pending, cid)
			continue
		}
		pending[cid] = i
	}
	for _, i := range sortedValues(pending) {
		unmatched = append(unmatched, matches[i][0])
	}

	// An unmatched marker must stay unconsumed. The safe prefix therefore
	// ends before the earliest unmatched marker start.
	boundary := len(data) + 1
	for _, start := range unmatched {
		if start < boundary {
			boundary = start
		}
	}

	var records []models.Record
	consumed := 0
	for _, fr := range pairs {
		if fr.closeEnd > boundary {
			// Completing this frame would swallow an unmatched open that a
			// later read may still close. Leave it for the next pass.
			continue
		}

		if fr.closeStart-fr.openEnd > p.maxFrameBytes {
			stats.Oversized++
			logging.Warn().
				Str("file", sourceHint).
				Str("correlation_id", fr.cid).
				Int("size", fr.closeStart-fr.openEnd).
				Msg("frame exceeds size limit, dropping")
			consumed = fr.closeEnd
			continue
		}

		rec, outcome := p.decodeFrame(data[fr.openEnd:fr.closeStart], fr.cid, sourceHint)
		switch outcome {
		case frameOK:
			stats.Parsed++
			records = append(records, rec)
		case frameCidMismatch:
			stats.Parsed++
			stats.CidMismatches++
			records = append(records, rec)
		case frameBadJSON:
			stats.Rejected++
		case frameMissingField:
			stats.MissingField++
		}
		consumed = fr.closeEnd
	}

	return records, consumed, stats
}

type frameOutcome int

const (
	frameOK frameOutcome = iota
	frameCidMismatch
	frameBadJSON
	frameMissingField
)

// wireRecord mirrors the camelCase frame payload. This is the only place the
// camelCase shape exists; the canonical model is snake_case everywhere else.
type wireRecord struct {
	CorrelationID string          `json:"correlationId"`
	Timestamp     string          `json:"timestamp"`
	APIName       string          `json:"apiName"`
	ServiceName   string          `json:"serviceName"`
	LogLevel      string          `json:"logLevel"`
	SessionID     string          `json:"sessionId"`
	PartyID       string          `json:"partyId"`
	Type          string          `json:"type"`
	HasError      json.RawMessage `json:"hasError"`
	DurationMs    *int64          `json:"durationMs"`
	URL           string          `json:"url"`
	Request       json.RawMessage `json:"request"`
	Response      json.RawMessage `json:"response"`
	ErrorMessage  string          `json:"errorMessage"`
	ErrorTrace    string          `json:"errorTrace"`
	HeaderLog     json.RawMessage `json:"headerlog"`
	LogTime       string          `json:"logTime"`
}

// decodeFrame parses the JSON payload between a marker pair and builds the
// canonical record. The marker cid is authoritative: a disagreeing payload
// cid is overridden and reported, not rejected.
func (p *Parser) decodeFrame(payload []byte, markerCid, sourceHint string) (models.Record, frameOutcome) {
	payload = bytes.TrimSpace(payload)

	var wire wireRecord
	if err := json.Unmarshal(payload, &wire); err != nil {
		logging.Warn().
			Str("file", sourceHint).
			Str("correlation_id", markerCid).
			Err(err).
			Msg("frame payload is not valid JSON, rejecting")
		return models.Record{}, frameBadJSON
	}

	outcome := frameOK
	if wire.CorrelationID != "" && wire.CorrelationID != markerCid {
		logging.Warn().
			Str("file", sourceHint).
			Str("marker_cid", markerCid).
			Str("payload_cid", wire.CorrelationID).
			Msg("payload cid disagrees with marker cid, marker wins")
		outcome = frameCidMismatch
	}

	ts, err := models.ParseEventTime(wire.Timestamp)
	if err != nil || wire.Timestamp == "" ||
		wire.APIName == "" || wire.ServiceName == "" || wire.LogLevel == "" {
		logging.Debug().
			Str("file", sourceHint).
			Str("correlation_id", markerCid).
			Msg("frame missing required attributes, rejecting")
		return models.Record{}, frameMissingField
	}

	rec := models.Record{
		CorrelationID: markerCid,
		Timestamp:     ts,
		TimestampRaw:  wire.Timestamp,
		APIName:       wire.APIName,
		ServiceName:   wire.ServiceName,
		LogLevel:      wire.LogLevel,
		SessionID:     wire.SessionID,
		PartyID:       wire.PartyID,
		Type:          wire.Type,
		HasError:      normalizeHasError(wire.HasError),
		DurationMs:    wire.DurationMs,
		URL:           wire.URL,
		Request:       wire.Request,
		Response:      wire.Response,
		ErrorMessage:  wire.ErrorMessage,
		ErrorTrace:    wire.ErrorTrace,
		HeaderLog:     wire.HeaderLog,
		LogTime:       wire.LogTime,
		SourceFile:    sourceHint,
	}
	if err := rec.Validate(); err != nil {
		return models.Record{}, frameMissingField
	}
	return rec, outcome
}

// normalizeHasError maps the upstream hasError value onto the canonical
// tri-valued string. Writers emit either the literal strings "True"/"False"
// or bare JSON booleans; absence stays nil.
func normalizeHasError(raw json.RawMessage) *string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == models.HasErrorTrue || s == models.HasErrorFalse {
			return &s
		}
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		v := models.HasErrorFalse
		if b {
			v = models.HasErrorTrue
		}
		return &v
	}
	return nil
}

// sortedValues returns map values in ascending order. Pending markers are
// keyed by cid, so ordering restores their positional order in the data.
func sortedValues(m map[string]int) []int {
	out := make([]int, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
