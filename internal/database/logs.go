// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"

	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
	"github.com/tomtom215/logflux/internal/models"
)

// ErrNotFound reports a missing correlation id on point lookups.
var ErrNotFound = errors.New("record not in cold store")

// recordColumns is the canonical select list; scanRecord must stay in sync.
const recordColumns = `correlation_id, timestamp, timestamp_raw, api_name,
	service_name, log_level, session_id, party_id, type, has_error,
	duration_ms, url, request, response, header_log, error_message,
	error_trace, log_time, source_file, ingested_at`

const upsertSQL = `INSERT INTO log_entries (
	correlation_id, timestamp, timestamp_raw, api_name, service_name,
	log_level, session_id, party_id, type, has_error, duration_ms, url,
	request, response, header_log, error_message, error_trace, log_time,
	source_file, ingested_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
	$17, $18, $19, $20
)
ON CONFLICT (correlation_id) DO UPDATE SET
	timestamp = EXCLUDED.timestamp,
	timestamp_raw = EXCLUDED.timestamp_raw,
	api_name = EXCLUDED.api_name,
	service_name = EXCLUDED.service_name,
	log_level = EXCLUDED.log_level,
	session_id = EXCLUDED.session_id,
	party_id = EXCLUDED.party_id,
	type = EXCLUDED.type,
	has_error = EXCLUDED.has_error,
	duration_ms = EXCLUDED.duration_ms,
	url = EXCLUDED.url,
	request = EXCLUDED.request,
	response = EXCLUDED.response,
	header_log = EXCLUDED.header_log,
	error_message = EXCLUDED.error_message,
	error_trace = EXCLUDED.error_trace,
	log_time = EXCLUDED.log_time,
	source_file = EXCLUDED.source_file,
	ingested_at = EXCLUDED.ingested_at
WHERE log_entries.ingested_at <= EXCLUDED.ingested_at`

// UpsertBatch writes records idempotently. Replays of the same correlation id
// converge last-write-wins on ingested_at, so at-least-once delivery upstream
// never produces duplicate rows.
func (db *DB) UpsertBatch(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range records {
		r := &records[i]
		batch.Queue(upsertSQL,
			r.CorrelationID, r.Timestamp, r.TimestampRaw, r.APIName,
			r.ServiceName, r.LogLevel, r.SessionID, r.PartyID, r.Type,
			r.HasError, r.DurationMs, r.URL,
			rawOrNil(r.Request), rawOrNil(r.Response), rawOrNil(r.HeaderLog),
			r.ErrorMessage, r.ErrorTrace, r.LogTime, r.SourceFile, r.IngestedAt)
	}

	results := db.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for i := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert %s: %w", records[i].CorrelationID, err)
		}
	}
	metrics.ColdBatchesWritten.Inc()
	return nil
}

// Query returns records matching the filter ordered by timestamp descending
// (correlation id ascending on ties), plus the total match count ignoring
// pagination. The filter must be normalized by the caller.
func (db *DB) Query(ctx context.Context, filter *models.Filter) ([]models.Record, int64, error) {
	where, args := buildFilterConditions(filter, 1)

	var total int64
	countSQL := "SELECT count(*) FROM log_entries WHERE 1=1" + where
	if err := db.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query: %w", err)
	}

	limit, offset := models.DefaultLimit, 0
	if filter != nil {
		limit, offset = filter.Limit, filter.Offset
	}
	querySQL := fmt.Sprintf(`SELECT %s FROM log_entries WHERE 1=1%s
		ORDER BY timestamp DESC, correlation_id ASC
		LIMIT $%d OFFSET $%d`, recordColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := db.pool.Query(ctx, querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select query: %w", err)
	}
	defer rows.Close()

	records := make([]models.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration: %w", err)
	}
	return records, total, nil
}

// GetByCorrelationID fetches one record.
func (db *DB) GetByCorrelationID(ctx context.Context, cid string) (*models.Record, error) {
	sql := fmt.Sprintf("SELECT %s FROM log_entries WHERE correlation_id = $1", recordColumns)
	rows, err := db.pool.Query(ctx, sql, cid)
	if err != nil {
		return nil, fmt.Errorf("point lookup: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteOlderThan removes rows below the retention horizon, returning the
// number deleted. Driven by the daily retention sweeper.
func (db *DB) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx, "DELETE FROM log_entries WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention delete: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		logging.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("retention sweep removed rows")
		return n, nil
	}
	return 0, nil
}

// DistinctFilterOptions returns the distinct indexed attribute values for
// filter dropdowns.
func (db *DB) DistinctFilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	opts := &models.FilterOptions{}
	for _, q := range []struct {
		column string
		dest   *[]string
	}{
		{"api_name", &opts.APINames},
		{"service_name", &opts.ServiceNames},
		{"log_level", &opts.LogLevels},
	} {
		sql := fmt.Sprintf("SELECT DISTINCT %s FROM log_entries WHERE %s <> '' ORDER BY %s",
			q.column, q.column, q.column)
		rows, err := db.pool.Query(ctx, sql)
		if err != nil {
			return nil, fmt.Errorf("distinct %s: %w", q.column, err)
		}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return nil, err
			}
			*q.dest = append(*q.dest, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// scanRecord reads one row in recordColumns order.
func scanRecord(rows pgx.Rows) (models.Record, error) {
	var r models.Record
	var request, response, headerLog []byte
	err := rows.Scan(
		&r.CorrelationID, &r.Timestamp, &r.TimestampRaw, &r.APIName,
		&r.ServiceName, &r.LogLevel, &r.SessionID, &r.PartyID, &r.Type,
		&r.HasError, &r.DurationMs, &r.URL, &request, &response, &headerLog,
		&r.ErrorMessage, &r.ErrorTrace, &r.LogTime, &r.SourceFile,
		&r.IngestedAt)
	if err != nil {
		return models.Record{}, fmt.Errorf("scan record: %w", err)
	}
	r.Timestamp = r.Timestamp.UTC()
	r.IngestedAt = r.IngestedAt.UTC()
	r.Request = json.RawMessage(request)
	r.Response = json.RawMessage(response)
	r.HeaderLog = json.RawMessage(headerLog)
	return r, nil
}

// rawOrNil maps an empty RawMessage to SQL NULL instead of invalid JSONB.
func rawOrNil(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
