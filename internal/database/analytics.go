// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package database

import (
	"context"
	"fmt"
	"time"
)

// Counts is a raw total/error pair over some window. Rate math (and its
// rounding) happens in the aggregator, not here.
type Counts struct {
	Total  int64
	Errors int64
}

// DayCount is one bucket of the logs-per-day series.
type DayCount struct {
	Date   string `json:"date"` // YYYY-MM-DD, UTC buckets
	Total  int64  `json:"total"`
	Errors int64  `json:"errors"`
}

// GroupCount is a generic (name, count) aggregation row.
type GroupCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// ErrorGroup is an error rollup bucket by api and service.
type ErrorGroup struct {
	APIName     string `json:"api_name"`
	ServiceName string `json:"service_name"`
	Count       int64  `json:"count"`
}

// DurationStats summarizes duration_ms over rows where it is present.
type DurationStats struct {
	Count int64   `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
}

// URLTiming is one row of the slowest-URL rollup.
type URLTiming struct {
	URL   string  `json:"url"`
	AvgMs float64 `json:"avg_ms"`
	MaxMs int64   `json:"max_ms"`
	Count int64   `json:"count"`
}

// ServiceTiming is one row of the slowest-service rollup.
type ServiceTiming struct {
	ServiceName string  `json:"service_name"`
	AvgMs       float64 `json:"avg_ms"`
	MaxMs       int64   `json:"max_ms"`
	Count       int64   `json:"count"`
}

// windowClause renders an optional lower time bound as SQL.
func windowClause(since *time.Time) (string, []interface{}) {
	if since == nil {
		return "", nil
	}
	return " AND timestamp >= $1", []interface{}{*since}
}

// CountLogs returns total and error counts, optionally bounded below by since.
func (db *DB) CountLogs(ctx context.Context, since *time.Time) (Counts, error) {
	where, args := windowClause(since)
	sql := fmt.Sprintf(`SELECT count(*),
		count(*) FILTER (WHERE %s)
		FROM log_entries WHERE 1=1%s`, errorPredicate, where)

	var c Counts
	if err := db.pool.QueryRow(ctx, sql, args...).Scan(&c.Total, &c.Errors); err != nil {
		return Counts{}, fmt.Errorf("count logs: %w", err)
	}
	return c, nil
}

// LogsPerDay returns daily buckets for the last days days, oldest first.
// Days with no rows are absent; the aggregator fills gaps for charting.
func (db *DB) LogsPerDay(ctx context.Context, days int) ([]DayCount, error) {
	sql := fmt.Sprintf(`SELECT
		to_char(date_trunc('day', timestamp AT TIME ZONE 'UTC'), 'YYYY-MM-DD'),
		count(*),
		count(*) FILTER (WHERE %s)
		FROM log_entries
		WHERE timestamp >= now() - ($1 * interval '1 day')
		GROUP BY 1 ORDER BY 1`, errorPredicate)

	rows, err := db.pool.Query(ctx, sql, days)
	if err != nil {
		return nil, fmt.Errorf("logs per day: %w", err)
	}
	defer rows.Close()

	var series []DayCount
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Date, &d.Total, &d.Errors); err != nil {
			return nil, err
		}
		series = append(series, d)
	}
	return series, rows.Err()
}

// ErrorBreakdown groups errors by api and service, most frequent first.
func (db *DB) ErrorBreakdown(ctx context.Context, since *time.Time, limit int) ([]ErrorGroup, error) {
	where, args := windowClause(since)
	args = append(args, limit)
	sql := fmt.Sprintf(`SELECT api_name, service_name, count(*)
		FROM log_entries
		WHERE %s%s
		GROUP BY api_name, service_name
		ORDER BY count(*) DESC, api_name ASC
		LIMIT $%d`, errorPredicate, where, len(args))

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error breakdown: %w", err)
	}
	defer rows.Close()

	var groups []ErrorGroup
	for rows.Next() {
		var g ErrorGroup
		if err := rows.Scan(&g.APIName, &g.ServiceName, &g.Count); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// TopByColumn counts rows grouped by one indexed column, most frequent first.
// column must come from the fixed set used by the aggregator, never from
// request input.
func (db *DB) TopByColumn(ctx context.Context, column string, since *time.Time, limit int) ([]GroupCount, error) {
	switch column {
	case "api_name", "service_name", "log_level", "url", "error_message":
	default:
		return nil, fmt.Errorf("unsupported aggregation column %q", column)
	}

	where, args := windowClause(since)
	args = append(args, limit)
	sql := fmt.Sprintf(`SELECT %s, count(*)
		FROM log_entries
		WHERE %s <> ''%s
		GROUP BY %s
		ORDER BY count(*) DESC, %s ASC
		LIMIT $%d`, column, column, where, column, column, len(args))

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("top by %s: %w", column, err)
	}
	defer rows.Close()

	var out []GroupCount
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Name, &g.Count); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Durations summarizes duration_ms over rows that carry one.
func (db *DB) Durations(ctx context.Context, since *time.Time) (DurationStats, error) {
	where, args := windowClause(since)
	sql := `SELECT count(duration_ms),
		coalesce(avg(duration_ms), 0),
		coalesce(min(duration_ms), 0),
		coalesce(max(duration_ms), 0)
		FROM log_entries WHERE duration_ms IS NOT NULL` + where

	var d DurationStats
	err := db.pool.QueryRow(ctx, sql, args...).Scan(&d.Count, &d.AvgMs, &d.MinMs, &d.MaxMs)
	if err != nil {
		return DurationStats{}, fmt.Errorf("duration stats: %w", err)
	}
	return d, nil
}

// SlowestServices returns the limit services with the highest average
// duration. Only rows carrying a duration participate.
func (db *DB) SlowestServices(ctx context.Context, since *time.Time, limit int) ([]ServiceTiming, error) {
	where, args := windowClause(since)
	args = append(args, limit)
	sql := fmt.Sprintf(`SELECT service_name, avg(duration_ms), max(duration_ms), count(*)
		FROM log_entries
		WHERE duration_ms IS NOT NULL%s
		GROUP BY service_name
		ORDER BY avg(duration_ms) DESC
		LIMIT $%d`, where, len(args))

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("slowest services: %w", err)
	}
	defer rows.Close()

	var out []ServiceTiming
	for rows.Next() {
		var s ServiceTiming
		if err := rows.Scan(&s.ServiceName, &s.AvgMs, &s.MaxMs, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SlowestURLs returns the limit URLs with the highest average duration.
func (db *DB) SlowestURLs(ctx context.Context, since *time.Time, limit int) ([]URLTiming, error) {
	where, args := windowClause(since)
	args = append(args, limit)
	sql := fmt.Sprintf(`SELECT url, avg(duration_ms), max(duration_ms), count(*)
		FROM log_entries
		WHERE duration_ms IS NOT NULL AND url <> ''%s
		GROUP BY url
		ORDER BY avg(duration_ms) DESC
		LIMIT $%d`, where, len(args))

	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("slowest urls: %w", err)
	}
	defer rows.Close()

	var out []URLTiming
	for rows.Next() {
		var u URLTiming
		if err := rows.Scan(&u.URL, &u.AvgMs, &u.MaxMs, &u.Count); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
