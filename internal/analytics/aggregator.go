// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package analytics computes the aggregate views served under /analytics.
//
// Heavy lifting happens in cold-store SQL; this package owns the derived
// math (rates, rounding, gap filling) and the short-TTL result cache so
// dashboards polling the same windows do not hammer PostgreSQL. Percentages
// are rounded half-up to two decimals and every division by zero yields 0.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/logflux/internal/cache"
	"github.com/tomtom215/logflux/internal/database"
	"github.com/tomtom215/logflux/internal/models"
)

// Aggregate query limits.
const (
	topErrorsLimit   = 5
	topAPIsLimit     = 5
	breakdownLimit   = 20
	slowestURLsLimit = 10
	heatMapLimit     = 50
	defaultChartDays = 30
)

// ColdAggregates is the cold-store surface the aggregator needs.
type ColdAggregates interface {
	CountLogs(ctx context.Context, since *time.Time) (database.Counts, error)
	LogsPerDay(ctx context.Context, days int) ([]database.DayCount, error)
	ErrorBreakdown(ctx context.Context, since *time.Time, limit int) ([]database.ErrorGroup, error)
	TopByColumn(ctx context.Context, column string, since *time.Time, limit int) ([]database.GroupCount, error)
	Durations(ctx context.Context, since *time.Time) (database.DurationStats, error)
	SlowestServices(ctx context.Context, since *time.Time, limit int) ([]database.ServiceTiming, error)
	SlowestURLs(ctx context.Context, since *time.Time, limit int) ([]database.URLTiming, error)
}

// HotWindow enumerates hot-tier records so counts over short trailing
// windows can skip PostgreSQL entirely. Optional.
type HotWindow interface {
	Enumerate(ctx context.Context, filter *models.Filter, limit int) ([]models.Record, bool, error)
}

// ResultCache is the query-result cache surface (hot store), optional.
type ResultCache interface {
	GetQueryResult(ctx context.Context, key string, dest interface{}) bool
	SetQueryResult(ctx context.Context, key string, value interface{}, ttl time.Duration)
}

// Aggregator serves the /analytics views.
type Aggregator struct {
	cold    ColdAggregates
	hot     HotWindow
	results ResultCache
	ttl     time.Duration
	now     func() time.Time
}

// New builds an Aggregator. hot and results may be nil; without them every
// window is answered by the cold store and nothing is cached.
func New(cold ColdAggregates, hot HotWindow, results ResultCache, ttl time.Duration) *Aggregator {
	return &Aggregator{cold: cold, hot: hot, results: results, ttl: ttl, now: time.Now}
}

// Overview is the headline rollup.
type Overview struct {
	TotalLogs   int64   `json:"total_logs"`
	SuccessLogs int64   `json:"success_logs"`
	ErrorLogs   int64   `json:"error_logs"`
	SuccessRate float64 `json:"success_rate"`
	LogsToday   int64   `json:"logs_today"`
	Logs24h     int64   `json:"logs_24h"`
}

// Summary is the dashboard landing payload.
type Summary struct {
	Last24h   WindowCounts          `json:"last_24h"`
	Last7d    WindowCounts          `json:"last_7d"`
	TopErrors []database.GroupCount `json:"top_errors"`
	TopAPIs   []database.GroupCount `json:"top_apis"`
}

// WindowCounts is one summary window with its derived rates.
type WindowCounts struct {
	TotalLogs   int64   `json:"total_logs"`
	ErrorLogs   int64   `json:"error_logs"`
	SuccessRate float64 `json:"success_rate"`
}

// Performance is the duration rollup.
type Performance struct {
	Count           int64                    `json:"count"`
	AvgMs           float64                  `json:"avg_ms"`
	MinMs           int64                    `json:"min_ms"`
	MaxMs           int64                    `json:"max_ms"`
	SlowestServices []database.ServiceTiming `json:"slowest_services"`
	SlowestURLs     []database.URLTiming     `json:"slowest_urls"`
}

// Stats counts the full history from the cold store. It backs
// /analytics/stats and seeds the broadcaster's rolling counters at startup;
// the per-tick heartbeat never calls it.
func (a *Aggregator) Stats(ctx context.Context) (*models.StatsSnapshot, error) {
	counts, err := a.cold.CountLogs(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &models.StatsSnapshot{
		TotalLogs:   counts.Total,
		SuccessLogs: counts.Total - counts.Errors,
		ErrorLogs:   counts.Errors,
		SuccessRate: successRate(counts),
		LastUpdated: a.now().UTC(),
	}, nil
}

// GetOverview returns the headline rollup.
func (a *Aggregator) GetOverview(ctx context.Context) (*Overview, error) {
	var out Overview
	hit, save := a.cached(ctx, &out, "overview")
	if hit {
		return &out, nil
	}

	now := a.now().UTC()
	all, err := a.cold.CountLogs(ctx, nil)
	if err != nil {
		return nil, err
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := a.windowCount(ctx, midnight)
	if err != nil {
		return nil, err
	}
	dayAgo := now.Add(-24 * time.Hour)
	last24, err := a.windowCount(ctx, dayAgo)
	if err != nil {
		return nil, err
	}

	out = Overview{
		TotalLogs:   all.Total,
		SuccessLogs: all.Total - all.Errors,
		ErrorLogs:   all.Errors,
		SuccessRate: successRate(all),
		LogsToday:   today.Total,
		Logs24h:     last24.Total,
	}
	save(&out)
	return &out, nil
}

// GetSummary returns the 24 h / 7 d windows plus the top error and api lists.
func (a *Aggregator) GetSummary(ctx context.Context) (*Summary, error) {
	var out Summary
	hit, save := a.cached(ctx, &out, "summary")
	if hit {
		return &out, nil
	}

	now := a.now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	weekAgo := now.AddDate(0, 0, -7)

	last24, err := a.windowCount(ctx, dayAgo)
	if err != nil {
		return nil, err
	}
	last7d, err := a.cold.CountLogs(ctx, &weekAgo)
	if err != nil {
		return nil, err
	}
	topErrors, err := a.cold.TopByColumn(ctx, "error_message", &weekAgo, topErrorsLimit)
	if err != nil {
		return nil, err
	}
	topAPIs, err := a.cold.TopByColumn(ctx, "api_name", &weekAgo, topAPIsLimit)
	if err != nil {
		return nil, err
	}

	out = Summary{
		Last24h:   windowCounts(last24),
		Last7d:    windowCounts(last7d),
		TopErrors: topErrors,
		TopAPIs:   topAPIs,
	}
	save(&out)
	return &out, nil
}

// GetLogsPerDay returns one bucket per calendar day for the trailing window,
// zero-filled so charts have no holes.
func (a *Aggregator) GetLogsPerDay(ctx context.Context, days int) ([]database.DayCount, error) {
	if days <= 0 {
		days = defaultChartDays
	}
	var out []database.DayCount
	hit, save := a.cached(ctx, &out, "logs-per-day", fmt.Sprint(days))
	if hit {
		return out, nil
	}

	series, err := a.cold.LogsPerDay(ctx, days)
	if err != nil {
		return nil, err
	}
	out = fillDayGaps(series, a.now().UTC(), days)
	save(&out)
	return out, nil
}

// GetErrorBreakdown groups the trailing week's errors by api and service.
func (a *Aggregator) GetErrorBreakdown(ctx context.Context) ([]database.ErrorGroup, error) {
	var out []database.ErrorGroup
	hit, save := a.cached(ctx, &out, "error-breakdown")
	if hit {
		return out, nil
	}
	weekAgo := a.now().UTC().AddDate(0, 0, -7)
	groups, err := a.cold.ErrorBreakdown(ctx, &weekAgo, breakdownLimit)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []database.ErrorGroup{}
	}
	out = groups
	save(&out)
	return out, nil
}

// GetErrorDistribution groups errors by api and service.
func (a *Aggregator) GetErrorDistribution(ctx context.Context) ([]database.ErrorGroup, error) {
	var out []database.ErrorGroup
	hit, save := a.cached(ctx, &out, "error-distribution")
	if hit {
		return out, nil
	}
	groups, err := a.cold.ErrorBreakdown(ctx, nil, breakdownLimit)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []database.ErrorGroup{}
	}
	out = groups
	save(&out)
	return out, nil
}

// GetPerformance returns the duration rollup plus the slowest URLs.
func (a *Aggregator) GetPerformance(ctx context.Context) (*Performance, error) {
	var out Performance
	hit, save := a.cached(ctx, &out, "performance")
	if hit {
		return &out, nil
	}

	durations, err := a.cold.Durations(ctx, nil)
	if err != nil {
		return nil, err
	}
	slowestServices, err := a.cold.SlowestServices(ctx, nil, slowestURLsLimit)
	if err != nil {
		return nil, err
	}
	slowestURLs, err := a.cold.SlowestURLs(ctx, nil, slowestURLsLimit)
	if err != nil {
		return nil, err
	}

	out = Performance{
		Count:           durations.Count,
		AvgMs:           roundHalfUp2(durations.AvgMs),
		MinMs:           durations.MinMs,
		MaxMs:           durations.MaxMs,
		SlowestServices: roundServiceTimings(slowestServices),
		SlowestURLs:     roundTimings(slowestURLs),
	}
	save(&out)
	return &out, nil
}

// GetTopResponseTimeURLs returns the n slowest URLs by average duration.
func (a *Aggregator) GetTopResponseTimeURLs(ctx context.Context, n int) ([]database.URLTiming, error) {
	if n <= 0 {
		n = slowestURLsLimit
	}
	var out []database.URLTiming
	hit, save := a.cached(ctx, &out, "top-response-time-urls", fmt.Sprint(n))
	if hit {
		return out, nil
	}
	slowest, err := a.cold.SlowestURLs(ctx, nil, n)
	if err != nil {
		return nil, err
	}
	out = roundTimings(slowest)
	save(&out)
	return out, nil
}

// GetURLHeatMap returns request frequency by URL.
func (a *Aggregator) GetURLHeatMap(ctx context.Context) ([]database.GroupCount, error) {
	var out []database.GroupCount
	hit, save := a.cached(ctx, &out, "url-heat-map")
	if hit {
		return out, nil
	}
	urls, err := a.cold.TopByColumn(ctx, "url", nil, heatMapLimit)
	if err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []database.GroupCount{}
	}
	out = urls
	save(&out)
	return out, nil
}

// cached loads a cached result into dest when present; otherwise it returns
// a save callback for the freshly computed value.
func (a *Aggregator) cached(ctx context.Context, dest interface{}, keyParts ...string) (bool, func(interface{})) {
	if a.results == nil {
		return false, func(interface{}) {}
	}
	key := cache.QueryResultKey(keyParts...)
	if a.results.GetQueryResult(ctx, key, dest) {
		return true, nil
	}
	return false, func(v interface{}) {
		a.results.SetQueryResult(ctx, key, v, a.ttl)
	}
}

// windowCount counts records since the bound, preferring a hot-tier scan for
// windows inside the retention horizon. A truncated or failed scan falls back
// to the cold store so counts never silently come up short.
func (a *Aggregator) windowCount(ctx context.Context, since time.Time) (database.Counts, error) {
	if a.hot != nil {
		filter := &models.Filter{StartDate: &since}
		records, truncated, err := a.hot.Enumerate(ctx, filter, 0)
		if err == nil && !truncated {
			var c database.Counts
			c.Total = int64(len(records))
			for i := range records {
				if records[i].IsError() {
					c.Errors++
				}
			}
			return c, nil
		}
	}
	return a.cold.CountLogs(ctx, &since)
}

// windowCounts derives the per-window rates.
func windowCounts(c database.Counts) WindowCounts {
	return WindowCounts{
		TotalLogs:   c.Total,
		ErrorLogs:   c.Errors,
		SuccessRate: successRate(c),
	}
}

// successRate is the success percentage; an empty window is 0, not NaN.
func successRate(c database.Counts) float64 {
	if c.Total == 0 {
		return 0
	}
	return roundHalfUp2(float64(c.Total-c.Errors) / float64(c.Total) * 100)
}

// roundHalfUp2 rounds half-up to two decimals.
func roundHalfUp2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

// roundTimings normalizes average durations for display.
func roundTimings(timings []database.URLTiming) []database.URLTiming {
	out := make([]database.URLTiming, len(timings))
	for i, t := range timings {
		t.AvgMs = roundHalfUp2(t.AvgMs)
		out[i] = t
	}
	return out
}

// roundServiceTimings normalizes average durations for display.
func roundServiceTimings(timings []database.ServiceTiming) []database.ServiceTiming {
	out := make([]database.ServiceTiming, len(timings))
	for i, t := range timings {
		t.AvgMs = roundHalfUp2(t.AvgMs)
		out[i] = t
	}
	return out
}

// fillDayGaps expands a sparse day series to one bucket per calendar day
// ending today, oldest first.
func fillDayGaps(series []database.DayCount, now time.Time, days int) []database.DayCount {
	byDate := make(map[string]database.DayCount, len(series))
	for _, d := range series {
		byDate[d.Date] = d
	}

	out := make([]database.DayCount, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		if d, ok := byDate[date]; ok {
			out = append(out, d)
		} else {
			out = append(out, database.DayCount{Date: date})
		}
	}
	return out
}
