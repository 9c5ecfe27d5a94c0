// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package query routes filtered log queries across the hot (Redis) and cold
// (PostgreSQL) tiers.
//
// Planning is driven by the requested time range against the hot retention
// cutoff: ranges fully inside the hot window stay on Redis, ranges fully
// below it go to PostgreSQL, straddling ranges fan out to both tiers in
// parallel and merge. A failing tier degrades the response instead of
// failing it; only both tiers down is an error. Cold queries run behind a
// circuit breaker so a struggling database sheds load fast.
package query

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/logflux/internal/cache"
	"github.com/tomtom215/logflux/internal/config"
	"github.com/tomtom215/logflux/internal/database"
	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
	"github.com/tomtom215/logflux/internal/models"
)

// ErrNotFound reports a correlation id absent from both tiers.
var ErrNotFound = errors.New("record not found")

// ErrAllTiersFailed reports that no tier could answer the query.
var ErrAllTiersFailed = errors.New("all storage tiers failed")

// HotStore is the Redis tier surface the router needs.
type HotStore interface {
	Get(ctx context.Context, cid string) (*models.Record, error)
	Enumerate(ctx context.Context, filter *models.Filter, limit int) ([]models.Record, bool, error)
}

// ColdStore is the PostgreSQL tier surface the router needs.
type ColdStore interface {
	GetByCorrelationID(ctx context.Context, cid string) (*models.Record, error)
	Query(ctx context.Context, filter *models.Filter) ([]models.Record, int64, error)
}

// coldResult carries one cold query through the circuit breaker.
type coldResult struct {
	records []models.Record
	total   int64
}

// Router plans and executes tiered queries.
type Router struct {
	hot     HotStore
	cold    ColdStore
	cfg     config.QueryConfig
	breaker *gobreaker.CircuitBreaker[coldResult]

	// hotCutoff returns the hot/cold boundary for a given now.
	hotCutoff func(time.Time) time.Time
	now       func() time.Time
}

// New builds a Router. cutoff is Config.HotCutoff.
func New(hot HotStore, cold ColdStore, cfg config.QueryConfig, cutoff func(time.Time) time.Time) *Router {
	breaker := gobreaker.NewCircuitBreaker[coldResult](gobreaker.Settings{
		Name:    "cold-store",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return &Router{
		hot:       hot,
		cold:      cold,
		cfg:       cfg,
		breaker:   breaker,
		hotCutoff: cutoff,
		now:       time.Now,
	}
}

// PlanFor selects the tiers for a filter.
func (r *Router) PlanFor(filter *models.Filter) models.QueryPlan {
	if filter.CorrelationID != "" {
		return models.PlanAuto
	}
	if filter.StartDate == nil && filter.EndDate == nil {
		if r.cfg.NoRangeBoth {
			return models.PlanBoth
		}
		return models.PlanHotOnly
	}

	cutoff := r.hotCutoff(r.now().UTC())
	if filter.StartDate != nil && !filter.StartDate.Before(cutoff) {
		return models.PlanHotOnly
	}
	if filter.EndDate != nil && filter.EndDate.Before(cutoff) {
		return models.PlanColdOnly
	}
	return models.PlanBoth
}

// Lookup fetches one record by correlation id, hot tier first.
func (r *Router) Lookup(ctx context.Context, cid string) (*models.Record, bool, error) {
	rec, err := r.hot.Get(ctx, cid)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logging.Warn().Err(err).Msg("hot-store lookup failed, falling through")
	}

	res, err := r.breaker.Execute(func() (coldResult, error) {
		rec, err := r.cold.GetByCorrelationID(ctx, cid)
		if errors.Is(err, database.ErrNotFound) {
			// A miss is an answer, not a breaker failure.
			return coldResult{}, nil
		}
		if err != nil {
			return coldResult{}, err
		}
		return coldResult{records: []models.Record{*rec}}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if len(res.records) == 0 {
		return nil, false, ErrNotFound
	}
	return &res.records[0], false, nil
}

// Execute runs a filtered query per its plan. The filter must be normalized.
func (r *Router) Execute(ctx context.Context, filter *models.Filter) (*models.QueryResult, error) {
	plan := r.PlanFor(filter)
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(plan.String()).Observe(time.Since(start).Seconds())
	}()

	var result *models.QueryResult
	var err error
	switch plan {
	case models.PlanHotOnly:
		result, err = r.executeHot(ctx, filter)
	case models.PlanColdOnly:
		result, err = r.executeCold(ctx, filter)
	case models.PlanBoth:
		result, err = r.executeBoth(ctx, filter)
	default:
		result, err = r.executeAuto(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	if result.Degraded {
		metrics.QueriesDegraded.Inc()
	}
	return result, nil
}

// executeHot answers from Redis, falling back to the cold tier (degraded)
// when Redis is unreachable.
func (r *Router) executeHot(ctx context.Context, filter *models.Filter) (*models.QueryResult, error) {
	records, _, err := r.hot.Enumerate(ctx, filter, 0)
	if err != nil {
		cold, coldErr := r.executeCold(ctx, filter)
		if coldErr != nil {
			return nil, ErrAllTiersFailed
		}
		cold.Degraded = true
		return cold, nil
	}
	total := int64(len(records))
	return &models.QueryResult{
		Logs:      paginate(records, filter),
		Total:     total,
		FromCache: true,
	}, nil
}

// executeCold answers from PostgreSQL through the circuit breaker.
func (r *Router) executeCold(ctx context.Context, filter *models.Filter) (*models.QueryResult, error) {
	res, err := r.breaker.Execute(func() (coldResult, error) {
		records, total, err := r.cold.Query(ctx, filter)
		return coldResult{records: records, total: total}, err
	})
	if err != nil {
		return nil, err
	}
	return &models.QueryResult{
		Logs:   res.records,
		Total:  res.total,
		FromDB: true,
	}, nil
}

// executeAuto answers from the hot tier alone when it can fill the page and
// widens to the cold tier otherwise.
func (r *Router) executeAuto(ctx context.Context, filter *models.Filter) (*models.QueryResult, error) {
	hotRecords, _, hotErr := r.hot.Enumerate(ctx, filter, 0)
	if hotErr == nil && len(hotRecords) >= filter.Offset+filter.Limit {
		return &models.QueryResult{
			Logs:      paginate(hotRecords, filter),
			Total:     int64(len(hotRecords)),
			FromCache: true,
		}, nil
	}

	coldFilter := *filter
	coldFilter.Limit = filter.Offset + filter.Limit
	coldFilter.Offset = 0
	res, coldErr := r.breaker.Execute(func() (coldResult, error) {
		records, total, err := r.cold.Query(ctx, &coldFilter)
		return coldResult{records: records, total: total}, err
	})

	if hotErr != nil && coldErr != nil {
		return nil, ErrAllTiersFailed
	}
	if coldErr != nil {
		// Underfilled hot page is still an answer when the cold tier is down.
		return &models.QueryResult{
			Logs:      paginate(hotRecords, filter),
			Total:     int64(len(hotRecords)),
			FromCache: true,
			Degraded:  true,
		}, nil
	}

	merged := merge(hotRecords, res.records)
	total := res.total
	if t := int64(len(merged)); t > total {
		total = t
	}
	return &models.QueryResult{
		Logs:      paginate(merged, filter),
		Total:     total,
		FromCache: hotErr == nil,
		FromDB:    true,
		Degraded:  hotErr != nil,
	}, nil
}

// executeBoth queries the tiers in parallel and merges, preferring the hot
// copy of a correlation id (it is at least as fresh). One failed tier yields
// a partial, degraded result.
func (r *Router) executeBoth(ctx context.Context, filter *models.Filter) (*models.QueryResult, error) {
	// The cold page must cover the requested window before the post-merge
	// pagination cut.
	coldFilter := *filter
	coldFilter.Limit = filter.Offset + filter.Limit
	coldFilter.Offset = 0

	var (
		wg          sync.WaitGroup
		hotRecords  []models.Record
		hotErr      error
		coldRecords []models.Record
		coldTotal   int64
		coldErr     error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		hotRecords, _, hotErr = r.hot.Enumerate(ctx, filter, 0)
	}()
	go func() {
		defer wg.Done()
		var res coldResult
		res, coldErr = r.breaker.Execute(func() (coldResult, error) {
			records, total, err := r.cold.Query(ctx, &coldFilter)
			return coldResult{records: records, total: total}, err
		})
		coldRecords, coldTotal = res.records, res.total
	}()
	wg.Wait()

	if hotErr != nil && coldErr != nil {
		return nil, ErrAllTiersFailed
	}

	merged := merge(hotRecords, coldRecords)
	total := coldTotal
	if t := int64(len(merged)); t > total {
		total = t
	}
	return &models.QueryResult{
		Logs:      paginate(merged, filter),
		Total:     total,
		FromCache: hotErr == nil,
		FromDB:    coldErr == nil,
		Degraded:  hotErr != nil || coldErr != nil,
	}, nil
}

// merge deduplicates by correlation id, hot copy winning, and restores the
// global order: timestamp descending, correlation id ascending.
func merge(hot, cold []models.Record) []models.Record {
	seen := make(map[string]struct{}, len(hot))
	merged := make([]models.Record, 0, len(hot)+len(cold))
	for _, rec := range hot {
		seen[rec.CorrelationID] = struct{}{}
		merged = append(merged, rec)
	}
	for _, rec := range cold {
		if _, dup := seen[rec.CorrelationID]; !dup {
			merged = append(merged, rec)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.After(merged[j].Timestamp)
		}
		return merged[i].CorrelationID < merged[j].CorrelationID
	})
	return merged
}

// paginate applies offset/limit after dedup so pages never repeat records.
func paginate(records []models.Record, filter *models.Filter) []models.Record {
	offset, limit := filter.Offset, filter.Limit
	if offset >= len(records) {
		return []models.Record{}
	}
	end := offset + limit
	if limit <= 0 || end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}
