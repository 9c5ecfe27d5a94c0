// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

// Package cache implements the hot storage tier on Redis.
//
// Records live under log:<cid> with a TTL equal to the hot retention window;
// expiry is passive. The same client doubles as the query-result cache for
// analytics endpoints (query:<hash>, short TTL).
//
// The hot tier is allowed to be down. Writes return ErrCacheUnavailable,
// which callers treat as non-fatal; reads return empty results with a
// warning so the query router falls through to the cold tier. go-redis
// reconnects in the background with its own backoff, so no reconnect
// machinery lives here.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/logflux/internal/config"
	"github.com/tomtom215/logflux/internal/logging"
	"github.com/tomtom215/logflux/internal/metrics"
	"github.com/tomtom215/logflux/internal/models"
)

const (
	logKeyPrefix   = "log:"
	queryKeyPrefix = "query:"

	// scanBatch is the COUNT hint for SCAN; MGET runs per scan batch.
	scanBatch = 512
)

// Sentinel errors.
var (
	// ErrCacheUnavailable wraps any Redis transport failure. Non-fatal by
	// contract: the pipeline continues to the cold store.
	ErrCacheUnavailable = errors.New("hot store unavailable")

	// ErrNotFound reports a missing key on Get.
	ErrNotFound = errors.New("record not in hot store")
)

// Store is the Redis-backed hot tier.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	cap    int // enumeration cap
}

// New connects a Store. The connection is verified lazily; a dead Redis at
// boot degrades reads/writes instead of failing startup.
func New(cfg config.RedisConfig, hot config.CacheConfig) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Username:     cfg.User,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		MaxRetries:   3,
	})
	return NewWithClient(client, hot)
}

// NewWithClient wraps an existing client; tests hand in miniredis here.
func NewWithClient(client *redis.Client, hot config.CacheConfig) *Store {
	ttl := time.Duration(hot.RetentionDays) * 24 * time.Hour
	cap := hot.EnumerationCap
	if cap <= 0 {
		cap = 10000
	}
	return &Store{client: client, ttl: ttl, cap: cap}
}

// Ping checks connectivity, for /health.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

// Put stores a record under its correlation id with the retention TTL.
func (s *Store) Put(ctx context.Context, rec *models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.CorrelationID, err)
	}
	if err := s.client.Set(ctx, logKeyPrefix+rec.CorrelationID, data, s.ttl).Err(); err != nil {
		metrics.CacheUnavailable.Inc()
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Get fetches one record by correlation id.
func (s *Store) Get(ctx context.Context, cid string) (*models.Record, error) {
	data, err := s.client.Get(ctx, logKeyPrefix+cid).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt hot-store entry %s: %w", cid, err)
	}
	return &rec, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, cid string) error {
	if err := s.client.Del(ctx, logKeyPrefix+cid).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Count returns the number of records currently in the hot tier.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var total int64
	iter := s.client.Scan(ctx, 0, logKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		total++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return total, nil
}

// Enumerate returns records matching the filter, sorted by timestamp
// descending (correlation id ascending on ties) and truncated to limit.
// The scan itself is capped at the store's enumeration cap; truncated
// reports whether that cap cut the scan short.
//
// On transport failure it returns an empty slice and logs a warning so the
// query router degrades to the cold tier.
func (s *Store) Enumerate(ctx context.Context, filter *models.Filter, limit int) (records []models.Record, truncated bool, err error) {
	scanned := 0
	var batch []string

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		values, err := s.client.MGet(ctx, batch...).Result()
		batch = batch[:0]
		if err != nil {
			return err
		}
		for _, v := range values {
			str, ok := v.(string)
			if !ok {
				continue // key expired between SCAN and MGET
			}
			var rec models.Record
			if err := json.Unmarshal([]byte(str), &rec); err != nil {
				logging.Warn().Err(err).Msg("skipping corrupt hot-store entry")
				continue
			}
			if filter == nil || filter.Matches(&rec) {
				records = append(records, rec)
			}
		}
		return nil
	}

	iter := s.client.Scan(ctx, 0, logKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		if scanned >= s.cap {
			truncated = true
			break
		}
		scanned++
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := flush(); err != nil {
				logging.Warn().Err(err).Msg("hot-store enumeration failed mid-scan")
				return nil, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		logging.Warn().Err(err).Msg("hot-store enumeration failed")
		return nil, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if err := flush(); err != nil {
		logging.Warn().Err(err).Msg("hot-store enumeration failed")
		return nil, false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	sortRecords(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
		truncated = true
	}
	return records, truncated, nil
}

// sortRecords orders by timestamp descending, correlation id ascending.
func sortRecords(records []models.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].CorrelationID < records[j].CorrelationID
	})
}

// QueryResultKey derives the query-result cache key for an arbitrary
// request shape.
func QueryResultKey(parts ...string) string {
	h := sha1.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return queryKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// SetQueryResult caches a serialized result under key with ttl.
// Failures are swallowed: a cold query-result cache only costs latency.
func (s *Store) SetQueryResult(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logging.Debug().Err(err).Msg("query-result cache set failed")
	}
}

// GetQueryResult loads a cached result into dest, reporting whether it hit.
func (s *Store) GetQueryResult(ctx context.Context, key string, dest interface{}) bool {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}
