// Logflux - Real-Time Log Ingestion, Indexing, and Query Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logflux

package services

import (
	"context"
	"time"

	"github.com/tomtom215/logflux/internal/logging"
)

// sweepInterval is how often the cold retention horizon is enforced. The hot
// tier expires passively through Redis TTLs and needs no sweeper.
const sweepInterval = 24 * time.Hour

// RetentionStore deletes cold records older than the cutoff.
type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionService enforces the cold-store retention horizon once a day.
type RetentionService struct {
	store         RetentionStore
	retentionDays int
	now           func() time.Time
}

// NewRetentionService wires the sweeper. retentionDays <= 0 disables it.
func NewRetentionService(store RetentionStore, retentionDays int) *RetentionService {
	return &RetentionService{store: store, retentionDays: retentionDays, now: time.Now}
}

// Serve implements suture.Service. One sweep runs at startup so a service
// that was down past its schedule catches up immediately.
func (s *RetentionService) Serve(ctx context.Context) error {
	if s.retentionDays <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	s.sweep(ctx)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetentionService) sweep(ctx context.Context) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)
	if _, err := s.store.DeleteOlderThan(ctx, cutoff); err != nil {
		logging.Error().Err(err).Time("cutoff", cutoff).Msg("retention sweep failed")
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *RetentionService) String() string { return "retention-sweeper" }
