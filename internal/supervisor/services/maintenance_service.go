// AuthShield - Continuous Authentication Risk Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authshield

package services

import (
	"context"
	"time"

	"github.com/tomtom215/authshield/internal/logging"
)

// ValueLogGC matches the badger store's garbage collection loop.
type ValueLogGC interface {
	RunGC(ctx context.Context, interval time.Duration)
}

// GCService runs badger value-log garbage collection under supervision.
type GCService struct {
	store    ValueLogGC
	interval time.Duration
}

// NewGCService wraps the badger GC loop as a supervised service.
func NewGCService(store ValueLogGC, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (s *GCService) Serve(ctx context.Context) error {
	s.store.RunGC(ctx, s.interval)
	return ctx.Err()
}

// String implements fmt.Stringer for supervisor log messages.
func (s *GCService) String() string { return "badger-gc" }

// Pruner matches the analytical store's retention pruning.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) error
}

// RetentionService periodically deletes behavioral samples and location
// history older than the retention window. Alerts are kept; they are the
// audit trail.
type RetentionService struct {
	store     Pruner
	retention time.Duration
	interval  time.Duration
}

// NewRetentionService wraps retention pruning as a supervised service.
// retention is how long rows live; interval is how often pruning runs.
func NewRetentionService(store Pruner, retention, interval time.Duration) *RetentionService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionService{store: store, retention: retention, interval: interval}
}

// Serve implements suture.Service. A retention of zero disables pruning
// but keeps the service parked so the supervisor does not restart it.
func (s *RetentionService) Serve(ctx context.Context) error {
	if s.retention <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().Add(-s.retention)
			if err := s.store.Prune(ctx, cutoff); err != nil {
				logging.Warn().Err(err).Time("cutoff", cutoff).Msg("retention prune failed")
				continue
			}
			logging.Debug().Time("cutoff", cutoff).Msg("retention prune completed")
		}
	}
}

// String implements fmt.Stringer for supervisor log messages.
func (s *RetentionService) String() string { return "retention-pruner" }
