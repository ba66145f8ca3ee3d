// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Collector is the maintenance hook of a storage backend. Implemented by
// storage.Badger; backends without value-log garbage collection do not
// register this service.
type Collector interface {
	RunGC() error
}

// GCService periodically runs storage garbage collection.
type GCService struct {
	collector Collector
	interval  time.Duration
	logger    zerolog.Logger
}

// NewGCService creates the GC loop. Interval defaults to 10 minutes.
func NewGCService(collector Collector, interval time.Duration, logger zerolog.Logger) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{
		collector: collector,
		interval:  interval,
		logger:    logger.With().Str("component", "storage-gc").Logger(),
	}
}

// Serve implements suture.Service.
func (g *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := g.collector.RunGC(); err != nil {
				g.logger.Warn().Err(err).Msg("Value log GC failed")
			}
		}
	}
}

// String identifies the service in suture log events.
func (g *GCService) String() string { return "storage-gc" }
