// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"github.com/selvedge/tessera/internal/engine"
	"github.com/selvedge/tessera/internal/metrics"
)

// Rebuilder recomputes one tenant's stats from storage. The stats store
// implements it.
type Rebuilder interface {
	Rebuild(ctx context.Context, tenant string, cfg *engine.TenantConfig, store engine.Store) error
}

// ConsumerOptions tunes deferred-lane batching.
type ConsumerOptions struct {
	// BatchSize triggers a flush once this many events are pending.
	BatchSize int
	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration
}

// Consumer is the deferred ingestion lane: it drains TopicDeferred, coalesces
// events per tenant, and rebuilds each dirty tenant's stats at most once per
// flush. Implements suture.Service via Serve.
type Consumer struct {
	sub     message.Subscriber
	store   engine.Store
	tenants engine.TenantRegistry
	stats   Rebuilder
	opts    ConsumerOptions
	logger  zerolog.Logger

	mu      sync.Mutex
	dirty   map[string]struct{}
	pending int
	kick    chan struct{}
}

// NewConsumer wires the deferred lane.
func NewConsumer(sub message.Subscriber, store engine.Store, tenants engine.TenantRegistry, stats Rebuilder, opts ConsumerOptions, logger zerolog.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 256
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	return &Consumer{
		sub:     sub,
		store:   store,
		tenants: tenants,
		stats:   stats,
		opts:    opts,
		logger:  logger.With().Str("component", "deferred").Logger(),
		dirty:   make(map[string]struct{}),
		kick:    make(chan struct{}, 1),
	}
}

// Serve runs the consumer until the context is cancelled. A Watermill router
// feeds the batcher; the batcher goroutine flushes on size or interval.
func (c *Consumer) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{}, newWatermillLogger(c.logger))
	if err != nil {
		return err
	}
	router.AddMiddleware(middleware.Recoverer)
	router.AddNoPublisherHandler("deferred-rebuild", TopicDeferred, c.sub, c.handle)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.flushLoop(ctx)
	}()

	err = router.Run(ctx)
	wg.Wait()
	// Final flush so events consumed just before shutdown still land.
	c.flush(context.WithoutCancel(ctx))
	return err
}

// handle marks the event's tenant dirty. The message is acked by the router
// once we return; losing a coalesced flush on crash is acceptable because
// the next rebuild reads the full history anyway.
func (c *Consumer) handle(msg *message.Message) error {
	ev, err := decodeEvent(msg)
	if err != nil {
		// Malformed events cannot succeed on retry; drop them loudly.
		c.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed deferred event")
		return nil
	}
	metrics.DeferredPending.Dec()

	c.mu.Lock()
	c.dirty[ev.Tenant] = struct{}{}
	c.pending++
	full := c.pending >= c.opts.BatchSize
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

func (c *Consumer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.flush(ctx)
		case <-c.kick:
			c.flush(ctx)
		}
	}
}

// flush rebuilds every dirty tenant. Failed tenants stay dirty so the next
// flush retries them; a failed rebuild never replaces the served snapshot.
func (c *Consumer) flush(ctx context.Context) {
	c.mu.Lock()
	if len(c.dirty) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.dirty
	c.dirty = make(map[string]struct{})
	c.pending = 0
	c.mu.Unlock()

	for tenant := range batch {
		cfg, err := c.tenants.Tenant(tenant)
		if err != nil {
			c.logger.Warn().Str("tenant", tenant).Msg("dropping rebuild for unknown tenant")
			continue
		}
		if err := c.stats.Rebuild(ctx, tenant, cfg, c.store); err != nil {
			c.logger.Error().Err(err).Str("tenant", tenant).Msg("rebuild failed, will retry next flush")
			c.mu.Lock()
			c.dirty[tenant] = struct{}{}
			c.mu.Unlock()
		}
	}
}

// RebuildAll marks every configured tenant dirty and flushes immediately.
// Called once at startup so restarts serve fresh tables without waiting for
// traffic.
func (c *Consumer) RebuildAll(ctx context.Context) {
	c.mu.Lock()
	for _, tenant := range c.tenants.Tenants() {
		c.dirty[tenant] = struct{}{}
	}
	c.mu.Unlock()
	c.flush(ctx)
}

// String identifies the service in suture log events.
func (c *Consumer) String() string { return "deferred-consumer" }
