// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package engine orchestrates recommendation requests: it builds the
// per-request session, fans out to the registered specialists, hands their
// queues to a merger when a hybrid algorithm is requested, and caches
// responses. Specialist and merger implementations live in subpackages and
// are registered at startup.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/selvedge/tessera/internal/metrics"
)

// Specialist ranks candidate products for a session. Rank returns up to n
// items, best first; an *InsufficientDataError means the specialist has no
// basis to rank for this user and contributes an empty queue.
type Specialist interface {
	Kind() AlgorithmKind
	Rank(ctx context.Context, s *Session, n int) ([]RankedItem, error)
}

// Merger combines the specialist queues into one ranking of up to n items.
// Queues arrive in the fixed specialist order, already deduplicated within
// themselves and filtered; weights carry an entry for every specialist.
type Merger interface {
	Kind() AlgorithmKind
	Merge(queues map[AlgorithmKind][]RankedItem, weights map[AlgorithmKind]float64, n int) []RankedItem
}

// Options tunes the engine's response and catalog caches.
type Options struct {
	CacheCapacity int
	CacheTTL      time.Duration
	CatalogTTL    time.Duration
}

// Engine is the recommendation orchestrator. Safe for concurrent use once
// all specialists and mergers are registered.
type Engine struct {
	store   Store
	tenants TenantRegistry
	stats   StatsProvider
	logger  zerolog.Logger

	specialists map[AlgorithmKind]Specialist
	mergers     map[AlgorithmKind]Merger

	resp    *responseCache
	catalog *catalogCache
}

// New builds an engine. Register specialists and mergers before serving.
func New(store Store, tenants TenantRegistry, stats StatsProvider, logger zerolog.Logger, opts Options) *Engine {
	return &Engine{
		store:       store,
		tenants:     tenants,
		stats:       stats,
		logger:      logger.With().Str("component", "engine").Logger(),
		specialists: make(map[AlgorithmKind]Specialist, 4),
		mergers:     make(map[AlgorithmKind]Merger, 3),
		resp:        newResponseCache(opts.CacheCapacity, opts.CacheTTL),
		catalog:     newCatalogCache(opts.CatalogTTL),
	}
}

// RegisterSpecialist adds a specialist. Not safe to call while serving.
func (e *Engine) RegisterSpecialist(s Specialist) {
	e.specialists[s.Kind()] = s
}

// RegisterMerger adds a merger. Not safe to call while serving.
func (e *Engine) RegisterMerger(m Merger) {
	e.mergers[m.Kind()] = m
}

// TenantConfig resolves a tenant's configuration.
func (e *Engine) TenantConfig(tenant string) (*TenantConfig, error) {
	return e.tenants.Tenant(tenant)
}

// TranslateActivity resolves the rating an activity type maps to under the
// tenant's configuration. Unmapped types are a configuration error.
func (e *Engine) TranslateActivity(tenant, activityType string) (ActivityRating, error) {
	cfg, err := e.tenants.Tenant(tenant)
	if err != nil {
		return ActivityRating{}, err
	}
	return NewTranslator(cfg).Translate(activityType)
}

// InvalidateUser drops the user's cached responses. Called by the fast lane
// after an activity or impression lands, so the write is visible to the
// user's next request.
func (e *Engine) InvalidateUser(tenant, userID string) {
	e.resp.InvalidatePrefix(tenant + "|" + userID + "|")
}

// InvalidateCatalog drops the tenant's catalog and all its cached responses.
// Called after a product upsert or delete.
func (e *Engine) InvalidateCatalog(tenant string) {
	e.catalog.invalidate(tenant)
	e.resp.InvalidatePrefix(tenant + "|")
}

// CacheStats returns cumulative response cache hits and misses.
func (e *Engine) CacheStats() (hits, misses int64) { return e.resp.Stats() }

// Recommend produces a ranking for one user. Specialist requests run the
// named specialist alone; merger requests fan out to all four specialists in
// parallel and combine their queues.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	started := time.Now()

	if req.UserID == "" {
		return nil, &ConfigurationError{Field: "user_id", Detail: "user id is required"}
	}
	cfg, err := e.tenants.Tenant(req.Tenant)
	if err != nil {
		return nil, err
	}
	count := cfg.ClampCount(req.Count)

	var weights map[AlgorithmKind]float64
	if req.Algorithm.IsMerger() {
		if weights, err = cfg.MergerWeights(req.Algorithm); err != nil {
			return nil, err
		}
		if _, ok := e.mergers[req.Algorithm]; !ok {
			return nil, &ConfigurationError{Field: "algorithm", Detail: req.Algorithm.String() + " not registered"}
		}
	} else if _, ok := e.specialists[req.Algorithm]; !ok {
		return nil, &ConfigurationError{Field: "algorithm", Detail: req.Algorithm.String() + " not registered"}
	}

	key := cacheKey(req, count)
	if cached := e.resp.Get(key); cached != nil {
		metrics.RecordRecommendation(req.Algorithm.String(), true, time.Since(started))
		out := *cached
		out.CacheHit = true
		out.RequestID = req.RequestID
		out.LatencyMS = time.Since(started).Milliseconds()
		return &out, nil
	}

	sess, err := e.buildSession(ctx, req, cfg)
	if err != nil {
		return nil, err
	}

	var items []RankedItem
	if req.Algorithm.IsMerger() {
		queues := e.fanOut(ctx, sess, count)
		items = e.mergers[req.Algorithm].Merge(queues, weights, count)
	} else {
		items, err = e.runSpecialist(ctx, e.specialists[req.Algorithm], sess, count)
		if err != nil {
			return nil, err
		}
	}
	if len(items) > count {
		items = items[:count]
	}

	resp := &Response{
		Items:       items,
		Algorithm:   req.Algorithm,
		RequestID:   req.RequestID,
		LatencyMS:   time.Since(started).Milliseconds(),
		GeneratedAt: time.Now().UTC(),
	}
	e.resp.Add(key, resp)
	metrics.RecordRecommendation(req.Algorithm.String(), false, time.Since(started))

	e.logger.Debug().
		Str("tenant", req.Tenant).
		Str("user_id", req.UserID).
		Str("algorithm", req.Algorithm.String()).
		Int("items", len(items)).
		Dur("elapsed", time.Since(started)).
		Msg("recommendation computed")

	return resp, nil
}

// runSpecialist executes one specialist, treating insufficient data as an
// empty queue and recording per-specialist metrics.
func (e *Engine) runSpecialist(ctx context.Context, s Specialist, sess *Session, n int) ([]RankedItem, error) {
	started := time.Now()
	items, err := s.Rank(ctx, sess, n)
	if err != nil {
		if IsInsufficientData(err) {
			e.logger.Debug().
				Str("tenant", sess.Tenant).
				Str("user_id", sess.UserID).
				Str("algorithm", s.Kind().String()).
				Msg(err.Error())
			metrics.RecordSpecialist(s.Kind().String(), true, time.Since(started))
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", s.Kind(), err)
	}
	metrics.RecordSpecialist(s.Kind().String(), len(items) == 0, time.Since(started))
	return items, nil
}

// fanOut runs all four specialists concurrently. Each queue is computed with
// slack beyond the requested count so cross-queue deduplication in the
// merger does not starve the result. Specialist failures degrade to empty
// queues; the merger works with whatever arrived.
func (e *Engine) fanOut(ctx context.Context, sess *Session, count int) map[AlgorithmKind][]RankedItem {
	depth := count * 3

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		queues = make(map[AlgorithmKind][]RankedItem, len(Specialists))
	)
	for _, kind := range Specialists {
		s, ok := e.specialists[kind]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(s Specialist) {
			defer wg.Done()
			items, err := e.runSpecialist(ctx, s, sess, depth)
			if err != nil {
				e.logger.Warn().
					Err(err).
					Str("tenant", sess.Tenant).
					Str("algorithm", s.Kind().String()).
					Msg("specialist failed, contributing empty queue")
				return
			}
			mu.Lock()
			queues[s.Kind()] = items
			mu.Unlock()
		}(s)
	}
	wg.Wait()
	return queues
}

// cacheKey builds the response cache key. The filter document is serialized
// with sorted attribute names so semantically equal filters share an entry.
func cacheKey(req Request, count int) string {
	var filter string
	if len(req.Filter) > 0 {
		names := make([]string, 0, len(req.Filter))
		for name := range req.Filter {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			raw, err := json.Marshal(req.Filter[name])
			if err != nil {
				raw = []byte("?")
			}
			parts = append(parts, name+"="+string(raw))
		}
		for _, p := range parts {
			filter += ";" + p
		}
	}
	return fmt.Sprintf("%s|%s|%s|%d%s", req.Tenant, req.UserID, req.Algorithm, count, filter)
}
