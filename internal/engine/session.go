// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"context"
	"sort"
)

// Session is the per-request view the specialists rank against: the tenant
// configuration, the user's derived history, the catalog, the compiled
// context filter, and the current stats snapshot. A session is built once
// per request and read-only afterwards, so specialists running in parallel
// share it without locking.
type Session struct {
	Tenant string
	UserID string
	Config *TenantConfig
	Stats  StatsView

	products map[string]Product
	consumed map[string]struct{}
	base     []string
	baseSet  map[string]struct{}
	filter   *ContextFilter
}

// NewSession assembles a session from already-loaded parts. The engine
// builds sessions from storage during Recommend; this constructor exists so
// specialist and merger implementations can be exercised directly.
func NewSession(tenant, userID string, cfg *TenantConfig, stats StatsView, products map[string]Product, consumed map[string]struct{}, base []string, filter *ContextFilter) *Session {
	if products == nil {
		products = map[string]Product{}
	}
	if consumed == nil {
		consumed = map[string]struct{}{}
	}
	baseSet := make(map[string]struct{}, len(base))
	for _, id := range base {
		baseSet[id] = struct{}{}
	}
	return &Session{
		Tenant:   tenant,
		UserID:   userID,
		Config:   cfg,
		Stats:    stats,
		products: products,
		consumed: consumed,
		base:     base,
		baseSet:  baseSet,
		filter:   filter,
	}
}

// buildSession assembles the request session. Catalog and stats come from
// the engine's caches; the user's own history is always read fresh so a
// fast-lane write is visible to the next request.
func (e *Engine) buildSession(ctx context.Context, req Request, cfg *TenantConfig) (*Session, error) {
	filter, err := CompileFilter(cfg, req.Filter)
	if err != nil {
		return nil, err
	}

	catalog, err := e.catalogFor(ctx, req.Tenant)
	if err != nil {
		return nil, err
	}

	acts, err := e.store.ActivitiesByUser(ctx, req.Tenant, req.UserID)
	if err != nil {
		return nil, err
	}

	tr := NewTranslator(cfg)
	ratings := tr.Derive(acts)

	consumed := make(map[string]struct{})
	for _, act := range acts {
		if ar, ok := cfg.Activities[act.Type]; ok && ar.Blocking {
			consumed[act.ProductID] = struct{}{}
		}
	}

	// Base products: the most recently rated products at or above the
	// recommendable threshold, newest first.
	type rated struct {
		id string
		r  Rating
	}
	high := make([]rated, 0, len(ratings))
	for id, r := range ratings {
		if cfg.Recommendable(r.Stars) {
			high = append(high, rated{id: id, r: r})
		}
	}
	sort.Slice(high, func(i, j int) bool {
		if !high[i].r.At.Equal(high[j].r.At) {
			return high[i].r.At.After(high[j].r.At)
		}
		return high[i].id < high[j].id
	})
	if len(high) > cfg.Counts.RecentProducts {
		high = high[:cfg.Counts.RecentProducts]
	}
	base := make([]string, len(high))
	for i, h := range high {
		base[i] = h.id
	}

	return NewSession(req.Tenant, req.UserID, cfg, e.stats.View(req.Tenant), catalog, consumed, base, filter), nil
}

// Product returns a catalog product by id.
func (s *Session) Product(id string) (Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

// Products returns the tenant catalog keyed by product id. Read-only.
func (s *Session) Products() map[string]Product { return s.products }

// BaseProducts returns the user's recent high-rated products, newest first.
// These seed the product-expansion specialists.
func (s *Session) BaseProducts() []string { return s.base }

// IsBase reports whether the product is one of the session's base products.
// The product-expansion specialists never recommend a seed back to the user,
// even when the seeding rating is non-blocking.
func (s *Session) IsBase(id string) bool {
	_, ok := s.baseSet[id]
	return ok
}

// Consumed reports whether the user has a blocking activity on the product.
func (s *Session) Consumed(id string) bool {
	_, ok := s.consumed[id]
	return ok
}

// Candidate reports whether the product may appear in a ranking: it exists
// in the catalog, the user has not consumed it, and it passes the context
// filter.
func (s *Session) Candidate(id string) bool {
	p, ok := s.products[id]
	if !ok {
		return false
	}
	if s.Consumed(id) {
		return false
	}
	return s.filter.Match(p)
}
