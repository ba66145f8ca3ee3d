// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package stats maintains the precomputed ranking inputs: the popularity
// table, the product-to-product and user-to-user strength tables, and each
// user's recent high-rated products. Strength tables are immutable snapshots
// rebuilt by the deferred lane and swapped atomically; the popularity table
// is additionally bumped incrementally by the fast lane, with the next
// rebuild as the source of truth.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/selvedge/tessera/internal/engine"
)

// Store holds per-tenant stats. It implements engine.StatsProvider.
type Store struct {
	mu      sync.RWMutex
	logger  zerolog.Logger
	tenants map[string]*tenantStats
}

type tenantStats struct {
	mu   sync.RWMutex
	snap *snapshot
	pop  *popularityTable
}

// snapshot is one committed rebuild. Never mutated after commit.
type snapshot struct {
	productTemplates map[string][]engine.ScoredPair
	userTemplates    map[string][]engine.ScoredPair
	recentHigh       map[string][]string
	builtAt          time.Time
}

var emptySnapshot = &snapshot{}

// New builds an empty stats store.
func New(logger zerolog.Logger) *Store {
	return &Store{
		logger:  logger.With().Str("component", "stats").Logger(),
		tenants: make(map[string]*tenantStats),
	}
}

func (s *Store) tenant(name string) *tenantStats {
	s.mu.RLock()
	ts, ok := s.tenants[name]
	s.mu.RUnlock()
	if ok {
		return ts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts, ok = s.tenants[name]; !ok {
		ts = &tenantStats{snap: emptySnapshot, pop: newPopularityTable()}
		s.tenants[name] = ts
	}
	return ts
}

// View returns the tenant's current stats view. The view pins the snapshot
// and the popularity ordering at call time, so a request never observes a
// rebuild committed mid-flight.
func (s *Store) View(tenant string) engine.StatsView {
	ts := s.tenant(tenant)
	ts.mu.RLock()
	snap, pop := ts.snap, ts.pop
	ts.mu.RUnlock()
	return &view{snap: snap, pops: pop.stats()}
}

// RecordActivity gives the fast lane an immediate popularity signal. The
// bump treats the incoming activity's rating as the user's rating for the
// product; the precise latest-activity-wins value is restored by the next
// rebuild.
func (s *Store) RecordActivity(tenant string, cfg *engine.TenantConfig, act engine.Activity) {
	ar, ok := cfg.Activities[act.Type]
	if !ok || !cfg.Recommendable(ar.Stars) {
		return
	}
	ts := s.tenant(tenant)
	ts.mu.RLock()
	pop := ts.pop
	ts.mu.RUnlock()
	pop.bump(act.ProductID, act.UserID, act.At)
}

// commit atomically installs a rebuilt snapshot and popularity table.
func (s *Store) commit(tenant string, snap *snapshot, pop *popularityTable) {
	ts := s.tenant(tenant)
	ts.mu.Lock()
	ts.snap = snap
	ts.pop = pop
	ts.mu.Unlock()
}

// view implements engine.StatsView over one pinned snapshot.
type view struct {
	snap *snapshot
	pops []engine.PopularityStat
}

func (v *view) Popularities() []engine.PopularityStat { return v.pops }

func (v *view) ProductTemplates(baseID string, n int) []engine.ScoredPair {
	return headPairs(v.snap.productTemplates[baseID], n)
}

func (v *view) UserTemplates(userID string, n int) []engine.ScoredPair {
	return headPairs(v.snap.userTemplates[userID], n)
}

func (v *view) RecentHighRated(userID string, n int) []string {
	ids := v.snap.recentHigh[userID]
	if n > 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

func (v *view) BuiltAt() time.Time { return v.snap.builtAt }

func headPairs(pairs []engine.ScoredPair, n int) []engine.ScoredPair {
	if n > 0 && len(pairs) > n {
		return pairs[:n]
	}
	return pairs
}

// popularityTable accumulates qualifying ratings per product. Safe for
// concurrent bumps; the sorted stats slice is rebuilt lazily.
type popularityTable struct {
	mu      sync.Mutex
	entries map[string]*popEntry
	sorted  []engine.PopularityStat
	dirty   bool
}

type popEntry struct {
	users map[string]struct{}
	first time.Time
	last  time.Time
}

func newPopularityTable() *popularityTable {
	return &popularityTable{entries: make(map[string]*popEntry)}
}

// bump registers one qualifying (user, product) rating at time at.
func (p *popularityTable) bump(productID, userID string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[productID]
	if !ok {
		e = &popEntry{users: make(map[string]struct{}), first: at, last: at}
		p.entries[productID] = e
	}
	e.users[userID] = struct{}{}
	if at.Before(e.first) {
		e.first = at
	}
	if at.After(e.last) {
		e.last = at
	}
	p.dirty = true
}

// stats returns the popularity table ordered by density descending, then
// count descending, then product id ascending. The returned slice is shared
// and must be treated as read-only.
func (p *popularityTable) stats() []engine.PopularityStat {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.dirty && p.sorted != nil {
		return p.sorted
	}
	out := make([]engine.PopularityStat, 0, len(p.entries))
	for id, e := range p.entries {
		out = append(out, engine.PopularityStat{
			ProductID: id,
			Count:     len(e.users),
			Density:   float64(len(e.users)) / float64(daySpan(e.first, e.last)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Density != out[j].Density {
			return out[i].Density > out[j].Density
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ProductID < out[j].ProductID
	})
	p.sorted = out
	p.dirty = false
	return out
}

// daySpan is the inclusive day distance between two instants, minimum one.
func daySpan(first, last time.Time) int {
	days := int(last.Sub(first).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}
