// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeStore is an in-memory store for engine-level tests. The real adapters
// live in internal/storage; this one only implements what buildSession needs.
type fakeStore struct {
	acts     map[string][]Activity // keyed by user id
	products []Product
	failAll  bool
}

func (f *fakeStore) AppendActivity(ctx context.Context, tenant string, act Activity) error {
	f.acts[act.UserID] = append([]Activity{act}, f.acts[act.UserID]...)
	return nil
}

func (f *fakeStore) AppendImpression(ctx context.Context, tenant string, imp Impression) error {
	return nil
}

func (f *fakeStore) ActivitiesByUser(ctx context.Context, tenant, userID string) ([]Activity, error) {
	if f.failAll {
		return nil, ErrStorageUnavailable
	}
	return f.acts[userID], nil
}

func (f *fakeStore) Activities(ctx context.Context, tenant string) ([]Activity, error) {
	return nil, nil
}

func (f *fakeStore) ImpressionsByUser(ctx context.Context, tenant, userID string) ([]Impression, error) {
	return nil, nil
}

func (f *fakeStore) Impressions(ctx context.Context, tenant string) ([]Impression, error) {
	return nil, nil
}

func (f *fakeStore) UpsertProduct(ctx context.Context, tenant string, p Product) error {
	f.products = append(f.products, p)
	return nil
}

func (f *fakeStore) Product(ctx context.Context, tenant, id string) (Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (f *fakeStore) DeleteProduct(ctx context.Context, tenant, id string) error { return nil }

func (f *fakeStore) Products(ctx context.Context, tenant string) ([]Product, error) {
	if f.failAll {
		return nil, ErrStorageUnavailable
	}
	return f.products, nil
}

type fakeView struct{}

func (fakeView) Popularities() []PopularityStat            { return nil }
func (fakeView) ProductTemplates(string, int) []ScoredPair { return nil }
func (fakeView) UserTemplates(string, int) []ScoredPair    { return nil }
func (fakeView) RecentHighRated(string, int) []string      { return nil }
func (fakeView) BuiltAt() time.Time                        { return time.Time{} }

type fakeStats struct{}

func (fakeStats) View(string) StatsView { return fakeView{} }

type fakeRegistry struct{ cfg *TenantConfig }

func (r fakeRegistry) Tenant(name string) (*TenantConfig, error) {
	if name != "acme" {
		return nil, ErrUnknownTenant
	}
	return r.cfg, nil
}

func (r fakeRegistry) Tenants() []string { return []string{"acme"} }

// scriptedSpecialist returns a fixed queue regardless of the session.
type scriptedSpecialist struct {
	kind  AlgorithmKind
	items []RankedItem
	err   error
	calls int
}

func (s *scriptedSpecialist) Kind() AlgorithmKind { return s.kind }

func (s *scriptedSpecialist) Rank(ctx context.Context, sess *Session, n int) ([]RankedItem, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.items) > n {
		return s.items[:n], nil
	}
	return s.items, nil
}

// firstQueueMerger concatenates queues in specialist order, skipping
// zero-weighted queues. Real mergers live in internal/engine/merge.
type firstQueueMerger struct{ kind AlgorithmKind }

func (m firstQueueMerger) Kind() AlgorithmKind { return m.kind }

func (m firstQueueMerger) Merge(queues map[AlgorithmKind][]RankedItem, weights map[AlgorithmKind]float64, n int) []RankedItem {
	var out []RankedItem
	for _, kind := range Specialists {
		if weights[kind] <= 0 {
			continue
		}
		out = append(out, queues[kind]...)
		if len(out) >= n {
			return out[:n]
		}
	}
	return out
}

func items(ids ...string) []RankedItem {
	out := make([]RankedItem, len(ids))
	for i, id := range ids {
		out[i] = RankedItem{ProductID: id, Score: float64(len(ids) - i)}
	}
	return out
}

func newTestEngine(store Store) *Engine {
	return New(store, fakeRegistry{cfg: testTenantConfig()}, fakeStats{}, zerolog.Nop(), Options{
		CacheCapacity: 16,
		CacheTTL:      time.Minute,
		CatalogTTL:    time.Minute,
	})
}

func TestRecommendSpecialistPath(t *testing.T) {
	store := &fakeStore{acts: map[string][]Activity{}}
	e := newTestEngine(store)
	pop := &scriptedSpecialist{kind: AlgorithmPOP, items: items("p1", "p2", "p3")}
	e.RegisterSpecialist(pop)

	resp, err := e.Recommend(context.Background(), Request{
		Tenant: "acme", UserID: "u1", Count: 2, Algorithm: AlgorithmPOP,
	})
	if err != nil {
		t.Fatalf("Recommend unexpected error: %v", err)
	}
	if got := resp.ProductIDs(); len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Errorf("ProductIDs = %v, want [p1 p2]", got)
	}
	if resp.CacheHit {
		t.Error("first request must not be a cache hit")
	}
}

func TestRecommendCachesByUserAndAlgorithm(t *testing.T) {
	store := &fakeStore{acts: map[string][]Activity{}}
	e := newTestEngine(store)
	pop := &scriptedSpecialist{kind: AlgorithmPOP, items: items("p1")}
	e.RegisterSpecialist(pop)

	req := Request{Tenant: "acme", UserID: "u1", Count: 5, Algorithm: AlgorithmPOP}
	if _, err := e.Recommend(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	resp, err := e.Recommend(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.CacheHit {
		t.Error("identical repeat request should hit the cache")
	}
	if pop.calls != 1 {
		t.Errorf("specialist called %d times, want 1", pop.calls)
	}

	e.InvalidateUser("acme", "u1")
	if resp, err = e.Recommend(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if resp.CacheHit {
		t.Error("request after invalidation must recompute")
	}
	if pop.calls != 2 {
		t.Errorf("specialist called %d times after invalidation, want 2", pop.calls)
	}
}

func TestRecommendMergerFansOut(t *testing.T) {
	store := &fakeStore{acts: map[string][]Activity{}}
	e := newTestEngine(store)

	specs := map[AlgorithmKind]*scriptedSpecialist{
		AlgorithmPOP:  {kind: AlgorithmPOP, items: items("a", "b")},
		AlgorithmPBCF: {kind: AlgorithmPBCF, items: items("c")},
		AlgorithmCB:   {kind: AlgorithmCB, items: items("d")},
		AlgorithmUBCF: {kind: AlgorithmUBCF, err: &InsufficientDataError{Algorithm: AlgorithmUBCF, Reason: "no templates"}},
	}
	for _, s := range specs {
		e.RegisterSpecialist(s)
	}
	e.RegisterMerger(firstQueueMerger{kind: AlgorithmHRVoting})

	resp, err := e.Recommend(context.Background(), Request{
		Tenant: "acme", UserID: "u1", Count: 10, Algorithm: AlgorithmHRVoting,
	})
	if err != nil {
		t.Fatalf("Recommend unexpected error: %v", err)
	}
	for kind, s := range specs {
		if s.calls != 1 {
			t.Errorf("%s called %d times, want 1", kind, s.calls)
		}
	}
	// UBCF has weight 1 but no data; POP, PBCF and CB all contribute.
	if got := resp.ProductIDs(); len(got) != 4 {
		t.Errorf("merged ids = %v, want 4 items", got)
	}
}

func TestRecommendErrors(t *testing.T) {
	store := &fakeStore{acts: map[string][]Activity{}}
	e := newTestEngine(store)
	e.RegisterSpecialist(&scriptedSpecialist{kind: AlgorithmPOP, items: items("p1")})

	tests := []struct {
		name string
		req  Request
		want func(error) bool
	}{
		{
			name: "unknown tenant",
			req:  Request{Tenant: "nope", UserID: "u1", Algorithm: AlgorithmPOP},
			want: func(err error) bool { return errors.Is(err, ErrUnknownTenant) },
		},
		{
			name: "missing user",
			req:  Request{Tenant: "acme", Algorithm: AlgorithmPOP},
			want: IsConfiguration,
		},
		{
			name: "unregistered specialist",
			req:  Request{Tenant: "acme", UserID: "u1", Algorithm: AlgorithmCB},
			want: IsConfiguration,
		},
		{
			name: "unregistered merger",
			req:  Request{Tenant: "acme", UserID: "u1", Algorithm: AlgorithmHRVoting},
			want: IsConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Recommend(context.Background(), tt.req)
			if err == nil {
				t.Fatal("Recommend should fail")
			}
			if !tt.want(err) {
				t.Errorf("unexpected error class: %v", err)
			}
		})
	}
}

func TestRecommendStorageUnavailable(t *testing.T) {
	store := &fakeStore{acts: map[string][]Activity{}, failAll: true}
	e := newTestEngine(store)
	e.RegisterSpecialist(&scriptedSpecialist{kind: AlgorithmPOP, items: items("p1")})

	_, err := e.Recommend(context.Background(), Request{
		Tenant: "acme", UserID: "u1", Algorithm: AlgorithmPOP,
	})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}

func TestSessionCandidate(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{
		acts: map[string][]Activity{
			"u1": {
				{UserID: "u1", ProductID: "bought", Type: "purchase", At: now},
				{UserID: "u1", ProductID: "liked", Type: "like", At: now.Add(-time.Hour)},
			},
		},
		products: []Product{
			{ID: "bought"},
			{ID: "liked"},
			{ID: "cheap", Attributes: map[string]AttrValue{"price": NumberValue(5)}},
			{ID: "pricey", Attributes: map[string]AttrValue{"price": NumberValue(50)}},
		},
	}
	e := newTestEngine(store)

	cfg := testTenantConfig()
	sess, err := e.buildSession(context.Background(), Request{
		Tenant: "acme", UserID: "u1",
		Filter: FilterDoc{"price": {Max: f64ptr(10)}},
	}, cfg)
	if err != nil {
		t.Fatalf("buildSession unexpected error: %v", err)
	}

	if sess.Candidate("bought") {
		t.Error("consumed product must not be a candidate")
	}
	if sess.Candidate("ghost") {
		t.Error("unknown product must not be a candidate")
	}
	if sess.Candidate("pricey") {
		t.Error("filtered-out product must not be a candidate")
	}
	if !sess.Candidate("cheap") {
		t.Error("existing, unconsumed, filter-passing product should be a candidate")
	}

	base := sess.BaseProducts()
	if len(base) != 2 || base[0] != "bought" || base[1] != "liked" {
		t.Errorf("BaseProducts = %v, want [bought liked] newest first", base)
	}
}

func TestTranslateActivity(t *testing.T) {
	e := newTestEngine(&fakeStore{})

	rating, err := e.TranslateActivity("acme", "purchase")
	if err != nil {
		t.Fatalf("TranslateActivity: %v", err)
	}
	if rating.Stars != 5 || !rating.Blocking {
		t.Errorf("rating = %+v, want 5 stars blocking", rating)
	}

	if _, err := e.TranslateActivity("acme", "teleport"); !IsConfiguration(err) {
		t.Errorf("unmapped type error = %v, want configuration error", err)
	}
	if _, err := e.TranslateActivity("nope", "purchase"); !errors.Is(err, ErrUnknownTenant) {
		t.Errorf("unknown tenant error = %v, want ErrUnknownTenant", err)
	}
}
