// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package storage provides the persistence adapters behind engine.Store: an
// in-memory store for development and tests, a BadgerDB store for
// production, and a circuit-breaker decorator that wraps either.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/selvedge/tessera/internal/engine"
)

// Memory is a mutex-protected in-memory engine.Store. Data is lost on
// restart; intended for development and tests.
type Memory struct {
	mu      sync.RWMutex
	tenants map[string]*memTenant
}

type memTenant struct {
	activities  []engine.Activity
	impressions []engine.Impression
	products    map[string]engine.Product
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tenants: make(map[string]*memTenant)}
}

func (m *Memory) tenant(name string) *memTenant {
	t, ok := m.tenants[name]
	if !ok {
		t = &memTenant{products: make(map[string]engine.Product)}
		m.tenants[name] = t
	}
	return t
}

// AppendActivity implements engine.Store.
func (m *Memory) AppendActivity(ctx context.Context, tenant string, act engine.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenant)
	t.activities = append(t.activities, act)
	return nil
}

// AppendImpression implements engine.Store.
func (m *Memory) AppendImpression(ctx context.Context, tenant string, imp engine.Impression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenant(tenant)
	t.impressions = append(t.impressions, imp)
	return nil
}

// ActivitiesByUser implements engine.Store.
func (m *Memory) ActivitiesByUser(ctx context.Context, tenant, userID string) ([]engine.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenant]
	if !ok {
		return nil, nil
	}
	var out []engine.Activity
	for _, act := range t.activities {
		if act.UserID == userID {
			out = append(out, act)
		}
	}
	sortActivities(out)
	return out, nil
}

// Activities implements engine.Store.
func (m *Memory) Activities(ctx context.Context, tenant string) ([]engine.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenant]
	if !ok {
		return nil, nil
	}
	out := make([]engine.Activity, len(t.activities))
	copy(out, t.activities)
	sortActivities(out)
	return out, nil
}

// ImpressionsByUser implements engine.Store.
func (m *Memory) ImpressionsByUser(ctx context.Context, tenant, userID string) ([]engine.Impression, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenant]
	if !ok {
		return nil, nil
	}
	var out []engine.Impression
	for _, imp := range t.impressions {
		if imp.UserID == userID {
			out = append(out, imp)
		}
	}
	sortImpressions(out)
	return out, nil
}

// Impressions implements engine.Store.
func (m *Memory) Impressions(ctx context.Context, tenant string) ([]engine.Impression, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenant]
	if !ok {
		return nil, nil
	}
	out := make([]engine.Impression, len(t.impressions))
	copy(out, t.impressions)
	sortImpressions(out)
	return out, nil
}

// UpsertProduct implements engine.Store.
func (m *Memory) UpsertProduct(ctx context.Context, tenant string, p engine.Product) error {
	if p.ID == "" {
		return fmt.Errorf("product id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenant).products[p.ID] = p
	return nil
}

// Product implements engine.Store.
func (m *Memory) Product(ctx context.Context, tenant, id string) (engine.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tenants[tenant]; ok {
		if p, ok := t.products[id]; ok {
			return p, nil
		}
	}
	return engine.Product{}, engine.ErrProductNotFound
}

// DeleteProduct implements engine.Store.
func (m *Memory) DeleteProduct(ctx context.Context, tenant, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenant]
	if !ok {
		return engine.ErrProductNotFound
	}
	if _, ok := t.products[id]; !ok {
		return engine.ErrProductNotFound
	}
	delete(t.products, id)
	return nil
}

// Products implements engine.Store.
func (m *Memory) Products(ctx context.Context, tenant string) ([]engine.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenant]
	if !ok {
		return nil, nil
	}
	out := make([]engine.Product, 0, len(t.products))
	for _, p := range t.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func sortActivities(acts []engine.Activity) {
	sort.SliceStable(acts, func(i, j int) bool { return acts[i].At.After(acts[j].At) })
}

func sortImpressions(imps []engine.Impression) {
	sort.SliceStable(imps, func(i, j int) bool { return imps[i].At.After(imps[j].At) })
}
