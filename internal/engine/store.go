// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package engine

import (
	"context"
	"time"
)

// Store is the persistence contract the engine and the ingestion lanes run
// against. Adapters live in internal/storage; every method is safe for
// concurrent use and scoped to a single tenant, and no method may ever leak
// data across tenants.
//
// Activity and impression slices are returned newest-first. A backend that
// cannot serve (open circuit, closed database) returns ErrStorageUnavailable.
type Store interface {
	// AppendActivity records one activity. Append-only; never updates.
	AppendActivity(ctx context.Context, tenant string, act Activity) error
	// AppendImpression records one impression.
	AppendImpression(ctx context.Context, tenant string, imp Impression) error

	// ActivitiesByUser returns the user's activities, newest first.
	ActivitiesByUser(ctx context.Context, tenant, userID string) ([]Activity, error)
	// Activities returns the tenant's full activity history, newest first.
	// Used by batch stats rebuilds only.
	Activities(ctx context.Context, tenant string) ([]Activity, error)
	// ImpressionsByUser returns the user's impressions, newest first.
	ImpressionsByUser(ctx context.Context, tenant, userID string) ([]Impression, error)
	// Impressions returns the tenant's full impression history, newest first.
	Impressions(ctx context.Context, tenant string) ([]Impression, error)

	// UpsertProduct creates or replaces a catalog product.
	UpsertProduct(ctx context.Context, tenant string, p Product) error
	// Product returns one product or ErrProductNotFound.
	Product(ctx context.Context, tenant, id string) (Product, error)
	// DeleteProduct removes a product from the catalog. Deleting an absent
	// product returns ErrProductNotFound.
	DeleteProduct(ctx context.Context, tenant, id string) error
	// Products returns the tenant catalog.
	Products(ctx context.Context, tenant string) ([]Product, error)
}

// StatsView is an immutable read view over one tenant's precomputed ranking
// inputs. Views are built by the deferred lane and swapped atomically; a
// request holds one view for its whole lifetime and never observes a partial
// rebuild.
type StatsView interface {
	// Popularities returns the popularity table ordered by density
	// descending, then qualifying-user count descending, then product id
	// ascending.
	Popularities() []PopularityStat
	// ProductTemplates returns up to n neighbour products of base, strongest
	// first (ties broken by id ascending).
	ProductTemplates(baseID string, n int) []ScoredPair
	// UserTemplates returns up to n like-minded users, strongest first.
	UserTemplates(userID string, n int) []ScoredPair
	// RecentHighRated returns up to n product ids the user recently rated at
	// or above the recommendable threshold, newest first.
	RecentHighRated(userID string, n int) []string
	// BuiltAt is when this view was committed.
	BuiltAt() time.Time
}

// StatsProvider hands out the current stats view for a tenant. An empty view
// (never an error) is returned for tenants with no committed rebuild yet.
type StatsProvider interface {
	View(tenant string) StatsView
}
