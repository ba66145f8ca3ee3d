// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/selvedge/tessera/internal/engine"
	"github.com/selvedge/tessera/internal/metrics"
)

// Breaker wraps an engine.Store with a circuit breaker. When the backend
// fails repeatedly the breaker opens and every call fails fast with
// engine.ErrStorageUnavailable until the backend recovers, so request
// handling degrades instead of piling up on a dead disk.
//
// The breaker uses real time for its open/half-open transitions; tests that
// need determinism should exercise the wrapped store directly.
type Breaker struct {
	inner engine.Store
	cb    *gobreaker.CircuitBreaker[any]
}

// BreakerSettings tunes the storage circuit breaker.
type BreakerSettings struct {
	// MaxFailures consecutive failures open the circuit.
	MaxFailures int
	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration
}

// NewBreaker decorates inner with a circuit breaker.
func NewBreaker(inner engine.Store, settings BreakerSettings, logger zerolog.Logger) *Breaker {
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 10 * time.Second
	}
	log := logger.With().Str("component", "storage_breaker").Logger()

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "storage",
		MaxRequests: 3,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(settings.MaxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("storage circuit breaker state change")
			metrics.SetBreakerOpen(to == gobreaker.StateOpen)
		},
		// Caller faults must not count against the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, engine.ErrProductNotFound)
		},
	})
	return &Breaker{inner: inner, cb: cb}
}

// call funnels every store operation through the breaker, translating
// breaker rejections into ErrStorageUnavailable.
func (b *Breaker) call(op string, fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.RecordStorageError(op)
		return nil, fmt.Errorf("%s: %w", op, engine.ErrStorageUnavailable)
	}
	if !errors.Is(err, engine.ErrProductNotFound) {
		metrics.RecordStorageError(op)
	}
	return nil, err
}

// AppendActivity implements engine.Store.
func (b *Breaker) AppendActivity(ctx context.Context, tenant string, act engine.Activity) error {
	_, err := b.call("append_activity", func() (any, error) {
		return nil, b.inner.AppendActivity(ctx, tenant, act)
	})
	return err
}

// AppendImpression implements engine.Store.
func (b *Breaker) AppendImpression(ctx context.Context, tenant string, imp engine.Impression) error {
	_, err := b.call("append_impression", func() (any, error) {
		return nil, b.inner.AppendImpression(ctx, tenant, imp)
	})
	return err
}

// ActivitiesByUser implements engine.Store.
func (b *Breaker) ActivitiesByUser(ctx context.Context, tenant, userID string) ([]engine.Activity, error) {
	v, err := b.call("activities_by_user", func() (any, error) {
		return b.inner.ActivitiesByUser(ctx, tenant, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]engine.Activity), nil
}

// Activities implements engine.Store.
func (b *Breaker) Activities(ctx context.Context, tenant string) ([]engine.Activity, error) {
	v, err := b.call("activities", func() (any, error) {
		return b.inner.Activities(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}
	return v.([]engine.Activity), nil
}

// ImpressionsByUser implements engine.Store.
func (b *Breaker) ImpressionsByUser(ctx context.Context, tenant, userID string) ([]engine.Impression, error) {
	v, err := b.call("impressions_by_user", func() (any, error) {
		return b.inner.ImpressionsByUser(ctx, tenant, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]engine.Impression), nil
}

// Impressions implements engine.Store.
func (b *Breaker) Impressions(ctx context.Context, tenant string) ([]engine.Impression, error) {
	v, err := b.call("impressions", func() (any, error) {
		return b.inner.Impressions(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}
	return v.([]engine.Impression), nil
}

// UpsertProduct implements engine.Store.
func (b *Breaker) UpsertProduct(ctx context.Context, tenant string, p engine.Product) error {
	_, err := b.call("upsert_product", func() (any, error) {
		return nil, b.inner.UpsertProduct(ctx, tenant, p)
	})
	return err
}

// Product implements engine.Store.
func (b *Breaker) Product(ctx context.Context, tenant, id string) (engine.Product, error) {
	v, err := b.call("product", func() (any, error) {
		return b.inner.Product(ctx, tenant, id)
	})
	if err != nil {
		return engine.Product{}, err
	}
	return v.(engine.Product), nil
}

// DeleteProduct implements engine.Store.
func (b *Breaker) DeleteProduct(ctx context.Context, tenant, id string) error {
	_, err := b.call("delete_product", func() (any, error) {
		return nil, b.inner.DeleteProduct(ctx, tenant, id)
	})
	return err
}

// Products implements engine.Store.
func (b *Breaker) Products(ctx context.Context, tenant string) ([]engine.Product, error) {
	v, err := b.call("products", func() (any, error) {
		return b.inner.Products(ctx, tenant)
	})
	if err != nil {
		return nil, err
	}
	return v.([]engine.Product), nil
}
