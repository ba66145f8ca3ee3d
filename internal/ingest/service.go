// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/selvedge/tessera/internal/engine"
	"github.com/selvedge/tessera/internal/metrics"
)

// Invalidator is the cache surface the fast lane pokes after a write. The
// engine implements it.
type Invalidator interface {
	InvalidateUser(tenant, userID string)
	InvalidateCatalog(tenant string)
}

// PopularityRecorder receives the immediate popularity signal for qualifying
// activities. The stats store implements it.
type PopularityRecorder interface {
	RecordActivity(tenant string, cfg *engine.TenantConfig, act engine.Activity)
}

// Service is the fast ingestion lane. Every method validates, persists,
// updates the hot read paths, and only then returns, so a client that got an
// acknowledgement will see its write reflected in its next recommendation.
// The deferred event is published after the durable write; a publish failure
// is logged and repaired by the next successful rebuild trigger rather than
// failing the already-persisted request.
type Service struct {
	store   engine.Store
	tenants engine.TenantRegistry
	stats   PopularityRecorder
	caches  Invalidator
	pub     message.Publisher
	logger  zerolog.Logger
}

// NewService wires the fast lane.
func NewService(store engine.Store, tenants engine.TenantRegistry, stats PopularityRecorder, caches Invalidator, pub message.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		tenants: tenants,
		stats:   stats,
		caches:  caches,
		pub:     pub,
		logger:  logger.With().Str("component", "ingest").Logger(),
	}
}

// RecordActivity validates and persists one activity. Activities with an
// unmapped type are rejected before anything is written.
func (s *Service) RecordActivity(ctx context.Context, tenant string, act engine.Activity) error {
	started := time.Now()

	cfg, err := s.tenants.Tenant(tenant)
	if err != nil {
		metrics.RecordRejection(KindActivity, "unknown_tenant")
		return err
	}
	if act.UserID == "" || act.ProductID == "" {
		metrics.RecordRejection(KindActivity, "missing_ids")
		return &engine.ConfigurationError{Field: "activity", Detail: "user_id and product_id are required"}
	}
	if _, err := engine.NewTranslator(cfg).Translate(act.Type); err != nil {
		metrics.RecordRejection(KindActivity, "unmapped_type")
		return err
	}
	if act.At.IsZero() {
		act.At = time.Now().UTC()
	}

	if err := s.store.AppendActivity(ctx, tenant, act); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	s.stats.RecordActivity(tenant, cfg, act)
	s.caches.InvalidateUser(tenant, act.UserID)
	s.publish(tenant, KindActivity)

	metrics.RecordFastLane(KindActivity, time.Since(started))
	return nil
}

// RecordImpression validates and persists one impression.
func (s *Service) RecordImpression(ctx context.Context, tenant string, imp engine.Impression) error {
	started := time.Now()

	if _, err := s.tenants.Tenant(tenant); err != nil {
		metrics.RecordRejection(KindImpression, "unknown_tenant")
		return err
	}
	if imp.UserID == "" || imp.ProductID == "" {
		metrics.RecordRejection(KindImpression, "missing_ids")
		return &engine.ConfigurationError{Field: "impression", Detail: "user_id and product_id are required"}
	}
	if imp.At.IsZero() {
		imp.At = time.Now().UTC()
	}

	if err := s.store.AppendImpression(ctx, tenant, imp); err != nil {
		return fmt.Errorf("append impression: %w", err)
	}
	s.caches.InvalidateUser(tenant, imp.UserID)
	s.publish(tenant, KindImpression)

	metrics.RecordFastLane(KindImpression, time.Since(started))
	return nil
}

// UpsertProduct validates the product against the tenant attribute schema
// and stores it. Undeclared attributes and kind mismatches are rejected.
func (s *Service) UpsertProduct(ctx context.Context, tenant string, p engine.Product) error {
	started := time.Now()

	cfg, err := s.tenants.Tenant(tenant)
	if err != nil {
		metrics.RecordRejection(KindProductUpsert, "unknown_tenant")
		return err
	}
	if p.ID == "" {
		metrics.RecordRejection(KindProductUpsert, "missing_id")
		return &engine.ConfigurationError{Field: "product.id", Detail: "product id is required"}
	}
	for name, value := range p.Attributes {
		spec, ok := cfg.Attributes[name]
		if !ok {
			metrics.RecordRejection(KindProductUpsert, "undeclared_attribute")
			return &engine.ConfigurationError{Field: "product.attributes." + name, Detail: "attribute not declared for tenant"}
		}
		kind, err := engine.ParseAttrKind(spec.Kind)
		if err != nil {
			return err
		}
		if value.Kind != kind {
			metrics.RecordRejection(KindProductUpsert, "kind_mismatch")
			return &engine.ConfigurationError{
				Field:  "product.attributes." + name,
				Detail: fmt.Sprintf("declared %s, got %s", kind, value.Kind),
			}
		}
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}

	if err := s.store.UpsertProduct(ctx, tenant, p); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	s.caches.InvalidateCatalog(tenant)
	s.publish(tenant, KindProductUpsert)

	metrics.RecordFastLane(KindProductUpsert, time.Since(started))
	return nil
}

// DeleteProduct removes a product and drops every cache that could still
// serve it.
func (s *Service) DeleteProduct(ctx context.Context, tenant, id string) error {
	started := time.Now()

	if _, err := s.tenants.Tenant(tenant); err != nil {
		metrics.RecordRejection(KindProductDelete, "unknown_tenant")
		return err
	}
	if err := s.store.DeleteProduct(ctx, tenant, id); err != nil {
		return err
	}
	s.caches.InvalidateCatalog(tenant)
	s.publish(tenant, KindProductDelete)

	metrics.RecordFastLane(KindProductDelete, time.Since(started))
	return nil
}

func (s *Service) publish(tenant, kind string) {
	msg, err := newMessage(tenant, kind)
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", tenant).Msg("building deferred event")
		return
	}
	if err := s.pub.Publish(TopicDeferred, msg); err != nil {
		s.logger.Error().Err(err).Str("tenant", tenant).Str("kind", kind).
			Msg("publishing deferred event; rebuild delayed until next trigger")
		return
	}
	metrics.DeferredPending.Inc()
}
