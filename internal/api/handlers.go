// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/selvedge/tessera/internal/engine"
	"github.com/selvedge/tessera/internal/logging"
)

// Recommender produces ranked recommendations. Implemented by engine.Engine.
type Recommender interface {
	Recommend(ctx context.Context, req engine.Request) (*engine.Response, error)
}

// Ingestor accepts writes on the fast ingestion lane. Implemented by
// ingest.Service.
type Ingestor interface {
	RecordActivity(ctx context.Context, tenant string, act engine.Activity) error
	RecordImpression(ctx context.Context, tenant string, imp engine.Impression) error
	UpsertProduct(ctx context.Context, tenant string, p engine.Product) error
	DeleteProduct(ctx context.Context, tenant, id string) error
}

// Handler holds the HTTP endpoint implementations.
type Handler struct {
	rec    Recommender
	ingest Ingestor
	logger zerolog.Logger
	ready  atomic.Bool
}

// NewHandler creates the endpoint handler set.
func NewHandler(rec Recommender, ingest Ingestor, logger zerolog.Logger) *Handler {
	return &Handler{
		rec:    rec,
		ingest: ingest,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// SetReady flips the readiness flag once startup rebuilds finish.
func (h *Handler) SetReady(ok bool) {
	h.ready.Store(ok)
}

// recommendResponse is the payload of a successful recommendation call.
type recommendResponse struct {
	Items       []engine.RankedItem `json:"items"`
	Algorithm   string              `json:"algorithm"`
	CacheHit    bool                `json:"cache_hit"`
	LatencyMs   int64               `json:"latency_ms"`
	GeneratedAt string              `json:"generated_at"`
}

// Recommend handles GET /api/v1/{tenant}/recommendations.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant := chi.URLParam(r, "tenant")

	req, apiErr := parseRecommendRequest(r)
	if apiErr != nil {
		rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}
	algo, err := engine.ParseAlgorithm(req.Algorithm)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	filter, err := req.filterDoc()
	if err != nil {
		rw.BadRequest("invalid filter document: " + err.Error())
		return
	}

	resp, err := h.rec.Recommend(r.Context(), engine.Request{
		Tenant:    tenant,
		UserID:    req.UserID,
		Count:     req.Count,
		Algorithm: algo,
		Filter:    filter,
		RequestID: logging.RequestIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeDomainError(rw, err)
		return
	}

	rw.Success(recommendResponse{
		Items:       resp.Items,
		Algorithm:   resp.Algorithm.String(),
		CacheHit:    resp.CacheHit,
		LatencyMs:   resp.LatencyMS,
		GeneratedAt: resp.GeneratedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// RecordActivity handles POST /api/v1/{tenant}/activities.
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant := chi.URLParam(r, "tenant")

	var req ActivityRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	err := h.ingest.RecordActivity(r.Context(), tenant, engine.Activity{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Type:      req.Type,
		At:        req.At,
	})
	if err != nil {
		h.writeDomainError(rw, err)
		return
	}
	rw.Accepted(map[string]string{"status": "recorded"})
}

// RecordImpression handles POST /api/v1/{tenant}/impressions.
func (h *Handler) RecordImpression(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant := chi.URLParam(r, "tenant")

	var req ImpressionRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	err := h.ingest.RecordImpression(r.Context(), tenant, engine.Impression{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		At:        req.At,
	})
	if err != nil {
		h.writeDomainError(rw, err)
		return
	}
	rw.Accepted(map[string]string{"status": "recorded"})
}

// UpsertProduct handles PUT /api/v1/{tenant}/products/{id}.
func (h *Handler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant := chi.URLParam(r, "tenant")
	id := chi.URLParam(r, "id")
	if id == "" {
		rw.BadRequest("product id is required")
		return
	}

	var req ProductRequest
	if apiErr := decodeBody(r, &req); apiErr != nil {
		rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
		return
	}

	err := h.ingest.UpsertProduct(r.Context(), tenant, engine.Product{
		ID:         id,
		Attributes: req.Attributes,
		UpdatedAt:  req.UpdatedAt,
	})
	if err != nil {
		h.writeDomainError(rw, err)
		return
	}
	rw.Accepted(map[string]string{"status": "stored", "id": id})
}

// DeleteProduct handles DELETE /api/v1/{tenant}/products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	tenant := chi.URLParam(r, "tenant")
	id := chi.URLParam(r, "id")
	if id == "" {
		rw.BadRequest("product id is required")
		return
	}

	if err := h.ingest.DeleteProduct(r.Context(), tenant, id); err != nil {
		h.writeDomainError(rw, err)
		return
	}
	rw.NoContent()
}

// HealthLive handles GET /healthz. Always healthy while the process serves.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// HealthReady handles GET /readyz. Not ready until the startup rebuild ran.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.ready.Load() {
		rw.ServiceUnavailable("startup rebuild pending")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// writeDomainError maps domain errors onto HTTP status codes.
func (h *Handler) writeDomainError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownTenant):
		rw.NotFound("unknown tenant")
	case errors.Is(err, engine.ErrProductNotFound):
		rw.NotFound("product not found")
	case errors.Is(err, engine.ErrStorageUnavailable):
		rw.ServiceUnavailable("storage unavailable")
	case engine.IsConfiguration(err):
		rw.BadRequest(err.Error())
	default:
		h.logger.Error().Err(err).Msg("Request failed")
		rw.InternalError("internal error")
	}
}
