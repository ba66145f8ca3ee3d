// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/selvedge/tessera/internal/logging"
	"github.com/selvedge/tessera/internal/metrics"
)

// RouterConfig holds the transport-level knobs.
type RouterConfig struct {
	// RateLimit is the per-IP request budget per minute. Zero disables
	// rate limiting (tests, dev mode).
	RateLimit int

	// CORSOrigins lists the allowed origins. Empty allows none.
	CORSOrigins []string
}

// NewRouter assembles the chi router with the global middleware stack and
// all Tessera endpoints.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.HealthLive)
	r.Get("/readyz", h.HealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/{tenant}", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(httprate.Limit(cfg.RateLimit, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Use(prometheusMiddleware)

		r.Get("/recommendations", h.Recommend)
		r.Post("/activities", h.RecordActivity)
		r.Post("/impressions", h.RecordImpression)
		r.Put("/products/{id}", h.UpsertProduct)
		r.Delete("/products/{id}", h.DeleteProduct)
	})

	return r
}

// requestIDMiddleware honors an inbound X-Request-ID header, generates one
// otherwise, and stores it in the logging context so handlers and responses
// can reference it.
func requestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)
			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// prometheusMiddleware records per-route request durations. The chi route
// pattern is used as the label so path parameters do not explode cardinality.
func prometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(r.Method, route, sr.status, time.Since(start))
	})
}
