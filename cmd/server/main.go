// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package main is the entry point for the Tessera recommendation server.
//
// Tessera serves hybrid product recommendations for multiple tenants. Four
// specialist algorithms (popularity, product-based collaborative filtering,
// content-based similarity, user-based collaborative filtering) are composed
// by three hybrid mergers. Writes arrive on two lanes: the fast lane persists
// the event and updates popularity summaries synchronously, the deferred lane
// rebuilds the heavier strength tables in the background.
//
// The server initializes components in the following order:
//
//  1. Configuration: koanf v2 layered sources (defaults, config.yaml, TESSERA_ env)
//  2. Logging: zerolog global logger
//  3. Storage: in-memory or BadgerDB backend, optional circuit breaker
//  4. Stats: per-tenant strength tables and popularity summaries
//  5. Engine: specialists, mergers, response cache
//  6. Ingestion lanes: watermill pubsub, fast-lane service, deferred consumer
//  7. HTTP server: chi router under suture supervision
//
// Graceful shutdown on SIGINT/SIGTERM: the supervisor tree drains the HTTP
// server and the deferred consumer flushes pending rebuilds.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/selvedge/tessera/internal/api"
	"github.com/selvedge/tessera/internal/config"
	"github.com/selvedge/tessera/internal/engine"
	"github.com/selvedge/tessera/internal/engine/merge"
	"github.com/selvedge/tessera/internal/engine/specialist"
	"github.com/selvedge/tessera/internal/ingest"
	"github.com/selvedge/tessera/internal/logging"
	"github.com/selvedge/tessera/internal/stats"
	"github.com/selvedge/tessera/internal/storage"
	"github.com/selvedge/tessera/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(cfg.Logging)
	logging.Info().
		Str("backend", cfg.Storage.Backend).
		Int("tenants", len(cfg.Tenants)).
		Int("port", cfg.Server.Port).
		Msg("Starting Tessera")

	store, gc, closeStore, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer closeStore()

	tenants := config.NewRegistry(cfg)
	logger := logging.Logger()

	statsStore := stats.New(logger)

	eng := engine.New(store, tenants, statsStore, logger, engine.Options{
		CacheCapacity: cfg.Cache.Capacity,
		CacheTTL:      cfg.Cache.TTL,
		CatalogTTL:    cfg.Cache.CatalogTTL,
	})
	eng.RegisterSpecialist(specialist.NewPOP())
	eng.RegisterSpecialist(specialist.NewPBCF())
	eng.RegisterSpecialist(specialist.NewCB())
	eng.RegisterSpecialist(specialist.NewUBCF())
	eng.RegisterMerger(merge.NewChunks())
	eng.RegisterMerger(merge.NewRandom(rand.New(rand.NewSource(time.Now().UnixNano()))))
	eng.RegisterMerger(merge.NewVoting())

	pubsub := ingest.NewPubSub(cfg.Ingest.Buffer, logger)
	defer func() {
		if err := pubsub.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pubsub")
		}
	}()

	service := ingest.NewService(store, tenants, statsStore, eng, pubsub, logger)
	consumer := ingest.NewConsumer(pubsub, store, tenants, statsStore, ingest.ConsumerOptions{
		BatchSize:     cfg.Ingest.BatchSize,
		FlushInterval: cfg.Ingest.FlushInterval,
	}, logger)

	handler := api.NewHandler(eng, service, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		RateLimit:   cfg.Server.RateLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddIngestService(consumer)
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	if gc != nil {
		tree.AddIngestService(supervisor.NewGCService(gc, 10*time.Minute, logger))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Recommendation snapshots are rebuilt from storage on startup so a
	// restarted server serves full-strength results, not just popularity.
	go func() {
		if cfg.Ingest.RebuildOnStart {
			consumer.RebuildAll(ctx)
		}
		handler.SetReady(true)
		logging.Info().Msg("Ready to serve recommendations")
	}()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("Shutdown complete")
	return nil
}

// buildStore assembles the configured storage backend, wrapped in a circuit
// breaker when enabled. The returned collector is non-nil only for backends
// that need periodic value-log garbage collection.
func buildStore(cfg *config.Config) (engine.Store, supervisor.Collector, func(), error) {
	logger := logging.Logger()

	var (
		inner engine.Store
		gc    supervisor.Collector
		stop  = func() {}
	)
	switch cfg.Storage.Backend {
	case "badger":
		db, err := storage.NewBadger(storage.BadgerOptions{
			Path:       cfg.Storage.Path,
			SyncWrites: cfg.Storage.SyncWrites,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		inner = db
		gc = db
		stop = func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing badger")
			}
		}
	default:
		inner = storage.NewMemory()
	}

	if cfg.Storage.Breaker.Enabled {
		breaker := storage.NewBreaker(inner, storage.BreakerSettings{
			MaxFailures: cfg.Storage.Breaker.MaxFailures,
			OpenTimeout: cfg.Storage.Breaker.OpenTimeout,
		}, logger)
		return breaker, gc, stop, nil
	}
	return inner, gc, stop, nil
}
