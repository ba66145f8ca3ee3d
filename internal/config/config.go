// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

// Package config loads the Tessera configuration with Koanf v2, layered:
// struct defaults, then an optional YAML file, then TESSERA_-prefixed
// environment variables. It also implements the tenant registry the engine
// resolves per-request configuration through.
package config

import (
	"time"

	"github.com/selvedge/tessera/internal/engine"
	"github.com/selvedge/tessera/internal/logging"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Logging logging.Config `koanf:"logging"`
	Storage StorageConfig  `koanf:"storage"`
	Ingest  IngestConfig   `koanf:"ingest"`
	Cache   CacheConfig    `koanf:"cache"`

	// Tenants maps tenant name to its behavior contract.
	Tenants map[string]*engine.TenantConfig `koanf:"tenants"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `koanf:"rate_limit"`
	// CORSOrigins lists allowed origins; empty allows none.
	CORSOrigins []string `koanf:"cors_origins"`
}

// StorageConfig selects and tunes the persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend" validate:"oneof=memory badger"`
	// Path is the Badger data directory.
	Path string `koanf:"path"`
	// SyncWrites makes every Badger write durable before acknowledging.
	SyncWrites bool `koanf:"sync_writes"`
	// Breaker tunes the circuit breaker wrapped around the backend.
	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig tunes the storage circuit breaker.
type BreakerConfig struct {
	Enabled bool `koanf:"enabled"`
	// MaxFailures consecutive failures trip the breaker.
	MaxFailures int `koanf:"max_failures"`
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

// IngestConfig tunes the deferred ingestion lane.
type IngestConfig struct {
	// Buffer is the in-process channel capacity between lanes.
	Buffer int `koanf:"buffer"`
	// BatchSize is how many deferred events are coalesced per rebuild pass.
	BatchSize int `koanf:"batch_size"`
	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration `koanf:"flush_interval"`
	// RebuildOnStart triggers a stats rebuild for every tenant at startup.
	RebuildOnStart bool `koanf:"rebuild_on_start"`
}

// CacheConfig tunes the engine's response and catalog caches.
type CacheConfig struct {
	Capacity   int           `koanf:"capacity"`
	TTL        time.Duration `koanf:"ttl"`
	CatalogTTL time.Duration `koanf:"catalog_ttl"`
}

// defaultConfig returns a Config with all defaults applied. Defaults are
// loaded first, then overridden by the config file and environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
		},
		Logging: logging.DefaultConfig(),
		Storage: StorageConfig{
			Backend:    "memory",
			Path:       "/data/tessera",
			SyncWrites: false,
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenTimeout: 10 * time.Second,
			},
		},
		Ingest: IngestConfig{
			Buffer:         1024,
			BatchSize:      256,
			FlushInterval:  2 * time.Second,
			RebuildOnStart: true,
		},
		Cache: CacheConfig{
			Capacity:   4096,
			TTL:        5 * time.Minute,
			CatalogTTL: 30 * time.Second,
		},
		Tenants: map[string]*engine.TenantConfig{},
	}
}
