// Tessera - Hybrid Product Recommendation Engine
// Copyright 2026 Selvedge Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/selvedge/tessera

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeServer struct {
	started  chan struct{}
	release  chan struct{}
	shutdown atomic.Bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (f *fakeServer) ListenAndServe() error {
	close(f.started)
	<-f.release
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.shutdown.Store(true)
	close(f.release)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	srv := newFakeServer()
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-srv.started:
	case <-time.After(time.Second):
		t.Fatal("server never started")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if !srv.shutdown.Load() {
		t.Error("Shutdown was not called")
	}
}

type failingServer struct{}

func (failingServer) ListenAndServe() error            { return errors.New("bind: address in use") }
func (failingServer) Shutdown(_ context.Context) error { return nil }

func TestHTTPServiceReportsStartupFailure(t *testing.T) {
	svc := NewHTTPService(failingServer{}, time.Second)
	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("Serve should surface the listen error")
	}
}

type countingCollector struct{ calls atomic.Int64 }

func (c *countingCollector) RunGC() error {
	c.calls.Add(1)
	return nil
}

func TestGCServiceRunsCollector(t *testing.T) {
	col := &countingCollector{}
	svc := NewGCService(col, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for col.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("collector never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

type blockingService struct{ started chan struct{} }

func (b *blockingService) Serve(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeServesAndStops(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tree := NewTree(logger, DefaultTreeConfig())

	svc := &blockingService{started: make(chan struct{})}
	tree.AddAPIService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tree.Serve(ctx) }()

	select {
	case <-svc.started:
	case <-time.After(time.Second):
		t.Fatal("service never started")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("tree did not stop on cancel")
	}
}
