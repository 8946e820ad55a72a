package app

import (
	"context"
	"testing"
	"time"

	"github.com/vulcanlabs/vulcan/internal/config"
	"github.com/vulcanlabs/vulcan/internal/log"
)

func TestProvideSessions_Memory(t *testing.T) {
	cfg := &config.Config{
		SessionBackend: config.SessionBackendMemory,
		SessionExpiry:  time.Hour,
		HistoryCap:     50,
	}

	store, client, err := provideSessions(cfg, nil, log.NewNop())
	if err != nil {
		t.Fatalf("provideSessions() error = %v", err)
	}
	if client != nil {
		t.Error("memory backend should not create a redis client")
	}
	if store.HistoryCap() != 50 {
		t.Errorf("HistoryCap() = %d, want 50", store.HistoryCap())
	}

	sess := store.Create(context.Background(), "user-1", "")
	if sess == nil {
		t.Fatal("Create() returned nil with memory backend")
	}
}

func TestProvideOtelShutdown_Disabled(t *testing.T) {
	cfg := &config.Config{}

	cleanup := provideOtelShutdown(context.Background(), cfg, log.NewNop())
	if cleanup == nil {
		t.Fatal("cleanup must never be nil")
	}
	cleanup()
}

func TestClose_NilResources(t *testing.T) {
	a := &App{Logger: log.NewNop()}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() on empty app error = %v", err)
	}
}
