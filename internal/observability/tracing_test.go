package observability

import (
	"context"
	"os"
	"testing"

	"github.com/vulcanlabs/vulcan/internal/log"
)

func TestSetup_ReturnsShutdown(t *testing.T) {
	// The exporter is lazy: construction succeeds without a collector
	// listening, so Setup must hand back a usable shutdown either way.
	shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "localhost:4318",
		Environment: "test",
		ServiceName: "vulcan-test",
		Logger:      log.NewNop(),
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup() returned nil shutdown")
	}
}

func TestSetup_DefaultEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup() returned nil shutdown")
	}
}

func TestSetup_SetsServiceEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "")

	if _, err := Setup(context.Background(), Config{
		ServiceName: "vulcan-test",
		Environment: "staging",
		Logger:      log.NewNop(),
	}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if got := os.Getenv("OTEL_SERVICE_NAME"); got != "vulcan-test" {
		t.Errorf("OTEL_SERVICE_NAME = %q, want %q", got, "vulcan-test")
	}
	if got := os.Getenv("OTEL_RESOURCE_ATTRIBUTES"); got != "deployment.environment=staging" {
		t.Errorf("OTEL_RESOURCE_ATTRIBUTES = %q", got)
	}
}
