package telemetry_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/domainpress/pipeline/internal/services/jobmanager/telemetry"
)

// providerOnce ensures only one Provider is constructed per test binary run:
// promauto registers against the default registry, and a second NewProvider
// call would panic on duplicate metric names.
var (
	testProvider *telemetry.Provider
	providerOnce sync.Once
)

func getTestProvider(t *testing.T) *telemetry.Provider {
	t.Helper()
	providerOnce.Do(func() {
		testProvider = telemetry.NewProvider("")
	})
	return testProvider
}

func TestNewProvider(t *testing.T) {
	p := getTestProvider(t)
	if p.Tracer == nil {
		t.Error("expected non-nil tracer")
	}
	if p.Metrics == nil {
		t.Error("expected non-nil metrics")
	}
}

func TestRecordJobSuccessAndFailure(t *testing.T) {
	p := getTestProvider(t)

	p.RecordJobSuccess("publish_youtube_short", 120*time.Millisecond)
	p.RecordJobFailure("publish_youtube_short", "provider_error", 80*time.Millisecond, true)
	p.RecordJobFailure("publish_youtube_short", "validation", 0, false)

	p.SetActiveJobs(3)
	p.SetActiveJobs(0)
	p.SetQueueDepth(5)
	p.RecordWorkerRestart()
}

func TestHandlerIsNotNil(t *testing.T) {
	p := getTestProvider(t)
	if p.Handler() == nil {
		t.Error("expected non-nil metrics HTTP handler")
	}
}

// TestProviderShutdown must stay last in this file: it shuts down the
// shared test provider's tracer, and NewProvider cannot be called a second
// time in this process without panicking on duplicate Prometheus metric
// registration, so every other test needs to run against it first.
func TestProviderShutdown(t *testing.T) {
	p := getTestProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("expected clean shutdown with no exporter configured, got %v", err)
	}
}
