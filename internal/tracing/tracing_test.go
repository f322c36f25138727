package tracing_test

import (
	"context"
	"testing"

	"github.com/jamienicol/xbench/internal/config"
	"github.com/jamienicol/xbench/internal/tracing"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	provider, err := tracing.Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if provider.Tracer() == nil {
		t.Fatal("no-op provider must still return a tracer")
	}
	_, span := provider.Tracer().Start(context.Background(), "test")
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer must not produce recorded spans")
	}
	span.End()
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown of a no-op provider: %v", err)
	}
}

func TestInitRejectsBadSampleRatio(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:    "localhost:4317",
		SampleRatio: 1.5,
	})
	if err == nil {
		t.Fatal("want error for sample ratio > 1")
	}
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:    "localhost:4317",
		Protocol:    "carrier-pigeon",
		SampleRatio: 1.0,
	})
	if err == nil {
		t.Fatal("want error for unknown protocol")
	}
}

func TestNilProviderIsSafe(t *testing.T) {
	var provider *tracing.Provider
	if provider.Tracer() == nil {
		t.Error("nil provider must return a usable tracer")
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown: %v", err)
	}
}
