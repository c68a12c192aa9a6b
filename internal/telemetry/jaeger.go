package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ServiceName identifies the sync server in traces and metrics
const ServiceName = "collab-sync"

// defaultSampleRatio keeps a quarter of root traces; every inbound frame gets a span
const defaultSampleRatio = 0.25

// TracingConfig selects where spans go
type TracingConfig struct {
	Endpoint    string  // Jaeger collector URL; empty disables export
	SampleRatio float64 // fraction of root traces kept; 0 means the default
	Version     string
}

// InitJaeger installs a global tracer provider exporting to Jaeger.
// The returned function flushes buffered spans; it is never nil.
func InitJaeger(cfg TracingConfig) (func(context.Context) error, error) {
	flush := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		log.Println("  Tracing disabled (JAEGER_ENDPOINT not set)")
		return flush, nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return flush, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	// Schemaless: resource.Default() may carry a different semconv schema URL
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return flush, fmt.Errorf("failed to build trace resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = defaultSampleRatio
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(provider)

	log.Printf("✓ Jaeger tracing initialized: %s (sampling %.0f%%)", cfg.Endpoint, ratio*100)
	return provider.Shutdown, nil
}
