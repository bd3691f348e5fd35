// internal/telemetry/telemetry.go
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"libraripro/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup installs a batching OTLP/HTTP tracer provider when an endpoint is
// configured. Without one the global no-op provider stays in place. The
// returned func flushes and stops the exporter.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	var opt otlptracehttp.Option
	if strings.Contains(cfg.OTLPEndpoint, "://") {
		opt = otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint)
	} else {
		opt = otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)
	}
	opts := []otlptracehttp.Option{opt}
	if !strings.HasPrefix(cfg.OTLPEndpoint, "https://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "libraripro"
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
