// Package otel wires OpenTelemetry tracing for command entry points.
package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects where scenario traces are exported.
type Config struct {
	Endpoint    string  `env:"APSYS_OTEL_ENDPOINT"`
	Enabled     bool    `env:"APSYS_OTEL_ENABLED" envDefault:"true"`
	SampleRatio float64 `env:"APSYS_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// Exporting reports whether cfg asks for spans to leave the process.
func (c Config) Exporting() bool {
	return c.Enabled && strings.TrimSpace(c.Endpoint) != ""
}

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup registers a global tracer provider exporting to cfg.Endpoint. When
// export is off, nothing is registered and the returned Shutdown is a no-op,
// so the runner's spans go to the default no-op provider.
func Setup(ctx context.Context, service string, cfg Config) (Shutdown, error) {
	if !cfg.Exporting() {
		return noop, nil
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return noop, fmt.Errorf("sample ratio %v is outside [0, 1]", cfg.SampleRatio)
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(strings.TrimSpace(cfg.Endpoint)))
	if err != nil {
		return noop, fmt.Errorf("trace exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return noop, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
