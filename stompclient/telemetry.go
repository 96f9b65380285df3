package main

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// setupTracing installs the global tracer provider and returns the tracer
// the client records command spans with, plus the provider's shutdown
// function. Spans are exported to w so they never interleave with the
// REPL's stdout.
func setupTracing(ctx context.Context, cfg TracerConfig, w io.Writer) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.Enabled {
		return disabledTracing()
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp
	case "noop", "":
		return disabledTracing()
	default:
		return nil, nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", appName),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp.Tracer(appName, trace.WithInstrumentationVersion(version)), tp.Shutdown, nil
}

func disabledTracing() (trace.Tracer, func(context.Context) error, error) {
	tp := noop.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Tracer(appName), func(context.Context) error { return nil }, nil
}
