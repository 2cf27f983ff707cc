package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/lodge/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTracing installs the tracer provider selected by tracing.exporter.
// With "none" the global no-op provider stays in place.
func setupTracing(cfg *config.LodgeConfig, w io.Writer) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	exporterName := "none"
	if cfg.Tracing != nil && cfg.Tracing.Exporter != "" {
		exporterName = cfg.Tracing.Exporter
	}

	switch exporterName {
	case "none":
		return noop, nil
	case "stdout":
	default:
		return noop, fmt.Errorf("unknown tracing exporter: %s", exporterName)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return noop, fmt.Errorf("create exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "lodged"),
		attribute.String("lodge.instance", cfg.Instance),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
