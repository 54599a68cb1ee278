// Copyright (c) 2025 Harbornet and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package observe bootstraps trace exporting for server processes.
package observe

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Initializer constructs a trace.TracerProvider.
type Initializer interface {
	Init(context.Context) (trace.TracerProvider, error)
}

// InitializerFunc is a functional implementation of Initializer.
type InitializerFunc func(context.Context) (trace.TracerProvider, error)

// Init implements the Initializer interface.
func (f InitializerFunc) Init(ctx context.Context) (trace.TracerProvider, error) {
	return f(ctx)
}

// Noop returns an Initializer which leaves the globally registered
// provider in place.
func Noop() Initializer {
	return InitializerFunc(func(context.Context) (trace.TracerProvider, error) {
		return otel.GetTracerProvider(), nil
	})
}

// Common holds settings shared by every exporter.
type Common struct {
	ServiceName string `harbor:"service_name"`
}

// Option configures any of the provided Initializers.
type Option func(*Common)

// ServiceName sets the service.name resource attribute on exported spans.
func ServiceName(name string) Option {
	return func(c *Common) {
		c.ServiceName = name
	}
}

func newResource(ctx context.Context, c Common) (*resource.Resource, error) {
	return resource.New(
		ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(c.ServiceName),
		),
	)
}

// Stdout returns an Initializer exporting spans to the given writer.
// A nil writer defaults to os.Stdout. Meant for local development.
func Stdout(w io.Writer, opts ...Option) Initializer {
	var c Common
	for _, opt := range opts {
		opt(&c)
	}

	return InitializerFunc(func(ctx context.Context) (trace.TracerProvider, error) {
		if w == nil {
			w = os.Stdout
		}

		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(w),
		)
		if err != nil {
			return nil, err
		}

		res, err := newResource(ctx, c)
		if err != nil {
			return nil, err
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		return tp, nil
	})
}

// OTLP returns an Initializer exporting spans over OTLP gRPC to the
// given target, e.g. "localhost:4317". The connection is plaintext;
// front it with a local collector in production.
func OTLP(target string, opts ...Option) Initializer {
	var c Common
	for _, opt := range opts {
		opt(&c)
	}

	return InitializerFunc(func(ctx context.Context) (trace.TracerProvider, error) {
		exporter, err := otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpoint(target),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}

		res, err := newResource(ctx, c)
		if err != nil {
			return nil, err
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithResource(res),
			sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
		)
		return tp, nil
	})
}

// Register initializes a provider, installs it globally and returns
// a shutdown hook which flushes any buffered spans. The hook is safe
// to register as an app.Lifecycle PostRun hook.
func Register(ctx context.Context, init Initializer) (func(context.Context) error, error) {
	tp, err := init.Init(ctx)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		sdk, ok := tp.(*sdktrace.TracerProvider)
		if !ok {
			return nil
		}
		return sdk.Shutdown(ctx)
	}, nil
}
