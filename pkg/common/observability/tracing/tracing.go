/*
Copyright 2026 The Podo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tracing wires OpenTelemetry for podo. When tracing is not
// initialized the global no-op provider is used and spans cost nothing.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/podo-dev/podo/pkg/common/observability/logging"
	"github.com/podo-dev/podo/version"
)

const (
	serviceName   = "podo"
	defaultRatio  = 0.1
	tracerName    = "github.com/podo-dev/podo"
	samplerRatio  = "parentbased_traceidratio"
	exporterOTLP  = "otlp"
	exporterConso = "console"
)

// Tracer returns the podo tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

type errorHandler struct {
	logger logr.Logger
}

func (h *errorHandler) Handle(err error) {
	h.logger.V(logging.DEFAULT).Error(err, "trace error occurred")
}

// InitTracing installs a global tracer provider configured through the
// standard OTEL_* environment variables. The provider is flushed and shut
// down when ctx is cancelled.
func InitTracing(ctx context.Context, logger logr.Logger) error {
	logger = logger.WithName("trace")
	handler := &errorHandler{logger: logger}

	if _, ok := os.LookupEnv("OTEL_SERVICE_NAME"); !ok {
		os.Setenv("OTEL_SERVICE_NAME", serviceName)
	}
	if _, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); !ok {
		os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4317")
	}

	exporter, err := initTraceExporter(ctx, logger)
	if err != nil {
		handler.Handle(fmt.Errorf("init trace exporter failed: %w", err))
		return err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler(handler)),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.BuildRef),
		)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(handler)

	go func() {
		<-ctx.Done()
		if err := provider.Shutdown(context.Background()); err != nil {
			handler.Handle(fmt.Errorf("failed to shutdown TracerProvider: %w", err))
		}
		logger.V(logging.DEFAULT).Info("trace provider shutting down")
	}()

	return nil
}

// sampler honours OTEL_TRACES_SAMPLER(_ARG); the Go SDK leaves this to the caller.
func sampler(handler *errorHandler) sdktrace.Sampler {
	samplerType, ok := os.LookupEnv("OTEL_TRACES_SAMPLER")
	if !ok {
		samplerType = samplerRatio
	}
	if samplerType != samplerRatio {
		handler.Handle(fmt.Errorf("unsupported sampler type %q, falling back to %s", samplerType, samplerRatio))
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(defaultRatio))
	}
	fraction, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64)
	if err != nil {
		fraction = defaultRatio
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(fraction))
}

// initTraceExporter creates the exporter named by OTEL_TRACES_EXPORTER:
// "console" (default) pretty-prints spans, "otlp" ships them over gRPC.
func initTraceExporter(ctx context.Context, logger logr.Logger) (sdktrace.SpanExporter, error) {
	exporterType, ok := os.LookupEnv("OTEL_TRACES_EXPORTER")
	if !ok {
		exporterType = exporterConso
	}
	logger.Info("init OTel trace exporter", "type", exporterType)

	if exporterType == exporterOTLP {
		exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp-grpc exporter: %w", err)
		}
		return exporter, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdouttrace exporter: %w", err)
	}
	return exporter, nil
}
