// Package telemetry installs the OpenTelemetry providers used by the spans
// in the tokensale services and the otelgin middleware.
package telemetry

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/Aidin1998/tokenledger/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Setup installs a propagator and, when enabled, stdout trace and metric
// providers writing to w (stdout if nil). The returned function flushes and
// shuts them down.
func Setup(ctx context.Context, service string, cfg config.TelemetryConfig, w io.Writer) (func(context.Context) error, error) {
	if w == nil {
		w = os.Stdout
	}
	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	res := resource.NewSchemaless(attribute.String("service.name", service))

	if cfg.Tracing {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return shutdown, errors.Join(err, shutdown(ctx))
		}
		tp := trace.NewTracerProvider(
			trace.WithBatcher(exporter),
			trace.WithResource(res),
		)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}

	if cfg.Metrics {
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return shutdown, errors.Join(err, shutdown(ctx))
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(exporter)),
			metric.WithResource(res),
		)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		otel.SetMeterProvider(mp)
	}

	return shutdown, nil
}
