// Package telemetry provides OpenTelemetry integration for ticketledger.
//
// Telemetry is disabled by default (zero runtime overhead when off).
//
// # Configuration
//
//	TICKETLEDGER_OTEL_ENABLED=true    enable telemetry (or telemetry.enabled in config)
//	TICKETLEDGER_OTEL_STDOUT=true     write spans/metrics to stdout (or telemetry.stdout)
//	OTEL_EXPORTER_OTLP_ENDPOINT=...   OTLP/HTTP metrics endpoint (e.g. localhost:4318)
//	OTEL_EXPORTER_OTLP_TRACES_ENDPOINT=...  OTLP/gRPC traces endpoint (e.g. localhost:4317)
//
// # Supported exporters
//
//   - stdout: pretty-prints spans and metrics (dev mode)
//   - OTLP/HTTP metrics: Grafana, Honeycomb, Datadog, etc.
//   - OTLP/gRPC traces: Jaeger, Tempo, any OTel collector
package telemetry

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationScope = "github.com/steveyegge/ticketledger"

// Options selects exporters. Environment variables can switch either flag on.
type Options struct {
	Enabled     bool
	Stdout      bool
	ServiceName string
	Version     string
}

var (
	enabled     atomic.Bool
	shutdownFns []func(context.Context) error
)

// Enabled reports whether telemetry is active.
func Enabled() bool {
	return enabled.Load() || os.Getenv("TICKETLEDGER_OTEL_ENABLED") == "true"
}

// Init configures OTel providers. When telemetry is not enabled this
// installs no-op providers and returns immediately.
func Init(ctx context.Context, opts Options) error {
	if opts.Enabled {
		enabled.Store(true)
	}
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}
	stdout := opts.Stdout || os.Getenv("TICKETLEDGER_OTEL_STDOUT") == "true"

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "ticketledger"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", opts.Version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return errors.Wrap(err, "telemetry: resource")
	}

	tp, err := buildTraceProvider(ctx, res, stdout)
	if err != nil {
		return errors.Wrap(err, "telemetry: trace provider")
	}
	otel.SetTracerProvider(tp)
	shutdownFns = append(shutdownFns, tp.Shutdown)

	mp, err := buildMetricProvider(ctx, res, stdout)
	if err != nil {
		return errors.Wrap(err, "telemetry: metric provider")
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	return nil
}

func buildTraceProvider(ctx context.Context, res *resource.Resource, stdout bool) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	// Without an exporter spans are sampled for in-process consumers only.
	if stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); endpoint != "" {
		exp, err := buildOTLPTraceExporter(ctx, endpoint)
		if err != nil {
			return nil, errors.Wrap(err, "otlp trace exporter")
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func buildMetricProvider(ctx context.Context, res *resource.Resource, stdout bool) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if stdout {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}

	if endpoint := firstNonEmpty(
		os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"),
		os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	); endpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, endpoint)
		if err != nil {
			return nil, errors.Wrap(err, "otlp metric exporter")
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Tracer returns a tracer with the given instrumentation name (or the global scope).
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Tracer(name)
}

// Meter returns a meter with the given instrumentation name (or the global scope).
func Meter(name string) metric.Meter {
	if name == "" {
		name = instrumentationScope
	}
	return otel.Meter(name)
}

// Shutdown flushes all spans/metrics and shuts down OTel providers.
// Should be deferred with a short-lived context.
func Shutdown(ctx context.Context) {
	for _, fn := range shutdownFns {
		_ = fn(ctx)
	}
	shutdownFns = nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
