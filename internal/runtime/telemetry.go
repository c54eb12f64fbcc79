package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"

	"github.com/pocketlabs/pocket-core/internal/config"
)

// telemetry holds the process-wide providers. Traces go to an OTLP collector
// when one is configured and to stdout otherwise; metrics are served through
// the prometheus registry on the telemetry bind. A failed prometheus setup
// degrades to no metrics endpoint rather than refusing to start.
type telemetry struct {
	metrics   http.Handler
	shutdowns []func(context.Context) error
}

func buildTelemetry(cfg config.Config, logger *slog.Logger) (*telemetry, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.RuntimeName),
			semconv.DeploymentEnvironmentName(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	tel := &telemetry{}
	if err := tel.initTraces(cfg.Telemetry, res, logger); err != nil {
		return nil, err
	}
	tel.initMetrics(res, logger)
	return tel, nil
}

func (t *telemetry) initTraces(cfg config.TelemetryConfig, res *resource.Resource, logger *slog.Logger) error {
	exporter, name, err := newTraceExporter(cfg)
	if err != nil {
		return fmt.Errorf("trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	t.shutdowns = append(t.shutdowns, provider.Shutdown)
	logger.Info("trace exporter ready", slog.String("exporter", name))
	return nil
}

func newTraceExporter(cfg config.TelemetryConfig) (sdktrace.SpanExporter, string, error) {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		return exporter, "stdout", err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	return exporter, "otlp:" + endpoint, err
}

func (t *telemetry) initMetrics(res *resource.Resource, logger *slog.Logger) {
	exporter, err := prometheus.New()
	if err != nil {
		logger.Warn("prometheus exporter unavailable, metrics disabled", slog.String("error", err.Error()))
		otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)))
		return
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	t.shutdowns = append(t.shutdowns, provider.Shutdown)
	t.metrics = promhttp.Handler()
}

// Close flushes and stops the providers in reverse setup order.
func (t *telemetry) Close(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
