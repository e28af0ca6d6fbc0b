package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/jcmexdev/resilient-orders/internal/pkg/config"
)

// SetupMeter registers the global MeterProvider. With an empty endpoint the
// provider records but never exports.
func SetupMeter(ctx context.Context, cfg config.Telemetry) (*metric.MeterProvider, ShutdownFunc, error) {
	endpoint := stripScheme(cfg.Endpoint)
	if endpoint == "" {
		mp := metric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, mp.Shutdown, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: failed to create OTLP metric exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes("", semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: failed to build resource: %w", err)
	}

	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter)),
	)
	otel.SetMeterProvider(mp)

	return mp, mp.Shutdown, nil
}
