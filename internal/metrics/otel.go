package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTel is a Sink that records events as OpenTelemetry instruments on the
// given meter.
type OTel struct {
	service string

	circuitState    metric.Int64Gauge
	circuitFailures metric.Int64Counter
	bulkheadActive  metric.Int64UpDownCounter
	bulkheadReject  metric.Int64Counter
	orders          metric.Int64Counter
}

// NewOTel creates the instruments up front so recording never fails.
func NewOTel(meter metric.Meter, service string) (*OTel, error) {
	if meter == nil {
		return nil, fmt.Errorf("metrics: meter cannot be nil")
	}

	s := &OTel{service: service}

	var err error
	if s.circuitState, err = meter.Int64Gauge("circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)")); err != nil {
		return nil, fmt.Errorf("metrics: circuit_breaker.state: %w", err)
	}
	if s.circuitFailures, err = meter.Int64Counter("circuit_breaker.failures",
		metric.WithDescription("Failed calls observed by circuit breakers"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("metrics: circuit_breaker.failures: %w", err)
	}
	if s.bulkheadActive, err = meter.Int64UpDownCounter("bulkhead.active_requests",
		metric.WithDescription("Active requests in bulkhead"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("metrics: bulkhead.active_requests: %w", err)
	}
	if s.bulkheadReject, err = meter.Int64Counter("bulkhead.rejected_requests",
		metric.WithDescription("Requests rejected by bulkhead"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("metrics: bulkhead.rejected_requests: %w", err)
	}
	if s.orders, err = meter.Int64Counter("orders",
		metric.WithDescription("Orders by terminal status"), metric.WithUnit("1")); err != nil {
		return nil, fmt.Errorf("metrics: orders: %w", err)
	}

	return s, nil
}

func (s *OTel) attrs(dependency, nameKey, name string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("service", s.service),
		attribute.String("dependency", dependency),
		attribute.String(nameKey, name),
	)
}

func (s *OTel) CircuitStateChanged(dependency, circuit string, state int) {
	s.circuitState.Record(context.Background(), int64(state), s.attrs(dependency, "circuit_name", circuit))
}

func (s *OTel) CircuitFailure(dependency, circuit string) {
	s.circuitFailures.Add(context.Background(), 1, s.attrs(dependency, "circuit_name", circuit))
}

func (s *OTel) BulkheadOccupancy(dependency, bulkhead string, delta int) {
	s.bulkheadActive.Add(context.Background(), int64(delta), s.attrs(dependency, "bulkhead_name", bulkhead))
}

func (s *OTel) BulkheadRejected(dependency, bulkhead string) {
	s.bulkheadReject.Add(context.Background(), 1, s.attrs(dependency, "bulkhead_name", bulkhead))
}

func (s *OTel) OrderOutcome(status string) {
	s.orders.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}
