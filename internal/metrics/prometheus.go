package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus is a Sink backed by Prometheus collectors registered on an
// explicit registerer, never the global default one.
type Prometheus struct {
	service string

	circuitState    *prometheus.GaugeVec
	circuitFailures *prometheus.CounterVec
	bulkheadActive  *prometheus.GaugeVec
	bulkheadReject  *prometheus.CounterVec
	orders          *prometheus.CounterVec
}

// NewPrometheus registers the resilience collectors on reg. service is
// used as the "service" label of every breaker and bulkhead series.
func NewPrometheus(reg prometheus.Registerer, service string) *Prometheus {
	factory := promauto.With(reg)

	return &Prometheus{
		service: service,
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service", "dependency", "circuit_name"},
		),
		circuitFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_failures_total",
				Help: "Total number of failed calls observed by circuit breakers",
			},
			[]string{"service", "dependency", "circuit_name"},
		),
		bulkheadActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bulkhead_active_requests",
				Help: "Number of active requests in bulkhead",
			},
			[]string{"service", "dependency", "bulkhead_name"},
		),
		bulkheadReject: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bulkhead_rejected_requests_total",
				Help: "Total number of rejected requests by bulkhead",
			},
			[]string{"service", "dependency", "bulkhead_name"},
		),
		orders: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_total",
				Help: "Total number of orders by terminal status",
			},
			[]string{"status"},
		),
	}
}

func (p *Prometheus) CircuitStateChanged(dependency, circuit string, state int) {
	p.circuitState.WithLabelValues(p.service, dependency, circuit).Set(float64(state))
}

func (p *Prometheus) CircuitFailure(dependency, circuit string) {
	p.circuitFailures.WithLabelValues(p.service, dependency, circuit).Inc()
}

func (p *Prometheus) BulkheadOccupancy(dependency, bulkhead string, delta int) {
	p.bulkheadActive.WithLabelValues(p.service, dependency, bulkhead).Add(float64(delta))
}

func (p *Prometheus) BulkheadRejected(dependency, bulkhead string) {
	p.bulkheadReject.WithLabelValues(p.service, dependency, bulkhead).Inc()
}

func (p *Prometheus) OrderOutcome(status string) {
	p.orders.WithLabelValues(status).Inc()
}
