package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend holds the series published by the inventory and payment
// services.
type Backend struct {
	inventoryLevel *prometheus.GaugeVec
	paymentAmount  prometheus.Histogram
	chaosFailures  *prometheus.GaugeVec
	chaosSlow      *prometheus.GaugeVec
}

func NewBackend(reg prometheus.Registerer) *Backend {
	factory := promauto.With(reg)

	return &Backend{
		inventoryLevel: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "inventory_level",
				Help: "Current inventory level per item",
			},
			[]string{"item_id"},
		),
		paymentAmount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "payment_amount_dollars",
				Help:    "Payment amounts in dollars",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000},
			},
		),
		chaosFailures: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chaos_failure_enabled",
				Help: "Whether chaos failure mode is enabled (1=enabled, 0=disabled)",
			},
			[]string{"service"},
		),
		chaosSlow: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chaos_slow_mode_enabled",
				Help: "Whether chaos slow mode is enabled (1=enabled, 0=disabled)",
			},
			[]string{"service"},
		),
	}
}

func (b *Backend) InventoryLevel(itemID string, quantity int32) {
	b.inventoryLevel.WithLabelValues(itemID).Set(float64(quantity))
}

func (b *Backend) PaymentAmount(amount float64) {
	b.paymentAmount.Observe(amount)
}

func (b *Backend) ChaosModes(service string, failures, slow bool) {
	b.chaosFailures.WithLabelValues(service).Set(flag(failures))
	b.chaosSlow.WithLabelValues(service).Set(flag(slow))
}

func flag(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
