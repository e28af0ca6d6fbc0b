package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/resilient-orders/internal/coordinator"
	"github.com/jcmexdev/resilient-orders/internal/coordinator/sagalog"
	"github.com/jcmexdev/resilient-orders/internal/metrics"
	"github.com/jcmexdev/resilient-orders/internal/order-service/adapters/grpc/mappers"
	"github.com/jcmexdev/resilient-orders/internal/order-service/domain"
	"github.com/jcmexdev/resilient-orders/internal/order-service/ports"
	"github.com/jcmexdev/resilient-orders/internal/resilience"
	inventoryv1 "github.com/jcmexdev/resilient-orders/internal/rpc/inventory/v1"
	paymentv1 "github.com/jcmexdev/resilient-orders/internal/rpc/payment/v1"
)

const tracerName = "github.com/jcmexdev/resilient-orders/internal/order-service/app"

const (
	DependencyInventory = "inventory"
	DependencyPayment   = "payment"
)

// OutcomeValidationFailed is reported to the metrics sink for requests that
// never became an order.
const OutcomeValidationFailed = "validation_failed"

const completedMessage = "Order processed successfully"

var _ ports.OrderService = (*OrderService)(nil)

type OrderService struct {
	registry *Registry

	inventory       *resilience.Dependency
	inventoryClient inventoryv1.InventoryClient
	payment         *resilience.Dependency
	paymentClient   paymentv1.PaymentClient

	journal sagalog.Repository
	sink    metrics.Sink
	logger  *slog.Logger
	tracer  trace.Tracer
}

type Option func(*OrderService)

// WithJournal records every saga transition in repo.
func WithJournal(repo sagalog.Repository) Option {
	return func(s *OrderService) { s.journal = repo }
}

func WithSink(sink metrics.Sink) Option {
	return func(s *OrderService) { s.sink = metrics.OrDefault(sink) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *OrderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *OrderService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func NewOrderService(
	registry *Registry,
	inventory *resilience.Dependency,
	inventoryClient inventoryv1.InventoryClient,
	payment *resilience.Dependency,
	paymentClient paymentv1.PaymentClient,
	opts ...Option,
) *OrderService {
	s := &OrderService{
		registry:        registry,
		inventory:       inventory,
		inventoryClient: inventoryClient,
		payment:         payment,
		paymentClient:   paymentClient,
		sink:            metrics.Nop{},
		logger:          slog.Default(),
		tracer:          otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder validates the items, registers a pending order and runs the
// reserve and charge saga to completion. The saga is detached from ctx
// cancellation so every created order reaches a terminal status.
func (s *OrderService) PlaceOrder(ctx context.Context, items []domain.LineItem) (*domain.Order, error) {
	items, err := domain.Validate(items)
	if err != nil {
		s.sink.OrderOutcome(OutcomeValidationFailed)
		s.logger.InfoContext(ctx, "order rejected", "reason", string(domain.ReasonValidation), "error", err)
		return nil, err
	}

	order := s.registry.Create(items)

	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "PlaceOrder", trace.WithAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.total", order.Total.String()),
	))
	defer span.End()

	s.logger.InfoContext(ctx, "processing order",
		"order_id", order.ID,
		"items", len(order.Items),
		"total", order.Total.String(),
	)

	saga := coordinator.NewOrchestrator(order.ID, []coordinator.Step{
		coordinator.NewInventoryStep(s.inventory, s.inventoryClient, order.ID, mappers.StockItemsToProto(order.Items)),
		coordinator.NewPaymentStep(s.payment, s.paymentClient, order.ID, order.Total),
	},
		coordinator.WithJournal(s.journal),
		coordinator.WithLogger(s.logger),
		coordinator.WithTracer(s.tracer),
		coordinator.WithObserver(s.observer(ctx, order.ID)),
	)

	status, reason, message := domain.StatusCompleted, domain.ReasonNone, completedMessage
	if err := saga.Start(ctx, mappers.SagaPayload(order)); err != nil {
		status, reason, message = domain.StatusFailed, classify(err), failureMessage(err)
		span.SetStatus(codes.Error, message)
	}

	finished, err := s.registry.Finish(order.ID, status, reason, message)
	if err != nil {
		// Only reachable if the order was finished twice.
		return nil, fmt.Errorf("finish order %s: %w", order.ID, err)
	}

	s.sink.OrderOutcome(string(finished.Status))
	span.SetAttributes(attribute.String("order.status", string(finished.Status)))
	s.logger.InfoContext(ctx, "order finished",
		"order_id", finished.ID,
		"status", string(finished.Status),
		"reason", string(finished.Reason),
	)
	return finished, nil
}

func (s *OrderService) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	return s.registry.Get(id)
}

// Journal returns the saga log of an order, oldest entry first.
func (s *OrderService) Journal(ctx context.Context, id string) ([]sagalog.SagaLog, error) {
	if s.journal == nil {
		return nil, ports.ErrJournalDisabled
	}
	if _, err := s.registry.Get(id); err != nil {
		return nil, err
	}
	return s.journal.List(ctx, id)
}

func (s *OrderService) CircuitStatus(context.Context) []ports.DependencyStatus {
	return []ports.DependencyStatus{dependencyStatus(s.inventory), dependencyStatus(s.payment)}
}

// SetCircuitMode applies an operator override to the named dependency's
// breaker and returns the resulting status.
func (s *OrderService) SetCircuitMode(ctx context.Context, dependency string, mode ports.CircuitMode) (ports.DependencyStatus, error) {
	var dep *resilience.Dependency
	switch dependency {
	case DependencyInventory:
		dep = s.inventory
	case DependencyPayment:
		dep = s.payment
	default:
		return ports.DependencyStatus{}, fmt.Errorf("%w: %q", ports.ErrUnknownDependency, dependency)
	}

	breaker := dep.Breaker()
	switch mode {
	case ports.CircuitModeOpen:
		breaker.ForceOpen()
	case ports.CircuitModeClosed:
		breaker.ForceClose()
	case ports.CircuitModeAuto:
		breaker.Auto()
	case ports.CircuitModeReset:
		breaker.Reset()
	default:
		return ports.DependencyStatus{}, fmt.Errorf("%w: %q", ports.ErrUnknownMode, mode)
	}

	s.logger.WarnContext(ctx, "circuit mode changed",
		"dependency", dependency,
		"mode", string(mode),
		"state", breaker.State().String(),
	)
	return dependencyStatus(dep), nil
}

func (s *OrderService) observer(ctx context.Context, orderID string) func(coordinator.Event) {
	return func(e coordinator.Event) {
		rec := domain.StepRecord{Name: e.Step, Status: stepStatus(e.Kind)}
		if e.Err != nil {
			rec.Error = e.Err.Error()
		}
		if e.Kind == coordinator.EventCompensationFailed {
			s.logger.ErrorContext(ctx, "order needs manual reconciliation",
				"order_id", orderID,
				"step", e.Step,
				"reason", string(domain.ReasonCompensation),
				"error", fmt.Errorf("%w: %w", domain.ErrCompensation, e.Err),
			)
		}
		if err := s.registry.RecordStep(orderID, rec); err != nil {
			s.logger.ErrorContext(ctx, "failed to record step", "order_id", orderID, "step", e.Step, "error", err)
		}
	}
}

func stepStatus(kind coordinator.EventKind) domain.StepStatus {
	switch kind {
	case coordinator.EventStepDone:
		return domain.StepCompleted
	case coordinator.EventCompensated:
		return domain.StepCompensated
	case coordinator.EventCompensationFailed:
		return domain.StepCompensationFailed
	default:
		return domain.StepFailed
	}
}

// classify maps a saga failure to the reason surfaced on the order.
func classify(err error) domain.Reason {
	if !resilience.IsFastFail(err) {
		return domain.ReasonDownstream
	}
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return domain.ReasonCircuitOpen
	case errors.Is(err, resilience.ErrTooManyRequests):
		return domain.ReasonTooManyRequests
	case errors.Is(err, resilience.ErrCapacityExceeded):
		return domain.ReasonCapacityExceeded
	default:
		return domain.ReasonDownstream
	}
}

func failureMessage(err error) string {
	msg := "Order processing failed: " + err.Error()

	var stepErr *coordinator.StepError
	if errors.As(err, &stepErr) && len(stepErr.Compensations) > 0 {
		msg += "; compensation failed, manual reconciliation required"
	}
	return msg
}

func dependencyStatus(dep *resilience.Dependency) ports.DependencyStatus {
	bulkhead := dep.Bulkhead()
	return ports.DependencyStatus{
		Dependency: dep.Name(),
		Circuit:    dep.Breaker().Status(),
		Bulkhead: ports.BulkheadStatus{
			Name:      bulkhead.Name(),
			Capacity:  bulkhead.Capacity(),
			Occupancy: bulkhead.Occupancy(),
		},
		CallTimeout: dep.CallTimeout(),
	}
}
