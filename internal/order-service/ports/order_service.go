package ports

import (
	"context"
	"errors"
	"time"

	"github.com/jcmexdev/resilient-orders/internal/coordinator/sagalog"
	"github.com/jcmexdev/resilient-orders/internal/order-service/domain"
	"github.com/jcmexdev/resilient-orders/internal/resilience"
)

var (
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrUnknownMode       = errors.New("unknown circuit mode")
	ErrJournalDisabled   = errors.New("saga journal is disabled")
)

// CircuitMode is an operator command for a dependency's breaker.
type CircuitMode string

const (
	CircuitModeOpen   CircuitMode = "open"
	CircuitModeClosed CircuitMode = "closed"
	CircuitModeAuto   CircuitMode = "auto"
	CircuitModeReset  CircuitMode = "reset"
)

type BulkheadStatus struct {
	Name      string
	Capacity  int
	Occupancy int
}

// DependencyStatus is the guard state of one downstream dependency.
type DependencyStatus struct {
	Dependency  string
	Circuit     resilience.BreakerStatus
	Bulkhead    BulkheadStatus
	CallTimeout time.Duration
}

type OrderService interface {
	// PlaceOrder validates items and drives a new order to a terminal
	// status. Only validation errors are returned as errors; every other
	// failure is reported on the returned order.
	PlaceOrder(ctx context.Context, items []domain.LineItem) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	Journal(ctx context.Context, id string) ([]sagalog.SagaLog, error)
	CircuitStatus(ctx context.Context) []DependencyStatus
	SetCircuitMode(ctx context.Context, dependency string, mode CircuitMode) (DependencyStatus, error)
}
