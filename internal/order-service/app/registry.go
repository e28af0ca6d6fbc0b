package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jcmexdev/resilient-orders/internal/order-service/domain"
)

// Registry keeps every order in memory for the life of the process. Reads
// return copies; mutation goes through the registry only.
type Registry struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	newID func() string
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		orders: make(map[string]*domain.Order),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Create registers a pending order for already validated items.
func (r *Registry) Create(items []domain.LineItem) *domain.Order {
	order := domain.NewOrder(r.newID(), items, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = order

	return order.Clone()
}

func (r *Registry) Get(id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	return order.Clone(), nil
}

// RecordStep appends to the step history of a pending order.
func (r *Registry) RecordStep(id string, rec domain.StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, err := r.pending(id)
	if err != nil {
		return err
	}
	if rec.At.IsZero() {
		rec.At = r.now().UTC()
	}
	order.Steps = append(order.Steps, rec)
	return nil
}

// Finish moves a pending order to a terminal status.
func (r *Registry) Finish(id string, status domain.Status, reason domain.Reason, message string) (*domain.Order, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("order %s: %q is not a terminal status", id, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order, err := r.pending(id)
	if err != nil {
		return nil, err
	}
	order.Status = status
	order.Reason = reason
	order.Message = message
	order.FinishedAt = r.now().UTC()

	return order.Clone(), nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// pending must be called with the write lock held.
func (r *Registry) pending(id string) (*domain.Order, error) {
	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderNotFound)
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrOrderFinalized)
	}
	return order, nil
}
