package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/resilient-orders/internal/resilience"
	inventoryv1 "github.com/jcmexdev/resilient-orders/internal/rpc/inventory/v1"
	paymentv1 "github.com/jcmexdev/resilient-orders/internal/rpc/payment/v1"
)

// ErrRejected marks a call that reached the downstream service and was
// refused by it.
var ErrRejected = errors.New("rejected by downstream service")

const (
	ReserveInventoryStepName = "reserve_inventory"
	ChargePaymentStepName    = "charge_payment"
)

// --- InventoryStep ---

// InventoryStep reserves stock through the inventory dependency guards. Its
// compensation releases the reservation directly, without the guards.
type InventoryStep struct {
	dep     *resilience.Dependency
	client  inventoryv1.InventoryClient
	orderID string
	items   []*inventoryv1.StockItem
}

func NewInventoryStep(dep *resilience.Dependency, client inventoryv1.InventoryClient, orderID string, items []*inventoryv1.StockItem) *InventoryStep {
	return &InventoryStep{
		dep:     dep,
		client:  client,
		orderID: orderID,
		items:   items,
	}
}

func (s *InventoryStep) Name() string { return ReserveInventoryStepName }

func (s *InventoryStep) Execute(ctx context.Context) error {
	return s.dep.Call(ctx, func(ctx context.Context) error {
		res, err := s.client.Reserve(ctx, &inventoryv1.ReserveRequest{
			OrderId: s.orderID,
			Items:   s.items,
		})
		if err != nil {
			return fmt.Errorf("inventory service error: %w", err)
		}
		if !res.Success {
			return fmt.Errorf("%w: reservation failed: %s", ErrRejected, res.Message)
		}
		return nil
	})
}

func (s *InventoryStep) Compensate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, compensationTimeout(s.dep))
	defer cancel()

	res, err := s.client.Release(ctx, &inventoryv1.ReleaseRequest{
		OrderId: s.orderID,
		Items:   s.items,
	})
	if err != nil {
		return fmt.Errorf("inventory service error: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("release refused for order %s: %s", s.orderID, res.Message)
	}
	return nil
}

// --- PaymentStep ---

type PaymentStep struct {
	dep     *resilience.Dependency
	client  paymentv1.PaymentClient
	orderID string
	amount  decimal.Decimal
}

func NewPaymentStep(dep *resilience.Dependency, client paymentv1.PaymentClient, orderID string, amount decimal.Decimal) *PaymentStep {
	return &PaymentStep{
		dep:     dep,
		client:  client,
		orderID: orderID,
		amount:  amount,
	}
}

func (s *PaymentStep) Name() string { return ChargePaymentStepName }

func (s *PaymentStep) Execute(ctx context.Context) error {
	return s.dep.Call(ctx, func(ctx context.Context) error {
		res, err := s.client.Charge(ctx, &paymentv1.ChargeRequest{
			OrderId: s.orderID,
			Amount:  s.amount,
		})
		if err != nil {
			return fmt.Errorf("payment service error: %w", err)
		}
		if res.GetStatus() != paymentv1.TransactionStatusCompleted {
			return fmt.Errorf("%w: payment %s: %s", ErrRejected, res.GetStatus(), res.Message)
		}
		return nil
	})
}

func (s *PaymentStep) Compensate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, compensationTimeout(s.dep))
	defer cancel()

	res, err := s.client.Refund(ctx, &paymentv1.RefundRequest{OrderId: s.orderID})
	if err != nil {
		return fmt.Errorf("payment service error: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("refund refused for order %s: %s", s.orderID, res.Message)
	}
	return nil
}

func compensationTimeout(dep *resilience.Dependency) time.Duration {
	if dep == nil {
		return resilience.DefaultCallTimeout
	}
	return dep.CallTimeout()
}
