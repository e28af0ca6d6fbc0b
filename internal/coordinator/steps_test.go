package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/resilient-orders/internal/resilience"
	inventoryv1 "github.com/jcmexdev/resilient-orders/internal/rpc/inventory/v1"
	paymentv1 "github.com/jcmexdev/resilient-orders/internal/rpc/payment/v1"
)

type stubInventory struct {
	reserve   *inventoryv1.ReserveResponse
	reserveEr error
	release   *inventoryv1.ReleaseResponse
	releaseEr error

	reserveCalls int
	releaseCalls int
	lastDeadline time.Duration
}

func (s *stubInventory) Reserve(ctx context.Context, _ *inventoryv1.ReserveRequest, _ ...grpc.CallOption) (*inventoryv1.ReserveResponse, error) {
	s.reserveCalls++
	return s.reserve, s.reserveEr
}

func (s *stubInventory) Release(ctx context.Context, _ *inventoryv1.ReleaseRequest, _ ...grpc.CallOption) (*inventoryv1.ReleaseResponse, error) {
	s.releaseCalls++
	if d, ok := ctx.Deadline(); ok {
		s.lastDeadline = time.Until(d)
	}
	return s.release, s.releaseEr
}

func (s *stubInventory) Check(context.Context, *inventoryv1.CheckRequest, ...grpc.CallOption) (*inventoryv1.CheckResponse, error) {
	return nil, status.Error(codes.Unimplemented, "")
}

type stubPayment struct {
	charge   *paymentv1.ChargeResponse
	chargeEr error
	calls    int
}

func (s *stubPayment) Charge(context.Context, *paymentv1.ChargeRequest, ...grpc.CallOption) (*paymentv1.ChargeResponse, error) {
	s.calls++
	return s.charge, s.chargeEr
}

func (s *stubPayment) Refund(context.Context, *paymentv1.RefundRequest, ...grpc.CallOption) (*paymentv1.RefundResponse, error) {
	return &paymentv1.RefundResponse{Success: true}, nil
}

func newDep(name string) *resilience.Dependency {
	return resilience.NewDependency(name,
		resilience.NewBulkhead(name+"-bulkhead", name, resilience.BulkheadConfig{Capacity: 2, AcquireTimeout: 20 * time.Millisecond}),
		resilience.NewBreaker(name+"-circuit", name, resilience.DefaultBreakerConfig()),
		time.Second,
	)
}

func TestInventoryStep_Execute(t *testing.T) {
	inv := &stubInventory{reserve: &inventoryv1.ReserveResponse{Success: true}}
	dep := newDep("inventory")
	step := NewInventoryStep(dep, inv, "o-1", []*inventoryv1.StockItem{{ItemId: "item-1", Quantity: 1}})

	require.NoError(t, step.Execute(context.Background()))
	assert.Equal(t, 1, inv.reserveCalls)
	assert.Equal(t, uint32(1), dep.Breaker().Counts().TotalSuccesses)
}

func TestInventoryStep_BusinessRejectionIsFailure(t *testing.T) {
	inv := &stubInventory{reserve: &inventoryv1.ReserveResponse{Success: false, Message: "Insufficient stock"}}
	dep := newDep("inventory")
	step := NewInventoryStep(dep, inv, "o-1", nil)

	err := step.Execute(context.Background())

	assert.ErrorIs(t, err, ErrRejected)
	assert.ErrorIs(t, err, resilience.ErrDownstream)
	assert.Contains(t, err.Error(), "Insufficient stock")
	assert.Equal(t, uint32(1), dep.Breaker().Counts().TotalFailures)
}

func TestInventoryStep_OpenCircuitSkipsCall(t *testing.T) {
	inv := &stubInventory{}
	dep := newDep("inventory")
	dep.Breaker().ForceOpen()
	step := NewInventoryStep(dep, inv, "o-1", nil)

	err := step.Execute(context.Background())

	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Zero(t, inv.reserveCalls)
}

func TestInventoryStep_CompensateIsNotGated(t *testing.T) {
	inv := &stubInventory{release: &inventoryv1.ReleaseResponse{Success: true}}
	dep := newDep("inventory")
	dep.Breaker().ForceOpen()
	step := NewInventoryStep(dep, inv, "o-1", nil)

	require.NoError(t, step.Compensate(context.Background()))
	assert.Equal(t, 1, inv.releaseCalls)
	assert.Greater(t, inv.lastDeadline, time.Duration(0))
	assert.LessOrEqual(t, inv.lastDeadline, time.Second)
}

func TestInventoryStep_CompensateFailure(t *testing.T) {
	inv := &stubInventory{releaseEr: status.Error(codes.Unavailable, "down")}
	step := NewInventoryStep(newDep("inventory"), inv, "o-1", nil)

	err := step.Compensate(context.Background())

	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}

func TestPaymentStep_Execute(t *testing.T) {
	tests := []struct {
		name    string
		stub    *stubPayment
		wantErr error
	}{
		{"completed", &stubPayment{charge: &paymentv1.ChargeResponse{Status: paymentv1.TransactionStatusCompleted}}, nil},
		{"declined", &stubPayment{charge: &paymentv1.ChargeResponse{Status: paymentv1.TransactionStatusFailed}}, ErrRejected},
		{"transport", &stubPayment{chargeEr: status.Error(codes.Unavailable, "down")}, resilience.ErrDownstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := NewPaymentStep(newDep("payment"), tt.stub, "o-1", decimal.RequireFromString("999.99"))

			err := step.Execute(context.Background())

			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, 1, tt.stub.calls)
		})
	}
}
