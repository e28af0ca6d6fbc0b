package app

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/jcmexdev/resilient-orders/internal/coordinator"
	"github.com/jcmexdev/resilient-orders/internal/coordinator/sagalog"
	inventoryservice "github.com/jcmexdev/resilient-orders/internal/inventory-service"
	invdomain "github.com/jcmexdev/resilient-orders/internal/inventory-service/domain"
	"github.com/jcmexdev/resilient-orders/internal/order-service/domain"
	"github.com/jcmexdev/resilient-orders/internal/order-service/ports"
	paymentservice "github.com/jcmexdev/resilient-orders/internal/payment-service/app"
	"github.com/jcmexdev/resilient-orders/internal/resilience"
	inventoryv1 "github.com/jcmexdev/resilient-orders/internal/rpc/inventory/v1"
	paymentv1 "github.com/jcmexdev/resilient-orders/internal/rpc/payment/v1"
)

type fakeInventory struct {
	reserveErr error
	rejected   bool
	hold       chan struct{}

	reserves atomic.Int32
	releases atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeInventory) Reserve(ctx context.Context, _ *inventoryv1.ReserveRequest, _ ...grpc.CallOption) (*inventoryv1.ReserveResponse, error) {
	f.reserves.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.hold != nil {
		select {
		case <-f.hold:
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	if f.rejected {
		return &inventoryv1.ReserveResponse{Success: false, Message: "Insufficient stock"}, nil
	}
	return &inventoryv1.ReserveResponse{Success: true}, nil
}

func (f *fakeInventory) Release(context.Context, *inventoryv1.ReleaseRequest, ...grpc.CallOption) (*inventoryv1.ReleaseResponse, error) {
	f.releases.Add(1)
	return &inventoryv1.ReleaseResponse{Success: true}, nil
}

func (f *fakeInventory) Check(context.Context, *inventoryv1.CheckRequest, ...grpc.CallOption) (*inventoryv1.CheckResponse, error) {
	return nil, status.Error(codes.Unimplemented, "")
}

type fakePayment struct {
	chargeErr error
	charges   atomic.Int32
	refunds   atomic.Int32
}

func (f *fakePayment) Charge(context.Context, *paymentv1.ChargeRequest, ...grpc.CallOption) (*paymentv1.ChargeResponse, error) {
	f.charges.Add(1)
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return &paymentv1.ChargeResponse{TransactionId: "tx-1", Status: paymentv1.TransactionStatusCompleted}, nil
}

func (f *fakePayment) Refund(context.Context, *paymentv1.RefundRequest, ...grpc.CallOption) (*paymentv1.RefundResponse, error) {
	f.refunds.Add(1)
	return &paymentv1.RefundResponse{Success: true}, nil
}

type outcomeSink struct {
	mu       sync.Mutex
	outcomes []string
}

func (*outcomeSink) CircuitStateChanged(string, string, int) {}
func (*outcomeSink) CircuitFailure(string, string)           {}
func (*outcomeSink) BulkheadOccupancy(string, string, int)   {}
func (*outcomeSink) BulkheadRejected(string, string)         {}

func (s *outcomeSink) OrderOutcome(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, status)
}

func (s *outcomeSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.outcomes...)
}

func testDependency(name string, capacity int) *resilience.Dependency {
	return resilience.NewDependency(name,
		resilience.NewBulkhead(name+"-bulkhead", name, resilience.BulkheadConfig{Capacity: capacity, AcquireTimeout: 100 * time.Millisecond}),
		resilience.NewBreaker(name+"-circuit", name, resilience.DefaultBreakerConfig()),
		2*time.Second,
	)
}

type fixture struct {
	svc       *OrderService
	registry  *Registry
	inventory *fakeInventory
	payment   *fakePayment
	journal   *sagalog.Memory
	sink      *outcomeSink
}

func newFixture(inv *fakeInventory, pay *fakePayment, capacity int) *fixture {
	f := &fixture{
		registry:  NewRegistry(),
		inventory: inv,
		payment:   pay,
		journal:   sagalog.NewMemory(),
		sink:      &outcomeSink{},
	}
	f.svc = NewOrderService(f.registry,
		testDependency(DependencyInventory, capacity), inv,
		testDependency(DependencyPayment, capacity), pay,
		WithJournal(f.journal),
		WithSink(f.sink),
	)
	return f
}

func TestPlaceOrder_Completed(t *testing.T) {
	f := newFixture(&fakeInventory{}, &fakePayment{}, 10)

	order, err := f.svc.PlaceOrder(context.Background(), laptop())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, order.Status)
	assert.Equal(t, domain.ReasonNone, order.Reason)
	assert.Equal(t, "999.99", order.Total.String())
	assert.Equal(t, "Order processed successfully", order.Message)
	require.Len(t, order.Steps, 2)
	assert.Equal(t, coordinator.ReserveInventoryStepName, order.Steps[0].Name)
	assert.Equal(t, coordinator.ChargePaymentStepName, order.Steps[1].Name)
	assert.Equal(t, []string{"completed"}, f.sink.all())

	stored, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
}

func TestPlaceOrder_ValidationNeverReachesDownstream(t *testing.T) {
	f := newFixture(&fakeInventory{}, &fakePayment{}, 10)

	order, err := f.svc.PlaceOrder(context.Background(), nil)

	assert.Nil(t, order)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.inventory.reserves.Load())
	assert.Zero(t, f.payment.charges.Load())
	assert.Zero(t, f.registry.Len())
	assert.Equal(t, []string{OutcomeValidationFailed}, f.sink.all())
}

func TestPlaceOrder_ForcedOpenCircuitFailsFast(t *testing.T) {
	f := newFixture(&fakeInventory{}, &fakePayment{}, 10)
	_, err := f.svc.SetCircuitMode(context.Background(), DependencyInventory, ports.CircuitModeOpen)
	require.NoError(t, err)

	start := time.Now()
	order, err := f.svc.PlaceOrder(context.Background(), laptop())

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, domain.StatusFailed, order.Status)
	assert.Equal(t, domain.ReasonCircuitOpen, order.Reason)
	assert.Zero(t, f.inventory.reserves.Load())
	assert.Zero(t, f.payment.charges.Load())
}

func TestPlaceOrder_ChargeFailureCompensatesOnce(t *testing.T) {
	f := newFixture(&fakeInventory{}, &fakePayment{chargeErr: status.Error(codes.Unavailable, "down")}, 10)

	order, err := f.svc.PlaceOrder(context.Background(), laptop())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, order.Status)
	assert.Equal(t, domain.ReasonDownstream, order.Reason)
	assert.Contains(t, order.Message, "Order processing failed")
	assert.Equal(t, int32(1), f.inventory.releases.Load())
	assert.Zero(t, f.payment.refunds.Load())

	statuses := make([]domain.StepStatus, len(order.Steps))
	for i, s := range order.Steps {
		statuses[i] = s.Status
	}
	assert.Equal(t, []domain.StepStatus{domain.StepCompleted, domain.StepFailed, domain.StepCompensated}, statuses)
	assert.Equal(t, []string{"failed"}, f.sink.all())
}

func TestPlaceOrder_ReserveFailureNeverCompensates(t *testing.T) {
	f := newFixture(&fakeInventory{rejected: true}, &fakePayment{}, 10)

	order, err := f.svc.PlaceOrder(context.Background(), laptop())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, order.Status)
	assert.Equal(t, domain.ReasonDownstream, order.Reason)
	assert.Contains(t, order.Message, "Insufficient stock")
	assert.Zero(t, f.inventory.releases.Load())
	assert.Zero(t, f.payment.charges.Load())
}

func TestPlaceOrder_CapacityExceeded(t *testing.T) {
	hold := make(chan struct{})
	f := newFixture(&fakeInventory{hold: hold}, &fakePayment{}, 10)

	const requests = 15
	orders := make(chan *domain.Order, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.svc.PlaceOrder(context.Background(), laptop())
			if err == nil {
				orders <- o
			}
		}()
	}

	// Rejections land after the acquire timeout; the ten admitted calls
	// stay parked on hold until then.
	require.Eventually(t, func() bool {
		return f.inventory.inFlight.Load() == 10
	}, time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	close(hold)
	wg.Wait()
	close(orders)

	reasons := map[domain.Reason]int{}
	for o := range orders {
		reasons[o.Reason]++
	}
	assert.Equal(t, int32(10), f.inventory.peak.Load())
	assert.Equal(t, int32(10), f.inventory.reserves.Load())
	assert.Equal(t, 5, reasons[domain.ReasonCapacityExceeded])
	assert.Equal(t, 10, reasons[domain.ReasonNone])
}

func TestPlaceOrder_DetachedFromCallerCancellation(t *testing.T) {
	f := newFixture(&fakeInventory{}, &fakePayment{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	order, err := f.svc.PlaceOrder(ctx, laptop())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, order.Status)
}

func TestJournal(t *testing.T) {
	f := newFixture(&fakeInventory{}, &fakePayment{}, 10)
	order, err := f.svc.PlaceOrder(context.Background(), laptop())
	require.NoError(t, err)

	rows, err := f.svc.Journal(context.Background(), order.ID)

	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, sagalog.StatusStarted, rows[0].Status)
	assert.Contains(t, rows[0].Payload, `"total":"999.99"`)
	assert.Equal(t, sagalog.StatusCompleted, rows[3].Status)

	_, err = f.svc.Journal(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestJournal_Disabled(t *testing.T) {
	svc := NewOrderService(NewRegistry(),
		testDependency(DependencyInventory, 1), &fakeInventory{},
		testDependency(DependencyPayment, 1), &fakePayment{},
	)

	_, err := svc.Journal(context.Background(), "any")

	assert.ErrorIs(t, err, ports.ErrJournalDisabled)
}

func TestSetCircuitMode(t *testing.T) {
	f := newFixture(&fakeInventory{}, &fakePayment{}, 10)
	ctx := context.Background()

	st, err := f.svc.SetCircuitMode(ctx, DependencyPayment, ports.CircuitModeOpen)
	require.NoError(t, err)
	assert.Equal(t, resilience.StateOpen, st.Circuit.State)
	assert.Equal(t, DependencyPayment, st.Dependency)

	st, err = f.svc.SetCircuitMode(ctx, DependencyPayment, ports.CircuitModeAuto)
	require.NoError(t, err)
	assert.Equal(t, resilience.StateClosed, st.Circuit.State)

	_, err = f.svc.SetCircuitMode(ctx, "shipping", ports.CircuitModeOpen)
	assert.ErrorIs(t, err, ports.ErrUnknownDependency)

	_, err = f.svc.SetCircuitMode(ctx, DependencyPayment, "half")
	assert.ErrorIs(t, err, ports.ErrUnknownMode)
}

func TestCircuitStatus(t *testing.T) {
	f := newFixture(&fakeInventory{}, &fakePayment{}, 10)

	statuses := f.svc.CircuitStatus(context.Background())

	require.Len(t, statuses, 2)
	assert.Equal(t, DependencyInventory, statuses[0].Dependency)
	assert.Equal(t, DependencyPayment, statuses[1].Dependency)
	assert.Equal(t, 10, statuses[0].Bulkhead.Capacity)
	assert.Zero(t, statuses[0].Bulkhead.Occupancy)
	assert.Equal(t, resilience.StateClosed, statuses[1].Circuit.State)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want domain.Reason
	}{
		{resilience.ErrCircuitOpen, domain.ReasonCircuitOpen},
		{resilience.ErrTooManyRequests, domain.ReasonTooManyRequests},
		{resilience.ErrCapacityExceeded, domain.ReasonCapacityExceeded},
		{resilience.ErrDownstream, domain.ReasonDownstream},
		{errors.New("anything"), domain.ReasonDownstream},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			err := &coordinator.StepError{Step: "s", Err: tt.err}
			assert.Equal(t, tt.want, classify(err))
		})
	}
}

// dialBufconn serves the real inventory and payment servers over an
// in-memory listener.
func dialBufconn(t *testing.T, inv *inventoryservice.Server, pay *paymentservice.Server) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	inventoryv1.RegisterInventoryServer(srv, inv)
	paymentv1.RegisterPaymentServer(srv, pay)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPlaceOrder_OverGRPC(t *testing.T) {
	inv := inventoryservice.NewServer(invdomain.SeedCatalog(), nil, nil)
	pay := paymentservice.NewServer(paymentservice.WithMaxAmount(decimal.NewFromInt(5000)))
	conn := dialBufconn(t, inv, pay)

	svc := NewOrderService(NewRegistry(),
		testDependency(DependencyInventory, 10), inventoryv1.NewInventoryClient(conn),
		testDependency(DependencyPayment, 10), paymentv1.NewPaymentClient(conn),
	)
	before, _ := inv.Available("item-1")

	order, err := svc.PlaceOrder(context.Background(), laptop())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, order.Status)

	after, _ := inv.Available("item-1")
	assert.Equal(t, before-1, after)
	tx, ok := pay.Transaction(order.ID)
	require.True(t, ok)
	assert.Equal(t, "999.99", tx.Amount.String())

	// Declined above the payment limit: the reservation is released.
	expensive := []domain.LineItem{{ItemID: "item-1", Quantity: 6, Price: decimal.RequireFromString("999.99")}}
	order, err = svc.PlaceOrder(context.Background(), expensive)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, order.Status)
	assert.Equal(t, domain.ReasonDownstream, order.Reason)

	restored, _ := inv.Available("item-1")
	assert.Equal(t, after, restored)
}
