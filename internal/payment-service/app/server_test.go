package paymentservice

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/resilient-orders/internal/pkg/cache"
	"github.com/jcmexdev/resilient-orders/internal/pkg/chaos"
	paymentv1 "github.com/jcmexdev/resilient-orders/internal/rpc/payment/v1"
)

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newCache(t *testing.T) (cache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCacheFromClient(client, "payment"), mr
}

func TestCharge_Completes(t *testing.T) {
	s := NewServer()

	res, err := s.Charge(context.Background(), &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("999.99")})

	require.NoError(t, err)
	assert.Equal(t, paymentv1.TransactionStatusCompleted, res.Status)
	assert.NotEmpty(t, res.TransactionId)

	tx, ok := s.Transaction("o-1")
	require.True(t, ok)
	assert.True(t, tx.Amount.Equal(amount("999.99")))
}

func TestCharge_RejectsInvalidRequest(t *testing.T) {
	s := NewServer()

	_, err := s.Charge(context.Background(), &paymentv1.ChargeRequest{OrderId: "o-1", Amount: decimal.Zero})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.Charge(context.Background(), &paymentv1.ChargeRequest{Amount: amount("1")})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCharge_DeclinesAboveLimit(t *testing.T) {
	s := NewServer(WithMaxAmount(amount("500")))

	res, err := s.Charge(context.Background(), &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("500.01")})

	require.NoError(t, err)
	assert.Equal(t, paymentv1.TransactionStatusFailed, res.Status)
	_, ok := s.Transaction("o-1")
	assert.False(t, ok)
}

func TestCharge_IdempotentPerOrder(t *testing.T) {
	c, mr := newCache(t)
	s := NewServer(WithCache(c, time.Hour))
	req := &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("10")}

	first, err := s.Charge(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Charge(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionId, second.TransactionId)
	assert.True(t, mr.Exists("payment:charge:o-1"))
	assert.Equal(t, time.Hour, mr.TTL("payment:charge:o-1"))
}

func TestCharge_CacheSurvivesRestart(t *testing.T) {
	c, _ := newCache(t)
	req := &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("10")}

	first, err := NewServer(WithCache(c, 0)).Charge(context.Background(), req)
	require.NoError(t, err)

	second, err := NewServer(WithCache(c, 0)).Charge(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionId, second.TransactionId)
}

func TestCharge_CacheDownStillCharges(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()
	s := NewServer(WithCache(c, time.Hour))

	res, err := s.Charge(context.Background(), &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("10")})

	require.NoError(t, err)
	assert.Equal(t, paymentv1.TransactionStatusCompleted, res.Status)
}

func TestCharge_ChaosFailure(t *testing.T) {
	ctrl := chaos.New("payment-service", chaos.PaymentProfile, chaos.WithRand(func() float64 { return 0.1 }))
	ctrl.EnableFailures()
	s := NewServer(WithChaos(ctrl))

	_, err := s.Charge(context.Background(), &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("10")})

	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestCharge_ChaosSlowRespectsDeadline(t *testing.T) {
	ctrl := chaos.New("payment-service", chaos.PaymentProfile)
	ctrl.EnableSlow()
	s := NewServer(WithChaos(ctrl))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Charge(ctx, &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("10")})

	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestRefund(t *testing.T) {
	s := NewServer()
	_, err := s.Charge(context.Background(), &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("10")})
	require.NoError(t, err)

	res, err := s.Refund(context.Background(), &paymentv1.RefundRequest{OrderId: "o-1"})
	require.NoError(t, err)
	assert.True(t, res.Success)

	tx, _ := s.Transaction("o-1")
	assert.Equal(t, paymentv1.TransactionStatusRefunded, tx.Status)

	res, err = s.Refund(context.Background(), &paymentv1.RefundRequest{OrderId: "unknown"})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

type amounts []float64

func (a *amounts) PaymentAmount(amount float64) { *a = append(*a, amount) }

func TestCharge_ReportsCompletedAmounts(t *testing.T) {
	rec := &amounts{}
	s := NewServer(WithAmountRecorder(rec), WithMaxAmount(amount("100")))
	ctx := context.Background()

	_, err := s.Charge(ctx, &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("99.50")})
	require.NoError(t, err)
	_, err = s.Charge(ctx, &paymentv1.ChargeRequest{OrderId: "o-1", Amount: amount("99.50")})
	require.NoError(t, err)
	_, err = s.Charge(ctx, &paymentv1.ChargeRequest{OrderId: "o-2", Amount: amount("150")})
	require.NoError(t, err)

	assert.Equal(t, amounts{99.5}, *rec)
}
