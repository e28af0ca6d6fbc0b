package paymentservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/resilient-orders/internal/pkg/cache"
	"github.com/jcmexdev/resilient-orders/internal/pkg/chaos"
	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors/constants"
	paymentv1 "github.com/jcmexdev/resilient-orders/internal/rpc/payment/v1"
)

const DefaultIdempotencyTTL = 24 * time.Hour

type Transaction struct {
	ID        string
	OrderID   string
	Amount    decimal.Decimal
	Status    string
	CreatedAt time.Time
}

type Server struct {
	paymentv1.UnimplementedPaymentServer

	mu           sync.Mutex
	transactions map[string]*Transaction

	cache     cache.Cache
	ttl       time.Duration
	maxAmount decimal.Decimal
	chaos     *chaos.Controller
	recorder  AmountRecorder
	logger    *slog.Logger
}

// AmountRecorder observes the amount of every completed charge.
type AmountRecorder interface {
	PaymentAmount(amount float64)
}

type Option func(*Server)

// WithCache makes charges idempotent across restarts by caching the
// response under the order id.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Server) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxAmount declines charges above limit. A zero limit means no limit.
func WithMaxAmount(limit decimal.Decimal) Option {
	return func(s *Server) { s.maxAmount = limit }
}

func WithChaos(c *chaos.Controller) Option {
	return func(s *Server) { s.chaos = c }
}

func WithAmountRecorder(r AmountRecorder) Option {
	return func(s *Server) { s.recorder = r }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		transactions: make(map[string]*Transaction),
		ttl:          DefaultIdempotencyTTL,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Charge(ctx context.Context, req *paymentv1.ChargeRequest) (*paymentv1.ChargeResponse, error) {
	if err := s.injectChaos(ctx); err != nil {
		s.logger.WarnContext(ctx, "chaos: simulated payment failure", "order_id", req.GetOrderId())
		return nil, err
	}

	if req.GetOrderId() == "" || !req.Amount.IsPositive() {
		return nil, status.Error(codes.InvalidArgument, "order_id and a positive amount are required")
	}

	key := s.idempotencyKey(req.GetOrderId())
	if cached, ok := s.cached(ctx, key); ok {
		s.logger.InfoContext(ctx, "returning cached charge", "order_id", req.GetOrderId(), "transaction_id", cached.TransactionId)
		return cached, nil
	}

	s.mu.Lock()
	if tx, ok := s.transactions[req.GetOrderId()]; ok {
		s.mu.Unlock()
		return toResponse(tx, "Payment already processed"), nil
	}

	if !s.maxAmount.IsZero() && req.Amount.GreaterThan(s.maxAmount) {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "payment declined",
			"order_id", req.GetOrderId(),
			"amount", req.Amount.String(),
			"limit", s.maxAmount.String(),
		)
		return &paymentv1.ChargeResponse{
			Status:  paymentv1.TransactionStatusFailed,
			Message: fmt.Sprintf("Payment declined: amount %s exceeds limit", req.Amount.StringFixed(2)),
		}, nil
	}

	tx := &Transaction{
		ID:        uuid.NewString(),
		OrderID:   req.GetOrderId(),
		Amount:    req.Amount,
		Status:    paymentv1.TransactionStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
	s.transactions[tx.OrderID] = tx
	s.mu.Unlock()

	res := toResponse(tx, "Payment processed successfully")
	s.store(ctx, key, res)
	if s.recorder != nil {
		amount, _ := tx.Amount.Float64()
		s.recorder.PaymentAmount(amount)
	}

	s.logger.InfoContext(ctx, "payment processed",
		"transaction_id", tx.ID,
		"order_id", tx.OrderID,
		"amount", tx.Amount.String(),
		"request_id", interceptors.GetMetadataValue(ctx, constants.HeaderXRequestId),
	)
	return res, nil
}

// Refund reverses the charge of an order. Refunding an order that was
// never charged succeeds with nothing to do.
func (s *Server) Refund(ctx context.Context, req *paymentv1.RefundRequest) (*paymentv1.RefundResponse, error) {
	s.mu.Lock()
	tx, exists := s.transactions[req.GetOrderId()]
	if exists {
		tx.Status = paymentv1.TransactionStatusRefunded
	}
	s.mu.Unlock()

	if !exists {
		s.logger.WarnContext(ctx, "no payment found to refund", "order_id", req.GetOrderId())
		return &paymentv1.RefundResponse{Success: true, Message: "Nothing to refund"}, nil
	}

	s.store(ctx, s.idempotencyKey(tx.OrderID), toResponse(tx, "Payment refunded"))
	s.logger.InfoContext(ctx, "payment refunded", "order_id", tx.OrderID, "amount", tx.Amount.String())

	return &paymentv1.RefundResponse{Success: true, Message: "Payment refunded"}, nil
}

// Transaction returns a copy of the transaction recorded for an order.
func (s *Server) Transaction(orderID string) (Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[orderID]
	if !ok {
		return Transaction{}, false
	}
	return *tx, true
}

func (s *Server) idempotencyKey(orderID string) string {
	if s.cache == nil {
		return ""
	}
	return s.cache.GenerateKey("charge", orderID)
}

func (s *Server) cached(ctx context.Context, key string) (*paymentv1.ChargeResponse, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "idempotency cache unavailable", "key", key, "error", err)
		return nil, false
	}
	if raw == "" {
		return nil, false
	}
	var res paymentv1.ChargeResponse
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt cache entry", "key", key, "error", err)
		return nil, false
	}
	return &res, true
}

func (s *Server) store(ctx context.Context, key string, res *paymentv1.ChargeResponse) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(b), s.ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to cache charge", "key", key, "error", err)
	}
}

func (s *Server) injectChaos(ctx context.Context) error {
	if s.chaos == nil {
		return nil
	}
	err := s.chaos.Inject(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chaos.ErrInjected):
		return status.Error(codes.Unavailable, "payment service temporarily unavailable")
	default:
		return status.FromContextError(err).Err()
	}
}

func toResponse(tx *Transaction, msg string) *paymentv1.ChargeResponse {
	return &paymentv1.ChargeResponse{
		TransactionId: tx.ID,
		Status:        tx.Status,
		Message:       msg,
	}
}
