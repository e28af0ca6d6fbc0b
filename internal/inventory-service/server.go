package inventoryservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jcmexdev/resilient-orders/internal/inventory-service/adapters/grpc/mappers"
	"github.com/jcmexdev/resilient-orders/internal/inventory-service/domain"
	"github.com/jcmexdev/resilient-orders/internal/pkg/chaos"
	inventoryv1 "github.com/jcmexdev/resilient-orders/internal/rpc/inventory/v1"
)

type Server struct {
	inventoryv1.UnimplementedInventoryServer

	mu           sync.Mutex
	stock        map[string]*domain.CatalogItem
	reservations map[string][]domain.StockItem

	chaos    *chaos.Controller
	recorder StockRecorder
	logger   *slog.Logger
}

// StockRecorder is told the remaining stock of an item whenever it changes.
type StockRecorder interface {
	InventoryLevel(itemID string, quantity int32)
}

type Option func(*Server)

func WithStockRecorder(r StockRecorder) Option {
	return func(s *Server) { s.recorder = r }
}

// NewServer builds an inventory server over catalog. A nil controller
// disables chaos injection.
func NewServer(catalog []domain.CatalogItem, ctrl *chaos.Controller, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	stock := make(map[string]*domain.CatalogItem, len(catalog))
	for _, it := range catalog {
		it := it
		stock[it.ID] = &it
	}
	s := &Server{
		stock:        stock,
		reservations: make(map[string][]domain.StockItem),
		chaos:        ctrl,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	for id := range s.stock {
		s.recordLevel(id)
	}
	return s
}

func (s *Server) Reserve(ctx context.Context, req *inventoryv1.ReserveRequest) (*inventoryv1.ReserveResponse, error) {
	if err := s.injectChaos(ctx); err != nil {
		s.logger.WarnContext(ctx, "chaos: simulated failure during reserve", "order_id", req.GetOrderId())
		return nil, err
	}

	reserve := mappers.ReserveFromProto(ctx, req)
	if reserve.OrderID == "" || len(reserve.Items) == 0 {
		return nil, status.Error(codes.InvalidArgument, "order_id and items are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.reservations[reserve.OrderID]; done {
		s.logger.InfoContext(ctx, "reservation already recorded", "order_id", reserve.OrderID)
		return &inventoryv1.ReserveResponse{Success: true, Message: "Items already reserved"}, nil
	}

	// Lines naming the same item draw from the same stock.
	requested := make(map[string]int64, len(reserve.Items))
	for _, item := range reserve.Items {
		current, exists := s.stock[item.ItemID]
		if !exists {
			s.logger.WarnContext(ctx, "item does not exist", "order_id", reserve.OrderID, "item_id", item.ItemID)
			return &inventoryv1.ReserveResponse{Success: false, Message: fmt.Sprintf("Item %s not found", item.ItemID)}, nil
		}
		requested[item.ItemID] += int64(item.Quantity)
		if item.Quantity <= 0 || int64(current.Quantity) < requested[item.ItemID] {
			s.logger.WarnContext(ctx, "insufficient stock",
				"order_id", reserve.OrderID,
				"item_id", item.ItemID,
				"available", current.Quantity,
				"requested", requested[item.ItemID],
			)
			return &inventoryv1.ReserveResponse{Success: false, Message: fmt.Sprintf("Insufficient stock for item %s", item.ItemID)}, nil
		}
	}

	for _, item := range reserve.Items {
		s.stock[item.ItemID].Quantity -= item.Quantity
		s.recordLevel(item.ItemID)
	}
	s.reservations[reserve.OrderID] = reserve.Items

	s.logger.InfoContext(ctx, "items reserved",
		"order_id", reserve.OrderID,
		"items", len(reserve.Items),
		"request_id", reserve.RequestID,
	)
	return &inventoryv1.ReserveResponse{Success: true, Message: "Items reserved successfully"}, nil
}

// Release restores a recorded reservation. It is the compensating action
// of Reserve and is never subject to chaos.
func (s *Server) Release(ctx context.Context, req *inventoryv1.ReleaseRequest) (*inventoryv1.ReleaseResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, exists := s.reservations[req.GetOrderId()]
	if !exists {
		s.logger.WarnContext(ctx, "no reservation to release", "order_id", req.GetOrderId())
		return &inventoryv1.ReleaseResponse{Success: false, Message: "No reservation found"}, nil
	}

	for _, item := range items {
		s.stock[item.ItemID].Quantity += item.Quantity
		s.recordLevel(item.ItemID)
	}
	delete(s.reservations, req.GetOrderId())

	s.logger.InfoContext(ctx, "reservation released", "order_id", req.GetOrderId(), "items", len(items))
	return &inventoryv1.ReleaseResponse{Success: true, Message: "Items released successfully"}, nil
}

func (s *Server) Check(ctx context.Context, req *inventoryv1.CheckRequest) (*inventoryv1.CheckResponse, error) {
	if err := s.injectChaos(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.stock[req.GetItemId()]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "item %s not found", req.GetItemId())
	}
	return mappers.CatalogItemToProto(*item), nil
}

// Available returns the remaining stock of an item.
func (s *Server) Available(itemID string) (int32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.stock[itemID]
	if !ok {
		return 0, false
	}
	return item.Quantity, true
}

// recordLevel must be called with mu held or before the server is shared.
func (s *Server) recordLevel(itemID string) {
	if s.recorder != nil {
		s.recorder.InventoryLevel(itemID, s.stock[itemID].Quantity)
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
		return status.Error(codes.Unavailable, "inventory service temporarily unavailable")
	default:
		return status.FromContextError(err).Err()
	}
}
