package mappers

import (
	"context"

	"github.com/jcmexdev/resilient-orders/internal/inventory-service/domain"
	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors/constants"
	inventoryv1 "github.com/jcmexdev/resilient-orders/internal/rpc/inventory/v1"
)

func ReserveFromProto(ctx context.Context, req *inventoryv1.ReserveRequest) *domain.Reserve {
	return &domain.Reserve{
		OrderID:        req.GetOrderId(),
		Items:          mapItemsFromProto(req.GetItems()),
		IdempotencyKey: interceptors.GetMetadataValue(ctx, constants.HeaderXIdempotencyKey),
		RequestID:      interceptors.GetMetadataValue(ctx, constants.HeaderXRequestId),
	}
}

func CatalogItemToProto(item domain.CatalogItem) *inventoryv1.CheckResponse {
	return &inventoryv1.CheckResponse{
		ItemId:    item.ID,
		Name:      item.Name,
		Available: item.Quantity > 0,
		Quantity:  item.Quantity,
		Price:     item.Price,
	}
}

func mapItemsFromProto(protoItems []*inventoryv1.StockItem) []domain.StockItem {
	items := make([]domain.StockItem, len(protoItems))
	for i, protoItem := range protoItems {
		items[i] = domain.StockItem{
			ItemID:   protoItem.GetItemId(),
			Quantity: protoItem.GetQuantity(),
		}
	}
	return items
}
