package mappers

import (
	"encoding/json"

	"github.com/jcmexdev/resilient-orders/internal/order-service/domain"
	inventoryv1 "github.com/jcmexdev/resilient-orders/internal/rpc/inventory/v1"
)

// StockItemsToProto converts validated line items to the inventory wire
// type. Quantities are bounded to int32 by domain.Validate.
func StockItemsToProto(items []domain.LineItem) []*inventoryv1.StockItem {
	pbItems := make([]*inventoryv1.StockItem, len(items))
	for i, item := range items {
		pbItems[i] = &inventoryv1.StockItem{
			ItemId:   item.ItemID,
			Quantity: int32(item.Quantity),
		}
	}
	return pbItems
}

type payloadItem struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type payload struct {
	OrderID string        `json:"order_id"`
	Items   []payloadItem `json:"items"`
	Total   string        `json:"total"`
}

// SagaPayload renders the order request journaled when its saga starts.
// Amounts are kept as decimal strings.
func SagaPayload(o *domain.Order) string {
	items := make([]payloadItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = payloadItem{
			ItemID:   item.ItemID,
			Quantity: item.Quantity,
			Price:    item.Price.String(),
		}
	}

	b, err := json.Marshal(payload{OrderID: o.ID, Items: items, Total: o.Total.String()})
	if err != nil {
		return ""
	}
	return string(b)
}
