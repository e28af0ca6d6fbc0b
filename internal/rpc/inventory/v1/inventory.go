package inventoryv1

import "github.com/shopspring/decimal"

type StockItem struct {
	ItemId   string `json:"item_id"`
	Quantity int32  `json:"quantity"`
}

func (x *StockItem) GetItemId() string {
	if x == nil {
		return ""
	}
	return x.ItemId
}

func (x *StockItem) GetQuantity() int32 {
	if x == nil {
		return 0
	}
	return x.Quantity
}

type ReserveRequest struct {
	OrderId string       `json:"order_id"`
	Items   []*StockItem `json:"items"`
}

func (x *ReserveRequest) GetOrderId() string {
	if x == nil {
		return ""
	}
	return x.OrderId
}

func (x *ReserveRequest) GetItems() []*StockItem {
	if x == nil {
		return nil
	}
	return x.Items
}

type ReserveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type ReleaseRequest struct {
	OrderId string       `json:"order_id"`
	Items   []*StockItem `json:"items"`
}

func (x *ReleaseRequest) GetOrderId() string {
	if x == nil {
		return ""
	}
	return x.OrderId
}

type ReleaseResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type CheckRequest struct {
	ItemId string `json:"item_id"`
}

func (x *CheckRequest) GetItemId() string {
	if x == nil {
		return ""
	}
	return x.ItemId
}

type CheckResponse struct {
	ItemId    string          `json:"item_id"`
	Name      string          `json:"name"`
	Available bool            `json:"available"`
	Quantity  int32           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Message   string          `json:"message,omitempty"`
}
