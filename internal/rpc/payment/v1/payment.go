package paymentv1

import "github.com/shopspring/decimal"

const (
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusRefunded  = "refunded"
)

type ChargeRequest struct {
	OrderId string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
}

func (x *ChargeRequest) GetOrderId() string {
	if x == nil {
		return ""
	}
	return x.OrderId
}

type ChargeResponse struct {
	TransactionId string `json:"transaction_id"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
}

func (x *ChargeResponse) GetStatus() string {
	if x == nil {
		return ""
	}
	return x.Status
}

type RefundRequest struct {
	OrderId string `json:"order_id"`
}

func (x *RefundRequest) GetOrderId() string {
	if x == nil {
		return ""
	}
	return x.OrderId
}

type RefundResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
