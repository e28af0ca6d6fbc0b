package httpx

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type CreateOrderRequest struct {
	Items []CreateOrderItemDTO `json:"items"`
}

// CreateOrderItemDTO accepts price as a JSON number or a quoted decimal.
type CreateOrderItemDTO struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type OrderResponse struct {
	OrderID    string              `json:"order_id,omitempty"`
	Status     string              `json:"status"`
	Total      json.Number         `json:"total"`
	Reason     string              `json:"reason,omitempty"`
	Message    string              `json:"message"`
	Items      []OrderItemResponse `json:"items,omitempty"`
	Steps      []StepResponse      `json:"steps,omitempty"`
	CreatedAt  string              `json:"created_at,omitempty"`
	FinishedAt string              `json:"finished_at,omitempty"`
}

type OrderItemResponse struct {
	ItemID   string      `json:"item_id"`
	Quantity int         `json:"quantity"`
	Price    json.Number `json:"price"`
}

type StepResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	At     string `json:"at"`
}

type CircuitResponse struct {
	Name          string           `json:"name"`
	State         string           `json:"state"`
	Value         int              `json:"value"`
	Override      string           `json:"override"`
	Counts        CountsResponse   `json:"counts"`
	Bulkhead      BulkheadResponse `json:"bulkhead"`
	CallTimeoutMS int64            `json:"call_timeout_ms"`
}

type CountsResponse struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
}

type BulkheadResponse struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Active   int    `json:"active"`
}

type JournalEntryResponse struct {
	Status      string   `json:"status"`
	CurrentStep string   `json:"current_step,omitempty"`
	Payload     string   `json:"payload,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	TraceID     string   `json:"trace_id,omitempty"`
	SpanID      string   `json:"span_id,omitempty"`
	UpdatedAt   string   `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
