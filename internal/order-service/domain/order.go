package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type LineItem struct {
	ItemID   string
	Quantity int
	Price    decimal.Decimal
}

func (i LineItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type StepStatus string

const (
	StepCompleted          StepStatus = "completed"
	StepFailed             StepStatus = "failed"
	StepCompensated        StepStatus = "compensated"
	StepCompensationFailed StepStatus = "compensation_failed"
)

// StepRecord is one entry of an order's step history.
type StepRecord struct {
	Name   string
	Status StepStatus
	Error  string
	At     time.Time
}

type Order struct {
	ID         string
	Items      []LineItem
	Total      decimal.Decimal
	Status     Status
	Reason     Reason
	Message    string
	Steps      []StepRecord
	CreatedAt  time.Time
	FinishedAt time.Time
}

// NewOrder returns a pending order. The total is computed here once and
// never recomputed.
func NewOrder(id string, items []LineItem, now time.Time) *Order {
	owned := make([]LineItem, len(items))
	copy(owned, items)

	return &Order{
		ID:        id,
		Items:     owned,
		Total:     Total(owned),
		Status:    StatusPending,
		CreatedAt: now.UTC(),
	}
}

// Total sums quantity x price over items.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Clone returns a deep copy safe to hand out of the registry.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.Steps = append([]StepRecord(nil), o.Steps...)
	return &c
}
