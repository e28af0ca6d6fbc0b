package domain

import (
	"fmt"
	"math"
	"strings"
)

// Validate runs the fail-fast checks on a candidate order and returns the
// normalized items. Checks run in order and stop at the first failure:
// non-empty list, item ids, quantities, prices.
func Validate(items []LineItem) ([]LineItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}

	out := make([]LineItem, len(items))
	for i, it := range items {
		it.ItemID = strings.TrimSpace(it.ItemID)
		if it.ItemID == "" {
			return nil, fmt.Errorf("%w: item %d: item_id is required", ErrValidation, i)
		}
		out[i] = it
	}
	for i, it := range out {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d: quantity must be greater than 0", ErrValidation, i)
		}
		if it.Quantity > math.MaxInt32 {
			return nil, fmt.Errorf("%w: item %d: quantity is too large", ErrValidation, i)
		}
	}
	for i, it := range out {
		if !it.Price.IsPositive() {
			return nil, fmt.Errorf("%w: item %d: price must be greater than 0", ErrValidation, i)
		}
	}

	return out, nil
}
