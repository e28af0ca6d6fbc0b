package domain

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrCompensation   = errors.New("compensation failed")
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderFinalized = errors.New("order already finalized")
)

// Reason explains why an order ended Failed.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonValidation       Reason = "ValidationError"
	ReasonCapacityExceeded Reason = "CapacityExceeded"
	ReasonCircuitOpen      Reason = "CircuitOpen"
	ReasonTooManyRequests  Reason = "TooManyHalfOpenRequests"
	ReasonDownstream       Reason = "DownstreamFailure"
	ReasonCompensation     Reason = "CompensationFailure"
)

// FastFail reports whether the reason is a rejection issued before any
// downstream call was made.
func (r Reason) FastFail() bool {
	switch r {
	case ReasonCapacityExceeded, ReasonCircuitOpen, ReasonTooManyRequests:
		return true
	}
	return false
}
