package resilience

import "errors"

var (
	// ErrCircuitOpen is returned by Attempt while a breaker is open. No call
	// to the dependency was made.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned by Attempt while a breaker is half-open
	// and every trial permit is already taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
	// ErrCapacityExceeded is returned when a bulkhead slot could not be
	// acquired within the acquire timeout.
	ErrCapacityExceeded = errors.New("bulkhead capacity exceeded")
	// ErrDownstream wraps every failure produced by the guarded operation
	// itself, including its own timeout.
	ErrDownstream = errors.New("downstream failure")
)

// IsFastFail reports whether err is a deliberate rejection that happened
// before the dependency was called.
func IsFastFail(err error) bool {
	return errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrTooManyRequests) ||
		errors.Is(err, ErrCapacityExceeded)
}
