package resilience

import (
	"context"
	"fmt"
	"time"
)

// Call timeouts for downstream operations.
const (
	DefaultCallTimeout = 3 * time.Second
	SlowCallTimeout    = 10 * time.Second
)

// Dependency guards calls to one downstream service with its bulkhead,
// its breaker and a per-call timeout, in that order.
type Dependency struct {
	name        string
	bulkhead    *Bulkhead
	breaker     *Breaker
	callTimeout time.Duration
}

// NewDependency wires the guards of one downstream. A non-positive
// callTimeout means DefaultCallTimeout.
func NewDependency(name string, bulkhead *Bulkhead, breaker *Breaker, callTimeout time.Duration) *Dependency {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Dependency{
		name:        name,
		bulkhead:    bulkhead,
		breaker:     breaker,
		callTimeout: callTimeout,
	}
}

func (d *Dependency) Name() string               { return d.name }
func (d *Dependency) Bulkhead() *Bulkhead        { return d.bulkhead }
func (d *Dependency) Breaker() *Breaker          { return d.breaker }
func (d *Dependency) CallTimeout() time.Duration { return d.callTimeout }

// Call runs fn at most once. The bulkhead slot is taken first so occupancy
// includes calls fast-failed by an open breaker, and it is released on
// every path. fn runs under the per-call timeout; its error, including a
// timeout, is reported to the breaker as a failure and returned wrapped in
// ErrDownstream. Rejections by the bulkhead or breaker are returned as is.
func (d *Dependency) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	slot, err := d.bulkhead.Acquire(ctx)
	if err != nil {
		return err
	}
	defer slot.Release()

	permit, err := d.breaker.Attempt()
	if err != nil {
		return err
	}

	success := false
	defer func() { permit.Record(success) }()

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	if err := fn(callCtx); err != nil {
		return fmt.Errorf("%s: %w: %w", d.name, ErrDownstream, err)
	}

	success = true
	return nil
}
