package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jcmexdev/resilient-orders/internal/metrics"
)

// BulkheadConfig bounds concurrent calls to one dependency.
type BulkheadConfig struct {
	Capacity       int           `mapstructure:"capacity"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// DefaultBulkheadConfig allows 10 concurrent calls and waits up to 1s for a
// free slot.
func DefaultBulkheadConfig() BulkheadConfig {
	return BulkheadConfig{
		Capacity:       10,
		AcquireTimeout: time.Second,
	}
}

// Bulkhead is a counting admission gate. Occupancy is kept alongside the
// semaphore so it can be observed without touching the semaphore itself.
type Bulkhead struct {
	name       string
	dependency string
	capacity   int64
	timeout    time.Duration

	sem   *semaphore.Weighted
	inUse atomic.Int64

	sink   metrics.Sink
	logger *slog.Logger
}

// BulkheadOption customises a Bulkhead.
type BulkheadOption func(*Bulkhead)

// WithBulkheadSink reports occupancy changes and rejections to sink.
func WithBulkheadSink(sink metrics.Sink) BulkheadOption {
	return func(b *Bulkhead) { b.sink = metrics.OrDefault(sink) }
}

// WithBulkheadLogger sets the logger used for rejections.
func WithBulkheadLogger(logger *slog.Logger) BulkheadOption {
	return func(b *Bulkhead) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBulkhead creates a bulkhead. A non-positive capacity or timeout falls
// back to DefaultBulkheadConfig.
func NewBulkhead(name, dependency string, config BulkheadConfig, opts ...BulkheadOption) *Bulkhead {
	d := DefaultBulkheadConfig()
	if config.Capacity <= 0 {
		config.Capacity = d.Capacity
	}
	if config.AcquireTimeout <= 0 {
		config.AcquireTimeout = d.AcquireTimeout
	}

	b := &Bulkhead{
		name:       name,
		dependency: dependency,
		capacity:   int64(config.Capacity),
		timeout:    config.AcquireTimeout,
		sem:        semaphore.NewWeighted(int64(config.Capacity)),
		sink:       metrics.Nop{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bulkhead) Name() string                  { return b.name }
func (b *Bulkhead) Dependency() string            { return b.dependency }
func (b *Bulkhead) Capacity() int                 { return int(b.capacity) }
func (b *Bulkhead) AcquireTimeout() time.Duration { return b.timeout }

// Occupancy returns the number of slots currently held.
func (b *Bulkhead) Occupancy() int { return int(b.inUse.Load()) }

// Acquire waits up to the acquire timeout for a free slot. On timeout it
// returns an error wrapping ErrCapacityExceeded; if ctx ends first the
// context error is returned instead.
func (b *Bulkhead) Acquire(ctx context.Context) (*Slot, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.sem.Acquire(acquireCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("bulkhead %s: %w", b.name, ctxErr)
		}
		b.sink.BulkheadRejected(b.dependency, b.name)
		b.logger.Warn("bulkhead rejected call",
			"bulkhead", b.name,
			"dependency", b.dependency,
			"capacity", b.capacity,
			"timeout", b.timeout.String(),
		)
		return nil, fmt.Errorf("bulkhead %s: %w", b.name, ErrCapacityExceeded)
	}

	b.inUse.Add(1)
	b.sink.BulkheadOccupancy(b.dependency, b.name, 1)

	return &Slot{bulkhead: b}, nil
}

// Slot is a held bulkhead permit.
type Slot struct {
	once     sync.Once
	bulkhead *Bulkhead
}

// Release frees the slot. Calling it more than once is a no-op.
func (s *Slot) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		b := s.bulkhead
		// Occupancy drops before the permit returns so it never reads
		// above capacity.
		b.inUse.Add(-1)
		b.sem.Release(1)
		b.sink.BulkheadOccupancy(b.dependency, b.name, -1)
	})
}
