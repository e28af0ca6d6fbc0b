package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkhead_AcquireAndRelease(t *testing.T) {
	sink := &recordingSink{}
	b := NewBulkhead("InventoryBulkhead", "inventory", BulkheadConfig{Capacity: 2, AcquireTimeout: 50 * time.Millisecond}, WithBulkheadSink(sink))

	s1, err := b.Acquire(context.Background())
	require.NoError(t, err)
	s2, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, b.Occupancy())

	s1.Release()
	s2.Release()

	assert.Equal(t, 0, b.Occupancy())
	assert.Equal(t, 2, sink.peak)
	assert.Equal(t, 0, sink.occupancy)
}

func TestBulkhead_RejectsAfterTimeoutWhenFull(t *testing.T) {
	sink := &recordingSink{}
	b := NewBulkhead("PaymentBulkhead", "payment", BulkheadConfig{Capacity: 1, AcquireTimeout: 50 * time.Millisecond}, WithBulkheadSink(sink))

	held, err := b.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	slot, err := b.Acquire(context.Background())

	assert.Nil(t, slot)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.True(t, IsFastFail(err))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 1, b.Occupancy())
	assert.Equal(t, 1, sink.rejections)
}

func TestBulkhead_WaiterGetsReleasedSlot(t *testing.T) {
	b := NewBulkhead("InventoryBulkhead", "inventory", BulkheadConfig{Capacity: 1, AcquireTimeout: time.Second})

	held, err := b.Acquire(context.Background())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		held.Release()
	}()

	slot, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b.Occupancy())
	slot.Release()
}

func TestBulkhead_ReleaseIsIdempotent(t *testing.T) {
	b := NewBulkhead("InventoryBulkhead", "inventory", BulkheadConfig{Capacity: 1, AcquireTimeout: 20 * time.Millisecond})

	slot, err := b.Acquire(context.Background())
	require.NoError(t, err)

	slot.Release()
	slot.Release()
	assert.Equal(t, 0, b.Occupancy())

	var nilSlot *Slot
	assert.NotPanics(t, nilSlot.Release)

	again, err := b.Acquire(context.Background())
	require.NoError(t, err)
	_, err = b.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrCapacityExceeded, "a double release must not free a second slot")
	again.Release()
}

func TestBulkhead_CancelledContextIsNotCapacityError(t *testing.T) {
	sink := &recordingSink{}
	b := NewBulkhead("InventoryBulkhead", "inventory", BulkheadConfig{Capacity: 1, AcquireTimeout: time.Second}, WithBulkheadSink(sink))

	held, err := b.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrCapacityExceeded)
	assert.Zero(t, sink.rejections)
}

func TestBulkhead_OccupancyNeverExceedsCapacity(t *testing.T) {
	const capacity = 5
	b := NewBulkhead("InventoryBulkhead", "inventory", BulkheadConfig{Capacity: capacity, AcquireTimeout: 2 * time.Second})

	var (
		wg   sync.WaitGroup
		peak atomic.Int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := b.Acquire(context.Background())
			if err != nil {
				return
			}
			defer slot.Release()

			occ := int64(b.Occupancy())
			for {
				p := peak.Load()
				if occ <= p || peak.CompareAndSwap(p, occ) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(capacity))
	assert.Equal(t, 0, b.Occupancy())
}

func TestBulkhead_Defaults(t *testing.T) {
	b := NewBulkhead("b", "d", BulkheadConfig{})

	assert.Equal(t, 10, b.Capacity())
	assert.Equal(t, time.Second, b.AcquireTimeout())
}
