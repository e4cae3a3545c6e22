package orchestrator

import (
	"context"
	"fmt"
)

// DefaultCapacity is the global execution slot count shared by every
// goal in the swarm.
const DefaultCapacity = 6

// SlotPool is the global counting semaphore over worker slots. All
// goals draw from the same pool, so total concurrent task execution
// never exceeds capacity regardless of how many goals are active.
type SlotPool struct {
	slots chan int
	cap   int
}

// NewSlotPool creates a pool with the given capacity. Capacity below
// one falls back to DefaultCapacity.
func NewSlotPool(capacity int) *SlotPool {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	slots := make(chan int, capacity)
	for i := 0; i < capacity; i++ {
		slots <- i
	}
	return &SlotPool{slots: slots, cap: capacity}
}

// Acquire blocks until a slot is free or the context ends. It returns
// the slot index; the caller must Release it exactly once.
func (p *SlotPool) Acquire(ctx context.Context) (int, error) {
	select {
	case slot := <-p.slots:
		return slot, nil
	case <-ctx.Done():
		return -1, fmt.Errorf("acquire slot: %w", ctx.Err())
	}
}

// TryAcquire returns a slot without blocking, or false when the pool
// is exhausted.
func (p *SlotPool) TryAcquire() (int, bool) {
	select {
	case slot := <-p.slots:
		return slot, true
	default:
		return -1, false
	}
}

// Release returns a slot to the pool. Releasing a slot that was not
// acquired is a programming error and panics.
func (p *SlotPool) Release(slot int) {
	if slot < 0 || slot >= p.cap {
		panic(fmt.Sprintf("release of invalid slot %d", slot))
	}
	select {
	case p.slots <- slot:
	default:
		panic(fmt.Sprintf("double release of slot %d", slot))
	}
}

// InUse returns how many slots are currently held.
func (p *SlotPool) InUse() int {
	return p.cap - len(p.slots)
}

// Capacity returns the pool size.
func (p *SlotPool) Capacity() int {
	return p.cap
}
