// Package pool bounds the number of simultaneously open outbound connections.
package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultSize is used when a non-positive size is requested.
const DefaultSize = 10

// Budget is a counting slot pool shared by every in-flight attempt.
// Acquire blocks until a slot frees up or ctx is done.
type Budget struct {
	sem   *semaphore.Weighted
	size  int64
	inUse atomic.Int64
	peak  atomic.Int64
}

// NewBudget creates a Budget with the given number of slots.
func NewBudget(size int) *Budget {
	if size <= 0 {
		size = DefaultSize
	}
	return &Budget{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Acquire takes one slot.
func (b *Budget) Acquire(ctx context.Context) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	current := b.inUse.Add(1)
	for {
		peak := b.peak.Load()
		if current <= peak || b.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	return nil
}

// Release returns one slot.
func (b *Budget) Release() {
	b.inUse.Add(-1)
	b.sem.Release(1)
}

// Size returns the configured number of slots.
func (b *Budget) Size() int {
	return int(b.size)
}

// InUse returns the number of slots currently held.
func (b *Budget) InUse() int {
	return int(b.inUse.Load())
}

// Peak returns the highest number of slots ever held at once.
func (b *Budget) Peak() int {
	return int(b.peak.Load())
}
