package runner

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/tilinna/clock"
)

// ResourceGovernor reports host pressure. When it signals, the run loop shrinks
// the batch size before planning the next cycle.
type ResourceGovernor interface {
	ShouldThrottle() bool
}

// BatchAdjuster lets a governor choose the shrunken batch size itself.
// Results are clamped to [floor, current].
type BatchAdjuster interface {
	AdjustBatch(current, floor int) int
}

// NoopGovernor never throttles.
type NoopGovernor struct{}

func (NoopGovernor) ShouldThrottle() bool { return false }

// shrinkBatch never grows the batch and never goes below floor.
func shrinkBatch(gov ResourceGovernor, current, floor int) int {
	next := current / 2
	if adj, ok := gov.(BatchAdjuster); ok {
		next = adj.AdjustBatch(current, floor)
	}
	if next > current {
		next = current
	}
	if next < floor {
		next = floor
	}
	return next
}

// HeapGovernor throttles while the Go heap in use exceeds a limit. The heap is
// sampled on a ticker rather than on every ShouldThrottle call.
type HeapGovernor struct {
	limit    uint64
	interval time.Duration
	read     func() uint64
	over     atomic.Bool
	lastHeap atomic.Uint64
}

func NewHeapGovernor(limitMB int, interval time.Duration) *HeapGovernor {
	if interval <= 0 {
		interval = time.Second
	}
	return &HeapGovernor{
		limit:    uint64(limitMB) << 20,
		interval: interval,
		read:     readHeapInuse,
	}
}

func readHeapInuse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

// Start samples once immediately, then on every interval until ctx ends.
func (g *HeapGovernor) Start(ctx context.Context) {
	g.sample()
	go func() {
		t := clock.NewTicker(ctx, g.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				g.sample()
			}
		}
	}()
}

func (g *HeapGovernor) sample() {
	heap := g.read()
	g.lastHeap.Store(heap)
	g.over.Store(g.limit > 0 && heap > g.limit)
}

func (g *HeapGovernor) ShouldThrottle() bool {
	return g.over.Load()
}

// HeapInUse returns the last sampled heap size in bytes.
func (g *HeapGovernor) HeapInUse() uint64 {
	return g.lastHeap.Load()
}
