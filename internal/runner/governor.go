package runner

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// Pacer holds each cycle to the target rate: a cycle that planned n attempts
// takes at least n/rate seconds.
type Pacer struct {
	rate int
}

func NewPacer(rate int) Pacer {
	return Pacer{rate: max(rate, 1)}
}

// Residual returns how much longer a cycle of planned attempts should last
// after it already took actual. Never negative.
func (p Pacer) Residual(planned int, actual time.Duration) time.Duration {
	if planned <= 0 {
		return 0
	}
	target := time.Duration(planned) * time.Second / time.Duration(p.rate)
	if residual := target - actual; residual > 0 {
		return residual
	}
	return 0
}

// Pace sleeps the residual on the context clock, capped at limit when limit
// is positive. It returns the pause it scheduled and stops early if ctx ends.
func (p Pacer) Pace(ctx context.Context, planned int, actual, limit time.Duration) time.Duration {
	d := p.Residual(planned, actual)
	if limit > 0 && d > limit {
		d = limit
	}
	if d <= 0 {
		return 0
	}
	t := clock.NewTimer(ctx, d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return d
}
