package runner

import (
	"context"
	"math/rand"
	"time"

	concpool "github.com/sourcegraph/conc/pool"
	"github.com/tilinna/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/volley/internal/attempt"
	"github.com/torosent/volley/internal/targets"
	"github.com/torosent/volley/internal/tracing"
)

// planBatch is the number of attempts the next cycle dispatches.
func planBatch(batchSize, remaining, rate int) int {
	return max(min(batchSize, remaining, rate), 0)
}

// scheduler creates and dispatches the attempts of one cycle. It is only used
// from the run loop goroutine.
type scheduler struct {
	targets *targets.Set
	exec    Executor
	methods []string
	retries int
	rnd     *rand.Rand
	tracer  trace.Tracer
	nextID  uint64
}

func (s *scheduler) newAttempt(now time.Time) attempt.Attempt {
	s.nextID++
	return attempt.Attempt{
		ID:         s.nextID,
		Target:     s.targets.Pick(),
		Method:     s.methods[s.rnd.Intn(len(s.methods))],
		MaxRetries: s.retries,
		Start:      now,
	}
}

// dispatch launches plan attempts concurrently and waits for every outcome.
func (s *scheduler) dispatch(ctx context.Context, cycle, plan int) []attempt.Outcome {
	ctx, span := tracing.StartBatchSpan(ctx, s.tracer, cycle, plan)

	p := concpool.NewWithResults[attempt.Outcome]()
	now := clock.FromContext(ctx).Now()
	for i := 0; i < plan; i++ {
		a := s.newAttempt(now)
		p.Go(func() attempt.Outcome {
			return s.exec.Execute(ctx, a)
		})
	}
	outcomes := p.Wait()

	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	tracing.EndSpan(span, nil, attribute.Int("volley.batch.failed", failed))
	return outcomes
}
