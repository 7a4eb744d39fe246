package runner

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/volley/internal/logging"
	"github.com/torosent/volley/internal/metrics"
	"github.com/torosent/volley/internal/targets"
)

// StopReason says why a run ended.
type StopReason string

const (
	StopQuota    StopReason = "quota"
	StopDeadline StopReason = "deadline"
	StopCanceled StopReason = "canceled"
)

// CycleReport describes one completed dispatch cycle.
type CycleReport struct {
	Cycle     int
	Planned   int
	BatchSize int
	Throttled bool
	Elapsed   time.Duration // dispatch until the last outcome
	Paced     time.Duration // pause scheduled afterwards
	Issued    int           // cumulative
}

// Result captures execution summary.
type Result struct {
	RunID    string
	Issued   int
	Cycles   int
	Duration time.Duration
	Stop     StopReason
	Summary  metrics.Summary
}

// Runner drives batches of attempts until the quota is issued, the deadline
// passes or the context is cancelled.
type Runner struct {
	opt      Options
	sched    *scheduler
	pacer    Pacer
	log      logrus.FieldLogger
	progress rate.Sometimes
}

// New validates opt. Every problem is reported in a single *ConfigError.
func New(opt Options) (*Runner, error) {
	opt.normalize()
	issues := opt.validate()

	seed := opt.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	set, err := targets.New(opt.Targets, targets.WithSource(rand.NewSource(seed)))
	if err != nil {
		if errors.Is(err, targets.ErrEmpty) {
			issues = append([]string{"target set is empty"}, issues...)
		} else {
			issues = append([]string{err.Error()}, issues...)
		}
	}
	if len(issues) > 0 {
		return nil, &ConfigError{Issues: issues}
	}

	if opt.RunID == "" {
		opt.RunID = ulid.Make().String()
	}
	tracer := opt.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("volley")
	}
	log := logging.OrDiscard(opt.Logger).WithField("run_id", opt.RunID)

	return &Runner{
		opt: opt,
		sched: &scheduler{
			targets: set,
			exec:    opt.Executor,
			methods: opt.Methods,
			retries: opt.MaxRetries,
			rnd:     rand.New(rand.NewSource(seed + 1)),
			tracer:  tracer,
		},
		pacer:    NewPacer(opt.Rate),
		log:      log,
		progress: rate.Sometimes{Interval: time.Second},
	}, nil
}

func (r *Runner) RunID() string {
	return r.opt.RunID
}

// Run blocks until the run stops. The deadline is only checked between
// cycles; a cancelled ctx lets in-flight attempts finish before reporting.
func (r *Runner) Run(ctx context.Context) Result {
	clck := clock.FromContext(ctx)
	start := clck.Now()
	deadline := start.Add(r.opt.Duration)

	batch := r.opt.BatchSize
	issued, cycles := 0, 0
	var stop StopReason

	r.log.WithFields(logrus.Fields{
		"quota":      r.opt.Total,
		"rate":       r.opt.Rate,
		"batch_size": batch,
		"targets":    r.sched.targets.Size(),
	}).Info("run started")

	for {
		if issued >= r.opt.Total {
			stop = StopQuota
			break
		}
		if ctx.Err() != nil {
			stop = StopCanceled
			break
		}
		if !clck.Now().Before(deadline) {
			stop = StopDeadline
			break
		}

		// planning
		cycles++
		throttled := false
		if r.opt.Governor.ShouldThrottle() {
			throttled = true
			next := shrinkBatch(r.opt.Governor, batch, r.opt.MinBatchSize)
			r.log.WithFields(logrus.Fields{"cycle": cycles, "from": batch, "to": next}).Warn("resource pressure, shrinking batch")
			batch = next
		}
		plan := planBatch(batch, r.opt.Total-issued, r.opt.Rate)
		cycleStart := clck.Now()

		// dispatching and awaiting completion
		outcomes := r.sched.dispatch(ctx, cycles, plan)

		// reporting
		r.opt.Aggregator.Record(outcomes)
		issued += plan
		actual := clck.Now().Sub(cycleStart)

		var paced time.Duration
		if issued < r.opt.Total {
			if left := deadline.Sub(clck.Now()); left > 0 {
				paced = r.pacer.Pace(ctx, plan, actual, left)
			}
		}

		report := CycleReport{
			Cycle:     cycles,
			Planned:   plan,
			BatchSize: batch,
			Throttled: throttled,
			Elapsed:   actual,
			Paced:     paced,
			Issued:    issued,
		}
		r.progress.Do(func() {
			r.log.WithFields(logrus.Fields{
				"cycle":   report.Cycle,
				"planned": report.Planned,
				"issued":  report.Issued,
				"elapsed": report.Elapsed,
				"paced":   report.Paced,
			}).Info("cycle complete")
		})
		if r.opt.OnCycle != nil {
			r.opt.OnCycle(report)
		}
	}

	elapsed := clck.Now().Sub(start)
	summary := r.opt.Aggregator.Summary(elapsed)
	summary.RunID = r.opt.RunID
	summary.Stop = string(stop)
	summary.Quota = int64(r.opt.Total)

	r.log.WithFields(logrus.Fields{
		"stop":     stop,
		"issued":   issued,
		"cycles":   cycles,
		"duration": elapsed,
	}).Info("run finished")

	return Result{
		RunID:    r.opt.RunID,
		Issued:   issued,
		Cycles:   cycles,
		Duration: elapsed,
		Stop:     stop,
		Summary:  summary,
	}
}
