package runner

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/volley/internal/attempt"
	"github.com/torosent/volley/internal/metrics"
)

// Executor runs one Attempt to its terminal Outcome.
type Executor interface {
	Execute(ctx context.Context, a attempt.Attempt) attempt.Outcome
}

// Aggregator receives each batch's outcomes and produces the final summary.
type Aggregator interface {
	Record(outcomes []attempt.Outcome)
	Summary(elapsed time.Duration) metrics.Summary
}

// DefaultMethods are used when Options.Methods is empty.
var DefaultMethods = []string{http.MethodGet, http.MethodPost, http.MethodHead}

// DefaultMinBatchSize is the throttling floor when none is configured.
const DefaultMinBatchSize = 10

var knownMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Options configure the Runner.
type Options struct {
	Targets      []string         // target URLs (required)
	Executor     Executor         // attempt executor (required)
	Aggregator   Aggregator       // defaults to metrics.NewAggregator()
	Governor     ResourceGovernor // defaults to NoopGovernor
	Total        int              // quota of attempts
	Duration     time.Duration    // run deadline
	BatchSize    int              // maximum attempts per cycle
	MinBatchSize int              // throttling floor
	Rate         int              // attempts per second
	MaxRetries   int              // retries granted to each attempt
	Methods      []string
	RandomSeed   int64 // 0 means time-seeded
	RunID        string
	Logger       logrus.FieldLogger
	Tracer       trace.Tracer
	OnCycle      func(CycleReport) // called from the run loop after each cycle
}

// ConfigError lists every problem found in Options. A run never starts with one.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid run configuration"
	}
	return fmt.Sprintf("invalid run configuration: %s", strings.Join(e.Issues, "; "))
}

func (o *Options) normalize() {
	methods := o.Methods
	if len(methods) == 0 {
		methods = DefaultMethods
	}
	o.Methods = make([]string, len(methods))
	for i, m := range methods {
		o.Methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}
	if o.MinBatchSize <= 0 {
		o.MinBatchSize = min(DefaultMinBatchSize, max(o.BatchSize, 1))
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Governor == nil {
		o.Governor = NoopGovernor{}
	}
	if o.Aggregator == nil {
		o.Aggregator = metrics.NewAggregator()
	}
}

func (o Options) validate() []string {
	var issues []string
	if o.Executor == nil {
		issues = append(issues, "executor is required")
	}
	if o.Total < 1 {
		issues = append(issues, "total must be >= 1")
	}
	if o.Rate < 1 {
		issues = append(issues, "rate must be >= 1")
	}
	if o.BatchSize < 1 {
		issues = append(issues, "batch size must be >= 1")
	}
	if o.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if o.BatchSize >= 1 && o.MinBatchSize > o.BatchSize {
		issues = append(issues, "min batch size must be <= batch size")
	}
	for _, m := range o.Methods {
		if !knownMethods[m] {
			issues = append(issues, fmt.Sprintf("unsupported method %q", m))
		}
	}
	return issues
}
