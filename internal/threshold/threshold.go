package threshold

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/volley/internal/metrics"
)

// Threshold is one pass/fail assertion over a run summary, written as
// "metric:aggregate operator value".
type Threshold struct {
	Metric    string
	Aggregate string
	Operator  string
	Value     float64
	Raw       string
}

// Result is a Threshold checked against a finished run.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// metric describes which aggregates a metric accepts and how to read them
// from a Summary.
type metric struct {
	accepts func(aggregate string) bool
	hint    string
	read    func(aggregate string, s metrics.Summary) (float64, bool)
}

var statusAggregate = regexp.MustCompile(`^([1-5]xx|[1-5][0-9]{2})$`)

func oneOf(names ...string) func(string) bool {
	return func(a string) bool { return slices.Contains(names, a) }
}

// Latencies are compared in milliseconds, rates as fractions of one.
var catalog = map[string]metric{
	"http_req_duration": {
		accepts: oneOf("p50", "p90", "p95", "p99", "avg", "mean", "min", "max"),
		hint:    "p50, p90, p95, p99, avg, min, max",
		read: func(a string, s metrics.Summary) (float64, bool) {
			switch a {
			case "p50":
				return s.P50LatencyMs, true
			case "p90":
				return s.P90LatencyMs, true
			case "p95":
				return s.P95LatencyMs, true
			case "p99":
				return s.P99LatencyMs, true
			case "avg", "mean":
				return s.MeanLatencyMs, true
			case "min":
				return s.MinLatencyMs, true
			case "max":
				return s.MaxLatencyMs, true
			}
			return 0, false
		},
	},
	"http_req_failed": {
		accepts: oneOf("rate", "count"),
		hint:    "rate, count",
		read: func(a string, s metrics.Summary) (float64, bool) {
			switch a {
			case "rate":
				return s.FailureRate(), true
			case "count":
				return float64(s.Failures), true
			}
			return 0, false
		},
	},
	"http_requests": {
		accepts: oneOf("rate", "count"),
		hint:    "rate, count",
		read: func(a string, s metrics.Summary) (float64, bool) {
			switch a {
			case "rate":
				return s.RequestsPerSec, true
			case "count":
				return float64(s.Total), true
			}
			return 0, false
		},
	},
	"http_status": {
		accepts: statusAggregate.MatchString,
		hint:    "a class such as 5xx or a code such as 429",
		read: func(a string, s metrics.Summary) (float64, bool) {
			if strings.HasSuffix(a, "xx") {
				return float64(metrics.ClassCounts(s.StatusCodes)[a]), true
			}
			code, err := strconv.Atoi(a)
			if err != nil {
				return 0, false
			}
			return float64(s.StatusCodes[code]), true
		},
	},
}

var operators = []string{"<", "<=", ">", ">=", "=="}

var expression = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse reads an assertion such as "http_req_duration:p95 < 500",
// "http_req_failed:rate < 0.01" or "http_status:5xx == 0".
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, errors.New("empty threshold")
	}
	m := expression.FindStringSubmatch(s)
	if m == nil {
		return Threshold{}, fmt.Errorf("threshold %q: want metric:aggregate operator value", s)
	}
	name, aggregate, op, raw := m[1], m[2], m[3], m[4]

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("threshold %q: bad value: %w", s, err)
	}
	def, ok := catalog[name]
	if !ok {
		return Threshold{}, fmt.Errorf("threshold %q: unknown metric %q", s, name)
	}
	if !def.accepts(aggregate) {
		return Threshold{}, fmt.Errorf("threshold %q: %s does not take %q (use %s)", s, name, aggregate, def.hint)
	}
	if !slices.Contains(operators, op) {
		return Threshold{}, fmt.Errorf("threshold %q: unknown operator %q", s, op)
	}
	return Threshold{Metric: name, Aggregate: aggregate, Operator: op, Value: value, Raw: s}, nil
}

// ParseMultiple parses every expression and reports all failures together.
func ParseMultiple(exprs []string) ([]Threshold, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]Threshold, 0, len(exprs))
	var errs []error
	for i, s := range exprs {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("thresholds[%d]: %w", i, err))
			continue
		}
		out = append(out, t)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Evaluator checks a fixed set of thresholds against run summaries.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate returns one Result per threshold, in the order they were given.
func (e *Evaluator) Evaluate(stats metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, check(t, stats))
	}
	return results
}

func check(t Threshold, stats metrics.Summary) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{Threshold: t, Message: fmt.Sprintf("✗ %s: %v", t.Raw, err)}
	}
	pass := compareValues(actual, t.Operator, t.Value)
	mark := "✓"
	if !pass {
		mark = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", mark, t.Raw, actual, t.Operator, t.Value),
	}
}

func extractMetricValue(t Threshold, stats metrics.Summary) (float64, error) {
	def, ok := catalog[t.Metric]
	if !ok {
		return 0, fmt.Errorf("unknown metric %q", t.Metric)
	}
	v, ok := def.read(t.Aggregate, stats)
	if !ok {
		return 0, fmt.Errorf("%s does not take %q", t.Metric, t.Aggregate)
	}
	return v, nil
}

const epsilon = 1e-9

// compareValues treats values within epsilon as equal so that fractions such
// as failure rates compare cleanly.
func compareValues(actual float64, op string, want float64) bool {
	near := math.Abs(actual-want) < epsilon
	switch op {
	case "<":
		return actual < want && !near
	case "<=":
		return actual <= want || near
	case ">":
		return actual > want && !near
	case ">=":
		return actual >= want || near
	case "==":
		return near
	}
	return false
}
