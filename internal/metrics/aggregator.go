package metrics

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/volley/internal/attempt"
)

// RunMetrics is the cumulative record of a run.
type RunMetrics struct {
	Total          int64
	Successes      int64
	Failures       int64
	StatusCodes    map[int]int64
	Errors         map[attempt.ErrorKind]int64
	ResponseTimes  []time.Duration
	TransportCalls int64
	Batches        int64
}

// SuccessRate is the fraction of attempts that got a response, 0 when none were made.
func (m RunMetrics) SuccessRate() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.Total)
}

// MeanResponseTime is 0 when no attempt succeeded.
func (m RunMetrics) MeanResponseTime() time.Duration {
	if len(m.ResponseTimes) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range m.ResponseTimes {
		sum += d
	}
	return sum / time.Duration(len(m.ResponseTimes))
}

func (m RunMetrics) clone() RunMetrics {
	out := m
	out.StatusCodes = maps.Clone(m.StatusCodes)
	out.Errors = maps.Clone(m.Errors)
	out.ResponseTimes = slices.Clone(m.ResponseTimes)
	return out
}

// Aggregator folds batches of outcomes into RunMetrics. Record is called by a
// single writer; the lock serves concurrent readers.
type Aggregator struct {
	mu         sync.RWMutex
	m          RunMetrics
	hist       *hdrhistogram.Histogram
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
}

func NewAggregator() *Aggregator {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Aggregator{
		hist: h,
		m: RunMetrics{
			StatusCodes: make(map[int]int64),
			Errors:      make(map[attempt.ErrorKind]int64),
		},
	}
}

// Record applies one batch of outcomes as a single update.
func (a *Aggregator) Record(outcomes []attempt.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.m.Batches++
	for _, o := range outcomes {
		a.m.Total++
		a.m.TransportCalls += int64(o.Calls)
		if !o.Succeeded() {
			a.m.Failures++
			kind := o.Kind
			if kind == "" {
				kind = attempt.KindOther
			}
			a.m.Errors[kind]++
			continue
		}

		a.m.Successes++
		a.m.StatusCodes[o.StatusCode]++
		a.m.ResponseTimes = append(a.m.ResponseTimes, o.Elapsed)
		a.recordLatency(o.Elapsed)
	}
}

func (a *Aggregator) recordLatency(latency time.Duration) {
	us := latency.Microseconds()
	if us < a.hist.LowestTrackableValue() {
		us = a.hist.LowestTrackableValue()
	}
	if us > a.hist.HighestTrackableValue() {
		us = a.hist.HighestTrackableValue()
	}
	_ = a.hist.RecordValue(us)

	a.sumLatency += latency
	if a.minLatency == 0 || latency < a.minLatency {
		a.minLatency = latency
	}
	if latency > a.maxLatency {
		a.maxLatency = latency
	}
}

// Snapshot returns a deep copy of the current metrics.
func (a *Aggregator) Snapshot() RunMetrics {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.m.clone()
}

// Summary computes the report view of the metrics so far.
func (a *Aggregator) Summary(elapsed time.Duration) Summary {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Summary{
		Total:          a.m.Total,
		Successes:      a.m.Successes,
		Failures:       a.m.Failures,
		TransportCalls: a.m.TransportCalls,
		Batches:        a.m.Batches,
		SuccessRate:    a.m.SuccessRate(),
		MinLatency:     a.minLatency,
		MaxLatency:     a.maxLatency,
		Duration:       elapsed,
	}
	if a.m.Successes > 0 {
		s.MeanLatency = a.sumLatency / time.Duration(a.m.Successes)
	}
	if a.hist.TotalCount() > 0 {
		s.P50Latency = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90Latency = time.Duration(a.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P95Latency = time.Duration(a.hist.ValueAtQuantile(95)) * time.Microsecond
		s.P99Latency = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	if elapsed > 0 && s.Total > 0 {
		s.RequestsPerSec = float64(s.Total) / elapsed.Seconds()
	}
	if len(a.m.StatusCodes) > 0 {
		s.StatusCodes = maps.Clone(a.m.StatusCodes)
	}
	if len(a.m.Errors) > 0 {
		s.Errors = make(map[string]int64, len(a.m.Errors))
		for k, v := range a.m.Errors {
			s.Errors[string(k)] = v
		}
	}
	s.fillMillis()
	return s
}
