package metrics

import "time"

// Summary is the report emitted when a run completes. Durations are mirrored
// into millisecond fields for JSON and YAML output.
type Summary struct {
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Stop  string `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Quota int64  `json:"quota,omitempty" yaml:"quota,omitempty"`

	Total          int64   `json:"total" yaml:"total"`
	Successes      int64   `json:"successes" yaml:"successes"`
	Failures       int64   `json:"failures" yaml:"failures"`
	SuccessRate    float64 `json:"success_rate" yaml:"success_rate"`
	TransportCalls int64   `json:"transport_calls" yaml:"transport_calls"`
	Batches        int64   `json:"batches" yaml:"batches"`
	RequestsPerSec float64 `json:"requests_per_sec" yaml:"requests_per_sec"`

	MinLatency  time.Duration `json:"-" yaml:"-"`
	MaxLatency  time.Duration `json:"-" yaml:"-"`
	MeanLatency time.Duration `json:"-" yaml:"-"`
	P50Latency  time.Duration `json:"-" yaml:"-"`
	P90Latency  time.Duration `json:"-" yaml:"-"`
	P95Latency  time.Duration `json:"-" yaml:"-"`
	P99Latency  time.Duration `json:"-" yaml:"-"`
	Duration    time.Duration `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	DurationMs    float64 `json:"duration_ms" yaml:"duration_ms"`

	StatusCodes map[int]int64    `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	Errors      map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// FailureRate is the fraction of attempts that exhausted their retries.
func (s Summary) FailureRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Total)
}

func (s *Summary) fillMillis() {
	s.MinLatencyMs = millis(s.MinLatency)
	s.MaxLatencyMs = millis(s.MaxLatency)
	s.MeanLatencyMs = millis(s.MeanLatency)
	s.P50LatencyMs = millis(s.P50Latency)
	s.P90LatencyMs = millis(s.P90Latency)
	s.P95LatencyMs = millis(s.P95Latency)
	s.P99LatencyMs = millis(s.P99Latency)
	s.DurationMs = millis(s.Duration)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
