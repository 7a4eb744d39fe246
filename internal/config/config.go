package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// Defaults applied before config files and flags.
const (
	DefaultTotal           = 10000
	DefaultDuration        = 3 * time.Minute
	DefaultBatchSize       = 200
	DefaultMinBatchSize    = 10
	DefaultRate            = 100
	DefaultRetries         = 5
	DefaultRetryBaseDelay  = 100 * time.Millisecond
	DefaultRetryMaxDelay   = 5 * time.Second
	DefaultPayloadSize     = 2048
	DefaultConnectionLimit = 500
	DefaultTimeout         = 20 * time.Second
	DefaultThrottleEvery   = time.Second
)

// DefaultMethods are drawn from uniformly when no method is configured.
var DefaultMethods = []string{http.MethodGet, http.MethodPost, http.MethodHead}

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

type Config struct {
	Targets         []string          `mapstructure:"targets"`
	Methods         []string          `mapstructure:"methods"`
	Headers         map[string]string `mapstructure:"headers"`
	Body            string            `mapstructure:"body"`
	PayloadSize     int               `mapstructure:"payload_size"`
	Total           int               `mapstructure:"total"`
	Duration        time.Duration     `mapstructure:"duration"`
	BatchSize       int               `mapstructure:"batch_size"`
	MinBatchSize    int               `mapstructure:"min_batch_size"`
	Rate            int               `mapstructure:"rate"`
	Retries         int               `mapstructure:"retries"`
	RetryBaseDelay  time.Duration     `mapstructure:"retry_base_delay"`
	RetryMaxDelay   time.Duration     `mapstructure:"retry_max_delay"`
	ConnectionLimit int               `mapstructure:"connection_limit"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	Throttle        ThrottleConfig    `mapstructure:"throttle"`
	Output          OutputFormat      `mapstructure:"output"`
	Dashboard       bool              `mapstructure:"dashboard"`
	LogLevel        string            `mapstructure:"log_level"`
	LogFormat       string            `mapstructure:"log_format"`
	LogErrors       bool              `mapstructure:"log_errors"`
	Thresholds      []string          `mapstructure:"thresholds"`
	Tracing         TracingConfig     `mapstructure:"tracing"`
	ConfigFile      string            `mapstructure:"-"`
}

// ThrottleConfig drives the optional heap-based resource governor.
type ThrottleConfig struct {
	HeapMB   int           `mapstructure:"heap_mb"`  // throttle when heap in use exceeds this (0=off)
	Interval time.Duration `mapstructure:"interval"` // sampling interval
}

func (t ThrottleConfig) Enabled() bool {
	return t.HeapMB > 0
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`     // OTLP collector host:port
	Protocol    string  `mapstructure:"protocol"`     // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`     // plaintext exporter connection
	SampleRate  float64 `mapstructure:"sample_rate"`  // 0.0 - 1.0
	Propagate   bool    `mapstructure:"propagate"`    // inject W3C trace headers
	ServiceName string  `mapstructure:"service_name"` // defaults to OTEL_SERVICE_NAME or "volley"
}

func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate
}

func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Methods:         append([]string(nil), DefaultMethods...),
		Headers:         map[string]string{},
		PayloadSize:     DefaultPayloadSize,
		Total:           DefaultTotal,
		Duration:        DefaultDuration,
		BatchSize:       DefaultBatchSize,
		MinBatchSize:    DefaultMinBatchSize,
		Rate:            DefaultRate,
		Retries:         DefaultRetries,
		RetryBaseDelay:  DefaultRetryBaseDelay,
		RetryMaxDelay:   DefaultRetryMaxDelay,
		ConnectionLimit: DefaultConnectionLimit,
		Timeout:         DefaultTimeout,
		Throttle:        ThrottleConfig{Interval: DefaultThrottleEvery},
		Output:          OutputText,
		LogLevel:        "info",
		LogFormat:       "text",
		Tracing:         TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if len(c.Targets) == 0 {
		issues = append(issues, "at least one target is required (use --help for usage information)")
	}
	for idx, target := range c.Targets {
		if issue := validateTarget(target); issue != "" {
			issues = append(issues, fmt.Sprintf("targets[%d]: %s", idx, issue))
		}
	}

	// Security warnings for high volume settings
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High rate configured (%d attempts/s). Ensure you have authorization to test the target system.", c.Rate))
	}
	if c.BatchSize > 500 {
		warnings = append(warnings, fmt.Sprintf("WARNING: Large batch size configured (%d). Ensure you have authorization to test the target system.", c.BatchSize))
	}
	if c.ConnectionLimit > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High connection limit configured (%d). Ensure you have authorization to test the target system.", c.ConnectionLimit))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if c.Total < 1 {
		issues = append(issues, "total must be >= 1")
	}
	if c.Rate < 1 {
		issues = append(issues, "rate must be >= 1")
	}
	if c.BatchSize < 1 {
		issues = append(issues, "batch_size must be >= 1")
	}
	if c.MinBatchSize < 1 {
		issues = append(issues, "min_batch_size must be >= 1")
	}
	if c.BatchSize >= 1 && c.MinBatchSize > c.BatchSize {
		issues = append(issues, "min_batch_size must be <= batch_size")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 {
		issues = append(issues, "retry delays must be >= 0")
	} else if c.RetryMaxDelay > 0 && c.RetryBaseDelay > c.RetryMaxDelay {
		issues = append(issues, "retry_base_delay must be <= retry_max_delay")
	}
	if c.ConnectionLimit < 1 {
		issues = append(issues, "connection_limit must be >= 1")
	}
	if c.PayloadSize < 0 {
		issues = append(issues, "payload_size must be >= 0")
	}

	issues = append(issues, validateMethods(c.Methods)...)
	issues = append(issues, validateThrottle(c.Throttle)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	switch c.Output {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output %q is not supported (use text, json or yaml)", c.Output))
	}
	if c.Dashboard && c.Output != "" && c.Output != OutputText {
		issues = append(issues, "dashboard and structured output are mutually exclusive")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format %q is not supported (use text or json)", c.LogFormat))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTarget(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "URL is empty"
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Sprintf("invalid URL %q", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Sprintf("URL %q must use http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Sprintf("URL %q has no host", raw)
	}
	return ""
}

func validateMethods(methods []string) []string {
	if len(methods) == 0 {
		return []string{"at least one method is required"}
	}
	var issues []string
	for idx, m := range methods {
		if !allowedMethods[strings.ToUpper(strings.TrimSpace(m))] {
			issues = append(issues, fmt.Sprintf("methods[%d]: unsupported HTTP method %q", idx, m))
		}
	}
	return issues
}

func validateThrottle(t ThrottleConfig) []string {
	var issues []string
	if t.HeapMB < 0 {
		issues = append(issues, "throttle: heap_mb must be >= 0")
	}
	if t.Enabled() && t.Interval <= 0 {
		issues = append(issues, "throttle: interval must be > 0")
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: unsupported OTLP protocol %q (use grpc or http)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

// NormalizeMethods upper-cases, trims and de-duplicates methods, keeping order.
func NormalizeMethods(methods []string) []string {
	seen := make(map[string]bool, len(methods))
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		upper := strings.ToUpper(strings.TrimSpace(m))
		if upper == "" || seen[upper] {
			continue
		}
		seen[upper] = true
		out = append(out, upper)
	}
	return out
}
