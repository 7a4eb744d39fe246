package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "volley",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Request shaping
	flags.StringArray("target", nil, "Target URL (repeatable, http or https)")
	flags.StringSliceP("method", "m", nil, "HTTP methods drawn per attempt (repeatable, default GET,POST,HEAD)")
	flags.StringArray("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Fixed request body for POST/PUT/PATCH (random payload when empty)")
	flags.Int("payload-size", DefaultPayloadSize, "Maximum payload size in bytes for generated bodies")

	// Volume and pacing
	flags.IntP("total", "t", DefaultTotal, "Total number of attempts to issue (quota)")
	flags.DurationP("duration", "d", DefaultDuration, "Run deadline (e.g. 30s, 3m)")
	flags.IntP("batch-size", "b", DefaultBatchSize, "Maximum attempts dispatched per cycle")
	flags.Int("min-batch-size", DefaultMinBatchSize, "Floor for batch size when throttled")
	flags.IntP("rate", "r", DefaultRate, "Target attempts per second")
	flags.Int("retries", DefaultRetries, "Retries per attempt after the first try")
	flags.Duration("retry-base-delay", DefaultRetryBaseDelay, "Initial retry backoff delay")
	flags.Duration("retry-max-delay", DefaultRetryMaxDelay, "Maximum retry backoff delay")
	flags.Int("connection-limit", DefaultConnectionLimit, "Maximum simultaneously open connections")
	flags.Duration("timeout", DefaultTimeout, "Per-try timeout")
	flags.Int("throttle-heap-mb", 0, "Halve the batch size while heap in use exceeds this many MB (0=off)")
	flags.Duration("throttle-interval", DefaultThrottleEvery, "Heap sampling interval for throttling")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Report format: text, json or yaml")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.StringArray("threshold", nil, "Pass/fail threshold (repeatable, e.g. 'http_req_duration:p95 < 500')")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format: text or json")
	flags.Bool("log-errors", false, "Log each failed attempt at warn level")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Use an insecure connection to the OTLP collector")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context headers into requests")
	flags.String("tracing-service-name", "", "Service name reported in traces")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetStringArray("target")
		if err != nil {
			return err
		}
		cfg.Targets = val
	}
	if fs.Changed("method") {
		val, err := fs.GetStringSlice("method")
		if err != nil {
			return err
		}
		cfg.Methods = val
	}
	if fs.Changed("body") {
		val, err := fs.GetString("body")
		if err != nil {
			return err
		}
		cfg.Body = val
	}

	ints := []struct {
		flag string
		dst  *int
	}{
		{"payload-size", &cfg.PayloadSize},
		{"total", &cfg.Total},
		{"batch-size", &cfg.BatchSize},
		{"min-batch-size", &cfg.MinBatchSize},
		{"rate", &cfg.Rate},
		{"retries", &cfg.Retries},
		{"connection-limit", &cfg.ConnectionLimit},
		{"throttle-heap-mb", &cfg.Throttle.HeapMB},
	}
	for _, f := range ints {
		if !fs.Changed(f.flag) {
			continue
		}
		val, err := fs.GetInt(f.flag)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	durations := []struct {
		flag string
		dst  *time.Duration
	}{
		{"duration", &cfg.Duration},
		{"retry-base-delay", &cfg.RetryBaseDelay},
		{"retry-max-delay", &cfg.RetryMaxDelay},
		{"timeout", &cfg.Timeout},
		{"throttle-interval", &cfg.Throttle.Interval},
	}
	for _, f := range durations {
		if !fs.Changed(f.flag) {
			continue
		}
		val, err := fs.GetDuration(f.flag)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.TrimSpace(val)
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.LogFormat = strings.TrimSpace(val)
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	vals, err := fs.GetStringArray("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return applyTracingFlags(&cfg.Tracing, fs)
}

func applyTracingFlags(t *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		t.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		t.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		t.Propagate = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	return nil
}
