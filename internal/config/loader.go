package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
// The returned Config is not validated.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Methods = NormalizeMethods(cfg.Methods)
	// The throttling floor follows a smaller batch size unless both were set.
	if cfg.BatchSize >= 1 && cfg.MinBatchSize > cfg.BatchSize && !flagSet.Changed("min-batch-size") {
		cfg.MinBatchSize = cfg.BatchSize
	}
	cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(string(cfg.Output))))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	targets := cfg.Targets[:0]
	for _, t := range cfg.Targets {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	cfg.Targets = targets
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "targets", "target"); ok {
		val, err := toList(raw)
		if err != nil {
			return fmt.Errorf("targets: %w", err)
		}
		cfg.Targets = val
	}

	if raw, ok := lookupSetting(settings, "methods", "method"); ok {
		val, err := toList(raw)
		if err != nil {
			return fmt.Errorf("methods: %w", err)
		}
		if len(val) > 0 {
			cfg.Methods = val
		}
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := cast.ToStringMapStringE(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "body"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("body: %w", err)
		}
		cfg.Body = val
	}

	ints := []struct {
		name string
		keys []string
		dst  *int
	}{
		{"payload_size", []string{"payloadsize", "payload_size", "payload-size"}, &cfg.PayloadSize},
		{"total", []string{"total"}, &cfg.Total},
		{"batch_size", []string{"batchsize", "batch_size", "batch-size"}, &cfg.BatchSize},
		{"min_batch_size", []string{"minbatchsize", "min_batch_size", "min-batch-size"}, &cfg.MinBatchSize},
		{"rate", []string{"rate"}, &cfg.Rate},
		{"retries", []string{"retries"}, &cfg.Retries},
		{"connection_limit", []string{"connectionlimit", "connection_limit", "connection-limit"}, &cfg.ConnectionLimit},
	}
	for _, field := range ints {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := cast.ToIntE(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.name, err)
			}
			*field.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := toDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "timeout"); ok {
		dur, err := toDuration(raw)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		cfg.Timeout = dur
	}

	if raw, ok := lookupSetting(settings, "retrybasedelay", "retry_base_delay", "retry-base-delay"); ok {
		dur, err := toDuration(raw)
		if err != nil {
			return fmt.Errorf("retry_base_delay: %w", err)
		}
		cfg.RetryBaseDelay = dur
	}

	if raw, ok := lookupSetting(settings, "retrymaxdelay", "retry_max_delay", "retry-max-delay"); ok {
		dur, err := toDuration(raw)
		if err != nil {
			return fmt.Errorf("retry_max_delay: %w", err)
		}
		cfg.RetryMaxDelay = dur
	}

	if raw, ok := lookupSetting(settings, "throttle"); ok {
		throttle, err := parseThrottle(raw, cfg.Throttle)
		if err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
		cfg.Throttle = throttle
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if val != "" {
			cfg.Output = OutputFormat(val)
		}
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		if val != "" {
			cfg.LogLevel = val
		}
	}

	if raw, ok := lookupSetting(settings, "logformat", "log_format", "log-format"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return fmt.Errorf("log_format: %w", err)
		}
		if val != "" {
			cfg.LogFormat = val
		}
	}

	if raw, ok := lookupSetting(settings, "logerrors", "log_errors", "log-errors"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return fmt.Errorf("logErrors: %w", err)
		}
		cfg.LogErrors = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := toList(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	return nil
}

func parseThrottle(value interface{}, base ThrottleConfig) (ThrottleConfig, error) {
	if value == nil {
		return base, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return ThrottleConfig{}, err
	}
	return buildThrottleConfig(entry, base)
}

func buildThrottleConfig(settings map[string]interface{}, base ThrottleConfig) (ThrottleConfig, error) {
	cfg := base
	if raw, ok := lookupSetting(settings, "heapmb", "heap_mb", "heap-mb"); ok {
		val, err := cast.ToIntE(raw)
		if err != nil {
			return ThrottleConfig{}, fmt.Errorf("heap_mb: %w", err)
		}
		cfg.HeapMB = val
	}
	if raw, ok := lookupSetting(settings, "interval"); ok {
		dur, err := toDuration(raw)
		if err != nil {
			return ThrottleConfig{}, fmt.Errorf("interval: %w", err)
		}
		cfg.Interval = dur
	}
	return cfg, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	return buildTracingConfig(entry, base)
}

func buildTracingConfig(settings map[string]interface{}, base TracingConfig) (TracingConfig, error) {
	cfg := base
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		cfg.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		cfg.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		cfg.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := cast.ToFloat64E(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		cfg.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := cast.ToBoolE(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		cfg.Propagate = val
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := cast.ToStringE(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		cfg.ServiceName = strings.TrimSpace(val)
	}
	return cfg, nil
}
