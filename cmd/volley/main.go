package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/volley/internal/attempt"
	"github.com/torosent/volley/internal/config"
	"github.com/torosent/volley/internal/dashboard"
	"github.com/torosent/volley/internal/httpclient"
	"github.com/torosent/volley/internal/logging"
	"github.com/torosent/volley/internal/metrics"
	"github.com/torosent/volley/internal/output"
	"github.com/torosent/volley/internal/pool"
	"github.com/torosent/volley/internal/runner"
	"github.com/torosent/volley/internal/threshold"
	"github.com/torosent/volley/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// ErrThresholdsFailed is returned when at least one threshold did not hold.
var ErrThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, stderr)
	if err != nil {
		return err
	}
	if cfg.Dashboard {
		// termui owns the terminal while the dashboard is up.
		logger.SetOutput(io.Discard)
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	exec, err := newExecutor(cfg, tp, logger)
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	agg := metrics.NewAggregator()
	opts := runner.Options{
		Targets:      cfg.Targets,
		Executor:     exec,
		Aggregator:   agg,
		Governor:     newGovernor(runCtx, cfg, logger),
		Total:        cfg.Total,
		Duration:     cfg.Duration,
		BatchSize:    cfg.BatchSize,
		MinBatchSize: cfg.MinBatchSize,
		Rate:         cfg.Rate,
		MaxRetries:   cfg.Retries,
		Methods:      cfg.Methods,
		Logger:       logger,
		Tracer:       tp.Tracer(),
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(agg, dashboardConfig(cfg), cancelRun)
		if err != nil {
			return err
		}
		opts.OnCycle = dash.Observe
	}

	r, err := runner.New(opts)
	if err != nil {
		if dash != nil {
			dash.Stop()
		}
		return err
	}

	var progress *output.ProgressReporter
	switch {
	case dash != nil:
		dash.Start()
	case cfg.Output == config.OutputText:
		progress = output.NewProgressReporter(agg, cfg.Total, progressInterval, stdout)
		progress.Start()
	}

	result := r.Run(runCtx)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stdout)
	}

	if err := writeReport(stdout, cfg.Output, result.Summary); err != nil {
		return err
	}

	results := threshold.NewEvaluator(thresholds).Evaluate(result.Summary)
	report := stdout
	if cfg.Output != config.OutputText {
		// Keep structured output parseable.
		report = stderr
	}
	if !output.PrintThresholdResults(report, results) {
		return ErrThresholdsFailed
	}
	return nil
}

func newExecutor(cfg *config.Config, tp *tracing.Provider, logger logrus.FieldLogger) (*attempt.Executor, error) {
	gen, err := httpclient.NewGenerator(cfg.Headers, cfg.Body)
	if err != nil {
		return nil, err
	}
	builder, err := httpclient.NewRequestBuilder(gen, cfg.PayloadSize)
	if err != nil {
		return nil, err
	}
	return attempt.NewExecutor(attempt.Options{
		Client:      httpclient.NewClient(cfg.Timeout, cfg.ConnectionLimit),
		Requests:    builder,
		Slots:       pool.NewBudget(cfg.ConnectionLimit),
		Timeout:     cfg.Timeout,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Tracer:      tp.Tracer(),
		Propagate:   tp.ShouldPropagate(),
		Logger:      logger,
		LogFailures: cfg.LogErrors,
	})
}

func newGovernor(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) runner.ResourceGovernor {
	if !cfg.Throttle.Enabled() {
		return runner.NoopGovernor{}
	}
	g := runner.NewHeapGovernor(cfg.Throttle.HeapMB, cfg.Throttle.Interval)
	g.Start(ctx)
	logger.WithFields(logrus.Fields{
		"heap_limit_mb": cfg.Throttle.HeapMB,
		"interval":      cfg.Throttle.Interval,
	}).Info("heap throttling enabled")
	return g
}

func dashboardConfig(cfg *config.Config) dashboard.RunConfig {
	return dashboard.RunConfig{
		Targets:         cfg.Targets,
		Methods:         cfg.Methods,
		Total:           cfg.Total,
		Duration:        cfg.Duration,
		BatchSize:       cfg.BatchSize,
		Rate:            cfg.Rate,
		Retries:         cfg.Retries,
		ConnectionLimit: cfg.ConnectionLimit,
		Timeout:         cfg.Timeout,
		ConfigFile:      cfg.ConfigFile,
	}
}

func writeReport(w io.Writer, format config.OutputFormat, summary metrics.Summary) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, summary)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, summary)
	default:
		output.PrintReport(w, summary)
		return nil
	}
}
