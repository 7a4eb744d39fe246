// Package dashboard renders a live terminal view of a running volley.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/volley/internal/metrics"
	"github.com/torosent/volley/internal/runner"
)

const historySize = 100

// SummarySource yields the metrics accumulated so far.
type SummarySource interface {
	Summary(elapsed time.Duration) metrics.Summary
}

// RunConfig holds run parameters for display.
type RunConfig struct {
	Targets         []string
	Methods         []string
	Total           int
	Duration        time.Duration
	BatchSize       int
	Rate            int
	Retries         int
	ConnectionLimit int
	Timeout         time.Duration
	ConfigFile      string
}

// Dashboard renders a live terminal UI for run metrics.
type Dashboard struct {
	source       SummarySource
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	statusList     *widgets.List
	errorList      *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	batchPlot      *widgets.Plot
	latencyHistory []float64
	batchHistory   []float64
	lastCycle      runner.CycleReport
	startTime      time.Time
	runConfig      RunConfig
}

// New creates a new Dashboard. shutdownFunc is invoked when the user presses q.
func New(source SummarySource, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		source:         source,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
		batchHistory:   make([]float64, 0, historySize),
		startTime:      time.Now(),
		runConfig:      cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP95: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second (of target rate)"
	d.rpsGauge.Percent = 0
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Codes"
	d.statusList.Rows = []string{"Awaiting responses"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.statusList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failures"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Metrics"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan

	d.batchPlot = widgets.NewPlot()
	d.batchPlot.Title = "Batch Size"
	d.batchPlot.Data = [][]float64{{0, 0}}
	d.batchPlot.LineColors = []ui.Color{ui.ColorMagenta}
	d.batchPlot.AxesColor = ui.ColorWhite
	d.batchPlot.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.20,
			ui.NewCol(0.5, d.rpsGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.24,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.42,
			ui.NewCol(0.4, d.batchPlot),
			ui.NewCol(0.3, d.statusList),
			ui.NewCol(0.3, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// Observe records a finished cycle. It is safe to pass as runner.Options.OnCycle.
func (d *Dashboard) Observe(report runner.CycleReport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastCycle = report
	d.batchHistory = appendBounded(d.batchHistory, float64(report.BatchSize))
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			// Drain any remaining events
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() cancels the context once the run has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(time.Since(d.startTime))
			d.render()
		}
	}
}

// update refreshes all widget data from the summary source.
func (d *Dashboard) update(elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.source.Summary(elapsed)

	if stats.Successes > 0 {
		d.latencyHistory = appendBounded(d.latencyHistory, stats.MeanLatencyMs)
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | Mean: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.MeanLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	d.rpsGauge.Percent = gaugePercent(stats.RequestsPerSec, d.runConfig.Rate)
	d.rpsGauge.Label = fmt.Sprintf("%.1f / %d RPS", stats.RequestsPerSec, d.runConfig.Rate)

	successRate := stats.SuccessRate * 100

	d.summaryPara.Text = fmt.Sprintf(
		"Targets: %s\n%s\nElapsed: %s | Issued: %s | Success Rate: %.1f%%",
		formatTargets(d.runConfig.Targets, 3),
		d.formatRunParams(),
		elapsed.Round(time.Second),
		formatIssued(stats.Total, d.runConfig.Total),
		successRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Attempts:          %d\nSuccessful:        %d\nFailed:            %d\nTransport Calls:   %d\nCurrent RPS:       %.2f\nCycle:             %s",
		stats.Total,
		stats.Successes,
		stats.Failures,
		stats.TransportCalls,
		stats.RequestsPerSec,
		formatCycle(d.lastCycle),
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP95:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P95LatencyMs,
		stats.P99LatencyMs,
	)

	d.statusList.Rows = formatStatusListRows(stats.StatusCodes)
	d.errorList.Rows = formatErrorListRows(stats.Errors)
	if len(d.batchHistory) > 1 {
		d.batchPlot.Data = [][]float64{d.batchHistory}
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func appendBounded(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func gaugePercent(current float64, target int) int {
	if target <= 0 || current <= 0 {
		return 0
	}
	pct := int(current / float64(target) * 100)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatIssued(total int64, quota int) string {
	if quota <= 0 {
		return fmt.Sprintf("%d", total)
	}
	return fmt.Sprintf("%d/%d", total, quota)
}

func formatTargets(targets []string, limit int) string {
	if len(targets) == 0 {
		return "none"
	}
	if len(targets) <= limit {
		return strings.Join(targets, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(targets[:limit], ", "), len(targets)-limit)
}

func formatCycle(c runner.CycleReport) string {
	if c.Cycle == 0 {
		return "n/a"
	}
	line := fmt.Sprintf("#%d planned %d in %s", c.Cycle, c.Planned, c.Elapsed.Round(time.Millisecond))
	if c.Throttled {
		line += " [throttled](fg:yellow)"
	}
	return line
}

func formatStatusListRows(codes map[int]int64) []string {
	rows := metrics.FlattenStatusCodes(codes)
	if len(rows) == 0 {
		return []string{"[Awaiting responses](fg:green)"}
	}
	maxRows := min(len(rows), 10)
	formatted := make([]string, 0, maxRows)
	for _, row := range rows[:maxRows] {
		formatted = append(formatted, fmt.Sprintf("[%d](fg:%s) %s x%d", row.Code, classColor(row.Class), row.Class, row.Count))
	}
	return formatted
}

func formatErrorListRows(errs map[string]int64) []string {
	if len(errs) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	rows := metrics.SortedKinds(errs)
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", metrics.FriendlyKindName(row.Kind), row.Count))
	}
	return formatted
}

func classColor(class string) string {
	switch class {
	case "2xx":
		return "green"
	case "3xx":
		return "cyan"
	case "4xx":
		return "yellow"
	default:
		return "red"
	}
}

// formatRunParams formats the run configuration for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	if len(d.runConfig.Methods) > 0 {
		parts = append(parts, fmt.Sprintf("Methods: %s", strings.Join(d.runConfig.Methods, ",")))
	}
	if d.runConfig.BatchSize > 0 {
		parts = append(parts, fmt.Sprintf("Batch: %d", d.runConfig.BatchSize))
	}
	if d.runConfig.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", d.runConfig.Rate))
	}
	if d.runConfig.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.runConfig.Duration))
	}
	if d.runConfig.ConnectionLimit > 0 {
		parts = append(parts, fmt.Sprintf("Connections: %d", d.runConfig.ConnectionLimit))
	}
	if d.runConfig.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.runConfig.Timeout))
	}
	if d.runConfig.Retries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", d.runConfig.Retries))
	}
	if d.runConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.runConfig.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
