package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/volley/internal/metrics"
)

// SummarySource yields the metrics accumulated so far.
type SummarySource interface {
	Summary(elapsed time.Duration) metrics.Summary
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   SummarySource
	quota    int
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. A positive quota adds a completion percentage to each line.
func NewProgressReporter(source SummarySource, quota int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:   source,
		quota:    quota,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	p.start = time.Now()
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, progressLine(p.source.Summary(time.Since(p.start)), p.quota))
		case <-p.done:
			return
		}
	}
}

func progressLine(stats metrics.Summary, quota int) string {
	line := fmt.Sprintf("\rRequests: %d", stats.Total)
	if quota > 0 {
		line += fmt.Sprintf("/%d (%.0f%%)", quota, float64(stats.Total)/float64(quota)*100)
	}
	line += fmt.Sprintf(" | Successes: %d | Failures: %d | RPS: %.1f",
		stats.Successes, stats.Failures, stats.RequestsPerSec)
	if stats.Total > 0 {
		line += fmt.Sprintf(" | P95: %.1fms", stats.P95LatencyMs)
	}
	return line
}
