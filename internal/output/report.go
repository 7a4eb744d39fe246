package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/torosent/volley/internal/metrics"
	"github.com/torosent/volley/internal/threshold"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, stats metrics.Summary) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if stats.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", stats.RunID)
	}
	if stats.Stop != "" {
		fmt.Fprintf(w, "Stopped By:        %s\n", stats.Stop)
	}
	if stats.Quota > 0 {
		fmt.Fprintf(w, "Total Requests:    %d / %d\n", stats.Total, stats.Quota)
	} else {
		fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	}
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Success Rate:      %.2f%%\n", stats.SuccessRate*100)
	fmt.Fprintf(w, "Transport Calls:   %d\n", stats.TransportCalls)
	fmt.Fprintf(w, "Batches:           %d\n", stats.Batches)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	fmt.Fprintln(w, "\nStatus Codes:")
	writeStatusBuckets(w, stats.StatusCodes, "  ")

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, row := range metrics.SortedKinds(stats.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", metrics.FriendlyKindName(row.Kind), row.Count)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, stats metrics.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, stats metrics.Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(stats); err != nil {
		return err
	}
	return enc.Close()
}

// PrintThresholdResults lists each threshold outcome and reports whether all passed.
func PrintThresholdResults(w io.Writer, results []threshold.Result) bool {
	if len(results) == 0 {
		return true
	}
	passed := true
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
		if !r.Pass {
			passed = false
		}
	}
	return passed
}

func writeStatusBuckets(w io.Writer, codes map[int]int64, indent string) {
	rows := metrics.FlattenStatusCodes(codes)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%d (%s): %d\n", indent, row.Code, row.Class, row.Count)
	}
}
