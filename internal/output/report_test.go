package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/torosent/volley/internal/metrics"
	"github.com/torosent/volley/internal/threshold"
)

func sampleSummary() metrics.Summary {
	return metrics.Summary{
		RunID:          "01JTESTRUN",
		Stop:           "quota",
		Quota:          100,
		Total:          100,
		Successes:      95,
		Failures:       5,
		SuccessRate:    0.95,
		TransportCalls: 112,
		Batches:        5,
		RequestsPerSec: 50.0,
		Duration:       2 * time.Second,
		DurationMs:     2000,
		P95Latency:     120 * time.Millisecond,
		P95LatencyMs:   120,
		StatusCodes:    map[int]int64{200: 90, 503: 5},
		Errors:         map[string]int64{"connection_refused": 4, "timeout": 1},
	}
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleSummary())

	output := buf.String()
	for _, want := range []string{
		"Total Requests:    100 / 100",
		"Successful:        95",
		"Success Rate:      95.00%",
		"Run ID:            01JTESTRUN",
		"Stopped By:        quota",
		"P95:             120ms",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("report missing %q:\n%s", want, output)
		}
	}
}

func TestPrintReportStatusAndErrors(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleSummary())

	output := buf.String()
	ok := strings.Index(output, "200 (2xx): 90")
	unavailable := strings.Index(output, "503 (5xx): 5")
	if ok < 0 || unavailable < 0 {
		t.Fatalf("status histogram missing:\n%s", output)
	}
	if ok > unavailable {
		t.Errorf("status rows should be ordered by count")
	}
	if !strings.Contains(output, "Connection refused: 4") {
		t.Errorf("expected friendly error kind in output:\n%s", output)
	}
	if !strings.Contains(output, "Timeout: 1") {
		t.Errorf("expected timeout count in output:\n%s", output)
	}
}

func TestPrintReportWithoutResponses(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, metrics.Summary{})

	output := buf.String()
	if !strings.Contains(output, "Status Codes:\n  None") {
		t.Errorf("expected empty histogram marker:\n%s", output)
	}
	if strings.Contains(output, "Errors:") {
		t.Errorf("errors section should be omitted when there are none")
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleSummary()); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}

	doc := buf.String()
	if got := gjson.Get(doc, "total").Int(); got != 100 {
		t.Errorf("total = %d, want 100", got)
	}
	if got := gjson.Get(doc, "success_rate").Float(); got != 0.95 {
		t.Errorf("success_rate = %v, want 0.95", got)
	}
	if got := gjson.Get(doc, "status_codes.200").Int(); got != 90 {
		t.Errorf("status_codes.200 = %d, want 90", got)
	}
	if got := gjson.Get(doc, "errors.connection_refused").Int(); got != 4 {
		t.Errorf("errors.connection_refused = %d, want 4", got)
	}
	if got := gjson.Get(doc, "p95_latency_ms").Float(); got != 120 {
		t.Errorf("p95_latency_ms = %v, want 120", got)
	}
	if got := gjson.Get(doc, "run_id").String(); got != "01JTESTRUN" {
		t.Errorf("run_id = %q", got)
	}
	if gjson.Get(doc, "P95Latency").Exists() {
		t.Errorf("raw duration fields should not be serialized")
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintYAMLReport(&buf, sampleSummary()); err != nil {
		t.Fatalf("PrintYAMLReport failed: %v", err)
	}

	var decoded metrics.Summary
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not valid YAML: %v\n%s", err, buf.String())
	}
	if decoded.Total != 100 {
		t.Errorf("total = %d, want 100", decoded.Total)
	}
	if decoded.Stop != "quota" {
		t.Errorf("stop_reason = %q, want quota", decoded.Stop)
	}
	if decoded.StatusCodes[503] != 5 {
		t.Errorf("status_codes[503] = %d, want 5", decoded.StatusCodes[503])
	}
	if !strings.Contains(buf.String(), "p95_latency_ms: 120") {
		t.Errorf("expected snake_case latency key in YAML:\n%s", buf.String())
	}
}

func TestPrintThresholdResults(t *testing.T) {
	thresholds, err := threshold.ParseMultiple([]string{
		"http_req_failed:rate < 0.10",
		"http_status:5xx == 0",
	})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	results := threshold.NewEvaluator(thresholds).Evaluate(sampleSummary())

	var buf bytes.Buffer
	if PrintThresholdResults(&buf, results) {
		t.Errorf("PrintThresholdResults() = true, want false with a failing threshold")
	}
	output := buf.String()
	if !strings.Contains(output, "✓ http_req_failed:rate < 0.10") {
		t.Errorf("expected passing threshold line:\n%s", output)
	}
	if !strings.Contains(output, "✗ http_status:5xx == 0") {
		t.Errorf("expected failing threshold line:\n%s", output)
	}
}

func TestPrintThresholdResultsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if !PrintThresholdResults(&buf, nil) {
		t.Errorf("no thresholds should count as passing")
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
