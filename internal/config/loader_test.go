package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestToDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{"1s", time.Second},
		{" 150ms ", 150 * time.Millisecond},
		{5, 5 * time.Second},
		{float64(2), 2 * time.Second},
		{0.5, 500 * time.Millisecond},
		{"", 0},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := toDuration(tt.input)
		if err != nil {
			t.Errorf("toDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("toDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}

	if _, err := toDuration([]string{"1s"}); err == nil {
		t.Error("toDuration(list) error = nil, want error")
	}
}

func TestToList(t *testing.T) {
	got, err := toList("GET, POST ,,HEAD")
	if err != nil {
		t.Fatalf("toList() error = %v", err)
	}
	want := []string{"GET", "POST", "HEAD"}
	if len(got) != len(want) {
		t.Fatalf("toList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("toList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	got, err = toList([]interface{}{"http://a.example", "http://b.example"})
	if err != nil || len(got) != 2 {
		t.Fatalf("toList(list) = %v, %v", got, err)
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Default()
	settings := map[string]interface{}{
		"targets":        []interface{}{"http://example.com", "http://example.org"},
		"methods":        "post",
		"batch_size":     50,
		"min_batch_size": "5",
		"timeout":        "5s",
		"headers": map[string]interface{}{
			"content-type": "application/json",
		},
		"throttle": map[string]interface{}{
			"heap_mb": 256,
		},
		"tracing": map[interface{}]interface{}{
			"endpoint":    "localhost:4317",
			"sample_rate": 0.25,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if len(cfg.Targets) != 2 || cfg.Targets[1] != "http://example.org" {
		t.Errorf("Targets = %v", cfg.Targets)
	}
	if len(cfg.Methods) != 1 || cfg.Methods[0] != "post" {
		t.Errorf("Methods = %v, want [post]", cfg.Methods)
	}
	if cfg.BatchSize != 50 || cfg.MinBatchSize != 5 {
		t.Errorf("BatchSize/MinBatchSize = %d/%d, want 50/5", cfg.BatchSize, cfg.MinBatchSize)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q, want application/json", cfg.Headers["Content-Type"])
	}
	if cfg.Throttle.HeapMB != 256 {
		t.Errorf("Throttle.HeapMB = %d, want 256", cfg.Throttle.HeapMB)
	}
	if cfg.Throttle.Interval != DefaultThrottleEvery {
		t.Errorf("Throttle.Interval = %v, want default kept", cfg.Throttle.Interval)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want default grpc", cfg.Tracing.Protocol)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	cfg := Default()
	err := applyConfigSettings(cfg, map[string]interface{}{"rate": []int{1}})
	if err == nil {
		t.Fatal("applyConfigSettings() error = nil, want error")
	}
	err = applyConfigSettings(cfg, map[string]interface{}{"throttle": "fast"})
	if err == nil {
		t.Fatal("applyConfigSettings() throttle error = nil, want error")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Default()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--target=http://a.example",
		"--target=http://b.example",
		"-m", "PUT",
		"--header=X-Test=123",
		"--rate=7",
		"--throttle-heap-mb=64",
		"--tracing-propagate",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if len(cfg.Targets) != 2 {
		t.Errorf("Targets = %v, want 2 entries", cfg.Targets)
	}
	if len(cfg.Methods) != 1 || cfg.Methods[0] != "PUT" {
		t.Errorf("Methods = %v, want [PUT]", cfg.Methods)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if cfg.Rate != 7 {
		t.Errorf("Rate = %d, want 7", cfg.Rate)
	}
	if cfg.Total != DefaultTotal {
		t.Errorf("Total = %d, want untouched default", cfg.Total)
	}
	if !cfg.Throttle.Enabled() {
		t.Error("Throttle.Enabled() = false, want true")
	}
	if !cfg.Tracing.ShouldPropagate() || !cfg.Tracing.Enabled() {
		t.Errorf("Tracing = %+v, want propagation enabled", cfg.Tracing)
	}
}

func TestApplyFlagOverridesRejectsMalformedHeader(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--header=NoEquals"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(Default(), fs); err == nil {
		t.Fatal("applyFlagOverrides() error = nil, want error")
	}
}
