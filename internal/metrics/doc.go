// Package metrics aggregates attempt outcomes for a load run.
//
// The [Aggregator] receives one batch of [attempt.Outcome] values per dispatch
// cycle and folds them into [RunMetrics]:
//
//	agg := metrics.NewAggregator()
//	agg.Record(outcomes) // once per batch, from the run loop
//
//	snap := agg.Snapshot()        // deep copy, safe to keep
//	summary := agg.Summary(elapsed)
//
// # Statistics
//
// [Summary] carries totals, success rate, mean/min/max and P50/P90/P95/P99
// latency (from an HDR histogram), requests per second, the status-code
// histogram and the error-kind breakdown. Latency figures only cover attempts
// that received a response.
//
// # Thread Safety
//
// Record is meant for a single writer. Snapshot and Summary may be called
// concurrently from progress and dashboard goroutines.
package metrics
