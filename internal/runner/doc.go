// Package runner provides the batch dispatch engine for volley.
//
// A run is a loop of cycles. Each cycle plans a batch, dispatches it,
// waits for every outcome and reports the batch to the aggregator:
//
//	planning -> dispatching -> awaitingCompletion -> reporting
//
// The planned size is min(batch size, quota left, rate). After reporting,
// the [Pacer] pauses so that a cycle of n attempts lasts at least n/rate
// seconds. A [ResourceGovernor] may shrink the batch size between cycles;
// it never grows back.
//
// # Basic Usage
//
//	r, err := runner.New(runner.Options{
//		Targets:   []string{"http://localhost:8080/"},
//		Executor:  exec,
//		Total:     1000,
//		Duration:  time.Minute,
//		BatchSize: 50,
//		Rate:      100,
//	})
//	if err != nil {
//		return err // *runner.ConfigError
//	}
//	result := r.Run(ctx)
//
// The run stops when the quota is issued, when the deadline has passed at a
// cycle boundary, or when ctx is cancelled. In the last case in-flight
// attempts still finish and are counted.
package runner
