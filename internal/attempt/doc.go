// Package attempt executes single load attempts against a target.
//
// An Executor issues one try per transport call, classifies transport
// failures into an ErrorKind and retries with exponential backoff until the
// attempt's retry allowance is spent. Any HTTP response counts as a success;
// status codes are left to the metrics layer.
package attempt
