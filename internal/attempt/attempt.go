package attempt

import (
	"time"
)

// Attempt is one logical request: a target, a method and a retry allowance.
// It is owned by exactly one Execute call.
type Attempt struct {
	ID         uint64
	Target     string
	Method     string
	MaxRetries int // retries allowed after the first try
	Start      time.Time
}

// Outcome is the terminal result of an Attempt. A response of any status is a
// success; a failure carries the kind of the last transport error.
type Outcome struct {
	AttemptID  uint64
	Target     string
	Method     string
	StatusCode int
	Elapsed    time.Duration
	Calls      int
	Kind       ErrorKind
	Err        error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

func success(a Attempt, status int, elapsed time.Duration, calls int) Outcome {
	return Outcome{
		AttemptID:  a.ID,
		Target:     a.Target,
		Method:     a.Method,
		StatusCode: status,
		Elapsed:    elapsed,
		Calls:      calls,
	}
}

func failure(a Attempt, calls int, last *TransportError) Outcome {
	return Outcome{
		AttemptID: a.ID,
		Target:    a.Target,
		Method:    a.Method,
		Calls:     calls,
		Kind:      last.Kind,
		Err:       &ExhaustedRetriesError{Calls: calls, Last: last},
	}
}
