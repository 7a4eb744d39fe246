package attempt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/volley/internal/httpclient"
	"github.com/torosent/volley/internal/logging"
	"github.com/torosent/volley/internal/tracing"
)

// maxDrainBytes bounds how much of a response body is read before closing.
const maxDrainBytes = 1 << 20

// Doer issues a single HTTP request.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// RequestFactory prepares the headers and payload of an attempt once, then
// builds a fresh request carrying them for each try.
type RequestFactory interface {
	Prepare(method string) httpclient.Content
	Build(ctx context.Context, method, target string, c httpclient.Content) (*http.Request, error)
}

// Slots bounds simultaneously open requests.
type Slots interface {
	Acquire(ctx context.Context) error
	Release()
}

type Options struct {
	Client      Doer
	Requests    RequestFactory
	Slots       Slots         // optional connection ceiling
	Timeout     time.Duration // per try
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	NewBackOff  func() backoff.BackOff // overrides BaseDelay/MaxDelay
	Tracer      trace.Tracer
	Propagate   bool
	Logger      logrus.FieldLogger
	LogFailures bool
}

// Executor runs Attempts to completion: one or more tries with backoff in
// between, never more than MaxRetries+1 transport calls.
type Executor struct {
	opts        Options
	log         logrus.FieldLogger
	tracer      trace.Tracer
	warnLimited rate.Sometimes
	warnOverRun rate.Sometimes
}

func NewExecutor(opts Options) (*Executor, error) {
	if opts.Client == nil {
		return nil, errors.New("attempt: client is required")
	}
	if opts.Requests == nil {
		return nil, errors.New("attempt: request factory is required")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("attempt: timeout must be > 0, got %s", opts.Timeout)
	}
	if opts.MaxDelay > 0 && opts.BaseDelay > opts.MaxDelay {
		return nil, fmt.Errorf("attempt: base delay %s exceeds max delay %s", opts.BaseDelay, opts.MaxDelay)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("volley")
	}
	return &Executor{
		opts:        opts,
		log:         logging.OrDiscard(opts.Logger),
		tracer:      tracer,
		warnLimited: rate.Sometimes{Interval: time.Second},
		warnOverRun: rate.Sometimes{Interval: time.Second},
	}, nil
}

type state int

const (
	statePending state = iota
	stateRetrying
	stateExhausted
	stateSucceeded
)

func (s state) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateRetrying:
		return "retrying"
	case stateExhausted:
		return "exhausted"
	case stateSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

// nextState decides what follows a try. calls counts transport calls made so far.
func nextState(calls, maxRetries int, tryErr *TransportError, runDone bool) state {
	switch {
	case tryErr == nil:
		return stateSucceeded
	case !tryErr.Kind.Retryable():
		return stateExhausted
	case calls > maxRetries:
		return stateExhausted
	case runDone:
		return stateExhausted
	default:
		return stateRetrying
	}
}

// Execute runs the attempt until it succeeds or its retries are exhausted.
// Cancelling ctx stops further retries; a try already in flight finishes
// under its own timeout. Waiting for a connection slot is not part of a try.
func (e *Executor) Execute(ctx context.Context, a Attempt) Outcome {
	maxRetries := max(a.MaxRetries, 0)
	ctx, span := tracing.StartAttemptSpan(ctx, e.tracer, a.Method, a.Target)
	b := e.newBackOff()
	content := e.opts.Requests.Prepare(a.Method)

	var (
		st      = statePending
		calls   int
		status  int
		elapsed time.Duration
		last    *TransportError
	)
	for st == statePending || st == stateRetrying {
		if st == stateRetrying {
			delay := b.NextBackOff()
			e.log.WithFields(logrus.Fields{
				"attempt": a.ID,
				"target":  a.Target,
				"call":    calls,
				"kind":    last.Kind,
				"delay":   delay,
			}).Debug("retrying attempt")
			if delay == backoff.Stop || !sleep(ctx, delay) {
				st = stateExhausted
				break
			}
		}

		release, err := e.acquire(ctx)
		if err != nil {
			last = newTransportError(err)
			st = stateExhausted
			break
		}
		var tryErr *TransportError
		status, elapsed, tryErr = e.try(ctx, a, content)
		release()
		calls++
		if tryErr != nil {
			last = tryErr
		}
		st = nextState(calls, maxRetries, tryErr, ctx.Err() != nil)
	}

	if st == stateSucceeded {
		e.warnStatus(a, status)
		tracing.EndSpan(span, nil,
			attribute.Int("http.response.status_code", status),
			attribute.Int("volley.calls", calls),
		)
		return success(a, status, elapsed, calls)
	}

	out := failure(a, calls, last)
	e.logExhausted(a, out)
	tracing.EndSpan(span, out.Err,
		attribute.String("error.type", string(out.Kind)),
		attribute.Int("volley.calls", calls),
	)
	return out
}

// acquire waits for a connection slot. The wait is detached from run
// cancellation and from the try timeout, so a queued try never counts as a
// transport call until it actually holds a slot.
func (e *Executor) acquire(ctx context.Context) (func(), error) {
	if e.opts.Slots == nil {
		return func() {}, nil
	}
	if err := e.opts.Slots.Acquire(context.WithoutCancel(ctx)); err != nil {
		return nil, err
	}
	return e.opts.Slots.Release, nil
}

// try performs one transport call on a context detached from run cancellation.
// Only the call itself runs under the try timeout.
func (e *Executor) try(ctx context.Context, a Attempt, content httpclient.Content) (int, time.Duration, *TransportError) {
	tryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.Timeout)
	defer cancel()

	req, err := e.opts.Requests.Build(tryCtx, a.Method, a.Target, content)
	if err != nil {
		return 0, 0, &TransportError{Kind: KindInvalidRequest, Err: err}
	}
	if e.opts.Propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := e.opts.Client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return 0, elapsed, newTransportError(err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
	return resp.StatusCode, elapsed, nil
}

func (e *Executor) newBackOff() backoff.BackOff {
	if e.opts.NewBackOff != nil {
		b := e.opts.NewBackOff()
		b.Reset()
		return b
	}
	b := backoff.NewExponentialBackOff()
	if e.opts.BaseDelay > 0 {
		b.InitialInterval = e.opts.BaseDelay
	}
	if e.opts.MaxDelay > 0 {
		b.MaxInterval = e.opts.MaxDelay
	}
	b.Reset()
	return b
}

func (e *Executor) warnStatus(a Attempt, status int) {
	switch {
	case status == http.StatusTooManyRequests:
		e.warnLimited.Do(func() {
			e.log.WithField("target", a.Target).Warn("rate limiting detected (HTTP 429)")
		})
	case status >= 500:
		e.warnOverRun.Do(func() {
			e.log.WithFields(logrus.Fields{"target": a.Target, "status": status}).Warn("server error, possible overload")
		})
	}
}

func (e *Executor) logExhausted(a Attempt, out Outcome) {
	entry := e.log.WithFields(logrus.Fields{
		"attempt": a.ID,
		"target":  a.Target,
		"method":  a.Method,
		"calls":   out.Calls,
		"kind":    out.Kind,
	}).WithError(out.Err)
	if e.opts.LogFailures {
		entry.Warn("attempt failed")
		return
	}
	entry.Debug("attempt failed")
}

// sleep waits d on the context clock. It returns false if ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := clock.NewTimer(ctx, d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
