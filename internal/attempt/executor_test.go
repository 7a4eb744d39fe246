package attempt_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/torosent/volley/internal/attempt"
	"github.com/torosent/volley/internal/httpclient"
	"github.com/torosent/volley/internal/pool"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

type plainFactory struct{}

func (plainFactory) Prepare(string) httpclient.Content { return httpclient.Content{} }

func (plainFactory) Build(ctx context.Context, method, target string, _ httpclient.Content) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, target, nil)
}

type failingFactory struct{ calls atomic.Int32 }

func (f *failingFactory) Prepare(string) httpclient.Content { return httpclient.Content{} }

func (f *failingFactory) Build(context.Context, string, string, httpclient.Content) (*http.Request, error) {
	f.calls.Add(1)
	return nil, errors.New("bad request template")
}

// countingGenerator records how often headers and payloads are generated.
type countingGenerator struct {
	headers  atomic.Int32
	payloads atomic.Int32
}

func (g *countingGenerator) NextHeaders() map[string]string {
	n := g.headers.Add(1)
	return map[string]string{"X-Seq": strconv.Itoa(int(n))}
}

func (g *countingGenerator) NextPayload(int) []byte {
	n := g.payloads.Add(1)
	return []byte("body-" + strconv.Itoa(int(n)))
}

// fixedBackOff returns the same delay forever.
type fixedBackOff struct {
	delay  time.Duration
	resets atomic.Int32
}

func (b *fixedBackOff) NextBackOff() time.Duration { return b.delay }
func (b *fixedBackOff) Reset()                     { b.resets.Add(1) }

func okResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("ok")),
	}
}

func refusedErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func newExecutor(t *testing.T, opts attempt.Options) *attempt.Executor {
	t.Helper()
	if opts.Requests == nil {
		opts.Requests = plainFactory{}
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff { return &fixedBackOff{} }
	}
	exec, err := attempt.NewExecutor(opts)
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return exec
}

func TestExecuteCountsErrorStatusAsSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	defer srv.Close()

	gen, err := httpclient.NewGenerator(nil, "")
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	builder, err := httpclient.NewRequestBuilder(gen, 64)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	exec := newExecutor(t, attempt.Options{
		Client:   srv.Client(),
		Requests: builder,
	})

	out := exec.Execute(context.Background(), attempt.Attempt{ID: 1, Target: srv.URL, Method: http.MethodPost, MaxRetries: 3})
	if !out.Succeeded() {
		t.Fatalf("Succeeded() = false, err = %v", out.Err)
	}
	if out.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", out.StatusCode)
	}
	if out.Calls != 1 || hits.Load() != 1 {
		t.Errorf("Calls = %d, server hits = %d, want 1 and 1", out.Calls, hits.Load())
	}
	if out.Elapsed <= 0 {
		t.Errorf("Elapsed = %v, want > 0", out.Elapsed)
	}
	if out.AttemptID != 1 || out.Method != http.MethodPost || out.Target != srv.URL {
		t.Errorf("Outcome identity = %+v", out)
	}
}

func TestExecuteBoundsTransportCalls(t *testing.T) {
	for _, retries := range []int{0, 1, 2, 5} {
		var calls atomic.Int32
		exec := newExecutor(t, attempt.Options{
			Client: doerFunc(func(*http.Request) (*http.Response, error) {
				calls.Add(1)
				return nil, refusedErr()
			}),
		})

		out := exec.Execute(context.Background(), attempt.Attempt{Target: "http://example.invalid", Method: http.MethodGet, MaxRetries: retries})
		if out.Succeeded() {
			t.Fatalf("retries=%d: Succeeded() = true, want failure", retries)
		}
		if out.Calls != retries+1 || int(calls.Load()) != retries+1 {
			t.Errorf("retries=%d: Calls = %d, doer calls = %d, want %d", retries, out.Calls, calls.Load(), retries+1)
		}
		if out.Kind != attempt.KindConnectionRefused {
			t.Errorf("retries=%d: Kind = %q, want connection_refused", retries, out.Kind)
		}
		var exhausted *attempt.ExhaustedRetriesError
		if !errors.As(out.Err, &exhausted) {
			t.Fatalf("retries=%d: Err = %T, want *ExhaustedRetriesError", retries, out.Err)
		}
		if exhausted.Calls != retries+1 {
			t.Errorf("retries=%d: exhausted.Calls = %d", retries, exhausted.Calls)
		}
		if !errors.Is(out.Err, syscall.ECONNREFUSED) {
			t.Errorf("retries=%d: Err does not unwrap to ECONNREFUSED: %v", retries, out.Err)
		}
	}
}

func TestExecuteRecoversOnRetry(t *testing.T) {
	var calls atomic.Int32
	bo := &fixedBackOff{delay: time.Millisecond}
	exec := newExecutor(t, attempt.Options{
		Client: doerFunc(func(*http.Request) (*http.Response, error) {
			if calls.Add(1) < 3 {
				return nil, io.ErrUnexpectedEOF
			}
			return okResponse(http.StatusOK), nil
		}),
		NewBackOff: func() backoff.BackOff { return bo },
	})

	out := exec.Execute(context.Background(), attempt.Attempt{Target: "http://example.com", Method: http.MethodGet, MaxRetries: 5})
	if !out.Succeeded() {
		t.Fatalf("Succeeded() = false, err = %v", out.Err)
	}
	if out.Calls != 3 {
		t.Errorf("Calls = %d, want 3", out.Calls)
	}
	if bo.resets.Load() != 1 {
		t.Errorf("backoff resets = %d, want 1", bo.resets.Load())
	}
}

func TestExecuteInvalidRequestIsNotRetried(t *testing.T) {
	factory := &failingFactory{}
	var doerCalls atomic.Int32
	exec := newExecutor(t, attempt.Options{
		Client: doerFunc(func(*http.Request) (*http.Response, error) {
			doerCalls.Add(1)
			return okResponse(http.StatusOK), nil
		}),
		Requests: factory,
	})

	out := exec.Execute(context.Background(), attempt.Attempt{Target: "http://example.com", Method: http.MethodGet, MaxRetries: 4})
	if out.Kind != attempt.KindInvalidRequest {
		t.Fatalf("Kind = %q, want invalid_request", out.Kind)
	}
	if out.Calls != 1 || factory.calls.Load() != 1 || doerCalls.Load() != 0 {
		t.Errorf("Calls = %d, builds = %d, doer calls = %d", out.Calls, factory.calls.Load(), doerCalls.Load())
	}
}

func TestExecuteCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	exec := newExecutor(t, attempt.Options{
		Client: doerFunc(func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			cancel()
			return nil, refusedErr()
		}),
		NewBackOff: func() backoff.BackOff { return &fixedBackOff{delay: time.Hour} },
	})

	out := exec.Execute(ctx, attempt.Attempt{Target: "http://example.com", Method: http.MethodGet, MaxRetries: 5})
	if out.Succeeded() {
		t.Fatal("Succeeded() = true, want failure")
	}
	if calls.Load() != 1 || out.Calls != 1 {
		t.Errorf("calls = %d, out.Calls = %d, want 1", calls.Load(), out.Calls)
	}
}

func TestExecuteCancelledRunDoesNotAbortTry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := newExecutor(t, attempt.Options{
		Client: doerFunc(func(r *http.Request) (*http.Response, error) {
			if err := r.Context().Err(); err != nil {
				return nil, err
			}
			return okResponse(http.StatusNoContent), nil
		}),
	})

	out := exec.Execute(ctx, attempt.Attempt{Target: "http://example.com", Method: http.MethodGet})
	if !out.Succeeded() || out.StatusCode != http.StatusNoContent {
		t.Fatalf("Outcome = %+v, want 204 success", out)
	}
}

func TestExecuteAppliesPerTryTimeout(t *testing.T) {
	exec := newExecutor(t, attempt.Options{
		Client: doerFunc(func(r *http.Request) (*http.Response, error) {
			<-r.Context().Done()
			return nil, r.Context().Err()
		}),
		Timeout: 20 * time.Millisecond,
	})

	out := exec.Execute(context.Background(), attempt.Attempt{Target: "http://example.com", Method: http.MethodGet, MaxRetries: 1})
	if out.Kind != attempt.KindTimeout {
		t.Fatalf("Kind = %q, want timeout", out.Kind)
	}
	if out.Calls != 2 {
		t.Errorf("Calls = %d, want 2", out.Calls)
	}
}

func TestExecuteRefusedConnection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	exec := newExecutor(t, attempt.Options{
		Client:  httpclient.NewClient(time.Second, 4),
		Timeout: time.Second,
	})

	out := exec.Execute(context.Background(), attempt.Attempt{Target: target, Method: http.MethodGet, MaxRetries: 1})
	if out.Succeeded() {
		t.Fatal("Succeeded() = true against a closed server")
	}
	if out.Kind != attempt.KindConnectionRefused {
		t.Errorf("Kind = %q, want connection_refused (err = %v)", out.Kind, out.Err)
	}
	if out.Calls != 2 {
		t.Errorf("Calls = %d, want 2", out.Calls)
	}
}

func TestExecuteRespectsSlots(t *testing.T) {
	budget := pool.NewBudget(2)
	exec := newExecutor(t, attempt.Options{
		Client: doerFunc(func(*http.Request) (*http.Response, error) {
			time.Sleep(5 * time.Millisecond)
			return okResponse(http.StatusOK), nil
		}),
		Slots: budget,
	})

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			exec.Execute(context.Background(), attempt.Attempt{ID: id, Target: "http://example.com", Method: http.MethodGet})
		}(uint64(i))
	}
	wg.Wait()

	if peak := budget.Peak(); peak > 2 {
		t.Errorf("Peak() = %d, want <= 2", peak)
	}
	if budget.InUse() != 0 {
		t.Errorf("InUse() = %d after all attempts, want 0", budget.InUse())
	}
}

func TestExecuteSlotWaitIsNotATry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(60 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := newExecutor(t, attempt.Options{
		Client:  srv.Client(),
		Slots:   pool.NewBudget(1),
		Timeout: 100 * time.Millisecond,
	})

	const attempts = 5
	outcomes := make([]attempt.Outcome, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = exec.Execute(context.Background(), attempt.Attempt{ID: uint64(i), Target: srv.URL, Method: http.MethodGet, MaxRetries: 2})
		}(i)
	}
	wg.Wait()

	for _, out := range outcomes {
		if !out.Succeeded() {
			t.Errorf("attempt %d failed after waiting for a slot: %v", out.AttemptID, out.Err)
		}
		if out.Calls != 1 {
			t.Errorf("attempt %d Calls = %d, want 1", out.AttemptID, out.Calls)
		}
	}
	if hits.Load() != attempts {
		t.Errorf("server hits = %d, want %d", hits.Load(), attempts)
	}
}

func TestExecuteGeneratesContentOncePerAttempt(t *testing.T) {
	gen := &countingGenerator{}
	builder, err := httpclient.NewRequestBuilder(gen, 64)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}

	var (
		mu     sync.Mutex
		seqs   []string
		bodies []string
	)
	exec := newExecutor(t, attempt.Options{
		Client: doerFunc(func(r *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			seqs = append(seqs, r.Header.Get("X-Seq"))
			bodies = append(bodies, string(body))
			mu.Unlock()
			return nil, refusedErr()
		}),
		Requests: builder,
	})

	out := exec.Execute(context.Background(), attempt.Attempt{Target: "http://example.com", Method: http.MethodPost, MaxRetries: 2})
	if out.Calls != 3 {
		t.Fatalf("Calls = %d, want 3", out.Calls)
	}
	if gen.headers.Load() != 1 || gen.payloads.Load() != 1 {
		t.Errorf("NextHeaders calls = %d, NextPayload calls = %d, want 1 and 1", gen.headers.Load(), gen.payloads.Load())
	}
	for i := range seqs {
		if seqs[i] != "1" || bodies[i] != "body-1" {
			t.Errorf("try %d sent header %q body %q, want the first generated pair", i, seqs[i], bodies[i])
		}
	}
}

func TestExecuteInjectsTraceHeaders(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTextMapPropagator(propagation.TraceContext{})

	var traceparent atomic.Value
	exec := newExecutor(t, attempt.Options{
		Client: doerFunc(func(r *http.Request) (*http.Response, error) {
			traceparent.Store(r.Header.Get("Traceparent"))
			return okResponse(http.StatusOK), nil
		}),
		Tracer:    tp.Tracer("test"),
		Propagate: true,
	})

	exec.Execute(context.Background(), attempt.Attempt{Target: "http://example.com", Method: http.MethodGet})
	if got, _ := traceparent.Load().(string); got == "" {
		t.Error("Traceparent header not injected")
	}
}

func TestNewExecutorValidation(t *testing.T) {
	cases := []struct {
		name string
		opts attempt.Options
	}{
		{"missing client", attempt.Options{Requests: plainFactory{}, Timeout: time.Second}},
		{"missing factory", attempt.Options{Client: http.DefaultClient, Timeout: time.Second}},
		{"zero timeout", attempt.Options{Client: http.DefaultClient, Requests: plainFactory{}}},
		{"inverted delays", attempt.Options{Client: http.DefaultClient, Requests: plainFactory{}, Timeout: time.Second, BaseDelay: time.Second, MaxDelay: time.Millisecond}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := attempt.NewExecutor(tc.opts); err == nil {
				t.Fatal("NewExecutor() error = nil, want error")
			}
		})
	}
}
