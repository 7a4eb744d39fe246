package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fixedGenerator struct {
	headers map[string]string
	payload []byte
	calls   int
}

func (f *fixedGenerator) NextHeaders() map[string]string {
	return f.headers
}

func (f *fixedGenerator) NextPayload(maxSize int) []byte {
	f.calls++
	if len(f.payload) > maxSize {
		return f.payload[:maxSize]
	}
	return f.payload
}

func TestBuildPostCarriesPayload(t *testing.T) {
	gen := &fixedGenerator{
		headers: map[string]string{"X-Trace-Id": "12345"},
		payload: []byte("hello world"),
	}
	builder, err := NewRequestBuilder(gen, 5)
	if err != nil {
		t.Fatalf("expected builder, got error: %v", err)
	}

	req, err := builder.Build(context.Background(), "post", "http://example.com/api", builder.Prepare("post"))
	if err != nil {
		t.Fatalf("expected request, got error: %v", err)
	}
	if req.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %s", req.Method)
	}
	if req.Header.Get("X-Trace-Id") != "12345" {
		t.Fatalf("expected X-Trace-Id header, got %q", req.Header.Get("X-Trace-Id"))
	}
	if req.Header.Get("Content-Type") == "" {
		t.Fatalf("expected default content type for payload")
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("expected payload truncated to 5 bytes, got %q", body)
	}
	if req.ContentLength != 5 {
		t.Fatalf("expected content length 5, got %d", req.ContentLength)
	}

	replay, err := req.GetBody()
	if err != nil {
		t.Fatalf("expected replay body, got error: %v", err)
	}
	replayed, _ := io.ReadAll(replay)
	if string(replayed) != "hello" {
		t.Fatalf("expected replay body %q, got %q", "hello", replayed)
	}
}

func TestBuildGetAndHeadSkipPayload(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		gen := &fixedGenerator{payload: []byte("ignored")}
		builder, err := NewRequestBuilder(gen, 1024)
		if err != nil {
			t.Fatalf("NewRequestBuilder() error = %v", err)
		}
		req, err := builder.Build(context.Background(), method, "http://example.com", builder.Prepare(method))
		if err != nil {
			t.Fatalf("Build(%s) error = %v", method, err)
		}
		if gen.calls != 0 {
			t.Errorf("%s: payload generator should not be consulted", method)
		}
		if req.ContentLength != 0 {
			t.Errorf("%s: expected zero content length, got %d", method, req.ContentLength)
		}
	}
}

func TestBuildReusesPreparedContent(t *testing.T) {
	gen, err := NewGenerator(nil, "")
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	builder, err := NewRequestBuilder(gen, 600)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}

	content := builder.Prepare(http.MethodPost)
	first, err := builder.Build(context.Background(), http.MethodPost, "http://example.com", content)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	second, err := builder.Build(context.Background(), http.MethodPost, "http://example.com", content)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if first.Header.Get(RequestIDHeader) == "" || first.Header.Get(RequestIDHeader) != second.Header.Get(RequestIDHeader) {
		t.Errorf("request ids %q and %q should match across tries", first.Header.Get(RequestIDHeader), second.Header.Get(RequestIDHeader))
	}
	a, _ := io.ReadAll(first.Body)
	b, _ := io.ReadAll(second.Body)
	if len(a) == 0 || string(a) != string(b) {
		t.Errorf("payloads differ across tries: %d vs %d bytes", len(a), len(b))
	}
}

func TestBuildDropsPayloadForBodylessMethod(t *testing.T) {
	builder, err := NewRequestBuilder(&fixedGenerator{}, 10)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	req, err := builder.Build(context.Background(), http.MethodGet, "http://example.com", Content{Payload: []byte("x")})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.ContentLength != 0 {
		t.Errorf("GET should not carry a payload, content length %d", req.ContentLength)
	}
}

func TestBuildRejectsInvalidTarget(t *testing.T) {
	builder, err := NewRequestBuilder(&fixedGenerator{}, 0)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	if _, err := builder.Build(context.Background(), http.MethodGet, "http://bad host/", Content{}); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}

func TestNewRequestBuilderValidation(t *testing.T) {
	if _, err := NewRequestBuilder(nil, 10); err == nil {
		t.Error("expected error for nil generator")
	}
	if _, err := NewRequestBuilder(&fixedGenerator{}, -1); err == nil {
		t.Error("expected error for negative payload size")
	}
}

func TestMethodAllowsBody(t *testing.T) {
	tests := map[string]bool{
		"POST":   true,
		"put":    true,
		"PATCH":  true,
		"GET":    false,
		"HEAD":   false,
		"DELETE": false,
	}
	for method, want := range tests {
		if got := MethodAllowsBody(method); got != want {
			t.Errorf("MethodAllowsBody(%q) = %v, want %v", method, got, want)
		}
	}
}

func TestNewClientTransportLimits(t *testing.T) {
	client := NewClient(2*time.Second, 7)
	if client.Timeout != 2*time.Second {
		t.Fatalf("expected timeout 2s, got %s", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if transport.MaxConnsPerHost != 7 {
		t.Fatalf("expected MaxConnsPerHost 7, got %d", transport.MaxConnsPerHost)
	}
}

func TestClientRoundTrip(t *testing.T) {
	var gotBody string
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotID = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	gen, err := NewGenerator(map[string]string{"content-type": "application/json"}, `{"ok":true}`)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	builder, err := NewRequestBuilder(gen, 1024)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	req, err := builder.Build(context.Background(), http.MethodPut, server.URL, builder.Prepare(http.MethodPut))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	resp, err := NewClient(time.Second, 2).Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if gotBody != `{"ok":true}` {
		t.Fatalf("server saw body %q", gotBody)
	}
	if strings.TrimSpace(gotID) == "" {
		t.Fatal("expected request id header")
	}
}
