package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// RequestBuilder turns a method and target into a ready-to-send request.
// Headers and payload are drawn from a Generator once per attempt by Prepare
// and reused for every try of that attempt.
type RequestBuilder struct {
	generator  Generator
	maxPayload int
}

// Content is the generated part of one attempt.
type Content struct {
	Headers map[string]string
	Payload []byte
}

func NewRequestBuilder(generator Generator, maxPayload int) (*RequestBuilder, error) {
	if generator == nil {
		return nil, errors.New("generator cannot be nil")
	}
	if maxPayload < 0 {
		return nil, fmt.Errorf("max payload must be >= 0, got %d", maxPayload)
	}
	return &RequestBuilder{
		generator:  generator,
		maxPayload: maxPayload,
	}, nil
}

// Prepare calls the generator once. Only body-carrying methods get a payload.
func (b *RequestBuilder) Prepare(method string) Content {
	c := Content{Headers: b.generator.NextHeaders()}
	if MethodAllowsBody(normalizeMethod(method)) {
		c.Payload = b.generator.NextPayload(b.maxPayload)
	}
	return c
}

// Build creates a request for one transport call from prepared content.
func (b *RequestBuilder) Build(ctx context.Context, method, target string, c Content) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method = normalizeMethod(method)
	payload := c.Payload
	if !MethodAllowsBody(method) {
		payload = nil
	}

	var body io.Reader = http.NoBody
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}

	for key, value := range c.Headers {
		req.Header.Set(key, value)
	}

	if len(payload) > 0 {
		req.ContentLength = int64(len(payload))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
		if req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	}

	return req, nil
}

func normalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return http.MethodGet
	}
	return method
}

// MethodAllowsBody reports whether requests with the given method carry a payload.
func MethodAllowsBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// NewClient returns a client tuned for load generation. maxConns caps the
// number of connections per host, idle or active.
func NewClient(timeout time.Duration, maxConns int) *http.Client {
	if timeout < 0 {
		timeout = 0
	}
	if maxConns <= 0 {
		maxConns = 256
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maxConns,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
