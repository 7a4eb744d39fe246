package httpclient

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries a unique id per attempt; retries repeat it so server
// logs can group the tries of one attempt.
const RequestIDHeader = "X-Request-Id"

const (
	minGeneratedPayload = 512
	payloadAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator supplies per-attempt headers and payloads.
type Generator interface {
	NextHeaders() map[string]string
	NextPayload(maxSize int) []byte
}

// StaticGenerator sends the configured headers on every request and either
// the configured body or a random alphanumeric block as payload.
type StaticGenerator struct {
	headers map[string]string
	body    []byte

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator validates headers and returns a StaticGenerator. An empty body
// means payloads are generated.
func NewGenerator(headers map[string]string, body string) (*StaticGenerator, error) {
	canonical := make(map[string]string, len(headers))
	for key, value := range headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n: ") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		canonical[canonicalKey] = value
	}

	g := &StaticGenerator{
		headers: canonical,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if body != "" {
		g.body = []byte(body)
	}
	return g, nil
}

// NextHeaders returns a fresh copy of the configured headers plus a request id.
func (g *StaticGenerator) NextHeaders() map[string]string {
	out := make(map[string]string, len(g.headers)+1)
	for k, v := range g.headers {
		out[k] = v
	}
	if _, ok := out[RequestIDHeader]; !ok {
		out[RequestIDHeader] = uuid.NewString()
	}
	return out
}

// NextPayload returns at most maxSize bytes.
func (g *StaticGenerator) NextPayload(maxSize int) []byte {
	if maxSize <= 0 {
		return nil
	}
	if g.body != nil {
		if len(g.body) > maxSize {
			return g.body[:maxSize]
		}
		return g.body
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	lower := minGeneratedPayload
	if lower > maxSize {
		lower = maxSize
	}
	size := lower + g.rnd.Intn(maxSize-lower+1)
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = payloadAlphabet[g.rnd.Intn(len(payloadAlphabet))]
	}
	return buf
}
