// Package targets holds the fixed set of endpoint URLs a run draws from.
package targets

import (
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrEmpty is returned when a Set would contain no usable URLs.
var ErrEmpty = errors.New("target set is empty")

// Set is an ordered, immutable collection of endpoint URLs.
// Pick is safe for concurrent use.
type Set struct {
	urls []string

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option customizes a Set.
type Option func(*Set)

// WithSource replaces the random source used by Pick.
func WithSource(src rand.Source) Option {
	return func(s *Set) {
		if src != nil {
			s.rnd = rand.New(src)
		}
	}
}

// New builds a Set from raw URLs. Blank entries are ignored; every remaining
// entry must be an absolute http or https URL.
func New(raw []string, opts ...Option) (*Set, error) {
	urls := make([]string, 0, len(raw))
	for idx, entry := range raw {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			continue
		}
		if err := validateURL(trimmed); err != nil {
			return nil, fmt.Errorf("targets[%d]: %w", idx, err)
		}
		urls = append(urls, trimmed)
	}
	if len(urls) == 0 {
		return nil, ErrEmpty
	}

	s := &Set{
		urls: urls,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Pick returns one URL chosen uniformly at random.
func (s *Set) Pick() string {
	if len(s.urls) == 1 {
		return s.urls[0]
	}
	s.mu.Lock()
	idx := s.rnd.Intn(len(s.urls))
	s.mu.Unlock()
	return s.urls[idx]
}

// Size reports how many URLs the set holds.
func (s *Set) Size() int {
	return len(s.urls)
}

// URLs returns a copy of the configured URLs in their original order.
func (s *Set) URLs() []string {
	return append([]string(nil), s.urls...)
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("invalid URL %q: scheme must be http or https", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid URL %q: host is required", raw)
	}
	return nil
}
