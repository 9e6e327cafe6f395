// Package llm defines the text-completion contract shared by the extraction
// engine and the reasoning agent, the provider error taxonomy, and the
// process-wide quota circuit breaker.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// Client is a minimal text-completion boundary: one prompt in, free-form text
// out. Implementations must return *RateLimitError for transient throttling
// and *QuotaError for exhausted per-day quotas so callers can tell the two
// apart.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ErrBreakerOpen is returned instead of issuing a network call once the quota
// breaker has tripped.
var ErrBreakerOpen = errors.New("llm quota breaker open")

// RateLimitError is a transient per-minute throttle. Retryable with backoff.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// QuotaError means the per-day quota is exhausted. Not retryable within a run.
type QuotaError struct {
	Provider string
	Err      error
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %v", e.Provider, e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is a transient rate-limit condition.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsQuota reports whether err is a quota-exhaustion condition.
func IsQuota(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}

// Breaker is the session-wide quota circuit breaker. It trips on the first
// QuotaError and stays tripped for the life of the process; there is no reset
// because the quota it models does not reset mid-run. It is an explicit
// injected value rather than a package global so tests can construct a fresh
// one per case.
type Breaker struct {
	open atomic.Bool
}

func NewBreaker() *Breaker { return &Breaker{} }

// Trip opens the breaker.
func (b *Breaker) Trip() { b.open.Store(true) }

// Open reports whether the breaker has tripped.
func (b *Breaker) Open() bool { return b.open.Load() }

// Observe trips the breaker when err is a quota error and returns whether it
// did so.
func (b *Breaker) Observe(err error) bool {
	if IsQuota(err) {
		b.Trip()
		return true
	}
	return false
}

// GatedClient wraps a Client with a Breaker: once the breaker is open every
// call returns ErrBreakerOpen without touching the network, and any quota
// error observed on the way through trips it.
type GatedClient struct {
	Client  Client
	Breaker *Breaker
}

func (g *GatedClient) Name() string { return g.Client.Name() }

func (g *GatedClient) Generate(ctx context.Context, prompt string) (string, error) {
	if g.Breaker.Open() {
		return "", ErrBreakerOpen
	}
	out, err := g.Client.Generate(ctx, prompt)
	if err != nil {
		g.Breaker.Observe(err)
		return "", err
	}
	return out, nil
}

// ExtractJSONObject locates the first balanced JSON object in a model
// response, stripping Markdown code fences first. The model output is an
// untyped boundary; callers must treat the returned bytes as untrusted and
// unmarshal defensively.
func ExtractJSONObject(s string) ([]byte, error) {
	s = strings.TrimSpace(s)

	// Strip ```json ... ``` or ``` ... ``` fences.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON object in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return []byte(s[start : i+1]), nil
			}
		}
	}
	return nil, fmt.Errorf("unbalanced JSON object in response")
}
