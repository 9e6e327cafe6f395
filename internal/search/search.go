// Package search defines the web-search provider contract used by the
// extraction engine. Providers return normalized results regardless of the
// upstream engine; an empty result list means "no information found" and is
// not an error.
package search

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrUnavailable signals that a provider could not serve the query at all
// (network down, auth failure, hard rate limit). Callers fall back to
// heuristics instead of failing the record.
var ErrUnavailable = errors.New("search provider unavailable")

// Result is one normalized search hit.
type Result struct {
	Title   string
	Snippet string
	URL     string
}

// Provider issues a free-text query and returns ranked results.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Chain tries each provider in order and returns the first usable answer.
// A provider that is unavailable is skipped; only when every provider is
// unavailable does the chain report ErrUnavailable.
type Chain struct {
	Providers []Provider
	Log       zerolog.Logger
}

func (c *Chain) Search(ctx context.Context, query string) ([]Result, error) {
	if len(c.Providers) == 0 {
		return nil, ErrUnavailable
	}
	var lastErr error
	for _, p := range c.Providers {
		results, err := p.Search(ctx, query)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			c.Log.Warn().Err(err).Str("query", query).Msg("search provider failed, trying next")
			lastErr = err
			continue
		}
		return results, nil
	}
	return nil, errors.Join(ErrUnavailable, lastErr)
}
