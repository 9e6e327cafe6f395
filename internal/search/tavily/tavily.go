// Package tavily implements search.Provider on the Tavily search API.
package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scoutline/startup-enricher/internal/search"
)

const defaultBaseURL = "https://api.tavily.com"

var _ search.Provider = (*Client)(nil)

type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint. Useful for the mock provider and tests.
	BaseURL string

	// MaxResults caps results per query. Defaults to 5.
	MaxResults int

	// RPS throttles outgoing requests. <=0 disables throttling.
	RPS float64

	Log zerolog.Logger
}

type Client struct {
	http       *resty.Client
	apiKey     string
	maxResults int
	limiter    *rate.Limiter
	log        zerolog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily: API key is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Client{
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(30 * time.Second),
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		limiter:    limiter,
		log:        cfg.Log,
	}, nil
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string) ([]search.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c.log.Debug().Str("query", query).Msg("tavily search")

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(searchRequest{
			APIKey:      c.apiKey,
			Query:       query,
			SearchDepth: "basic",
			MaxResults:  c.maxResults,
		}).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("%w: tavily: %v", search.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK:
	case resp.StatusCode() == http.StatusTooManyRequests,
		resp.StatusCode() == http.StatusUnauthorized,
		resp.StatusCode() >= 500:
		return nil, fmt.Errorf("%w: tavily returned %d", search.ErrUnavailable, resp.StatusCode())
	default:
		return nil, fmt.Errorf("tavily returned %d: %s", resp.StatusCode(), resp.String())
	}

	var parsed searchResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("parse tavily response: %w", err)
	}

	out := make([]search.Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, search.Result{
			Title:   r.Title,
			Snippet: r.Content,
			URL:     r.URL,
		})
	}
	return out, nil
}
