// Package duck implements search.Provider by scraping the DuckDuckGo HTML
// endpoint. It needs no API key and serves as the free fallback engine when
// no paid provider is configured or the paid provider is down.
package duck

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scoutline/startup-enricher/internal/search"
)

const defaultBaseURL = "https://html.duckduckgo.com/html/"

var _ search.Provider = (*Client)(nil)

type Config struct {
	// BaseURL overrides the endpoint for tests.
	BaseURL string

	// RPS throttles outgoing requests. The HTML endpoint is aggressive about
	// blocking scrapers, so keep this low. <=0 disables throttling.
	RPS float64

	Log zerolog.Logger
}

type Client struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Client{
		base:    base,
		http:    &http.Client{Timeout: 20 * time.Second},
		limiter: limiter,
		log:     cfg.Log,
	}
}

func (c *Client) Search(ctx context.Context, query string) ([]search.Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c.log.Debug().Str("query", query).Msg("duckduckgo search")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) startup-enricher/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: duckduckgo: %v", search.ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: duckduckgo returned %d", search.ErrUnavailable, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var out []search.Result
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		title := strings.TrimSpace(s.Find(".result__title").Text())
		snippet := strings.TrimSpace(s.Find(".result__snippet").Text())
		href, _ := s.Find(".result__a").Attr("href")
		if title == "" && snippet == "" {
			return
		}
		out = append(out, search.Result{
			Title:   title,
			Snippet: snippet,
			URL:     cleanRedirect(href),
		})
	})
	return out, nil
}

// cleanRedirect unwraps DuckDuckGo's /l/?uddg=<target> redirect links.
func cleanRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
