package mockprovider_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scoutline/startup-enricher/internal/llm"
	"github.com/scoutline/startup-enricher/internal/llm/openai"
	"github.com/scoutline/startup-enricher/internal/mockprovider"
	"github.com/scoutline/startup-enricher/internal/search/tavily"
)

func TestSearchEndpointServesFixtures(t *testing.T) {
	t.Parallel()

	mock := mockprovider.New()
	mock.RequireSearchKey("tvly-test")
	mock.AddSearchFixture("acme", []mockprovider.SearchResult{
		{Title: "Acme | About", URL: "https://acme.dev/about", Content: "Founded by Jane Roe."},
	})

	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	c, err := tavily.New(tavily.Config{APIKey: "tvly-test", BaseURL: srv.URL, Log: zerolog.Nop()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	results, err := c.Search(context.Background(), "Acme founder CEO co-founder")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Acme | About" {
		t.Fatalf("unexpected results: %#v", results)
	}

	// Unknown entities get an empty result list, not an error.
	results, err = c.Search(context.Background(), "Globex official website")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %#v", results)
	}

	if calls := mock.Calls(); len(calls) != 2 || calls[0].Path != "/search" {
		t.Fatalf("unexpected call log: %#v", calls)
	}
}

func TestChatEndpointServesCompletion(t *testing.T) {
	t.Parallel()

	mock := mockprovider.New()
	mock.SetCompletion(`{"description": "Developer tools", "confidence": {"description": 0.9}}`)

	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	c, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	out, err := c.Generate(context.Background(), "extract")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := llm.ExtractJSONObject(out); err != nil {
		t.Fatalf("completion not parseable: %v (%q)", err, out)
	}
}

func TestChatEndpointQuotaExhaustion(t *testing.T) {
	t.Parallel()

	mock := mockprovider.New()
	mock.ExhaustQuota()

	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	c, err := openai.New(openai.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := c.Generate(context.Background(), "extract"); !llm.IsQuota(err) {
		t.Fatalf("expected quota error, got %v", err)
	}
}
