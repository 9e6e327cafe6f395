package tavily_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scoutline/startup-enricher/internal/search"
	"github.com/scoutline/startup-enricher/internal/search/tavily"
)

func newClient(t *testing.T, handler http.HandlerFunc) *tavily.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := tavily.New(tavily.Config{
		APIKey:  "tvly-test",
		BaseURL: srv.URL,
		Log:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestSearchParsesResults(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["api_key"] != "tvly-test" {
			t.Errorf("api_key not sent: %#v", body)
		}
		if body["query"] != "Acme founders" {
			t.Errorf("unexpected query: %#v", body["query"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"title": "Acme | About", "url": "https://acme.dev/about", "content": "Founded by Jane Roe."},
			{"title": "Acme raises $4M", "url": "https://news.example.com/acme", "content": "Seed round led by..."}
		]}`))
	})

	results, err := c.Search(context.Background(), "Acme founders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	want := search.Result{Title: "Acme | About", Snippet: "Founded by Jane Roe.", URL: "https://acme.dev/about"}
	if results[0] != want {
		t.Fatalf("unexpected first result: %#v", results[0])
	}
}

func TestSearchRateLimitedIsUnavailable(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	if _, err := c.Search(context.Background(), "q"); !errors.Is(err, search.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSearchBadRequestIsNotUnavailable(t *testing.T) {
	t.Parallel()

	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "query too long", http.StatusBadRequest)
	})
	_, err := c.Search(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, search.ErrUnavailable) {
		t.Fatalf("client error misclassified as unavailable: %v", err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := tavily.New(tavily.Config{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
