package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/scoutline/startup-enricher/internal/mockprovider"
)

func main() {
	addr := defaultString("MOCK_PROVIDERS_ADDR", ":8081")
	fixtures := defaultString("MOCK_PROVIDERS_FIXTURES", "")
	completion := defaultString("MOCK_PROVIDERS_COMPLETION", "")

	fs := flag.NewFlagSet("mock-providers", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&fixtures, "fixtures", fixtures, "JSON file mapping query keywords to canned search results")
	fs.StringVar(&completion, "completion", completion, "File holding the canned chat completion content")
	_ = fs.Parse(os.Args[1:])

	srv := mockprovider.New()

	if fixtures != "" {
		b, err := os.ReadFile(fixtures)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "read fixtures: %v\n", err)
			os.Exit(1)
		}
		var fx map[string][]mockprovider.SearchResult
		if err := json.Unmarshal(b, &fx); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "parse fixtures: %v\n", err)
			os.Exit(1)
		}
		for keyword, hits := range fx {
			srv.AddSearchFixture(keyword, hits)
		}
	}

	if completion != "" {
		b, err := os.ReadFile(completion)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "read completion: %v\n", err)
			os.Exit(1)
		}
		srv.SetCompletion(string(b))
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-providers listening on %s (fixtures=%s)\n", addr, fixtures)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
