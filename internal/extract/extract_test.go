package extract_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/scoutline/startup-enricher/internal/extract"
	"github.com/scoutline/startup-enricher/internal/llm"
	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/search"
)

type fnClient struct {
	f func(ctx context.Context, prompt string) (string, error)
}

func (c fnClient) Name() string { return "fake" }
func (c fnClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.f(ctx, prompt)
}

var sampleResults = []search.Result{
	{
		Title:   "Acme | Developer Tools",
		Snippet: "Acme builds CI tooling, founded by Jane Roe. The company is based in San Francisco and has 25 employees.",
		URL:     "https://www.acme.dev/about",
	},
	{
		Title:   "Acme raises $4 million seed round",
		Snippet: "Contact: jane@acme.dev. See linkedin.com/in/janeroe for background.",
		URL:     "https://news.example.com/acme",
	},
}

func TestExtractUsesLLMResponse(t *testing.T) {
	t.Parallel()

	e := &extract.Engine{
		LLM: fnClient{f: func(_ context.Context, prompt string) (string, error) {
			if prompt == "" {
				t.Error("empty prompt")
			}
			return "```json\n" + `{
				"description": "Developer tools startup",
				"founder_names": "Jane Roe",
				"website": "acme.dev",
				"tech_stack": ["Go", "Postgres"],
				"confidence": {"description": 0.9, "founder_names": 0.85, "website": 0.4, "tech_stack": 0.7}
			}` + "\n```", nil
		}},
		Log: zerolog.Nop(),
	}

	frag := e.Extract(context.Background(), "Acme", sampleResults)

	if got := frag.Fields[record.FieldDescription]; got != "Developer tools startup" {
		t.Fatalf("description = %q", got)
	}
	if got := frag.Confidence[record.FieldFounderNames]; got != 0.85 {
		t.Fatalf("founder confidence = %v", got)
	}
	if got := frag.Fields[record.FieldTechStack]; got != "Go, Postgres" {
		t.Fatalf("array value not joined: %q", got)
	}
	if _, ok := frag.Fields[record.FieldWebsite]; ok {
		t.Fatalf("low-confidence field must be dropped")
	}
}

func TestExtractDropsFieldsWithoutConfidence(t *testing.T) {
	t.Parallel()

	e := &extract.Engine{
		LLM: fnClient{f: func(context.Context, string) (string, error) {
			return `{"description": "No confidence attached", "confidence": {}}`, nil
		}},
		Log: zerolog.Nop(),
	}

	frag := e.Extract(context.Background(), "Acme", sampleResults)
	if _, ok := frag.Fields[record.FieldDescription]; ok {
		t.Fatalf("field without confidence must be dropped, got %#v", frag.Fields)
	}
}

func TestExtractFallsBackOnLLMError(t *testing.T) {
	t.Parallel()

	e := &extract.Engine{
		LLM: fnClient{f: func(context.Context, string) (string, error) {
			return "", errors.New("boom")
		}},
		Log: zerolog.Nop(),
	}

	frag := e.Extract(context.Background(), "Acme", sampleResults)
	if frag.Empty() {
		t.Fatal("heuristic fallback produced nothing")
	}
	if got := frag.Fields[record.FieldFundingAmount]; got != "$4M" {
		t.Fatalf("funding = %q", got)
	}
	if len(frag.Confidence) != 0 {
		t.Fatalf("heuristic fields must not carry confidences: %#v", frag.Confidence)
	}
}

func TestExtractFallsBackOnMalformedResponse(t *testing.T) {
	t.Parallel()

	e := &extract.Engine{
		LLM: fnClient{f: func(context.Context, string) (string, error) {
			return "I could not find any structured data, sorry!", nil
		}},
		Log: zerolog.Nop(),
	}

	frag := e.Extract(context.Background(), "Acme", sampleResults)
	if frag.Empty() {
		t.Fatal("heuristic fallback produced nothing")
	}
}

func TestExtractQuotaErrorStillFallsBack(t *testing.T) {
	t.Parallel()

	e := &extract.Engine{
		LLM: fnClient{f: func(context.Context, string) (string, error) {
			return "", &llm.QuotaError{Provider: "fake", Err: errors.New("quota")}
		}},
		Log: zerolog.Nop(),
	}

	frag := e.Extract(context.Background(), "Acme", sampleResults)
	if frag.Empty() {
		t.Fatal("quota exhaustion must degrade, not fail")
	}
}

func TestExtractNoResults(t *testing.T) {
	t.Parallel()

	e := &extract.Engine{
		LLM: fnClient{f: func(context.Context, string) (string, error) {
			t.Fatal("llm must not be called without results")
			return "", nil
		}},
		Log: zerolog.Nop(),
	}

	frag := e.Extract(context.Background(), "Acme", nil)
	if !frag.Empty() {
		t.Fatalf("expected empty fragment: %#v", frag.Fields)
	}
}

func TestExtractHeuristic(t *testing.T) {
	t.Parallel()

	frag := extract.ExtractHeuristic("Acme", sampleResults)

	want := map[string]string{
		record.FieldFundingAmount:   "$4M",
		record.FieldFundingStage:    "Seed",
		record.FieldFounderNames:    "Jane Roe",
		record.FieldFounderEmails:   "jane@acme.dev",
		record.FieldFounderLinkedIn: "linkedin.com/in/janeroe",
		record.FieldLocation:        "San Francisco",
		record.FieldTeamSize:        "25",
		record.FieldWebsite:         "acme.dev",
	}
	for field, expected := range want {
		if got := frag.Fields[field]; got != expected {
			t.Fatalf("%s = %q, want %q", field, got, expected)
		}
	}
}

func TestExtractHeuristicSkipsAggregatorHosts(t *testing.T) {
	t.Parallel()

	frag := extract.ExtractHeuristic("Acme", []search.Result{
		{Title: "Acme on LinkedIn", URL: "https://www.linkedin.com/company/acme"},
		{Title: "Acme | Crunchbase", URL: "https://www.crunchbase.com/organization/acme"},
	})
	if got, ok := frag.Fields[record.FieldWebsite]; ok {
		t.Fatalf("aggregator host accepted as website: %q", got)
	}
}
