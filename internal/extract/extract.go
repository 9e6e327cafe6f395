// Package extract turns raw search results into a structured record fragment.
// Two interchangeable strategies: prompting a language model for strict JSON,
// and regex heuristics over the snippets. The LLM path degrades to the regex
// path on any failure; the regex path never fails.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/scoutline/startup-enricher/internal/llm"
	"github.com/scoutline/startup-enricher/internal/metrics"
	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/retry"
	"github.com/scoutline/startup-enricher/internal/search"
)

// DefaultMinConfidence is the acceptance threshold for LLM-extracted fields.
// Below it a field is treated as not found rather than polluting the record
// with low-confidence guesses: the outreach features downstream act on this
// data, so wrong is worse than missing.
const DefaultMinConfidence = 0.5

type Engine struct {
	// LLM is the completion client, typically a *llm.GatedClient. nil disables
	// the LLM strategy entirely.
	LLM llm.Client

	// Retry wraps each LLM call. The predicate should be llm.IsRateLimit so
	// quota errors pass through untouched.
	Retry retry.Policy

	// MinConfidence gates LLM-extracted fields. Zero means
	// DefaultMinConfidence.
	MinConfidence float64

	// MaxSnippets bounds the prompt size. Zero means 8.
	MaxSnippets int

	Log zerolog.Logger
}

// Extract produces a record fragment for the named entity from the given
// search results. It never returns an error: every failure mode degrades to
// the heuristic strategy.
func (e *Engine) Extract(ctx context.Context, entityName string, results []search.Result) record.Fragment {
	if len(results) == 0 {
		return record.NewFragment()
	}

	if e.LLM != nil {
		frag, err := e.extractLLM(ctx, entityName, results)
		if err == nil {
			return frag
		}
		switch {
		case llm.IsQuota(err):
			e.Log.Warn().Str("entity", entityName).Msg("llm quota exceeded, falling back to heuristics for the rest of the run")
			metrics.QuotaTrips.Inc()
		case err == llm.ErrBreakerOpen:
			// Expected after a trip; no point logging every record.
		default:
			e.Log.Warn().Err(err).Str("entity", entityName).Msg("llm extraction failed, falling back to heuristics")
		}
		metrics.ExtractionFallbacks.Inc()
	}

	return ExtractHeuristic(entityName, results)
}

func (e *Engine) extractLLM(ctx context.Context, entityName string, results []search.Result) (record.Fragment, error) {
	prompt := e.buildPrompt(entityName, results)

	var raw string
	err := e.Retry.Do(ctx, func(ctx context.Context) error {
		out, err := e.LLM.Generate(ctx, prompt)
		if err != nil {
			metrics.LLMCalls.WithLabelValues(e.LLM.Name(), "error").Inc()
			return err
		}
		metrics.LLMCalls.WithLabelValues(e.LLM.Name(), "ok").Inc()
		raw = out
		return nil
	})
	if err != nil {
		return record.Fragment{}, err
	}

	frag, err := e.parseResponse(raw)
	if err != nil {
		return record.Fragment{}, fmt.Errorf("parse llm response: %w", err)
	}
	return frag, nil
}

func (e *Engine) buildPrompt(entityName string, results []search.Result) string {
	maxSnippets := e.MaxSnippets
	if maxSnippets <= 0 {
		maxSnippets = 8
	}

	var b strings.Builder
	b.WriteString("You are a data extraction tool. Given web search results about the startup company ")
	fmt.Fprintf(&b, "%q, extract the fields below.\n\n", entityName)
	b.WriteString("Return ONLY a single JSON object with these string keys (use \"\" when unknown):\n")
	for _, f := range record.TrackedFields() {
		b.WriteString("- " + f + "\n")
	}
	b.WriteString("- confidence: an object mapping each non-empty field above to a number from 0.0 to 1.0\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Only extract facts about this exact company; ignore results about other companies with similar names.\n")
	b.WriteString("- Do not guess. Leave a field empty rather than inventing a value.\n")
	b.WriteString("- founder_names is a comma-separated list of people, never a team placeholder.\n\n")
	b.WriteString("Search results:\n")

	for i, r := range results {
		if i >= maxSnippets {
			break
		}
		fmt.Fprintf(&b, "[%d] %s\n%s\n%s\n\n", i+1, truncate(r.Title, 200), truncate(r.Snippet, 500), r.URL)
	}
	return b.String()
}

// parseResponse decodes the model's free-text answer into a gated fragment.
// The response is an untyped boundary: values may arrive as strings, arrays,
// or numbers, and the whole thing may be wrapped in code fences.
func (e *Engine) parseResponse(raw string) (record.Fragment, error) {
	obj, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return record.Fragment{}, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(obj, &payload); err != nil {
		return record.Fragment{}, err
	}

	confidence := map[string]float64{}
	if rawConf, ok := payload["confidence"]; ok {
		// Tolerate numbers arriving as strings.
		var loose map[string]any
		if err := json.Unmarshal(rawConf, &loose); err == nil {
			for k, v := range loose {
				if f, ok := coerceFloat(v); ok {
					confidence[k] = f
				}
			}
		}
	}

	minConf := e.MinConfidence
	if minConf <= 0 {
		minConf = DefaultMinConfidence
	}

	frag := record.NewFragment()
	for _, f := range record.TrackedFields() {
		rawVal, ok := payload[f]
		if !ok {
			continue
		}
		val := coerceString(rawVal)
		if val == "" {
			continue
		}
		conf := confidence[f]
		if conf < minConf {
			continue
		}
		frag.Set(f, val, conf)
	}
	return frag, nil
}

func coerceString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				parts = append(parts, strings.TrimSpace(str))
			}
		}
		return strings.Join(parts, ", ")
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return strings.TrimSpace(strings.TrimSuffix(fmt.Sprintf("%f", n), ".000000"))
	}
	return ""
}

func coerceFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(t), "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
