// Package reason is the optional planning layer over extraction: it decides
// which fields are missing, what to search for next, whether results actually
// concern the target startup, and when to stop. Every capability degrades to
// a deterministic heuristic when the LLM path is unavailable, so a reasoning
// failure can never abort the enrichment of a record.
package reason

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/scoutline/startup-enricher/internal/llm"
	"github.com/scoutline/startup-enricher/internal/metrics"
	"github.com/scoutline/startup-enricher/internal/quality"
	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/retry"
	"github.com/scoutline/startup-enricher/internal/search"
)

// DefaultMaxIterations caps search rounds per record.
const DefaultMaxIterations = 3

type MissingData struct {
	Fields    []string
	Priority  string
	Reasoning string
}

type PlannedQuery struct {
	Query    string `json:"query"`
	Purpose  string `json:"purpose"`
	Source   string `json:"source"`
	Priority int    `json:"priority"`
}

type SearchPlan struct {
	Queries   []PlannedQuery
	Reasoning string
}

type Relevance struct {
	IsRelevant bool
	Confidence float64
	Reasoning  string
}

type Decision struct {
	Continue  bool
	Reasoning string
}

type Agent struct {
	// LLM is the completion client, typically a *llm.GatedClient. nil forces
	// the heuristic branch of every capability.
	LLM llm.Client

	// Retry wraps each LLM call; the predicate should be llm.IsRateLimit.
	Retry retry.Policy

	// MaxIterations bounds ShouldContinue. Zero means DefaultMaxIterations.
	MaxIterations int

	Log zerolog.Logger
}

// AnalyzeMissingData enumerates the tracked fields the record lacks and asks
// the model to prioritize them. Fallback: the plain null-check list.
func (a *Agent) AnalyzeMissingData(ctx context.Context, rec *record.Record) MissingData {
	missing := rec.MissingFields()
	if len(missing) == 0 {
		return MissingData{Priority: "low", Reasoning: "no tracked fields missing"}
	}

	fallback := MissingData{
		Fields:    missing,
		Priority:  fallbackPriority(missing),
		Reasoning: "heuristic: null-check over tracked fields",
	}
	if a.LLM == nil {
		return fallback
	}

	prompt := fmt.Sprintf(`The startup %q has these data fields missing: %s.
Return ONLY a JSON object: {"missing_fields": [...], "priority": "high"|"medium"|"low", "reasoning": "..."}.
missing_fields must be a subset of the listed fields ordered by importance for founder outreach.`,
		rec.Name, strings.Join(missing, ", "))

	var parsed struct {
		MissingFields []string `json:"missing_fields"`
		Priority      string   `json:"priority"`
		Reasoning     string   `json:"reasoning"`
	}
	if err := a.ask(ctx, prompt, &parsed); err != nil {
		a.logDegrade("analyze_missing_data", err)
		return fallback
	}

	out := MissingData{Priority: parsed.Priority, Reasoning: parsed.Reasoning}
	allowed := make(map[string]bool, len(missing))
	for _, f := range missing {
		allowed[f] = true
	}
	for _, f := range parsed.MissingFields {
		if allowed[f] {
			out.Fields = append(out.Fields, f)
		}
	}
	if len(out.Fields) == 0 {
		return fallback
	}
	return out
}

// GenerateSearchPlan proposes an ordered list of queries targeting the
// missing fields. Fallback: one or two canned queries.
func (a *Agent) GenerateSearchPlan(ctx context.Context, rec *record.Record, missing MissingData) SearchPlan {
	fallback := fallbackPlan(rec)
	if a.LLM == nil || len(missing.Fields) == 0 {
		return fallback
	}

	prompt := fmt.Sprintf(`Plan web searches to find the following data about the startup %q: %s.
Return ONLY a JSON object: {"queries": [{"query": "...", "purpose": "...", "source": "web", "priority": 1}], "reasoning": "..."}.
At most 4 queries, most valuable first.`, rec.Name, strings.Join(missing.Fields, ", "))

	var parsed struct {
		Queries   []PlannedQuery `json:"queries"`
		Reasoning string         `json:"reasoning"`
	}
	if err := a.ask(ctx, prompt, &parsed); err != nil {
		a.logDegrade("generate_search_plan", err)
		return fallback
	}

	var queries []PlannedQuery
	for _, q := range parsed.Queries {
		if strings.TrimSpace(q.Query) == "" {
			continue
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return fallback
	}
	sort.SliceStable(queries, func(i, j int) bool { return queries[i].Priority < queries[j].Priority })
	if len(queries) > 4 {
		queries = queries[:4]
	}
	return SearchPlan{Queries: queries, Reasoning: parsed.Reasoning}
}

// CheckRelevance judges whether results actually concern the target startup,
// guarding against name collisions. Fallback: substring match of the entity
// name in title or snippet.
func (a *Agent) CheckRelevance(ctx context.Context, results []search.Result, query string, rec *record.Record) Relevance {
	if len(results) == 0 {
		return Relevance{IsRelevant: false, Reasoning: "no results"}
	}

	fallback := fallbackRelevance(results, rec.Name)
	if a.LLM == nil {
		return fallback
	}

	var sb strings.Builder
	for i, r := range results {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&sb, "[%d] %s - %s\n", i+1, r.Title, firstN(r.Snippet, 200))
	}
	prompt := fmt.Sprintf(`Query: %q was issued to research the startup %q (%s).
Do these results concern that exact company, or a different one with a similar name?
%s
Return ONLY a JSON object: {"is_relevant": true|false, "confidence": 0.0-1.0, "reasoning": "..."}.`,
		query, rec.Name, firstN(rec.Description, 150), sb.String())

	var parsed struct {
		IsRelevant bool    `json:"is_relevant"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := a.ask(ctx, prompt, &parsed); err != nil {
		a.logDegrade("check_relevance", err)
		return fallback
	}
	return Relevance{IsRelevant: parsed.IsRelevant, Confidence: parsed.Confidence, Reasoning: parsed.Reasoning}
}

// ShouldContinue is the stopping rule: hard cap on iterations, early stop
// once the critical fields are present.
func (a *Agent) ShouldContinue(ctx context.Context, rec *record.Record, frag record.Fragment, attempts int) Decision {
	maxIter := a.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	if attempts >= maxIter {
		return Decision{Continue: false, Reasoning: fmt.Sprintf("iteration cap reached (%d)", maxIter)}
	}

	allCritical := true
	for _, f := range quality.CriticalFields() {
		if _, ok := frag.Fields[f]; ok {
			continue
		}
		if rec.HasField(f) {
			continue
		}
		allCritical = false
		break
	}
	if allCritical {
		return Decision{Continue: false, Reasoning: "all critical fields present"}
	}

	if a.LLM == nil {
		return Decision{Continue: true, Reasoning: "heuristic: critical fields still missing"}
	}

	prompt := fmt.Sprintf(`After %d of %d search rounds for the startup %q, these fields are still missing: %s.
Is another search round likely to help?
Return ONLY a JSON object: {"continue": true|false, "reasoning": "..."}.`,
		attempts, maxIter, rec.Name, strings.Join(stillMissing(rec, frag), ", "))

	var parsed struct {
		Continue  bool   `json:"continue"`
		Reasoning string `json:"reasoning"`
	}
	if err := a.ask(ctx, prompt, &parsed); err != nil {
		a.logDegrade("should_continue", err)
		return Decision{Continue: true, Reasoning: "heuristic: critical fields still missing"}
	}
	return Decision{Continue: parsed.Continue, Reasoning: parsed.Reasoning}
}

// ask runs one retried LLM call and unmarshals the first JSON object of the
// response into out.
func (a *Agent) ask(ctx context.Context, prompt string, out any) error {
	var raw string
	err := a.Retry.Do(ctx, func(ctx context.Context) error {
		text, err := a.LLM.Generate(ctx, prompt)
		if err != nil {
			metrics.LLMCalls.WithLabelValues(a.LLM.Name(), "error").Inc()
			return err
		}
		metrics.LLMCalls.WithLabelValues(a.LLM.Name(), "ok").Inc()
		raw = text
		return nil
	})
	if err != nil {
		return err
	}
	obj, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(obj, out)
}

func (a *Agent) logDegrade(capability string, err error) {
	if err == llm.ErrBreakerOpen {
		return
	}
	a.Log.Debug().Err(err).Str("capability", capability).Msg("reasoning degraded to heuristic")
}

func fallbackPriority(missing []string) string {
	for _, f := range missing {
		for _, c := range quality.CriticalFields() {
			if f == c {
				return "high"
			}
		}
	}
	if len(missing) > 3 {
		return "medium"
	}
	return "low"
}

func fallbackPlan(rec *record.Record) SearchPlan {
	queries := []PlannedQuery{
		{Query: fmt.Sprintf("%s founder CEO co-founder", rec.Name), Purpose: "founder identification", Source: "web", Priority: 1},
	}
	if !rec.HasField(record.FieldWebsite) {
		queries = append(queries, PlannedQuery{
			Query: fmt.Sprintf("%s official website", rec.Name), Purpose: "website discovery", Source: "web", Priority: 2,
		})
	}
	return SearchPlan{Queries: queries, Reasoning: "heuristic: canned founder and website queries"}
}

func fallbackRelevance(results []search.Result, name string) Relevance {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return Relevance{IsRelevant: false, Reasoning: "empty entity name"}
	}
	matched := 0
	for _, r := range results {
		if strings.Contains(strings.ToLower(r.Title), needle) || strings.Contains(strings.ToLower(r.Snippet), needle) {
			matched++
		}
	}
	if matched == 0 {
		return Relevance{IsRelevant: false, Confidence: 0.3, Reasoning: "heuristic: entity name absent from results"}
	}
	return Relevance{
		IsRelevant: true,
		Confidence: float64(matched) / float64(len(results)),
		Reasoning:  fmt.Sprintf("heuristic: entity name matched %d/%d results", matched, len(results)),
	}
}

func stillMissing(rec *record.Record, frag record.Fragment) []string {
	var out []string
	for _, f := range rec.MissingFields() {
		if _, ok := frag.Fields[f]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// firstN cuts s to at most n bytes without splitting a multi-byte rune.
func firstN(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
