// Package mockprovider implements stand-ins for the external provider APIs
// (Tavily-shaped search, OpenAI-shaped chat completions) for local harness
// runs and tests. Fixtures are keyed by query substring so one server can
// answer for a whole batch of startups.
package mockprovider

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// SearchResult is one canned search hit, in the upstream wire shape.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Server serves the mock provider APIs.
type Server struct {
	mu    sync.Mutex
	calls []Call

	expectedAuthorization string
	expectedSearchKey     string

	// results maps a lowercase query substring to the hits returned for any
	// query containing it. First match in insertion order wins.
	resultKeys []string
	results    map[string][]SearchResult

	completion     string
	quotaExhausted bool
}

// New constructs a new mock server with no fixtures.
func New() *Server {
	return &Server{results: make(map[string][]SearchResult)}
}

// RequireBearerToken enforces an Authorization header on the chat completions
// endpoint. Empty token disables the check.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// RequireSearchKey enforces the api_key field on search requests. Empty key
// disables the check.
func (s *Server) RequireSearchKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedSearchKey = strings.TrimSpace(key)
}

// AddSearchFixture registers canned hits for queries containing the keyword.
func (s *Server) AddSearchFixture(keyword string, hits []SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := strings.ToLower(strings.TrimSpace(keyword))
	if _, ok := s.results[k]; !ok {
		s.resultKeys = append(s.resultKeys, k)
	}
	s.results[k] = hits
}

// SetCompletion sets the message content returned by the chat endpoint.
func (s *Server) SetCompletion(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completion = content
}

// ExhaustQuota makes the chat endpoint answer 429 insufficient_quota from now
// on, mimicking a billing-exhausted account.
func (s *Server) ExhaustQuota() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotaExhausted = true
}

// Handler returns an http.Handler serving both provider surfaces.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

type searchRequest struct {
	APIKey string `json:"api_key"`
	Query  string `json:"query"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var req searchRequest
	if err := json.Unmarshal(b, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	expectedKey := s.expectedSearchKey
	hits := s.lookupLocked(req.Query)
	s.mu.Unlock()

	if expectedKey != "" && req.APIKey != expectedKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(searchResponse{Results: hits})
}

func (s *Server) lookupLocked(query string) []SearchResult {
	q := strings.ToLower(query)
	for _, k := range s.resultKeys {
		if strings.Contains(q, k) {
			return s.results[k]
		}
	}
	return nil
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	expected := s.expectedAuthorization
	exhausted := s.quotaExhausted
	content := s.completion
	s.mu.Unlock()

	if expected != "" && r.Header.Get("Authorization") != expected {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
		return
	}

	if exhausted {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"You exceeded your current quota, please check your plan and billing details.","type":"insufficient_quota","code":"insufficient_quota"}}`))
		return
	}

	if content == "" {
		content = "{}"
	}

	resp := map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
