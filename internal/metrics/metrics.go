// Package metrics exposes Prometheus counters for the enrichment pipeline and
// an optional HTTP server for scraping them.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_records_processed_total",
			Help: "Records processed by terminal enrichment status",
		},
		[]string{"status"},
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_search_requests_total",
			Help: "Search provider requests by outcome",
		},
		[]string{"outcome"},
	)

	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enricher_llm_calls_total",
			Help: "LLM completion calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ExtractionFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enricher_extraction_fallbacks_total",
			Help: "Extractions that degraded to the regex strategy",
		},
	)

	QuotaTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "enricher_llm_quota_trips_total",
			Help: "Times the LLM quota breaker tripped",
		},
	)
)

// Server encapsulates the /metrics HTTP endpoint.
type Server struct {
	srv *http.Server
}

// Start begins listening on the given port in the background.
func Start(port int, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
