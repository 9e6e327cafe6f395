package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scoutline/startup-enricher/internal/extract"
	"github.com/scoutline/startup-enricher/internal/llm"
	"github.com/scoutline/startup-enricher/internal/llm/gemini"
	"github.com/scoutline/startup-enricher/internal/llm/openai"
	"github.com/scoutline/startup-enricher/internal/metrics"
	"github.com/scoutline/startup-enricher/internal/pipeline"
	"github.com/scoutline/startup-enricher/internal/quality"
	"github.com/scoutline/startup-enricher/internal/reason"
	"github.com/scoutline/startup-enricher/internal/retry"
	"github.com/scoutline/startup-enricher/internal/search"
	"github.com/scoutline/startup-enricher/internal/search/duck"
	"github.com/scoutline/startup-enricher/internal/search/tavily"
	"github.com/scoutline/startup-enricher/internal/store"
	"github.com/scoutline/startup-enricher/internal/store/csvstore"
	"github.com/scoutline/startup-enricher/internal/store/postgres"
	"github.com/scoutline/startup-enricher/internal/store/sqlite"
	"github.com/scoutline/startup-enricher/internal/util"
	"github.com/scoutline/startup-enricher/internal/version"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "run":
		os.Exit(runEnrich(ctx, os.Args[2:]))
	case "requeue":
		os.Exit(runRequeue(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runEnrich(ctx context.Context, args []string) int {
	env, err := loadConfigFromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var (
		storeDSN    string
		recordID    string
		limit       int
		recordDelay time.Duration
		llmProvider string
		llmModel    string
		llmBaseURL  string
		searchBase  string
		searchRPS   float64
		qualityCfg  string
		metricsPort int
		verbose     bool
	)
	fs.StringVar(&storeDSN, "store", env.StoreDSN, "Store DSN: postgres:// URL, path to a .csv file, or a SQLite file path (env: ENRICHER_STORE)")
	fs.StringVar(&recordID, "id", "", "Enrich a single record by id instead of a batch")
	fs.IntVar(&limit, "limit", env.BatchSize, "Max records per run, <0 for unlimited (env: ENRICHER_BATCH_SIZE)")
	fs.DurationVar(&recordDelay, "record-delay", env.RecordDelay, "Pause between records, <0 disables (env: ENRICHER_RECORD_DELAY)")
	fs.StringVar(&llmProvider, "llm", env.LLMProvider, "LLM provider: gemini, openai, or none (env: ENRICHER_LLM)")
	fs.StringVar(&llmModel, "llm-model", env.LLMModel, "Model name override (env: ENRICHER_LLM_MODEL)")
	fs.StringVar(&llmBaseURL, "llm-base-url", env.LLMBaseURL, "LLM API base URL override (env: ENRICHER_LLM_BASE_URL)")
	fs.StringVar(&searchBase, "search-base-url", env.SearchBaseURL, "Search API base URL override (env: ENRICHER_SEARCH_BASE_URL)")
	fs.Float64Var(&searchRPS, "search-rps", env.SearchRPS, "Search request rate limit (RPS), 0 disables (env: ENRICHER_SEARCH_RPS)")
	fs.StringVar(&qualityCfg, "quality-config", env.QualityConfig, "YAML file with quality thresholds (env: ENRICHER_QUALITY_CONFIG)")
	fs.IntVar(&metricsPort, "metrics-port", env.MetricsPort, "Prometheus /metrics port, 0 disables (env: ENRICHER_METRICS_PORT)")
	fs.BoolVar(&verbose, "v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if storeDSN == "" {
		_, _ = fmt.Fprintln(os.Stderr, "run requires --store (or ENRICHER_STORE)")
		return 2
	}

	log := newLogger(verbose)

	st, err := openStore(ctx, storeDSN)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	client, err := buildLLM(ctx, llmProvider, llmModel, llmBaseURL, env, log)
	if err != nil {
		log.Error().Err(err).Msg("configure llm")
		return 2
	}

	chain, err := buildSearch(searchBase, searchRPS, env, log)
	if err != nil {
		log.Error().Err(err).Msg("configure search")
		return 2
	}

	thresholds := quality.DefaultThresholds()
	if qualityCfg != "" {
		thresholds, err = quality.LoadThresholds(qualityCfg)
		if err != nil {
			log.Error().Err(err).Msg("load quality config")
			return 2
		}
	}

	var metricsSrv *metrics.Server
	if metricsPort > 0 {
		metricsSrv = metrics.Start(metricsPort, log)
		defer func() {
			_ = metricsSrv.Stop(context.Background())
		}()
	}

	llmRetry := retry.Default(llm.IsRateLimit)
	runner := &pipeline.Runner{
		Store:  st,
		Search: chain,
		Extract: &extract.Engine{
			LLM:   client,
			Retry: llmRetry,
			Log:   log,
		},
		Agent: &reason.Agent{
			LLM:   client,
			Retry: llmRetry,
			Log:   log,
		},
		Scorer:      quality.NewScorer(thresholds),
		Log:         log,
		BatchSize:   limit,
		RecordDelay: recordDelay,
	}

	var sum pipeline.Summary
	if recordID != "" {
		sum, err = runner.RunOne(ctx, recordID)
	} else {
		sum, err = runner.Run(ctx)
	}
	if err != nil {
		log.Error().Err(err).Msg("enrichment run failed")
		return 1
	}

	fmt.Printf("run %s: processed=%d completed=%d needs_review=%d failed=%d more_remaining=%v\n",
		sum.RunID, sum.Processed, sum.Completed, sum.NeedsReview, sum.Failed, sum.MoreRemaining)
	for _, msg := range sum.Errors {
		fmt.Printf("  error: %s\n", msg)
	}
	// Per-record failures are reported, not fatal.
	return 0
}

func runRequeue(ctx context.Context, args []string) int {
	env, err := loadConfigFromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("requeue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var storeDSN string
	var verbose bool
	fs.StringVar(&storeDSN, "store", env.StoreDSN, "Store DSN (env: ENRICHER_STORE)")
	fs.BoolVar(&verbose, "v", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if storeDSN == "" {
		_, _ = fmt.Fprintln(os.Stderr, "requeue requires --store (or ENRICHER_STORE)")
		return 2
	}

	log := newLogger(verbose)

	st, err := openStore(ctx, storeDSN)
	if err != nil {
		log.Error().Err(err).Msg("open store")
		return 1
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	runner := &pipeline.Runner{Store: st, Log: log}
	n, err := runner.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("requeue sweep failed")
		return 1
	}
	fmt.Printf("requeued %d records\n", n)
	return 0
}

// openStore picks a backend from the DSN shape: postgres URLs, .csv paths, and
// everything else is treated as a SQLite file.
func openStore(ctx context.Context, dsn string) (store.Store, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.New(ctx, dsn)
	case strings.HasSuffix(strings.ToLower(dsn), ".csv"):
		return csvstore.New(dsn)
	default:
		return sqlite.New(dsn)
	}
}

func buildLLM(ctx context.Context, provider, model, baseURL string, env config, log zerolog.Logger) (llm.Client, error) {
	var inner llm.Client
	switch provider {
	case "", "none":
		log.Info().Msg("no llm configured, extraction will use heuristics only")
		return nil, nil
	case "gemini":
		if model == "" {
			model = "gemini-2.0-flash"
		}
		c, err := gemini.New(ctx, gemini.Config{APIKey: env.GeminiAPIKey, Model: model, BaseURL: baseURL})
		if err != nil {
			return nil, err
		}
		inner = c
	case "openai":
		c, err := openai.New(openai.Config{APIKey: env.OpenAIAPIKey, Model: model, BaseURL: baseURL})
		if err != nil {
			return nil, err
		}
		inner = c
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
	// One breaker per process: a quota trip disables the LLM for the whole run.
	return &llm.GatedClient{Client: inner, Breaker: llm.NewBreaker()}, nil
}

func buildSearch(baseURL string, rps float64, env config, log zerolog.Logger) (search.Provider, error) {
	var providers []search.Provider
	if env.TavilyAPIKey != "" {
		t, err := tavily.New(tavily.Config{
			APIKey:  env.TavilyAPIKey,
			BaseURL: baseURL,
			RPS:     rps,
			Log:     log,
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, t)
	}
	providers = append(providers, duck.New(duck.Config{RPS: rps, Log: log}))
	return &search.Chain{Providers: providers, Log: log}, nil
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

type config struct {
	StoreDSN      string
	BatchSize     int
	RecordDelay   time.Duration
	LLMProvider   string
	LLMModel      string
	LLMBaseURL    string
	SearchBaseURL string
	SearchRPS     float64
	QualityConfig string
	MetricsPort   int

	TavilyAPIKey string
	GeminiAPIKey string
	OpenAIAPIKey string
}

func loadConfigFromEnv() (config, error) {
	batchSize, err := envInt("ENRICHER_BATCH_SIZE", pipeline.DefaultBatchSize)
	if err != nil {
		return config{}, err
	}
	recordDelay, err := envDuration("ENRICHER_RECORD_DELAY", pipeline.DefaultRecordDelay)
	if err != nil {
		return config{}, err
	}
	searchRPS, err := envFloat("ENRICHER_SEARCH_RPS", 1)
	if err != nil {
		return config{}, err
	}
	metricsPort, err := envInt("ENRICHER_METRICS_PORT", 0)
	if err != nil {
		return config{}, err
	}

	return config{
		StoreDSN:      strings.TrimSpace(os.Getenv("ENRICHER_STORE")),
		BatchSize:     batchSize,
		RecordDelay:   recordDelay,
		LLMProvider:   strings.TrimSpace(os.Getenv("ENRICHER_LLM")),
		LLMModel:      strings.TrimSpace(os.Getenv("ENRICHER_LLM_MODEL")),
		LLMBaseURL:    strings.TrimSpace(os.Getenv("ENRICHER_LLM_BASE_URL")),
		SearchBaseURL: strings.TrimSpace(os.Getenv("ENRICHER_SEARCH_BASE_URL")),
		SearchRPS:     searchRPS,
		QualityConfig: strings.TrimSpace(os.Getenv("ENRICHER_QUALITY_CONFIG")),
		MetricsPort:   metricsPort,
		TavilyAPIKey:  strings.TrimSpace(os.Getenv("TAVILY_API_KEY")),
		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
	}, nil
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `enricher %s: startup-data enrichment pipeline

Usage:
  enricher <command> [flags]

Commands:
  run      Enrich pending records (search, extract, merge, score, write back)
  requeue  Re-flag completed records that still carry placeholder data

Examples:
  enricher run --store startups.db --limit 25
  enricher run --store postgres://localhost/scoutline --llm gemini
  enricher run --store startups.csv --id startup-42
  enricher requeue --store startups.db

Environment:
  ENRICHER_STORE           Store DSN (postgres:// URL, .csv path, or SQLite path)
  ENRICHER_BATCH_SIZE      Max records per run (default 25)
  ENRICHER_RECORD_DELAY    Pause between records (default 2s)
  ENRICHER_LLM             LLM provider: gemini, openai, or none
  ENRICHER_LLM_MODEL       Model name override
  ENRICHER_LLM_BASE_URL    LLM API base URL override (proxies/testing)
  ENRICHER_SEARCH_BASE_URL Search API base URL override (mock-providers)
  ENRICHER_SEARCH_RPS      Search request rate limit (default 1)
  ENRICHER_QUALITY_CONFIG  YAML file with quality thresholds
  ENRICHER_METRICS_PORT    Prometheus /metrics port, 0 disables
  TAVILY_API_KEY           Tavily search API key (optional; DuckDuckGo fallback)
  GEMINI_API_KEY           Gemini API key (with --llm gemini)
  OPENAI_API_KEY           OpenAI API key (with --llm openai)

`, version.Current)
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
