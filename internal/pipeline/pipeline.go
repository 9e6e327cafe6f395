// Package pipeline runs the enrichment loop: pull pending records, research
// each one through search and extraction, merge what was found, score it, and
// write the result back. Records are processed sequentially; one record's
// failure is recorded and never halts the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scoutline/startup-enricher/internal/extract"
	"github.com/scoutline/startup-enricher/internal/merge"
	"github.com/scoutline/startup-enricher/internal/metrics"
	"github.com/scoutline/startup-enricher/internal/quality"
	"github.com/scoutline/startup-enricher/internal/reason"
	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/search"
	"github.com/scoutline/startup-enricher/internal/store"
	"github.com/scoutline/startup-enricher/internal/util"
)

const (
	// DefaultBatchSize bounds one run; the summary flags when more records
	// remain so operators can loop.
	DefaultBatchSize = 25

	// DefaultRecordDelay paces provider traffic between records.
	DefaultRecordDelay = 2 * time.Second
)

type Runner struct {
	Store   store.Store
	Search  search.Provider
	Extract *extract.Engine

	// Agent plans searches and decides when to stop. nil gets a zero agent,
	// which runs every capability on its heuristic branch.
	Agent *reason.Agent

	Scorer *quality.Scorer
	Log    zerolog.Logger

	// BatchSize caps records per run. Zero means DefaultBatchSize; negative
	// means unlimited.
	BatchSize int

	// RecordDelay is the pause between records. Zero means DefaultRecordDelay;
	// negative disables pacing.
	RecordDelay time.Duration
}

// Summary is the end-of-run report.
type Summary struct {
	RunID       string
	Processed   int
	Completed   int
	NeedsReview int
	Failed      int

	// MoreRemaining is set when the batch hit its size cap with pending
	// records left over.
	MoreRemaining bool

	// Errors holds one redacted message per record that errored.
	Errors []string
}

// Run processes one batch of pending records.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	log := r.Log.With().Str("run_id", sum.RunID).Logger()

	batch := r.BatchSize
	if batch == 0 {
		batch = DefaultBatchSize
	}

	// Fetch one extra so a full page tells us whether more are waiting.
	fetchLimit := 0
	if batch > 0 {
		fetchLimit = batch + 1
	}
	records, err := r.Store.ListPending(ctx, fetchLimit)
	if err != nil {
		return sum, fmt.Errorf("list pending records: %w", err)
	}
	if batch > 0 && len(records) > batch {
		records = records[:batch]
		sum.MoreRemaining = true
	}
	log.Info().Int("records", len(records)).Bool("more_remaining", sum.MoreRemaining).Msg("starting enrichment run")

	for i, rec := range records {
		if i > 0 {
			if err := r.pause(ctx); err != nil {
				return sum, err
			}
		}
		r.runOne(ctx, rec, log, &sum)
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
	}

	log.Info().
		Int("processed", sum.Processed).
		Int("completed", sum.Completed).
		Int("needs_review", sum.NeedsReview).
		Int("failed", sum.Failed).
		Msg("enrichment run finished")
	return sum, nil
}

// RunOne enriches a single record by id.
func (r *Runner) RunOne(ctx context.Context, id string) (Summary, error) {
	sum := Summary{RunID: uuid.NewString()}
	log := r.Log.With().Str("run_id", sum.RunID).Logger()

	rec, err := r.Store.Get(ctx, id)
	if err != nil {
		return sum, fmt.Errorf("load record %s: %w", id, err)
	}
	r.runOne(ctx, rec, log, &sum)
	return sum, nil
}

// Sweep requeues completed records that still carry placeholder data.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	records, err := r.Store.ListCompleted(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("list completed records: %w", err)
	}

	var ids []string
	for _, rec := range records {
		if merge.NeedsReenrichment(&rec) {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.Store.Requeue(ctx, ids); err != nil {
		return 0, err
	}
	r.Log.Info().Int("requeued", len(ids)).Int("scanned", len(records)).Msg("re-enrichment sweep finished")
	return len(ids), nil
}

// runOne drives one record through the full loop and folds the outcome into
// the summary. Panics from provider code are contained per record.
func (r *Runner) runOne(ctx context.Context, rec record.Record, log zerolog.Logger, sum *Summary) {
	sum.Processed++
	log = log.With().Str("record_id", rec.ID).Str("name", rec.Name).Logger()

	status, err := func() (status record.Status, err error) {
		defer func() {
			if p := recover(); p != nil {
				status = record.StatusFailed
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return r.process(ctx, rec, log)
	}()

	if err != nil {
		log.Error().Err(err).Msg("record enrichment failed")
		sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %s", rec.ID, util.RedactSecrets(err.Error())))
	}

	switch status {
	case record.StatusCompleted:
		sum.Completed++
	case record.StatusNeedsReview:
		sum.NeedsReview++
	default:
		sum.Failed++
	}
	metrics.RecordsProcessed.WithLabelValues(string(status)).Inc()
}

func (r *Runner) process(ctx context.Context, rec record.Record, log zerolog.Logger) (record.Status, error) {
	if err := r.Store.UpdateFields(ctx, rec.ID, map[string]any{
		record.ColEnrichmentStatus: string(record.StatusInProgress),
	}); err != nil {
		return record.StatusFailed, fmt.Errorf("mark in_progress: %w", err)
	}

	frag, err := r.research(ctx, rec, log)
	if err != nil {
		// Best effort: leave the record retryable.
		_ = r.persist(ctx, rec.ID, map[string]any{
			record.ColEnrichmentStatus: string(record.StatusFailed),
			record.ColNeedsEnrichment:  true,
		}, log)
		return record.StatusFailed, err
	}

	updates := merge.Plan(&rec, frag)
	assessment := r.Scorer.Score(&rec, frag)
	status := assessment.EnrichmentStatus()

	log.Info().
		Int("fields_updated", len(updates)).
		Float64("quality_score", assessment.OverallScore).
		Str("quality_status", string(assessment.Status)).
		Str("status", string(status)).
		Strs("missing_critical", assessment.MissingCritical).
		Msg("record enriched")

	fields := make(map[string]any, len(updates)+4)
	for col, val := range updates {
		fields[col] = val
	}
	fields[record.ColEnrichmentStatus] = string(status)
	fields[record.ColQualityScore] = assessment.OverallScore
	fields[record.ColQualityStatus] = string(assessment.Status)
	// A failed record stays flagged so the next run picks it up again.
	fields[record.ColNeedsEnrichment] = status == record.StatusFailed

	if err := r.persist(ctx, rec.ID, fields, log); err != nil {
		return record.StatusFailed, fmt.Errorf("persist result: %w", err)
	}
	return status, nil
}

// research runs the reasoning-guided search/extract loop and returns the
// accumulated fragment. Provider outages degrade to an empty fragment; only
// context cancellation aborts.
func (r *Runner) research(ctx context.Context, rec record.Record, log zerolog.Logger) (record.Fragment, error) {
	agent := r.Agent
	if agent == nil {
		agent = &reason.Agent{Log: log}
	}

	frag := record.NewFragment()
	working := rec

	for attempts := 0; ; {
		missing := agent.AnalyzeMissingData(ctx, &working)
		plan := agent.GenerateSearchPlan(ctx, &working, missing)
		log.Debug().
			Int("iteration", attempts+1).
			Int("queries", len(plan.Queries)).
			Strs("missing", missing.Fields).
			Msg("search plan ready")

		for _, q := range plan.Queries {
			results, err := r.Search.Search(ctx, q.Query)
			if err != nil {
				if ctx.Err() != nil {
					return frag, ctx.Err()
				}
				metrics.SearchRequests.WithLabelValues("error").Inc()
				if errors.Is(err, search.ErrUnavailable) {
					log.Warn().Str("query", q.Query).Msg("all search providers unavailable")
					continue
				}
				log.Warn().Err(err).Str("query", q.Query).Msg("search failed")
				continue
			}
			if len(results) == 0 {
				metrics.SearchRequests.WithLabelValues("empty").Inc()
				continue
			}
			metrics.SearchRequests.WithLabelValues("ok").Inc()

			rel := agent.CheckRelevance(ctx, results, q.Query, &rec)
			if !rel.IsRelevant {
				log.Debug().Str("query", q.Query).Str("reason", rel.Reasoning).Msg("results judged irrelevant, skipping")
				continue
			}

			frag.Merge(r.Extract.Extract(ctx, rec.Name, results))
		}

		attempts++
		for field, val := range frag.Fields {
			working.SetField(field, val)
		}

		dec := agent.ShouldContinue(ctx, &working, frag, attempts)
		if !dec.Continue {
			log.Debug().Int("iterations", attempts).Str("reason", dec.Reasoning).Msg("research stopped")
			break
		}
	}
	return frag, nil
}

// persist applies the update, retrying once with the reduced column set when
// the backing schema is missing enrichment columns.
func (r *Runner) persist(ctx context.Context, id string, fields map[string]any, log zerolog.Logger) error {
	err := r.Store.UpdateFields(ctx, id, fields)
	if err == nil || !errors.Is(err, store.ErrUnknownColumn) {
		return err
	}

	safe := store.SafeColumns()
	reduced := make(map[string]any, len(fields))
	for col, val := range fields {
		if safe[col] {
			reduced[col] = val
		}
	}
	log.Warn().Err(err).Int("dropped_columns", len(fields)-len(reduced)).Msg("schema missing columns, retrying with reduced set")
	return r.Store.UpdateFields(ctx, id, reduced)
}

func (r *Runner) pause(ctx context.Context) error {
	delay := r.RecordDelay
	if delay == 0 {
		delay = DefaultRecordDelay
	}
	if delay < 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
