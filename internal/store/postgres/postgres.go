// Package postgres implements store.Store on a Postgres startups table via
// pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/store"
)

var _ store.Store = (*backend)(nil)

type backend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS startups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	website TEXT,
	founder_names TEXT,
	founder_linkedin TEXT,
	founder_emails TEXT,
	job_openings TEXT,
	funding_amount TEXT,
	funding_stage TEXT,
	location TEXT,
	industry TEXT,
	tech_stack TEXT,
	target_customer TEXT,
	market_vertical TEXT,
	team_size TEXT,
	founder_backgrounds TEXT,
	website_keywords TEXT,
	needs_enrichment BOOLEAN NOT NULL DEFAULT TRUE,
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	enrichment_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	enrichment_quality_status TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const selectColumns = `id, name,
	COALESCE(description, ''), COALESCE(website, ''), COALESCE(founder_names, ''),
	COALESCE(founder_linkedin, ''), COALESCE(founder_emails, ''), COALESCE(job_openings, ''),
	COALESCE(funding_amount, ''), COALESCE(funding_stage, ''), COALESCE(location, ''),
	COALESCE(industry, ''), COALESCE(tech_stack, ''), COALESCE(target_customer, ''),
	COALESCE(market_vertical, ''), COALESCE(team_size, ''), COALESCE(founder_backgrounds, ''),
	COALESCE(website_keywords, ''),
	needs_enrichment, enrichment_status, enrichment_quality_score,
	COALESCE(enrichment_quality_status, ''), created_at`

// New opens a pooled connection, verifies it with a ping, and ensures the
// startups table exists.
func New(ctx context.Context, dsn string) (store.Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &backend{pool: pool}, nil
}

func (b *backend) ListPending(ctx context.Context, limit int) ([]record.Record, error) {
	query := `SELECT ` + selectColumns + `
	FROM startups
	WHERE needs_enrichment = TRUE AND enrichment_status IN ('pending', 'failed', 'needs_review')
	ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return out, nil
}

func (b *backend) ListCompleted(ctx context.Context, limit int) ([]record.Record, error) {
	query := `SELECT ` + selectColumns + `
	FROM startups
	WHERE enrichment_status = 'completed'
	ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	return out, nil
}

func (b *backend) Get(ctx context.Context, id string) (record.Record, error) {
	row := b.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM startups WHERE id = $1`, id)
	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return record.Record{}, store.ErrNotFound
		}
		return record.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return r, nil
}

func (b *backend) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	// Stable column order keeps the statement deterministic for logs and tests.
	cols := make([]string, 0, len(fields))
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
		args = append(args, fields[c])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE startups SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := b.pool.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedColumn {
			return fmt.Errorf("update %s: %w: %s", id, store.ErrUnknownColumn, pgErr.Message)
		}
		return fmt.Errorf("update %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (b *backend) Requeue(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := b.pool.Exec(ctx,
		`UPDATE startups SET needs_enrichment = TRUE, enrichment_status = 'pending' WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("requeue %d records: %w", len(ids), err)
	}
	return nil
}

func (b *backend) Close() error {
	b.pool.Close()
	return nil
}

func scanRecord(scan func(dest ...any) error) (record.Record, error) {
	var r record.Record
	var status string
	err := scan(
		&r.ID, &r.Name,
		&r.Description, &r.Website, &r.FounderNames,
		&r.FounderLinkedIn, &r.FounderEmails, &r.JobOpenings,
		&r.FundingAmount, &r.FundingStage, &r.Location,
		&r.Industry, &r.TechStack, &r.TargetCustomer,
		&r.MarketVertical, &r.TeamSize, &r.FounderBackgrounds,
		&r.WebsiteKeywords,
		&r.NeedsEnrichment, &status, &r.QualityScore,
		&r.QualityStatus, &r.CreatedAt,
	)
	r.EnrichmentStatus = record.Status(status)
	return r, err
}
