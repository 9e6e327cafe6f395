// Package sqlite implements store.Store on a local SQLite file for
// development and single-machine runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/store"
)

var _ store.Store = (*backend)(nil)

type backend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS startups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	founder_names TEXT NOT NULL DEFAULT '',
	founder_linkedin TEXT NOT NULL DEFAULT '',
	founder_emails TEXT NOT NULL DEFAULT '',
	job_openings TEXT NOT NULL DEFAULT '',
	funding_amount TEXT NOT NULL DEFAULT '',
	funding_stage TEXT NOT NULL DEFAULT '',
	location TEXT NOT NULL DEFAULT '',
	industry TEXT NOT NULL DEFAULT '',
	tech_stack TEXT NOT NULL DEFAULT '',
	target_customer TEXT NOT NULL DEFAULT '',
	market_vertical TEXT NOT NULL DEFAULT '',
	team_size TEXT NOT NULL DEFAULT '',
	founder_backgrounds TEXT NOT NULL DEFAULT '',
	website_keywords TEXT NOT NULL DEFAULT '',
	needs_enrichment BOOLEAN NOT NULL DEFAULT 1,
	enrichment_status TEXT NOT NULL DEFAULT 'pending',
	enrichment_quality_score REAL NOT NULL DEFAULT 0,
	enrichment_quality_status TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const selectColumns = `id, name, description, website, founder_names,
	founder_linkedin, founder_emails, job_openings, funding_amount, funding_stage,
	location, industry, tech_stack, target_customer, market_vertical, team_size,
	founder_backgrounds, website_keywords, needs_enrichment, enrichment_status,
	enrichment_quality_score, enrichment_quality_status, created_at`

// New opens (or creates) a SQLite database at the given path.
func New(dsn string) (store.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &backend{db: db}, nil
}

func (b *backend) ListPending(ctx context.Context, limit int) ([]record.Record, error) {
	query := `SELECT ` + selectColumns + `
	FROM startups
	WHERE needs_enrichment = 1 AND enrichment_status IN ('pending', 'failed', 'needs_review')
	ORDER BY created_at ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
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
	row := b.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM startups WHERE id = ?`, id)
	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	cols := make([]string, 0, len(fields))
	for c := range fields {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		args = append(args, fields[c])
	}
	args = append(args, id)

	query := "UPDATE startups SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		// modernc/sqlite reports unknown columns as "no such column: <name>".
		if strings.Contains(err.Error(), "no such column") {
			return fmt.Errorf("update %s: %w: %v", id, store.ErrUnknownColumn, err)
		}
		return fmt.Errorf("update %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (b *backend) Requeue(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := b.db.ExecContext(ctx,
		`UPDATE startups SET needs_enrichment = 1, enrichment_status = 'pending' WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("requeue %d records: %w", len(ids), err)
	}
	return nil
}

func (b *backend) Close() error {
	return b.db.Close()
}

func scanRecord(scan func(dest ...any) error) (record.Record, error) {
	var r record.Record
	var status, createdAt string
	err := scan(
		&r.ID, &r.Name, &r.Description, &r.Website, &r.FounderNames,
		&r.FounderLinkedIn, &r.FounderEmails, &r.JobOpenings, &r.FundingAmount, &r.FundingStage,
		&r.Location, &r.Industry, &r.TechStack, &r.TargetCustomer, &r.MarketVertical, &r.TeamSize,
		&r.FounderBackgrounds, &r.WebsiteKeywords, &r.NeedsEnrichment, &status,
		&r.QualityScore, &r.QualityStatus, &createdAt,
	)
	r.EnrichmentStatus = record.Status(status)
	r.CreatedAt = parseTimestamp(createdAt)
	return r, err
}

// parseTimestamp handles the formats SQLite actually stores: the
// CURRENT_TIMESTAMP layout and RFC 3339 from external writers.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
