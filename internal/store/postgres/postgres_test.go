package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/store"
	"github.com/scoutline/startup-enricher/internal/store/postgres"
)

// Integration tests; skipped unless ENRICHER_TEST_PG_DSN points at a database
// the test may write to.
func openTestStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("ENRICHER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("ENRICHER_TEST_PG_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seed inserts a fresh row directly; the store surface deliberately has no
// insert operation.
func seed(t *testing.T, st store.Store, status string, needs bool) string {
	t.Helper()
	id := uuid.NewString()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, os.Getenv("ENRICHER_TEST_PG_DSN"))
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	defer pool.Close()

	_, err = pool.Exec(ctx,
		`INSERT INTO startups (id, name, needs_enrichment, enrichment_status) VALUES ($1, $2, $3, $4)`,
		id, "Test "+id[:8], needs, status,
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func TestRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	id := seed(t, st, "pending", true)

	pending, err := st.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, r := range pending {
		if r.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("seeded record %s not listed", id)
	}

	err = st.UpdateFields(ctx, id, map[string]any{
		record.FieldFounderNames:   "Jane Roe",
		record.ColEnrichmentStatus: string(record.StatusCompleted),
		record.ColNeedsEnrichment:  false,
		record.ColQualityScore:     0.82,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	rec, err := st.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.FounderNames != "Jane Roe" || rec.EnrichmentStatus != record.StatusCompleted {
		t.Fatalf("update not applied: %#v", rec)
	}

	if err := st.Requeue(ctx, []string{id}); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	rec, err = st.Get(ctx, id)
	if err != nil {
		t.Fatalf("get after requeue: %v", err)
	}
	if !rec.NeedsEnrichment || rec.EnrichmentStatus != record.StatusPending {
		t.Fatalf("requeue not applied: %#v", rec)
	}
}

func TestUnknownColumn(t *testing.T) {
	st := openTestStore(t)
	id := seed(t, st, "pending", true)

	err := st.UpdateFields(context.Background(), id, map[string]any{
		"definitely_not_a_column": "x",
	})
	if !errors.Is(err, store.ErrUnknownColumn) {
		t.Fatalf("expected ErrUnknownColumn, got %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	st := openTestStore(t)

	if _, err := st.Get(context.Background(), fmt.Sprintf("missing-%s", uuid.NewString())); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
