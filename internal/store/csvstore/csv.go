// Package csvstore implements store.Store over a local CSV file, matching the
// spreadsheet-shaped exports the ingestion step produces. The whole file is
// loaded into memory; updates are applied in place and flushed on Close.
package csvstore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/store"
)

var _ store.Store = (*backend)(nil)

type backend struct {
	mu     sync.Mutex
	path   string
	header []string
	colIdx map[string]int
	rows   [][]string
	byID   map[string]int
	dirty  bool
}

// New loads the CSV file at path. The file must have a header row including
// at least "id" and "name" columns; missing enrichment columns surface as
// store.ErrUnknownColumn on update, which exercises the pipeline's reduced
// column retry.
func New(path string) (store.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	colIdx := make(map[string]int, len(header))
	for i, col := range header {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range []string{"id", "name"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	b := &backend{
		path:   path,
		header: header,
		colIdx: colIdx,
		byID:   make(map[string]int),
	}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		// Pad short rows so column access stays in bounds.
		for len(row) < len(header) {
			row = append(row, "")
		}
		b.byID[b.cell(row, "id")] = len(b.rows)
		b.rows = append(b.rows, row)
	}
	return b, nil
}

func (b *backend) cell(row []string, col string) string {
	idx, ok := b.colIdx[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (b *backend) toRecord(row []string) record.Record {
	r := record.Record{
		ID:   b.cell(row, "id"),
		Name: b.cell(row, "name"),
	}
	for _, f := range record.TrackedFields() {
		r.SetField(f, b.cell(row, f))
	}
	r.NeedsEnrichment = parseBool(b.cell(row, record.ColNeedsEnrichment))
	status := b.cell(row, record.ColEnrichmentStatus)
	if status == "" {
		status = string(record.StatusPending)
	}
	r.EnrichmentStatus = record.Status(status)
	if score, err := strconv.ParseFloat(b.cell(row, record.ColQualityScore), 64); err == nil {
		r.QualityScore = score
	}
	r.QualityStatus = b.cell(row, record.ColQualityStatus)
	if ts, err := time.Parse(time.RFC3339, b.cell(row, "created_at")); err == nil {
		r.CreatedAt = ts
	}
	return r
}

func (b *backend) ListPending(ctx context.Context, limit int) ([]record.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []record.Record
	for _, row := range b.rows {
		r := b.toRecord(row)
		if !r.NeedsEnrichment {
			continue
		}
		switch r.EnrichmentStatus {
		case record.StatusPending, record.StatusFailed, record.StatusNeedsReview:
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *backend) ListCompleted(ctx context.Context, limit int) ([]record.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []record.Record
	for _, row := range b.rows {
		r := b.toRecord(row)
		if r.EnrichmentStatus != record.StatusCompleted {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *backend) Get(ctx context.Context, id string) (record.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.byID[id]
	if !ok {
		return record.Record{}, store.ErrNotFound
	}
	return b.toRecord(b.rows[idx]), nil
}

func (b *backend) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.byID[id]
	if !ok {
		return store.ErrNotFound
	}

	// Reject the whole update if any column is missing so the caller's reduced
	// column retry sees the same all-or-nothing semantics as the SQL backends.
	for col := range fields {
		if _, ok := b.colIdx[col]; !ok {
			return fmt.Errorf("update %s: %w: %s", id, store.ErrUnknownColumn, col)
		}
	}

	row := b.rows[idx]
	for col, val := range fields {
		row[b.colIdx[col]] = formatValue(val)
	}
	b.dirty = true
	return nil
}

func (b *backend) Requeue(ctx context.Context, ids []string) error {
	fields := map[string]any{
		record.ColNeedsEnrichment:  true,
		record.ColEnrichmentStatus: string(record.StatusPending),
	}
	for _, id := range ids {
		if err := b.UpdateFields(ctx, id, fields); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending updates back to the CSV file.
func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dirty {
		return nil
	}

	f, err := os.Create(b.path)
	if err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(b.header); err != nil {
		_ = f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range b.rows {
		if err := w.Write(row); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush: %w", err)
	}
	return f.Close()
}

func parseBool(s string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && v
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
