// Package store defines the persistence contract for startup records. The
// pipeline only ever reads a bounded page of pending records and writes
// field-level updates back, so the interface is deliberately narrow.
package store

import (
	"context"
	"errors"

	"github.com/scoutline/startup-enricher/internal/record"
)

// ErrUnknownColumn is returned (possibly wrapped) by UpdateFields when the
// backing schema does not have one of the requested columns. The pipeline
// retries once with a reduced, known-safe column set before giving up.
var ErrUnknownColumn = errors.New("unknown column")

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary for enrichment records.
type Store interface {
	// ListPending returns up to limit records with needs_enrichment=true and a
	// non-terminal status, oldest first. limit <= 0 means no limit.
	ListPending(ctx context.Context, limit int) ([]record.Record, error)

	// ListCompleted returns up to limit records with enrichment_status=completed,
	// oldest first, for the re-enrichment sweep. limit <= 0 means no limit.
	ListCompleted(ctx context.Context, limit int) ([]record.Record, error)

	// Get fetches a single record by id.
	Get(ctx context.Context, id string) (record.Record, error)

	// UpdateFields applies a partial column update to one record. Keys are
	// record field or metadata column names.
	UpdateFields(ctx context.Context, id string, fields map[string]any) error

	// Requeue flags records for re-enrichment (needs_enrichment=true,
	// enrichment_status=pending) in one batch update.
	Requeue(ctx context.Context, ids []string) error

	Close() error
}

// SafeColumns is the reduced column set used for the unknown-column retry.
// Every backend is guaranteed to have these.
func SafeColumns() map[string]bool {
	return map[string]bool{
		record.FieldDescription:     true,
		record.FieldWebsite:         true,
		record.FieldFounderNames:    true,
		record.FieldFounderLinkedIn: true,
		record.FieldFounderEmails:   true,
		record.FieldJobOpenings:     true,
		record.FieldFundingAmount:   true,
		record.FieldLocation:        true,
		record.FieldIndustry:        true,
		record.ColNeedsEnrichment:   true,
		record.ColEnrichmentStatus:  true,
		record.ColQualityScore:      true,
		record.ColQualityStatus:     true,
	}
}
