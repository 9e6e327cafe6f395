// Package record defines the startup record that the enrichment pipeline
// reads, enriches, and writes back, plus the ephemeral extraction fragment
// that flows between the extraction engine, merge policy, and quality scorer.
package record

import (
	"strings"
	"time"
)

// Status is the enrichment lifecycle state of a record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusNeedsReview Status = "needs_review"
)

// Content field names. These double as persistence column names and as the
// keys of Fragment maps, so they must stay in sync with the store schemas.
const (
	FieldDescription        = "description"
	FieldWebsite            = "website"
	FieldFounderNames       = "founder_names"
	FieldFounderLinkedIn    = "founder_linkedin"
	FieldFounderEmails      = "founder_emails"
	FieldJobOpenings        = "job_openings"
	FieldFundingAmount      = "funding_amount"
	FieldFundingStage       = "funding_stage"
	FieldLocation           = "location"
	FieldIndustry           = "industry"
	FieldTechStack          = "tech_stack"
	FieldTargetCustomer     = "target_customer"
	FieldMarketVertical     = "market_vertical"
	FieldTeamSize           = "team_size"
	FieldFounderBackgrounds = "founder_backgrounds"
	FieldWebsiteKeywords    = "website_keywords"
)

// Metadata column names shared by the store backends.
const (
	ColNeedsEnrichment  = "needs_enrichment"
	ColEnrichmentStatus = "enrichment_status"
	ColQualityScore     = "enrichment_quality_score"
	ColQualityStatus    = "enrichment_quality_status"
)

// trackedFields is the canonical order of content fields subject to enrichment.
var trackedFields = []string{
	FieldDescription,
	FieldWebsite,
	FieldFounderNames,
	FieldFounderLinkedIn,
	FieldFounderEmails,
	FieldJobOpenings,
	FieldFundingAmount,
	FieldFundingStage,
	FieldLocation,
	FieldIndustry,
	FieldTechStack,
	FieldTargetCustomer,
	FieldMarketVertical,
	FieldTeamSize,
	FieldFounderBackgrounds,
	FieldWebsiteKeywords,
}

// TrackedFields returns the content field names in canonical order. Callers
// must not mutate the returned slice.
func TrackedFields() []string {
	return trackedFields
}

// Record is the enrichment target. Content fields are plain strings where the
// empty string means "missing"; the store backends map them to nullable
// columns.
type Record struct {
	ID   string
	Name string

	Description        string
	Website            string
	FounderNames       string
	FounderLinkedIn    string
	FounderEmails      string
	JobOpenings        string
	FundingAmount      string
	FundingStage       string
	Location           string
	Industry           string
	TechStack          string
	TargetCustomer     string
	MarketVertical     string
	TeamSize           string
	FounderBackgrounds string
	WebsiteKeywords    string

	NeedsEnrichment  bool
	EnrichmentStatus Status
	QualityScore     float64
	QualityStatus    string

	CreatedAt time.Time
}

// Field returns the value of a content field by name, or "" for unknown names.
func (r *Record) Field(name string) string {
	switch name {
	case FieldDescription:
		return r.Description
	case FieldWebsite:
		return r.Website
	case FieldFounderNames:
		return r.FounderNames
	case FieldFounderLinkedIn:
		return r.FounderLinkedIn
	case FieldFounderEmails:
		return r.FounderEmails
	case FieldJobOpenings:
		return r.JobOpenings
	case FieldFundingAmount:
		return r.FundingAmount
	case FieldFundingStage:
		return r.FundingStage
	case FieldLocation:
		return r.Location
	case FieldIndustry:
		return r.Industry
	case FieldTechStack:
		return r.TechStack
	case FieldTargetCustomer:
		return r.TargetCustomer
	case FieldMarketVertical:
		return r.MarketVertical
	case FieldTeamSize:
		return r.TeamSize
	case FieldFounderBackgrounds:
		return r.FounderBackgrounds
	case FieldWebsiteKeywords:
		return r.WebsiteKeywords
	}
	return ""
}

// SetField sets a content field by name. Unknown names are ignored.
func (r *Record) SetField(name, value string) {
	switch name {
	case FieldDescription:
		r.Description = value
	case FieldWebsite:
		r.Website = value
	case FieldFounderNames:
		r.FounderNames = value
	case FieldFounderLinkedIn:
		r.FounderLinkedIn = value
	case FieldFounderEmails:
		r.FounderEmails = value
	case FieldJobOpenings:
		r.JobOpenings = value
	case FieldFundingAmount:
		r.FundingAmount = value
	case FieldFundingStage:
		r.FundingStage = value
	case FieldLocation:
		r.Location = value
	case FieldIndustry:
		r.Industry = value
	case FieldTechStack:
		r.TechStack = value
	case FieldTargetCustomer:
		r.TargetCustomer = value
	case FieldMarketVertical:
		r.MarketVertical = value
	case FieldTeamSize:
		r.TeamSize = value
	case FieldFounderBackgrounds:
		r.FounderBackgrounds = value
	case FieldWebsiteKeywords:
		r.WebsiteKeywords = value
	}
}

// HasField reports whether a content field holds a non-blank value.
func (r *Record) HasField(name string) bool {
	return strings.TrimSpace(r.Field(name)) != ""
}

// MissingFields returns the tracked fields that are blank, in canonical order.
func (r *Record) MissingFields() []string {
	var out []string
	for _, f := range trackedFields {
		if !r.HasField(f) {
			out = append(out, f)
		}
	}
	return out
}

// Fragment is the ephemeral output of one extraction attempt: a partial set of
// field values plus a per-field confidence map. A field present in Fields but
// absent from Confidence came from the heuristic path and carries no explicit
// confidence.
type Fragment struct {
	Fields     map[string]string
	Confidence map[string]float64
}

// NewFragment returns an empty fragment with both maps allocated.
func NewFragment() Fragment {
	return Fragment{
		Fields:     make(map[string]string),
		Confidence: make(map[string]float64),
	}
}

// Set records a field value with an explicit confidence.
func (f Fragment) Set(field, value string, confidence float64) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	f.Fields[field] = value
	f.Confidence[field] = confidence
}

// SetHeuristic records a field value without a confidence score.
func (f Fragment) SetHeuristic(field, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	f.Fields[field] = value
}

// Merge copies fields from other into f, keeping f's value when both have one.
// Earlier extraction attempts win because later iterations search on
// progressively narrower queries.
func (f Fragment) Merge(other Fragment) {
	for k, v := range other.Fields {
		if _, ok := f.Fields[k]; ok {
			continue
		}
		f.Fields[k] = v
		if c, ok := other.Confidence[k]; ok {
			f.Confidence[k] = c
		}
	}
}

// Empty reports whether the fragment carries no field values.
func (f Fragment) Empty() bool {
	return len(f.Fields) == 0
}
