// Package quality scores a merged enrichment result across three field tiers
// and derives the record's final pipeline status. The tiered, threshold-gated
// design stops one confidently-found field from masking the absence of the
// fields that drive outreach (founder contact info).
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/scoutline/startup-enricher/internal/merge"
	"github.com/scoutline/startup-enricher/internal/record"
)

// Status is the quality verdict for one enrichment attempt.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusFair      Status = "fair"
	StatusPoor      Status = "poor"
	StatusFailed    Status = "failed"
)

var criticalFields = []string{
	record.FieldFounderNames,
	record.FieldWebsite,
	record.FieldDescription,
}

var importantFields = []string{
	record.FieldFounderLinkedIn,
	record.FieldFounderEmails,
	record.FieldJobOpenings,
	record.FieldFundingAmount,
	record.FieldLocation,
	record.FieldIndustry,
}

var optionalFields = []string{
	record.FieldTechStack,
	record.FieldTeamSize,
	record.FieldFounderBackgrounds,
	record.FieldFundingStage,
}

// CriticalFields returns the critical-tier field names. Callers must not
// mutate the returned slice.
func CriticalFields() []string { return criticalFields }

// Assessment is the full per-attempt quality report. Only OverallScore and
// Status are persisted onto the record; the rest is for logs and operators.
type Assessment struct {
	OverallScore float64
	FieldScores  map[string]float64

	CriticalFound  int
	CriticalTotal  int
	ImportantFound int
	ImportantTotal int
	OptionalFound  int
	OptionalTotal  int

	Status          Status
	MissingCritical []string
	Issues          []string
}

// EnrichmentStatus derives the record's terminal pipeline status from the
// quality verdict.
func (a Assessment) EnrichmentStatus() record.Status {
	switch {
	case a.Status == StatusFailed:
		return record.StatusFailed
	case a.Status == StatusPoor || a.OverallScore < 0.4:
		return record.StatusNeedsReview
	default:
		return record.StatusCompleted
	}
}

type Scorer struct {
	cfg Thresholds
}

func NewScorer(cfg Thresholds) *Scorer {
	return &Scorer{cfg: cfg.withDefaults()}
}

// Score assesses the merged view of an existing record plus one extraction
// fragment, mirroring the merge policy: a genuine existing value is what gets
// persisted, so it is what gets scored, even when the fragment carries a
// competing extraction. A field counts as found only when a value is present
// and its confidence clears the tier threshold; values without an explicit
// confidence (heuristic extractions, pre-existing data) assume the tier's
// default; moderately trustworthy, not perfect.
func (s *Scorer) Score(existing *record.Record, frag record.Fragment) Assessment {
	a := Assessment{
		FieldScores:    make(map[string]float64),
		CriticalTotal:  len(criticalFields),
		ImportantTotal: len(importantFields),
		OptionalTotal:  len(optionalFields),
	}

	a.CriticalFound = s.countTier(existing, frag, criticalFields, s.cfg.Critical, &a)
	a.ImportantFound = s.countTier(existing, frag, importantFields, s.cfg.Important, &a)
	a.OptionalFound = s.countTier(existing, frag, optionalFields, s.cfg.Optional, &a)

	for _, f := range criticalFields {
		if a.FieldScores[f] < s.cfg.Critical.MinConfidence {
			a.MissingCritical = append(a.MissingCritical, f)
		}
	}
	sort.Strings(a.MissingCritical)

	score := s.cfg.Weights.Critical*ratio(a.CriticalFound, a.CriticalTotal) +
		s.cfg.Weights.Important*ratio(a.ImportantFound, a.ImportantTotal) +
		s.cfg.Weights.Optional*ratio(a.OptionalFound, a.OptionalTotal)
	a.OverallScore = math.Min(1, math.Max(0, score))

	a.Status = s.status(a)
	if len(a.MissingCritical) > 0 {
		a.Issues = append(a.Issues, fmt.Sprintf("missing critical fields: %v", a.MissingCritical))
	}
	return a
}

// countTier scores one tier and records per-field confidences in the
// assessment.
func (s *Scorer) countTier(existing *record.Record, frag record.Fragment, fields []string, tier TierConfig, a *Assessment) int {
	found := 0
	for _, f := range fields {
		conf, present := fieldConfidence(existing, frag, f, tier.AssumedConfidence)
		if !present {
			continue
		}
		a.FieldScores[f] = conf
		if conf >= tier.MinConfidence {
			found++
		} else {
			a.Issues = append(a.Issues, fmt.Sprintf("low confidence on %s (%.2f < %.2f)", f, conf, tier.MinConfidence))
		}
	}
	return found
}

// fieldConfidence resolves the post-merge value and its confidence for one
// field. The merge policy keeps a genuine existing value over any extraction,
// so that value scores with the tier default regardless of what the fragment
// holds. Placeholder values never count, on either side.
func fieldConfidence(existing *record.Record, frag record.Fragment, field string, assumed float64) (float64, bool) {
	if cur := strings.TrimSpace(existing.Field(field)); cur != "" && !merge.IsPlaceholder(field, cur, existing.Name) {
		return assumed, true
	}
	if v, ok := frag.Fields[field]; ok && v != "" && !merge.IsPlaceholder(field, v, existing.Name) {
		if c, ok := frag.Confidence[field]; ok {
			return c, true
		}
		return assumed, true
	}
	return 0, false
}

func (s *Scorer) status(a Assessment) Status {
	critRatio := ratio(a.CriticalFound, a.CriticalTotal)
	switch {
	case a.OverallScore >= 0.8 && a.CriticalFound == a.CriticalTotal:
		return StatusExcellent
	case a.OverallScore >= 0.6 && critRatio >= 0.7:
		return StatusGood
	case a.OverallScore >= 0.4 && critRatio >= 0.5:
		return StatusFair
	case a.OverallScore >= 0.2 || a.CriticalFound > 0:
		return StatusPoor
	default:
		return StatusFailed
	}
}

func ratio(found, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(found) / float64(total)
}
