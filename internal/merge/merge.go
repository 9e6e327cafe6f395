// Package merge decides, field by field, whether extracted data may replace
// what a record already holds. The core invariant: a genuine value is never
// silently overwritten; only null/empty values and recognized placeholder
// patterns left behind by earlier pattern-generated imports are eligible.
package merge

import (
	"strings"

	"github.com/scoutline/startup-enricher/internal/record"
)

// Placeholder patterns observed in pattern-generated imports.
const (
	placeholderFounder = "Team"
	placeholderFunding = "$1.5M"
	placeholderJobs    = "Software Engineering Intern, Product Intern"
)

var placeholderTLDs = []string{".com", ".ai", ".io", ".co", ".org", ".dev"}

// Plan returns the field updates to apply: every fragment field whose
// existing value is empty or a placeholder. Applying the same plan twice is a
// no-op the second time by construction: the plan only ever moves a field
// from empty/placeholder to the extracted value.
func Plan(existing *record.Record, frag record.Fragment) map[string]string {
	updates := make(map[string]string)
	for field, value := range frag.Fields {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		// Never write a placeholder over anything.
		if IsPlaceholder(field, value, existing.Name) {
			continue
		}
		current := strings.TrimSpace(existing.Field(field))
		if current == "" || IsPlaceholder(field, current, existing.Name) {
			updates[field] = value
		}
	}
	return updates
}

// IsPlaceholder reports whether a value matches the known placeholder pattern
// for its field.
func IsPlaceholder(field, value, entityName string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	switch field {
	case record.FieldFounderNames:
		return value == placeholderFounder
	case record.FieldFundingAmount:
		return value == placeholderFunding
	case record.FieldFounderEmails:
		return strings.HasPrefix(strings.ToLower(value), "hello@")
	case record.FieldJobOpenings:
		return value == placeholderJobs
	case record.FieldWebsite:
		return isGeneratedWebsite(value, entityName)
	}
	return false
}

// isGeneratedWebsite detects the name+TLD domains the pattern generator
// fabricated. Known limitation: a real startup whose domain is exactly its
// normalized name gets misclassified and re-enriched; the merge plan still
// refuses to write anything worse than what is there.
func isGeneratedWebsite(value, entityName string) bool {
	host := strings.ToLower(strings.TrimSpace(value))
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, "/")
	if strings.ContainsAny(host, "/?") {
		return false
	}

	name := normalizeName(entityName)
	if name == "" {
		return false
	}
	for _, tld := range placeholderTLDs {
		if host == name+tld {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NeedsReenrichment reports whether a record still carries pattern-generated
// data and should be swept back into the queue.
func NeedsReenrichment(r *record.Record) bool {
	if IsPlaceholder(record.FieldFounderNames, r.FounderNames, r.Name) {
		return true
	}
	if IsPlaceholder(record.FieldFounderEmails, r.FounderEmails, r.Name) {
		return true
	}
	if IsPlaceholder(record.FieldFundingAmount, r.FundingAmount, r.Name) {
		return true
	}
	if strings.TrimSpace(r.FounderNames) != "" && strings.TrimSpace(r.FounderLinkedIn) == "" {
		return true
	}
	return false
}
