package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/scoutline/startup-enricher/internal/record"
	"github.com/scoutline/startup-enricher/internal/search"
)

var (
	fundingRe  = regexp.MustCompile(`\$\s?\d+(?:\.\d+)?\s?(?:million|billion|[MBK])\b`)
	stageRe    = regexp.MustCompile(`(?i)\b(pre-seed|seed|series [a-e])\b(?:\s+(?:round|funding|stage))?`)
	linkedinRe = regexp.MustCompile(`(?:https?://)?(?:www\.)?linkedin\.com/in/[A-Za-z0-9\-_%]+`)
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	founderRe  = regexp.MustCompile(`(?:founded by|co-founders?|founders?|CEO)[,:]?\s+((?:[A-Z][a-z]+\s+){1,2}[A-Z][a-z]+)`)
	locationRe = regexp.MustCompile(`(?:based in|headquartered in|located in)\s+([A-Z][A-Za-z]+(?:[ ,]+[A-Z][A-Za-z]+)?)`)
	teamRe     = regexp.MustCompile(`(\d{1,4})\s+(?:employees|people|person team)`)
)

// ExtractHeuristic is the always-available regex strategy. It returns a
// best-effort, confidence-free fragment and never fails.
func ExtractHeuristic(entityName string, results []search.Result) record.Fragment {
	frag := record.NewFragment()
	if len(results) == 0 {
		return frag
	}

	var text strings.Builder
	for _, r := range results {
		text.WriteString(r.Title)
		text.WriteString("\n")
		text.WriteString(r.Snippet)
		text.WriteString("\n")
	}
	corpus := text.String()

	if m := fundingRe.FindString(corpus); m != "" {
		frag.SetHeuristic(record.FieldFundingAmount, compactFunding(m))
	}
	if m := stageRe.FindStringSubmatch(corpus); m != nil {
		frag.SetHeuristic(record.FieldFundingStage, normalizeStage(m[1]))
	}
	if m := linkedinRe.FindString(corpus); m != "" {
		frag.SetHeuristic(record.FieldFounderLinkedIn, strings.TrimPrefix(strings.TrimPrefix(m, "https://"), "http://"))
	}
	if m := emailRe.FindString(corpus); m != "" {
		frag.SetHeuristic(record.FieldFounderEmails, strings.ToLower(m))
	}
	if m := founderRe.FindStringSubmatch(corpus); m != nil {
		frag.SetHeuristic(record.FieldFounderNames, strings.Join(strings.Fields(m[1]), " "))
	}
	if m := locationRe.FindStringSubmatch(corpus); m != nil {
		frag.SetHeuristic(record.FieldLocation, strings.TrimSpace(m[1]))
	}
	if m := teamRe.FindStringSubmatch(corpus); m != nil {
		frag.SetHeuristic(record.FieldTeamSize, m[1])
	}
	if site := guessWebsite(entityName, results); site != "" {
		frag.SetHeuristic(record.FieldWebsite, site)
	}

	return frag
}

// guessWebsite picks a result URL whose host contains the normalized entity
// name, skipping aggregators that show up for every startup query.
func guessWebsite(entityName string, results []search.Result) string {
	needle := normalizeName(entityName)
	if needle == "" {
		return ""
	}
	for _, r := range results {
		u, err := url.Parse(r.URL)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		if isAggregator(host) {
			continue
		}
		if strings.Contains(strings.ReplaceAll(host, "-", ""), needle) {
			return host
		}
	}
	return ""
}

func isAggregator(host string) bool {
	for _, agg := range []string{
		"linkedin.com", "crunchbase.com", "ycombinator.com", "twitter.com",
		"x.com", "facebook.com", "wikipedia.org", "github.com", "medium.com",
	} {
		if host == agg || strings.HasSuffix(host, "."+agg) {
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

// compactFunding rewrites "$4 million" style matches as "$4M".
func compactFunding(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.NewReplacer("million", "M", "billion", "B").Replace(strings.ToLower(s))
	return "$" + strings.ToUpper(strings.TrimPrefix(s, "$"))
}

func normalizeStage(s string) string {
	s = strings.ToLower(s)
	switch {
	case s == "pre-seed":
		return "Pre-Seed"
	case s == "seed":
		return "Seed"
	case strings.HasPrefix(s, "series "):
		return "Series " + strings.ToUpper(s[len("series "):])
	}
	return s
}
