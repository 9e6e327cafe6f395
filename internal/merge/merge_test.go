package merge_test

import (
	"reflect"
	"testing"

	"github.com/scoutline/startup-enricher/internal/merge"
	"github.com/scoutline/startup-enricher/internal/record"
)

func TestPlanFillsEmptyFields(t *testing.T) {
	t.Parallel()

	rec := &record.Record{ID: "1", Name: "Acme"}
	frag := record.NewFragment()
	frag.Set(record.FieldDescription, "Developer tools", 0.9)
	frag.SetHeuristic(record.FieldLocation, "Berlin")

	got := merge.Plan(rec, frag)
	want := map[string]string{
		record.FieldDescription: "Developer tools",
		record.FieldLocation:    "Berlin",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("plan = %#v, want %#v", got, want)
	}
}

func TestPlanNeverOverwritesRealData(t *testing.T) {
	t.Parallel()

	rec := &record.Record{
		ID:           "1",
		Name:         "Acme",
		FounderNames: "Jane Roe",
		Website:      "acme-tools.dev",
	}
	frag := record.NewFragment()
	frag.Set(record.FieldFounderNames, "Someone Else", 0.99)
	frag.Set(record.FieldWebsite, "other.example.com", 0.99)

	if got := merge.Plan(rec, frag); len(got) != 0 {
		t.Fatalf("real data overwritten: %#v", got)
	}
}

func TestPlanOverwritesPlaceholders(t *testing.T) {
	t.Parallel()

	rec := &record.Record{
		ID:            "1",
		Name:          "Acme",
		FounderNames:  "Team",
		FounderEmails: "hello@acme.com",
		FundingAmount: "$1.5M",
		JobOpenings:   "Software Engineering Intern, Product Intern",
		Website:       "acme.com", // generated name+TLD domain
	}
	frag := record.NewFragment()
	frag.Set(record.FieldFounderNames, "Jane Roe", 0.9)
	frag.Set(record.FieldFounderEmails, "jane@acme-tools.dev", 0.8)
	frag.Set(record.FieldFundingAmount, "$4M", 0.85)
	frag.Set(record.FieldJobOpenings, "Backend Engineer", 0.7)
	frag.Set(record.FieldWebsite, "acme-tools.dev", 0.9)

	got := merge.Plan(rec, frag)
	for _, field := range []string{
		record.FieldFounderNames,
		record.FieldFounderEmails,
		record.FieldFundingAmount,
		record.FieldJobOpenings,
		record.FieldWebsite,
	} {
		if _, ok := got[field]; !ok {
			t.Fatalf("placeholder %s not scheduled for replacement: %#v", field, got)
		}
	}
}

func TestPlanRefusesPlaceholderValues(t *testing.T) {
	t.Parallel()

	rec := &record.Record{ID: "1", Name: "Acme"}
	frag := record.NewFragment()
	frag.Set(record.FieldFounderNames, "Team", 0.9)
	frag.Set(record.FieldFounderEmails, "hello@acme.com", 0.9)

	if got := merge.Plan(rec, frag); len(got) != 0 {
		t.Fatalf("placeholder values written: %#v", got)
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	t.Parallel()

	rec := &record.Record{ID: "1", Name: "Acme", FounderNames: "Team"}
	frag := record.NewFragment()
	frag.Set(record.FieldFounderNames, "Jane Roe", 0.9)
	frag.Set(record.FieldLocation, "Berlin", 0.8)

	first := merge.Plan(rec, frag)
	for field, val := range first {
		rec.SetField(field, val)
	}
	second := merge.Plan(rec, frag)
	if len(second) != 0 {
		t.Fatalf("second application not a no-op: %#v", second)
	}
}

func TestIsPlaceholderWebsite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value string
		name  string
		want  bool
	}{
		{"acme.com", "Acme", true},
		{"https://www.acme.io/", "Acme", true},
		{"acmelabs.ai", "Acme Labs", true},
		{"acme-tools.dev", "Acme", false},
		{"acme.com/careers", "Acme", false},
		{"other.com", "Acme", false},
		{"", "Acme", false},
	}
	for _, tc := range cases {
		if got := merge.IsPlaceholder(record.FieldWebsite, tc.value, tc.name); got != tc.want {
			t.Fatalf("IsPlaceholder(website, %q, %q) = %v, want %v", tc.value, tc.name, got, tc.want)
		}
	}
}

func TestNeedsReenrichment(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rec  record.Record
		want bool
	}{
		{
			name: "placeholder founder",
			rec:  record.Record{Name: "Acme", FounderNames: "Team"},
			want: true,
		},
		{
			name: "placeholder email",
			rec:  record.Record{Name: "Acme", FounderEmails: "hello@acme.com"},
			want: true,
		},
		{
			name: "placeholder funding",
			rec:  record.Record{Name: "Acme", FundingAmount: "$1.5M"},
			want: true,
		},
		{
			name: "founder without linkedin",
			rec:  record.Record{Name: "Acme", FounderNames: "Jane Roe"},
			want: true,
		},
		{
			name: "complete record",
			rec: record.Record{
				Name:            "Acme",
				FounderNames:    "Jane Roe",
				FounderLinkedIn: "linkedin.com/in/janeroe",
				FounderEmails:   "jane@acme-tools.dev",
				FundingAmount:   "$4M",
			},
			want: false,
		},
		{
			name: "empty record",
			rec:  record.Record{Name: "Acme"},
			want: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := merge.NeedsReenrichment(&tc.rec); got != tc.want {
				t.Fatalf("NeedsReenrichment = %v, want %v", got, tc.want)
			}
		})
	}
}
