package citation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

func TestFilterAllowed_DropsUntrustedAndUnparsable(t *testing.T) {
	in := []models.Citation{
		{Title: "CDC", URL: "https://www.cdc.gov/fever/index.html"},
		{Title: "Blog", URL: "https://random-health-blog.com/post"},
		{Title: "Broken", URL: "::not a url"},
		{Title: "Empty", URL: ""},
		{Title: "MedlinePlus", URL: "https://medlineplus.gov/burns.html"},
		{Title: "Lookalike", URL: "https://evilcdc.gov/x"},
	}
	got := FilterAllowed(in, DefaultTrustedDomains)
	if len(got) != 2 {
		t.Fatalf("expected 2 citations, got %d: %+v", len(got), got)
	}
	if got[0].Title != "CDC" || got[1].Title != "MedlinePlus" {
		t.Errorf("unexpected order or content: %+v", got)
	}
}

func TestFilterAllowed_SubdomainMatches(t *testing.T) {
	in := []models.Citation{{Title: "NIAMS", URL: "https://www.niams.nih.gov/health-topics/sprains"}}
	got := FilterAllowed(in, DefaultTrustedDomains)
	if len(got) != 1 {
		t.Fatalf("expected subdomain of nih.gov to be allowed, got %+v", got)
	}
}

func TestFilterAllowed_DeduplicatesWWWAndCaseVariants(t *testing.T) {
	in := []models.Citation{
		{Title: "first", URL: "https://www.MayoClinic.org/first-aid/cuts"},
		{Title: "second", URL: "https://mayoclinic.org/first-aid/cuts"},
		{Title: "third", URL: "https://WWW.mayoclinic.org/first-aid/cuts/"},
	}
	got := FilterAllowed(in, DefaultTrustedDomains)
	if len(got) != 1 {
		t.Fatalf("expected one entry, got %d: %+v", len(got), got)
	}
	if got[0].Title != "first" || got[0].URL != "https://www.MayoClinic.org/first-aid/cuts" {
		t.Errorf("first occurrence should win as given, got %+v", got[0])
	}
}

func TestFilterAllowed_Idempotent(t *testing.T) {
	in := []models.Citation{
		{Title: "a", URL: "https://www.cdc.gov/a"},
		{Title: "b", URL: "https://cdc.gov/a"},
		{Title: "c", URL: "http://example.com"},
		{Title: "d", URL: "https://nhs.uk/conditions/burns"},
	}
	once := FilterAllowed(in, DefaultTrustedDomains)
	twice := FilterAllowed(once, DefaultTrustedDomains)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("FilterAllowed not idempotent:\n once=%+v\ntwice=%+v", once, twice)
	}
}

func TestIsDeclarative(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"Rest the ankle and apply ice.", true},
		{"How long has it hurt?", false},
		{"A sprain usually heals in two weeks. Can you walk on it?", true},
		{"Does it hurt when you move it?  ", false},
		{"Keep the cut clean", true},
	}
	for _, tt := range tests {
		if got := IsDeclarative(tt.text); got != tt.want {
			t.Errorf("IsDeclarative(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

type fakeBackfiller struct {
	calls int
	out   []models.Citation
	err   error
}

func (f *fakeBackfiller) Backfill(ctx context.Context, text string, allowed []string) ([]models.Citation, error) {
	f.calls++
	return f.out, f.err
}

func TestEnforce_KeepsAllowedCitationsWithoutBackfill(t *testing.T) {
	bf := &fakeBackfiller{}
	g := NewGate(WithBackfiller(bf))
	res := g.Enforce(context.Background(), "Ice helps.", []models.Citation{{URL: "https://www.cdc.gov/x"}}, models.EvidenceLock{Enabled: true})
	if len(res.Citations) != 1 || bf.calls != 0 || len(res.Advisories) != 0 {
		t.Errorf("unexpected result %+v, backfill calls %d", res, bf.calls)
	}
}

func TestEnforce_BackfillAcceptedOnce(t *testing.T) {
	bf := &fakeBackfiller{out: []models.Citation{
		{URL: "https://spam.example/x"},
		{URL: "https://medlineplus.gov/sprainsandstrains.html"},
	}}
	g := NewGate(WithBackfiller(bf))
	res := g.Enforce(context.Background(), "Rest and ice the ankle.", nil, models.EvidenceLock{Enabled: true})
	if bf.calls != 1 {
		t.Fatalf("expected exactly one backfill call, got %d", bf.calls)
	}
	if !res.Backfilled || len(res.Citations) != 1 || len(res.Advisories) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestEnforce_SoftPolicyAdvises(t *testing.T) {
	bf := &fakeBackfiller{}
	g := NewGate(WithBackfiller(bf))
	res := g.Enforce(context.Background(), "Rest and ice the ankle.", nil, models.EvidenceLock{Enabled: true})
	if res.Withheld {
		t.Error("soft policy must not withhold")
	}
	if len(res.Advisories) != 1 || res.Advisories[0].Kind != models.ErrorKindValidationGap {
		t.Errorf("expected validation gap advisory, got %+v", res.Advisories)
	}
}

func TestEnforce_StrictPolicyWithholds(t *testing.T) {
	bf := &fakeBackfiller{err: errors.New("down")}
	g := NewGate(WithBackfiller(bf), WithPolicy(PolicyStrict))
	res := g.Enforce(context.Background(), "Rest and ice the ankle.", nil, models.EvidenceLock{Enabled: true})
	if !res.Withheld {
		t.Error("strict policy should withhold")
	}
	if len(res.Advisories) != 2 {
		t.Fatalf("expected upstream + validation advisories, got %+v", res.Advisories)
	}
	if res.Advisories[0].Kind != models.ErrorKindUpstreamUnavailable || res.Advisories[1].Message != ClarifyPrompt {
		t.Errorf("unexpected advisories %+v", res.Advisories)
	}
}

func TestEnforce_SkipsQuestionsAndDisabledLock(t *testing.T) {
	bf := &fakeBackfiller{}
	g := NewGate(WithBackfiller(bf), WithPolicy(PolicyStrict))
	if res := g.Enforce(context.Background(), "Where does it hurt?", nil, models.EvidenceLock{Enabled: true}); res.Withheld || len(res.Advisories) != 0 {
		t.Errorf("question should pass untouched, got %+v", res)
	}
	if res := g.Enforce(context.Background(), "Ice it.", nil, models.EvidenceLock{Enabled: false}); res.Withheld || len(res.Advisories) != 0 {
		t.Errorf("disabled lock should pass untouched, got %+v", res)
	}
	if bf.calls != 0 {
		t.Errorf("backfill should not be called, got %d calls", bf.calls)
	}
}

func TestParsePolicy(t *testing.T) {
	if ParsePolicy("strict") != PolicyStrict || ParsePolicy("") != PolicySoft || ParsePolicy("bogus") != PolicySoft {
		t.Error("ParsePolicy mapping wrong")
	}
}
