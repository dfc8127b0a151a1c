// Package plan builds a structured self-care plan from a topic and a risk level. Build is a
// pure function over static tables; it makes no network calls.
package plan

import (
	"strings"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/topic"
)

// Tier is the care tier a plan is written for.
type Tier string

const (
	TierSelfCare     Tier = "self_care"
	TierSeeClinician Tier = "see_clinician"
	TierEscalate     Tier = "escalate"
)

// StaleAfterYears marks a citation stale when it was last updated this many years ago or more.
const StaleAfterYears = 2

// InsuranceAssumption is returned when no insurance text is supplied.
const InsuranceAssumption = "Add your insurance to see an estimated cost range."

// Line is one plan instruction linked to the catalog citation that backs it.
type Line struct {
	Text       string `json:"text"`
	CitationID string `json:"citationId"`
}

// Coverage is an estimated out-of-pocket price range for the recommended setting.
type Coverage struct {
	Setting   string  `json:"setting"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Currency  string  `json:"currency"`
	Insurance string  `json:"insurance"`
}

// Plan is the structured self-care plan.
type Plan struct {
	Topic       models.Topic               `json:"topic"`
	Tier        Tier                       `json:"tier"`
	Summary     string                     `json:"summary"`
	SelfCare    []Line                     `json:"selfCare"`
	WatchOuts   []Line                     `json:"watchOuts"`
	AfterCare   []Line                     `json:"afterCare"`
	Coverage    *Coverage                  `json:"coverage"`
	Assumptions []string                   `json:"assumptions,omitempty"`
	Citations   map[string]models.Citation `json:"citations"`
	Stale       bool                       `json:"stale"`
}

// Input carries the optional parts of a plan request.
type Input struct {
	Insurance string
	Now       time.Time
}

// TierFor maps an aggregate risk onto a care tier.
func TierFor(r models.RiskLevel) Tier {
	switch r {
	case models.RiskSevere:
		return TierEscalate
	case models.RiskModerate:
		return TierSeeClinician
	default:
		return TierSelfCare
	}
}

// Build returns the plan for t at risk r. A possible fracture always yields the escalate
// tier whatever r says.
func Build(t models.Topic, r models.RiskLevel, in Input) Plan {
	c, ok := content[t]
	if !ok {
		t = models.TopicGeneric
		c = content[models.TopicGeneric]
	}
	tier := TierFor(r)
	if topic.ForcesEscalation(t) {
		tier = TierEscalate
	}

	p := Plan{
		Topic:     t,
		Tier:      tier,
		Summary:   c.summary,
		SelfCare:  toLines(c.selfCare),
		WatchOuts: toLines(c.watchOuts),
		AfterCare: toLines(c.afterCare),
	}
	if tier == TierEscalate {
		p.WatchOuts = append([]Line{{Text: escalationLine.text, CitationID: escalationLine.citationID}}, p.WatchOuts...)
	}

	if ins := strings.TrimSpace(in.Insurance); ins != "" {
		cov := coverageFor(t, tier)
		cov.Insurance = ins
		p.Coverage = &cov
	} else {
		p.Assumptions = append(p.Assumptions, InsuranceAssumption)
	}

	p.Citations = make(map[string]models.Citation)
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Year() - StaleAfterYears
	for _, group := range [][]Line{p.SelfCare, p.WatchOuts, p.AfterCare} {
		for _, l := range group {
			entry, ok := Catalog[l.CitationID]
			if !ok {
				continue
			}
			p.Citations[entry.ID] = entry.Citation()
			if entry.LastUpdated <= cutoff {
				p.Stale = true
			}
		}
	}
	return p
}

func toLines(ls []line) []Line {
	out := make([]Line, len(ls))
	for i, l := range ls {
		out[i] = Line{Text: l.text, CitationID: l.citationID}
	}
	return out
}
