package care

import (
	"github.com/BTreeMap/CareConcierge/internal/citation"
	"github.com/BTreeMap/CareConcierge/internal/models"
)

// DefaultReviewDomains are public review sites whose pages may verify a place.
var DefaultReviewDomains = []string{
	"google.com",
	"yelp.com",
	"healthgrades.com",
	"zocdoc.com",
	"vitals.com",
	"ratemds.com",
	"webmd.com",
	"facebook.com",
}

// ReviewGate admits only places whose reputation can be verified.
type ReviewGate struct {
	ReviewDomains []string
	// ShowUnverified admits every place for display.
	ShowUnverified bool
}

// Eligible reports whether p carries verifiable reputation: a rating backed by reviews, a
// quoted review citation, or a score source on a recognized review domain.
func (g ReviewGate) Eligible(p models.Place) bool {
	if p.Rating != nil && *p.Rating > 0 && p.Reviews != nil && *p.Reviews > 0 {
		return true
	}
	if p.ReviewCitation != nil && p.ReviewCitation.URL != "" {
		return true
	}
	domains := g.ReviewDomains
	if domains == nil {
		domains = DefaultReviewDomains
	}
	for _, s := range p.ScoreSources {
		if host, ok := citation.NormalizeHost(s.URL); ok && citation.HostMatches(host, domains) {
			return true
		}
	}
	return false
}

// Filter keeps eligible places, or all places when ShowUnverified is set.
func (g ReviewGate) Filter(places []models.Place) []models.Place {
	if g.ShowUnverified {
		return places
	}
	out := make([]models.Place, 0, len(places))
	for _, p := range places {
		if g.Eligible(p) {
			out = append(out, p)
		}
	}
	return out
}

// GateAndRank applies the review gate and then ranks the survivors.
func (g ReviewGate) GateAndRank(places []models.Place) []models.Place {
	return Rank(g.Filter(places))
}
