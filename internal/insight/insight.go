// Package insight merges synthesized insight cards across turns, keyed by normalized title.
package insight

import (
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/citation"
	"github.com/BTreeMap/CareConcierge/internal/models"
)

// NormalizeTitle lowercases, collapses internal whitespace and trims.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Merge folds incoming into existing. Unknown titles are appended with why/next
// deduplicated and citations allow-listed; repeats within incoming fold into the first. Known titles keep their position and id; body, confidence,
// urgency and timestamp take the incoming value when non-empty; why/next are set-unioned in
// first-seen order; citations are concatenated and passed through the allow-list.
// Merging a set into itself changes nothing.
func Merge(existing, incoming []models.InsightCard, domains []string) []models.InsightCard {
	out := make([]models.InsightCard, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))
	for _, c := range existing {
		key := NormalizeTitle(c.Title)
		if i, ok := index[key]; ok {
			out[i] = mergeCard(out[i], c, domains)
			continue
		}
		index[key] = len(out)
		out = append(out, dedupeLists(c, domains))
	}
	for _, c := range incoming {
		key := NormalizeTitle(c.Title)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			out[i] = mergeCard(out[i], c, domains)
			continue
		}
		index[key] = len(out)
		out = append(out, dedupeLists(c, domains))
	}
	return out
}

// dedupeLists prepares a card entering the set: why/next lose duplicates and citations pass
// through the allow-list.
func dedupeLists(c models.InsightCard, domains []string) models.InsightCard {
	c.Why = union(c.Why, nil)
	c.Next = union(c.Next, nil)
	if len(c.Citations) > 0 {
		c.Citations = citation.FilterAllowed(c.Citations, domains)
	}
	return c
}

func mergeCard(cur, in models.InsightCard, domains []string) models.InsightCard {
	if strings.TrimSpace(in.Body) != "" {
		cur.Body = in.Body
	}
	if in.Confidence != "" {
		cur.Confidence = in.Confidence
	}
	if in.Urgency != "" {
		cur.Urgency = in.Urgency
	}
	if !in.Timestamp.IsZero() {
		cur.Timestamp = in.Timestamp
	}
	cur.Why = union(cur.Why, in.Why)
	cur.Next = union(cur.Next, in.Next)
	if len(cur.Citations)+len(in.Citations) > 0 {
		joined := make([]models.Citation, 0, len(cur.Citations)+len(in.Citations))
		joined = append(joined, cur.Citations...)
		joined = append(joined, in.Citations...)
		cur.Citations = citation.FilterAllowed(joined, domains)
	}
	return cur
}

// union returns a followed by the entries of b not already present, without duplicates.
func union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// EvidenceQualified reports whether the card carries at least one allowed citation.
func EvidenceQualified(c models.InsightCard, domains []string) bool {
	return len(citation.FilterAllowed(c.Citations, domains)) > 0
}
