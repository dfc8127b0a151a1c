// Package risk merges heuristic text signals, structured red flags and model-asserted risk
// into one aggregate risk level that never decreases within an episode.
package risk

import (
	"regexp"
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// SeverePhrases trigger a severe heuristic on an exact substring match of the lowercased text.
var SeverePhrases = []string{
	"can't breathe",
	"cannot breathe",
	"can not breathe",
	"trouble breathing",
	"chest pain",
	"unconscious",
	"passed out",
	"not breathing",
	"seizure",
	"severe bleeding",
	"bleeding won't stop",
	"won't stop bleeding",
	"coughing up blood",
	"vomiting blood",
	"face drooping",
	"slurred speech",
	"throat closing",
	"anaphylaxis",
	"suicidal",
	"bone sticking out",
	"stiff neck",
}

// ModeratePhrases trigger a moderate heuristic when no severe phrase matched.
var ModeratePhrases = []string{
	"fever",
	"vomiting",
	"swelling",
	"swollen",
	"infection",
	"pus",
	"can't put weight",
	"cannot put weight",
	"deep cut",
	"dizzy",
	"blister",
	"spreading",
	"getting worse",
	"numb",
}

var feverPattern = regexp.MustCompile(`\bfever|\btemperature of|\bhigh temp`)

// Signals are the inputs of one classification.
type Signals struct {
	Text      string
	RedFlags  models.RedFlags
	ModelRisk models.RiskLevel
	AgeBand   models.AgeBand
	Previous  models.RiskLevel
}

// Heuristic scans text for severe then moderate phrases. Empty or whitespace text yields
// RiskNone. Infants with a fever mention are severe regardless of other phrases.
func Heuristic(text string, age models.AgeBand) models.RiskLevel {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return models.RiskNone
	}
	if age == models.AgeBandInfant && feverPattern.MatchString(t) {
		return models.RiskSevere
	}
	for _, p := range SeverePhrases {
		if strings.Contains(t, p) {
			return models.RiskSevere
		}
	}
	for _, p := range ModeratePhrases {
		if strings.Contains(t, p) {
			return models.RiskModerate
		}
	}
	return models.RiskNone
}

// Max returns the higher of a and b.
func Max(a, b models.RiskLevel) models.RiskLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Classify returns the new aggregate risk. It is the maximum of the previous aggregate,
// the model-asserted risk, the heuristic and the structured red flags, so it never drops
// below Previous. Without any signal the previous value is returned unchanged.
func Classify(s Signals) models.RiskLevel {
	agg := Max(s.Previous, s.ModelRisk)
	agg = Max(agg, Heuristic(s.Text, s.AgeBand))
	if s.RedFlags.Any() {
		agg = models.RiskSevere
	}
	return agg
}

// AppendTrail appends level to trail unless it equals the last entry or is RiskNone.
// The input slice is not modified.
func AppendTrail(trail []models.RiskLevel, level models.RiskLevel) []models.RiskLevel {
	if level == models.RiskNone {
		return trail
	}
	if n := len(trail); n > 0 && trail[n-1] == level {
		return trail
	}
	out := make([]models.RiskLevel, len(trail), len(trail)+1)
	copy(out, trail)
	return append(out, level)
}
