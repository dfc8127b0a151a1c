package care

import (
	"sort"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// Annotate returns a copy of places with Score, Reason and Notes recomputed.
func Annotate(places []models.Place) []models.Place {
	out := make([]models.Place, len(places))
	for i, p := range places {
		p.Score = ComputeScore(p).Display
		p.Reason, p.Notes = Explain(p)
		out[i] = p
	}
	return out
}

// Rank annotates places and stable-sorts them by display score, highest first. Ties keep
// their input order, so re-ranking an unchanged list is a no-op.
func Rank(places []models.Place) []models.Place {
	out := Annotate(places)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
