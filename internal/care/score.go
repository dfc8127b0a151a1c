// Package care scores, filters and ranks candidate care locations.
package care

import (
	"fmt"
	"math"
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// Scoring constants.
const (
	WeightRating   = 0.55
	WeightVolume   = 0.15
	WeightDistance = 0.20
	WeightCost     = 0.10

	// VolumeLogScale saturates the volume score at roughly 200 reviews.
	VolumeLogScale = 2.3
	// DistanceHorizonKm is the distance at which the distance score reaches zero.
	DistanceHorizonKm = 18.0
	// UnknownDistanceKm is assumed when a place has no distance.
	UnknownDistanceKm = 30.0
	// CostHorizon is the cost midpoint at which the cost score reaches zero.
	CostHorizon = 450.0
	// NeutralCostScore is used when neither estimates nor a price band are known.
	NeutralCostScore = 0.6

	// DisplayFloor and DisplaySpan rescale the composite onto the 3.0 to 5.0 display band.
	DisplayFloor = 3.0
	DisplaySpan  = 2.0
)

// priceBandScore is the cost proxy used when a place has a price band but no estimates.
var priceBandScore = map[string]float64{
	"$":    0.9,
	"$$":   0.7,
	"$$$":  0.4,
	"$$$$": 0.2,
}

// Breakdown holds the component scores of one place, each in [0,1].
type Breakdown struct {
	Rating    float64 `json:"rating"`
	Volume    float64 `json:"volume"`
	Distance  float64 `json:"distance"`
	Cost      float64 `json:"cost"`
	Composite float64 `json:"composite"`
	Display   float64 `json:"display"`
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ComputeScore returns the component, composite and display scores of p. It is pure.
func ComputeScore(p models.Place) Breakdown {
	var b Breakdown
	if p.Rating != nil {
		b.Rating = clamp01(*p.Rating / 5)
	}
	if p.Reviews != nil && *p.Reviews > 0 {
		b.Volume = math.Min(1, math.Log10(float64(*p.Reviews)+1)/VolumeLogScale)
	}
	dist := UnknownDistanceKm
	if p.DistanceKm != nil {
		dist = math.Max(0, *p.DistanceKm)
	}
	b.Distance = 1 - math.Min(1, dist/DistanceHorizonKm)
	b.Cost = costScore(p)

	b.Composite = WeightRating*b.Rating + WeightVolume*b.Volume + WeightDistance*b.Distance + WeightCost*b.Cost
	b.Display = DisplayFloor + DisplaySpan*b.Composite
	return b
}

func costScore(p models.Place) float64 {
	if mid, ok := costMidpoint(p); ok {
		return clamp01(1 - mid/CostHorizon)
	}
	if s, ok := priceBandScore[strings.TrimSpace(p.Price)]; ok {
		return s
	}
	return NeutralCostScore
}

func costMidpoint(p models.Place) (float64, bool) {
	switch {
	case p.EstCostMin != nil && p.EstCostMax != nil:
		return (*p.EstCostMin + *p.EstCostMax) / 2, true
	case p.EstCostMin != nil:
		return *p.EstCostMin, true
	case p.EstCostMax != nil:
		return *p.EstCostMax, true
	}
	return 0, false
}

// Reason thresholds.
const (
	StrongRating = 4.2
	ManyReviews  = 100
	CloseByKm    = 8.0
)

// Explain returns the reason text and notes for p. Matching rules are joined in fixed
// priority order; cost or price phrasing is used only when no other rule matched.
func Explain(p models.Place) (string, []string) {
	var reasons, notes []string
	if p.Rating != nil && *p.Rating >= StrongRating {
		reasons = append(reasons, "strong patient rating")
	}
	if p.Reviews != nil && *p.Reviews > ManyReviews {
		reasons = append(reasons, "many reviews")
	}
	if p.DistanceKm != nil && *p.DistanceKm < CloseByKm {
		reasons = append(reasons, "close by")
	}
	if len(reasons) == 0 {
		if mid, ok := costMidpoint(p); ok {
			reasons = append(reasons, fmt.Sprintf("estimated cost around $%.0f", mid))
		} else if band := strings.TrimSpace(p.Price); band != "" {
			reasons = append(reasons, "price level "+band)
		} else {
			reasons = append(reasons, "limited information available")
		}
	}

	if p.DistanceKm == nil {
		notes = append(notes, "distance unknown")
	}
	if p.Rating == nil {
		notes = append(notes, "no rating")
	}
	if _, ok := costMidpoint(p); !ok && strings.TrimSpace(p.Price) == "" {
		notes = append(notes, "no cost information")
	}
	return strings.Join(reasons, " · "), notes
}
