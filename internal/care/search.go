package care

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// DefaultRadiusLadderKm is the sequence of search radii tried until enough candidates are found.
var DefaultRadiusLadderKm = []float64{7, 12, 20}

// DefaultTargetCandidates is the number of unique candidates that stops the ladder.
const DefaultTargetCandidates = 10

// ErrSearchUnavailable is returned when every search attempt on the ladder failed.
var ErrSearchUnavailable = errors.New("nearby search unavailable")

// Searcher finds care locations around a point.
type Searcher interface {
	NearbySearch(ctx context.Context, lat, lng, radiusKm float64, query string) ([]models.Place, error)
}

// SearchRequest describes one ladder run.
type SearchRequest struct {
	Lat, Lng float64
	Query    string
	LadderKm []float64
	Target   int
}

// Collect walks the radius ladder, expanding until Target unique candidates are gathered or
// the ladder is exhausted. Candidates are deduplicated by normalized name and coordinates
// rounded to three decimals. A failed radius is skipped; if every radius fails the result
// is ErrSearchUnavailable.
func Collect(ctx context.Context, s Searcher, req SearchRequest) ([]models.Place, error) {
	ladder := req.LadderKm
	if len(ladder) == 0 {
		ladder = DefaultRadiusLadderKm
	}
	target := req.Target
	if target <= 0 {
		target = DefaultTargetCandidates
	}

	var out []models.Place
	seen := make(map[string]struct{})
	failures := 0
	var lastErr error
	for _, radius := range ladder {
		found, err := s.NearbySearch(ctx, req.Lat, req.Lng, radius, req.Query)
		if err != nil {
			failures++
			lastErr = err
			slog.Warn("care.Collect: nearby search failed", "radiusKm", radius, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, p := range found {
			key := DedupeKey(p)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if p.DistanceKm == nil && (p.Lat != 0 || p.Lng != 0) {
				d := HaversineKm(req.Lat, req.Lng, p.Lat, p.Lng)
				p.DistanceKm = &d
			}
			out = append(out, p)
		}
		slog.Debug("care.Collect: radius searched", "radiusKm", radius, "found", len(found), "unique", len(out))
		if len(out) >= target {
			break
		}
	}
	if len(out) == 0 && failures > 0 {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, lastErr)
	}
	return out, nil
}

// DedupeKey is the normalized name plus coordinates rounded to three decimals.
func DedupeKey(p models.Place) string {
	name := strings.Join(strings.Fields(strings.ToLower(p.Name)), " ")
	return fmt.Sprintf("%s|%.3f|%.3f", name, p.Lat, p.Lng)
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
