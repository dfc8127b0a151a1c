package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/care"
	"github.com/BTreeMap/CareConcierge/internal/episode"
	"github.com/BTreeMap/CareConcierge/internal/models"
)

// ErrInvalidCoordinates is returned for latitudes or longitudes out of range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// CareRequest is a structured-form request for nearby care options.
type CareRequest struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Zip   string  `json:"zip,omitempty"`
	Query string  `json:"query,omitempty"`
}

// CareResult is the ranked outcome of a care search.
type CareResult struct {
	Places     []models.Place    `json:"places"`
	Advisories []models.Advisory `json:"advisories,omitempty"`
	Session    SessionView       `json:"session"`
}

// FindCare walks the radius ladder around the request point and replaces the session's care
// options with the gated, ranked results. A search outage keeps the existing options and
// reports an advisory.
func (c *Concierge) FindCare(ctx context.Context, id string, req CareRequest) (CareResult, error) {
	s, err := c.session(id)
	if err != nil {
		return CareResult{}, err
	}
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		return CareResult{}, fmt.Errorf("%w: %f,%f", ErrInvalidCoordinates, req.Lat, req.Lng)
	}

	var advisories []models.Advisory
	var found []models.Place
	if c.searcher == nil {
		err = care.ErrSearchUnavailable
	} else {
		found, err = care.Collect(ctx, c.searcher, care.SearchRequest{Lat: req.Lat, Lng: req.Lng, Query: req.Query})
	}

	s.mu.Lock()
	if err != nil {
		slog.Warn("Concierge.FindCare: search unavailable", "sessionID", id, "error", err)
		advisories = append(advisories, models.Advisory{
			Kind:    models.ErrorKindUpstreamUnavailable,
			Message: "Nearby care search is unavailable right now.",
		})
	} else {
		s.episode = episode.ReplacePlaces(s.episode, found, c.reducerConfig())
		slog.Debug("Concierge.FindCare: places ranked", "sessionID", id, "candidates", len(found), "shown", len(s.episode.Places))
	}
	if zip := strings.TrimSpace(req.Zip); zip != "" {
		s.episode.Zip = zip
	}
	committed := s.episode.Clone()
	s.mu.Unlock()

	if err := c.store.SaveSnapshot(id, committed.Snapshot(c.now())); err != nil {
		slog.Error("Concierge.FindCare: snapshot save failed", "sessionID", id, "error", err)
		advisories = append(advisories, models.Advisory{Kind: models.ErrorKindPersistenceFailure, Message: PersistenceAdvisory})
	}
	return CareResult{Places: committed.Places, Advisories: advisories, Session: SessionView{ID: id, Episode: committed}}, nil
}
