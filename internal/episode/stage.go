// Package episode derives the progress stage of an episode and applies completed turns to
// the episode aggregate. Everything here is pure.
package episode

import (
	"github.com/BTreeMap/CareConcierge/internal/insight"
	"github.com/BTreeMap/CareConcierge/internal/models"
)

// Signals are the facts the stage machine is derived from.
type Signals struct {
	Engaged      bool
	HasInsights  bool
	HasFollowUps bool
	HasPlaces    bool
	AllDone      bool
}

// SignalsOf computes stage signals from an episode. An insight counts only when it carries
// at least one citation from domains.
func SignalsOf(e models.Episode, domains []string) Signals {
	var s Signals
	for _, m := range e.Messages {
		if m.Role == models.RoleUser {
			s.Engaged = true
			break
		}
	}
	for _, c := range e.Insights {
		if insight.EvidenceQualified(c, domains) {
			s.HasInsights = true
			break
		}
	}
	s.Engaged = s.Engaged || len(e.Insights) > 0 || len(e.Places) > 0
	s.HasFollowUps = len(e.Tasks) > 0
	s.HasPlaces = len(e.Places) > 0
	if s.HasFollowUps {
		s.AllDone = true
		for _, t := range e.Tasks {
			if t.Status != models.TaskDone {
				s.AllDone = false
				break
			}
		}
	}
	return s
}

// DeriveStage maps signals onto a stage, checking the rules in order: intake, triage,
// plan, actions, wrap. It is recomputed on every change rather than
// logged, so regressions (for example deleting every task after wrap) are expected.
// When no rule matches the previous stage is kept.
func DeriveStage(s Signals, prev models.Stage) models.Stage {
	switch {
	case !s.Engaged:
		return models.StageIntake
	case !s.HasInsights:
		return models.StageTriage
	case !s.HasFollowUps && !s.HasPlaces:
		return models.StagePlan
	case (s.HasFollowUps || s.HasPlaces) && !s.AllDone:
		return models.StageActions
	case s.AllDone:
		return models.StageWrap
	}
	if prev == "" {
		return models.StageIntake
	}
	return prev
}

// Restage returns e with its stage recomputed.
func Restage(e models.Episode, domains []string) models.Episode {
	e.Stage = DeriveStage(SignalsOf(e, domains), e.Stage)
	return e
}
