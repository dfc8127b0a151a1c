package episode

import (
	"github.com/BTreeMap/CareConcierge/internal/care"
	"github.com/BTreeMap/CareConcierge/internal/insight"
	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/risk"
)

// Config carries the allow-lists the reducer needs.
type Config struct {
	Domains []string
	Gate    care.ReviewGate
}

// Outcome is everything a completed turn contributes to the episode.
type Outcome struct {
	User      models.Message
	Assistant *models.Message
	Risk      models.RiskLevel
	Topic     models.Topic
	Insights  []models.InsightCard
	Places    []models.Place
	Script    models.ScriptWorkflow
}

// ApplyTurn returns a new episode with the outcome folded in. The input episode is not
// modified. Risk only moves up, the risk trail gains an entry only on change, insights are
// merged by title, places are gated and re-ranked, and the stage is re-derived last.
func ApplyTurn(e models.Episode, out Outcome, cfg Config) models.Episode {
	next := e.Clone()

	next.Messages = append(next.Messages, out.User)
	if out.Assistant != nil {
		next.Messages = append(next.Messages, *out.Assistant)
	}

	next.Risk = risk.Max(next.Risk, out.Risk)
	next.RiskTrail = risk.AppendTrail(next.RiskTrail, next.Risk)

	if out.Topic != "" && (out.Topic != models.TopicGeneric || next.Topic == "") {
		next.Topic = out.Topic
	}

	next.Insights = insight.Merge(next.Insights, out.Insights, cfg.Domains)
	next.Places = cfg.Gate.GateAndRank(MergePlaces(next.Places, out.Places))
	next.Script = out.Script

	return Restage(next, cfg.Domains)
}

// ReplacePlaces returns e with its care options replaced by places, gated, ranked and restaged.
func ReplacePlaces(e models.Episode, places []models.Place, cfg Config) models.Episode {
	next := e.Clone()
	next.Places = cfg.Gate.GateAndRank(places)
	return Restage(next, cfg.Domains)
}

// MergePlaces replaces existing places that share a dedupe key with an incoming one and
// appends the rest in incoming order.
func MergePlaces(existing, incoming []models.Place) []models.Place {
	out := make([]models.Place, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))
	for _, p := range existing {
		key := care.DedupeKey(p)
		if i, ok := index[key]; ok {
			out[i] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	for _, p := range incoming {
		key := care.DedupeKey(p)
		if i, ok := index[key]; ok {
			out[i] = p
			continue
		}
		index[key] = len(out)
		out = append(out, p)
	}
	return out
}

// Reset returns a fresh episode keeping only the evidence-lock flags. It is the only way
// risk goes down.
func Reset(e models.Episode) models.Episode {
	return models.NewEpisode(e.EvidenceLock)
}
