// Package topic classifies a complaint into the fixed topic taxonomy by ordered keywords.
package topic

import (
	"regexp"
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

type rule struct {
	topic   models.Topic
	pattern *regexp.Regexp
}

// rules are checked in order; the first match wins. Fracture terms come first because
// they force escalation downstream.
var rules = []rule{
	{models.TopicFracture, regexp.MustCompile(`\b(broke|broken|break|fracture[sd]?|snapped|cracked (?:a |my )?bone|bone (?:is )?sticking|deformed|crooked|heard a (?:pop|crack))\b`)},
	{models.TopicCut, regexp.MustCompile(`\b(cut|cuts|laceration|gash|sliced|scrape[sd]?|nicked|stab(?:bed)?)\b`)},
	{models.TopicSprain, regexp.MustCompile(`\b(sprain(?:ed)?|strain(?:ed)?|twist(?:ed)?|rolled (?:my |an |the )?ankle|pulled (?:a )?muscle|jammed)\b`)},
	{models.TopicBurn, regexp.MustCompile(`\b(burn(?:ed|t|s)?|scald(?:ed)?|blister(?:ed|s)? from)\b`)},
	{models.TopicFever, regexp.MustCompile(`\b(fever(?:ish)?|temperature|chills)\b`)},
	{models.TopicRash, regexp.MustCompile(`\b(rash|hives|itchy|itching|bumps|welts)\b`)},
}

// Extract returns the topic of text. A selected body area of "hand" or "foot" tips an
// otherwise generic complaint towards sprain/strain.
func Extract(text, area string) models.Topic {
	t := strings.ToLower(text)
	for _, r := range rules {
		if r.pattern.MatchString(t) {
			return r.topic
		}
	}
	switch strings.ToLower(strings.TrimSpace(area)) {
	case "hand", "foot":
		return models.TopicSprain
	}
	return models.TopicGeneric
}

// ForcesEscalation reports whether topic overrides the classifier to the escalate tier.
func ForcesEscalation(t models.Topic) bool {
	return t == models.TopicFracture
}
