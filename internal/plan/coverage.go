package plan

import "github.com/BTreeMap/CareConcierge/internal/models"

type coverageKey struct {
	topic models.Topic
	tier  Tier
}

// tierCoverage is the fallback price bucket per tier.
var tierCoverage = map[Tier]Coverage{
	TierSelfCare:     {Setting: "pharmacy or telehealth", Min: 0, Max: 80},
	TierSeeClinician: {Setting: "urgent care", Min: 100, Max: 250},
	TierEscalate:     {Setting: "emergency department", Min: 750, Max: 3000},
}

// topicCoverage overrides the tier bucket where the topic changes the likely cost.
var topicCoverage = map[coverageKey]Coverage{
	{models.TopicFracture, TierEscalate}:    {Setting: "emergency department with imaging", Min: 1200, Max: 4500},
	{models.TopicCut, TierSeeClinician}:     {Setting: "urgent care with stitches", Min: 150, Max: 450},
	{models.TopicCut, TierEscalate}:         {Setting: "emergency department with wound repair", Min: 900, Max: 3500},
	{models.TopicSprain, TierSeeClinician}:  {Setting: "urgent care with X-ray", Min: 150, Max: 400},
	{models.TopicBurn, TierSeeClinician}:    {Setting: "urgent care wound care", Min: 120, Max: 300},
	{models.TopicBurn, TierEscalate}:        {Setting: "emergency department or burn center", Min: 1000, Max: 5000},
	{models.TopicFever, TierSelfCare}:       {Setting: "telehealth visit", Min: 0, Max: 90},
	{models.TopicRash, TierSeeClinician}:    {Setting: "primary care or dermatology visit", Min: 90, Max: 250},
	{models.TopicGeneric, TierSeeClinician}: {Setting: "primary care or urgent care", Min: 100, Max: 250},
}

func coverageFor(t models.Topic, tier Tier) Coverage {
	c, ok := topicCoverage[coverageKey{t, tier}]
	if !ok {
		c = tierCoverage[tier]
	}
	c.Currency = "USD"
	return c
}
