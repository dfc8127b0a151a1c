package plan

import "github.com/BTreeMap/CareConcierge/internal/models"

type line struct {
	text       string
	citationID string
}

type topicContent struct {
	summary   string
	selfCare  []line
	watchOuts []line
	afterCare []line
}

var content = map[models.Topic]topicContent{
	models.TopicFracture: {
		summary: "This could be a broken bone. Keep it still and get it examined today; an X-ray is usually needed.",
		selfCare: []line{
			{"Keep the injured area still; do not try to straighten it.", "mayo-fracture"},
			{"Apply a cold pack wrapped in cloth for up to 20 minutes to limit swelling.", "mayo-fracture"},
			{"Splint or sling the limb only if you have been shown how.", "aaos-fracture"},
		},
		watchOuts: []line{
			{"Bone visible through the skin or heavy bleeding needs emergency care.", "mayo-fracture"},
			{"Numbness, tingling or a pale, cold limb below the injury is an emergency.", "aaos-fracture"},
		},
		afterCare: []line{
			{"Follow the immobilization and weight-bearing plan you are given.", "aaos-fracture"},
			{"Book the follow-up X-ray your clinician recommends.", "aaos-fracture"},
		},
	},
	models.TopicCut: {
		summary: "Most small cuts heal well at home with cleaning, pressure and a clean dressing.",
		selfCare: []line{
			{"Apply firm, steady pressure with a clean cloth until bleeding stops.", "mayo-cuts"},
			{"Rinse the wound with clean water and remove visible dirt.", "mayo-cuts"},
			{"Cover with petroleum jelly and a sterile bandage; change it daily.", "aad-wound"},
		},
		watchOuts: []line{
			{"Bleeding that soaks through after 10 minutes of pressure needs care.", "mayo-cuts"},
			{"Gaping edges or a cut deeper than 1/4 inch may need stitches.", "mayo-cuts"},
			{"Spreading redness, warmth or pus suggest infection.", "medline-infection"},
		},
		afterCare: []line{
			{"Check your tetanus shot is current (within 5 years for dirty wounds).", "mayo-cuts"},
			{"Keep the wound moist and covered until it closes.", "aad-wound"},
		},
	},
	models.TopicSprain: {
		summary: "This sounds like a sprain or strain. Rest, ice, compression and elevation usually help within days.",
		selfCare: []line{
			{"Rest the joint and avoid activities that cause pain.", "medline-sprain"},
			{"Ice for 15 to 20 minutes every 2 to 3 hours for the first two days.", "niams-sprain"},
			{"Use an elastic compression wrap and keep the limb raised above the heart.", "niams-sprain"},
		},
		watchOuts: []line{
			{"Inability to bear weight or take four steps warrants an exam.", "medline-sprain"},
			{"Numbness or a misshapen joint may mean a fracture or dislocation.", "niams-sprain"},
		},
		afterCare: []line{
			{"Reintroduce gentle movement as pain allows.", "medline-sprain"},
			{"If it is not improving after a week, see a clinician.", "niams-sprain"},
		},
	},
	models.TopicBurn: {
		summary: "Small, superficial burns can be cooled and dressed at home; larger or deep burns need care.",
		selfCare: []line{
			{"Cool the burn under cool (not cold) running water for about 10 minutes.", "mayo-burn"},
			{"Remove rings or tight items before swelling starts.", "mayo-burn"},
			{"Cover loosely with a sterile, non-stick bandage; do not pop blisters.", "redcross-burn"},
		},
		watchOuts: []line{
			{"Burns larger than 3 inches, or on the face, hands, feet or genitals need care.", "mayo-burn"},
			{"White, leathery or charred skin suggests a deep burn.", "redcross-burn"},
		},
		afterCare: []line{
			{"Keep the area clean and moisturized while it heals.", "mayo-burn"},
			{"Watch for signs of infection such as increasing pain or pus.", "medline-infection"},
		},
	},
	models.TopicFever: {
		summary: "Fever is usually the body fighting an infection. Fluids and rest help; some ages and symptoms need prompt care.",
		selfCare: []line{
			{"Drink plenty of fluids and rest.", "medline-fever"},
			{"Use fever reducers only as labeled for age and weight.", "aap-fever"},
		},
		watchOuts: []line{
			{"Any fever in a baby under 3 months needs same-day medical advice.", "aap-fever"},
			{"Confusion, stiff neck, trouble breathing or a rash that doesn't fade is an emergency.", "medline-fever"},
		},
		afterCare: []line{
			{"Track temperatures and symptoms to share with a clinician.", "aap-fever"},
		},
	},
	models.TopicRash: {
		summary: "Many rashes are harmless and settle with gentle care; some patterns need a prompt check.",
		selfCare: []line{
			{"Avoid scratching and likely triggers such as new soaps or plants.", "aad-rash"},
			{"Use cool compresses and fragrance-free moisturizer.", "medline-rash"},
		},
		watchOuts: []line{
			{"A rash with fever, blistering or covering much of the body needs care.", "aad-rash"},
			{"Swelling of the lips or throat or trouble breathing is an emergency.", "medline-rash"},
		},
		afterCare: []line{
			{"Note what may have triggered it to discuss with a clinician.", "medline-rash"},
		},
	},
	models.TopicGeneric: {
		summary: "Here is general first-aid guidance while we learn more about what's going on.",
		selfCare: []line{
			{"Rest and keep track of how symptoms change.", "medline-firstaid"},
		},
		watchOuts: []line{
			{"Chest pain, trouble breathing, fainting or sudden weakness is an emergency.", "cdc-emergency"},
		},
		afterCare: []line{
			{"If symptoms persist or worsen, book a visit with a clinician.", "medline-firstaid"},
		},
	},
}

// escalationLine is prepended to the watch-outs of every escalate-tier plan.
var escalationLine = line{"Seek in-person care now; call emergency services if symptoms are severe or worsening.", "nhs-urgent"}
