package genai

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// DecodeReply turns raw model output into a ModelReply. Every field is optional: missing or
// mistyped fields are defaulted and the rest of the reply is kept. When raw is not a JSON
// object at all, the whole text becomes the reply text and malformed is true.
func DecodeReply(raw string) (reply models.ModelReply, malformed bool) {
	trimmed := strings.TrimSpace(raw)
	if !gjson.Valid(trimmed) || !gjson.Parse(trimmed).IsObject() {
		return models.ModelReply{Text: trimmed}, true
	}
	root := gjson.Parse(trimmed)

	reply.Text = stringField(root, "text")
	reply.Risk = models.ParseRiskLevel(stringField(root, "risk"))
	reply.Citations = decodeCitations(root.Get("citations"))
	reply.ScriptDraft = strings.TrimSpace(stringField(root, "scriptDraft"))
	reply.Approved = boolField(root, "approved")
	reply.Consented = boolField(root, "consented")

	root.Get("insights").ForEach(func(_, v gjson.Result) bool {
		title := strings.TrimSpace(stringField(v, "title"))
		if title == "" {
			malformed = true
			return true
		}
		reply.Insights = append(reply.Insights, models.InsightCard{
			Title:      title,
			Body:       stringField(v, "body"),
			Why:        stringList(v.Get("why")),
			Next:       stringList(v.Get("next")),
			Citations:  decodeCitations(v.Get("citations")),
			Confidence: stringField(v, "confidence"),
			Urgency:    stringField(v, "urgency"),
		})
		return true
	})

	root.Get("places").ForEach(func(_, v gjson.Result) bool {
		p, ok := decodePlace(v)
		if !ok {
			malformed = true
			return true
		}
		reply.Places = append(reply.Places, p)
		return true
	})

	reply.RefImages = stringList(root.Get("refImages"))
	return reply, malformed
}

func decodePlace(v gjson.Result) (models.Place, bool) {
	name := strings.TrimSpace(stringField(v, "name"))
	if name == "" {
		return models.Place{}, false
	}
	p := models.Place{
		ID:         stringField(v, "id"),
		Name:       name,
		Address:    stringField(v, "address"),
		Phone:      stringField(v, "phone"),
		Price:      stringField(v, "price"),
		Rating:     numberPtr(v.Get("rating")),
		DistanceKm: numberPtr(v.Get("distanceKm")),
		EstCostMin: numberPtr(v.Get("estCostMin")),
		EstCostMax: numberPtr(v.Get("estCostMax")),
	}
	if lat := v.Get("lat"); lat.Type == gjson.Number {
		p.Lat = lat.Float()
	}
	if lng := v.Get("lng"); lng.Type == gjson.Number {
		p.Lng = lng.Float()
	}
	if r := v.Get("reviews"); r.Type == gjson.Number && r.Int() >= 0 {
		n := int(r.Int())
		p.Reviews = &n
	}
	if c := decodeCitations(gjson.Parse("[" + v.Get("reviewCitation").Raw + "]")); len(c) == 1 {
		p.ReviewCitation = &c[0]
	}
	p.ScoreSources = decodeCitations(v.Get("scoreSources"))
	return p, true
}

// decodeCitations keeps array entries that carry a URL string.
func decodeCitations(arr gjson.Result) []models.Citation {
	if !arr.IsArray() {
		return nil
	}
	var out []models.Citation
	arr.ForEach(func(_, v gjson.Result) bool {
		url := strings.TrimSpace(stringField(v, "url"))
		if url == "" {
			return true
		}
		out = append(out, models.Citation{
			Title:  stringField(v, "title"),
			URL:    url,
			Source: stringField(v, "source"),
		})
		return true
	})
	return out
}

func stringField(v gjson.Result, path string) string {
	r := v.Get(path)
	if r.Type != gjson.String {
		return ""
	}
	return r.Str
}

func boolField(v gjson.Result, path string) bool {
	return v.Get(path).Type == gjson.True
}

func numberPtr(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	f := r.Float()
	return &f
}

func stringList(arr gjson.Result) []string {
	if !arr.IsArray() {
		return nil
	}
	var out []string
	arr.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			out = append(out, v.Str)
		}
		return true
	})
	return out
}
