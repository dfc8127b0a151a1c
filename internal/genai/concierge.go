package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/CareConcierge/internal/callscript"
	"github.com/BTreeMap/CareConcierge/internal/models"
)

// maxHistoryMessages bounds how much of the episode is replayed to the model.
const maxHistoryMessages = 24

const conciergeSystemPrompt = `You are a careful health concierge that helps people decide what to do about minor injuries and symptoms.
You do not diagnose. You explain options, flag urgency, and cite trusted sources.

Reply with a single JSON object using these optional fields:
- "text": the message shown to the user.
- "citations": [{"title","url","source"}] supporting factual statements in "text". Only cite these domains: %s.
- "risk": one of "low", "moderate", "severe".
- "insights": [{"title","body","why":[],"next":[],"citations":[],"confidence","urgency"}] short cards about one facet each.
- "places": [{"id","name","address","phone","rating","reviews","distanceKm","price","reviewCitation":{"title","url","source"}}] care options, only when the user asks for them.
- "refImages": [urls] illustrative images.
- "scriptDraft": the full text of a phone-call script when you draft or revise one.
- "approved": true only when the user explicitly approved the wording of the current script.
- "consented": true only when the user explicitly consented to an AI assistant placing the call.

If any red flag is present or the situation sounds like an emergency, tell the user to call emergency services first.
When you include a call script in "text", prefix it with "%s".`

const backfillSystemPrompt = `You find supporting sources for health statements.
Return a JSON object {"citations":[{"title","url","source"}]} with at most three citations.
Every url must be on one of these domains: %s. Return an empty list when you are not sure a page exists.`

// Complete asks the model for the reply to one turn.
func (c *Client) Complete(ctx context.Context, req models.ModelRequest) (models.ModelReply, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf(conciergeSystemPrompt, strings.Join(req.AllowedDomains, ", "), callscript.DraftMarker)),
	}
	if ctxMsg := turnContext(req); ctxMsg != "" {
		messages = append(messages, openai.SystemMessage(ctxMsg))
	}
	history := req.History
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.Input.Text))

	raw, err := c.generateJSON(ctx, "Complete", messages)
	if err != nil {
		return models.ModelReply{}, err
	}
	reply, malformed := DecodeReply(raw)
	if malformed {
		slog.Warn("GenAI.Complete: reply partially malformed, using defaults", "model", c.model)
	}
	return reply, nil
}

// turnContext describes the structured intake form and classifier results to the model.
func turnContext(req models.ModelRequest) string {
	var parts []string
	if req.Risk != models.RiskNone {
		parts = append(parts, "current risk: "+string(req.Risk))
	}
	if req.Topic != "" {
		parts = append(parts, "topic: "+string(req.Topic))
	}
	in := req.Input
	if in.AgeBand != models.AgeBandUnknown {
		parts = append(parts, "age band: "+string(in.AgeBand))
	}
	if in.Area != "" {
		parts = append(parts, "body area: "+in.Area)
	}
	if in.Severity != "" {
		parts = append(parts, "self-reported severity: "+in.Severity)
	}
	if in.PainScore > 0 {
		parts = append(parts, fmt.Sprintf("pain: %d/10", in.PainScore))
	}
	if in.RedFlags.Any() {
		flags, _ := json.Marshal(in.RedFlags)
		parts = append(parts, "red flags: "+string(flags))
	}
	if req.ScriptDraft != "" {
		parts = append(parts, "current call script draft:\n"+req.ScriptDraft)
	}
	if len(parts) == 0 {
		return ""
	}
	return "Context for this turn:\n" + strings.Join(parts, "\n")
}

// Backfill asks the model for citations supporting text, restricted to allowedDomains. The
// caller filters the result again; nothing here is trusted.
func (c *Client) Backfill(ctx context.Context, text string, allowedDomains []string) ([]models.Citation, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(fmt.Sprintf(backfillSystemPrompt, strings.Join(allowedDomains, ", "))),
		openai.UserMessage(text),
	}
	raw, err := c.generateJSON(ctx, "Backfill", messages)
	if err != nil {
		return nil, err
	}
	reply, malformed := DecodeReply(raw)
	if malformed && len(reply.Citations) == 0 {
		slog.Warn("GenAI.Backfill: malformed reply", "model", c.model)
	}
	return reply.Citations, nil
}
