// Package callscript drives the consent-gated workflow that turns a drafted phone-call
// script into a persisted, call-ready artifact.
package callscript

import (
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// Text markers of the legacy protocol. A reply carrying both markers signals approval and
// consent at once.
const (
	DraftMarker   = "CALL SCRIPT DRAFT:"
	ConsentMarker = "CALL_SCRIPT_APPROVED_AND_CONSENTED"
)

// Signal is what one model reply says about the script.
type Signal struct {
	HasDraft  bool
	Draft     string
	Approved  bool
	Consented bool
}

// ParseText reads the legacy markers from reply text. The draft is everything after the
// draft marker; when the consent marker closes the reply on its own line, the draft is the
// trimmed text strictly between the two markers and both flags are set.
func ParseText(text string) Signal {
	i := strings.Index(text, DraftMarker)
	if i < 0 {
		return Signal{}
	}
	rest := text[i+len(DraftMarker):]
	body, ok := cutTerminalMarker(rest)
	if !ok {
		return Signal{HasDraft: true, Draft: strings.TrimSpace(rest)}
	}
	return Signal{HasDraft: true, Draft: strings.TrimSpace(body), Approved: true, Consented: true}
}

// cutTerminalMarker strips the consent marker when it is the last line of s.
func cutTerminalMarker(s string) (string, bool) {
	trimmed := strings.TrimRight(s, " \t\r\n")
	if !strings.HasSuffix(trimmed, ConsentMarker) {
		return s, false
	}
	body := strings.TrimSuffix(trimmed, ConsentMarker)
	if body != "" && !strings.HasSuffix(strings.TrimRight(body, " \t"), "\n") {
		return s, false
	}
	return body, true
}

// SignalFromReply prefers the structured reply fields and falls back to the text markers.
func SignalFromReply(r models.ModelReply) Signal {
	if d := strings.TrimSpace(r.ScriptDraft); d != "" {
		return Signal{HasDraft: true, Draft: d, Approved: r.Approved, Consented: r.Consented}
	}
	sig := ParseText(r.Text)
	if !sig.HasDraft {
		sig.Approved = r.Approved
		sig.Consented = r.Consented
	}
	return sig
}

// StripMarkers removes the protocol markers from text meant for display.
func StripMarkers(text string) string {
	if body, ok := cutTerminalMarker(text); ok {
		text = body
	}
	return strings.TrimSpace(strings.Replace(text, DraftMarker, "", 1))
}

// Advance folds sig into wf. A new draft replaces the previous one and resets both flags to
// the ones carried with it. Without a new draft, approval and consent accumulate on the
// current draft. ready is true exactly when a non-empty draft has both approval and consent
// and was not already persisted.
func Advance(wf models.ScriptWorkflow, sig Signal) (next models.ScriptWorkflow, ready bool) {
	next = wf
	if next.State == "" {
		next.State = models.ScriptNoScript
	}

	switch {
	case sig.HasDraft:
		if next.Draft != "" {
			next.Revisions++
		}
		next.Draft = sig.Draft
		next.Approved = sig.Approved
		next.Consented = sig.Consented
		next.ScriptID = ""
		next.State = models.ScriptDrafted
	case next.State == models.ScriptDrafted || next.State == models.ScriptRevising:
		next.Approved = next.Approved || sig.Approved
		next.Consented = next.Consented || sig.Consented
		if !sig.Approved && !sig.Consented {
			next.State = models.ScriptRevising
		}
	default:
		return next, false
	}

	if next.Draft != "" && next.Approved && next.Consented {
		next.State = models.ScriptApproved
		return next, true
	}
	return next, false
}
