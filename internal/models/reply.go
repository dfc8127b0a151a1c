package models

// ModelReply is the validated, defaulted reply of the conversational model service.
// Every field is optional upstream; the zero value is a valid reply.
type ModelReply struct {
	Text      string        `json:"text"`
	Citations []Citation    `json:"citations"`
	Risk      RiskLevel     `json:"risk,omitempty"`
	Insights  []InsightCard `json:"insights"`
	Places    []Place       `json:"places"`
	RefImages []string      `json:"refImages,omitempty"`

	// Structured call script signals. ScriptDraft is empty when the reply carries no draft.
	ScriptDraft string `json:"scriptDraft,omitempty"`
	Approved    bool   `json:"approved,omitempty"`
	Consented   bool   `json:"consented,omitempty"`
}

// ErrorKind classifies recoverable failures surfaced to the user as advisories.
type ErrorKind string

const (
	ErrorKindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	ErrorKindPersistenceFailure  ErrorKind = "persistence_failure"
	ErrorKindValidationGap       ErrorKind = "validation_gap"
	ErrorKindMalformedResponse   ErrorKind = "malformed_response"
)

// Advisory is a non-blocking notice attached to a turn result.
type Advisory struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// ModelRequest is everything the conversational model service sees for one turn.
type ModelRequest struct {
	History        []Message `json:"history"`
	Input          TurnInput `json:"input"`
	Risk           RiskLevel `json:"risk,omitempty"`
	Topic          Topic     `json:"topic,omitempty"`
	AllowedDomains []string  `json:"allowedDomains,omitempty"`
	ScriptDraft    string    `json:"scriptDraft,omitempty"` // current call script draft, if any
}
