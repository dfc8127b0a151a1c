// Package models defines the core data structures for CareConcierge.
//
// It includes the episode aggregate and its parts (citations, insight cards, care options,
// tasks, call scripts), which are shared across modules, plus the API response envelope.
package models

import (
	"errors"
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// MaxTurnTextLength defines the maximum allowed length for a single user turn
	MaxTurnTextLength = 4096
	// MaxTaskTitleLength defines the maximum allowed length for a task title
	MaxTaskTitleLength = 200
	// MaxTaskNotesLength defines the maximum allowed length for task notes
	MaxTaskNotesLength = 2000
)

// Error variables for better error handling and testability
var (
	ErrEmptyTurnText     = errors.New("text is required")
	ErrTurnTextTooLong   = errors.New("text exceeds maximum length")
	ErrEmptyTaskTitle    = errors.New("task title cannot be empty")
	ErrTaskTitleTooLong  = errors.New("task title exceeds maximum length")
	ErrTaskNotesTooLong  = errors.New("task notes exceed maximum length")
	ErrInvalidTaskStatus = errors.New("invalid task status")
	ErrInvalidAgeBand    = errors.New("invalid age band")
)

// MessageRole identifies who authored a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is a single chat message within an episode.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// AgeBand narrows risk rules that only apply to some ages.
type AgeBand string

const (
	AgeBandUnknown AgeBand = ""
	AgeBandInfant  AgeBand = "infant"
	AgeBandChild   AgeBand = "child"
	AgeBandAdult   AgeBand = "adult"
	AgeBandSenior  AgeBand = "senior"
)

// IsValidAgeBand checks if the given age band is supported.
func IsValidAgeBand(b AgeBand) bool {
	switch b {
	case AgeBandUnknown, AgeBandInfant, AgeBandChild, AgeBandAdult, AgeBandSenior:
		return true
	default:
		return false
	}
}

// RedFlags are the structured red-flag checkboxes of the intake form.
type RedFlags struct {
	TroubleBreathing bool `json:"troubleBreathing,omitempty"`
	ChestPain        bool `json:"chestPain,omitempty"`
	HeavyBleeding    bool `json:"heavyBleeding,omitempty"`
	LossOfConscious  bool `json:"lossOfConsciousness,omitempty"`
	Confusion        bool `json:"confusion,omitempty"`
	VisibleDeformity bool `json:"visibleDeformity,omitempty"`
}

// Any reports whether at least one red flag is set.
func (f RedFlags) Any() bool {
	return f.TroubleBreathing || f.ChestPain || f.HeavyBleeding || f.LossOfConscious || f.Confusion || f.VisibleDeformity
}

// TurnInput is a single user turn submitted to the concierge.
type TurnInput struct {
	Text        string   `json:"text"`
	RedFlags    RedFlags `json:"redFlags,omitempty"`
	AgeBand     AgeBand  `json:"ageBand,omitempty"`
	Area        string   `json:"area,omitempty"`     // selected body area, e.g. "hand" or "foot"
	Severity    string   `json:"severity,omitempty"` // self-reported form severity, informational only
	PainScore   int      `json:"pain,omitempty"`
	OwnerID     string   `json:"ownerId,omitempty"` // signed-in identity, empty when anonymous
	ClinicName  string   `json:"clinicName,omitempty"`
	ClinicPhone string   `json:"clinicPhone,omitempty"`
}

// Validate performs validation on a TurnInput structure.
func (t *TurnInput) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return ErrEmptyTurnText
	}
	if len(t.Text) > MaxTurnTextLength {
		return ErrTurnTextTooLong
	}
	if !IsValidAgeBand(t.AgeBand) {
		return ErrInvalidAgeBand
	}
	return nil
}

// API response status constants
const (
	APIStatusOK    = "ok"
	APIStatusError = "error"
)

// APIResponse represents the standard JSON envelope returned by the HTTP API.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: APIStatusOK, Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: APIStatusError, Message: message}
}
