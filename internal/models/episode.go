package models

import (
	"strings"
	"time"
)

// RiskLevel is the aggregate risk of an episode. The zero value means no signal yet.
type RiskLevel string

const (
	RiskNone     RiskLevel = ""
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskSevere   RiskLevel = "severe"
)

// Rank orders risk levels: none < low < moderate < severe.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskSevere:
		return 3
	default:
		return 0
	}
}

// ParseRiskLevel maps loosely formatted model output onto a RiskLevel.
// Unknown values map to RiskNone.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "mild":
		return RiskLow
	case "moderate", "medium":
		return RiskModerate
	case "severe", "high", "emergency":
		return RiskSevere
	default:
		return RiskNone
	}
}

// Stage is the coarse progress stage of an episode.
type Stage string

const (
	StageIntake  Stage = "intake"
	StageTriage  Stage = "triage"
	StagePlan    Stage = "plan"
	StageActions Stage = "actions"
	StageWrap    Stage = "wrap"
)

// Topic is the fixed complaint taxonomy.
type Topic string

const (
	TopicFracture Topic = "possible_fracture"
	TopicCut      Topic = "minor_cut"
	TopicSprain   Topic = "sprain_strain"
	TopicBurn     Topic = "burn"
	TopicFever    Topic = "fever"
	TopicRash     Topic = "rash"
	TopicGeneric  Topic = "generic"
)

// Citation is a reference to a trusted source. Identity is the normalized URL.
type Citation struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source,omitempty"`
}

// InsightCard is a titled, evidence-linked synthesis of one facet of the situation.
// Identity is the normalized title.
type InsightCard struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Why        []string   `json:"why,omitempty"`
	Next       []string   `json:"next,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
	Confidence string     `json:"confidence,omitempty"`
	Urgency    string     `json:"urgency,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Place is a candidate care location. Score, Reason and Notes are derived on every
// ranking pass and never treated as ground truth.
type Place struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Address        string     `json:"address,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Lat            float64    `json:"lat,omitempty"`
	Lng            float64    `json:"lng,omitempty"`
	Rating         *float64   `json:"rating,omitempty"`
	Reviews        *int       `json:"reviews,omitempty"`
	DistanceKm     *float64   `json:"distanceKm,omitempty"`
	Price          string     `json:"price,omitempty"` // price band, "$" .. "$$$$"
	EstCostMin     *float64   `json:"estCostMin,omitempty"`
	EstCostMax     *float64   `json:"estCostMax,omitempty"`
	ReviewCitation *Citation  `json:"reviewCitation,omitempty"`
	ScoreSources   []Citation `json:"scoreSources,omitempty"`

	Score  float64  `json:"score"`
	Reason string   `json:"reason,omitempty"`
	Notes  []string `json:"notes,omitempty"`
}

// TaskStatus is the lifecycle status of a follow-up task.
type TaskStatus string

const (
	TaskTodo  TaskStatus = "todo"
	TaskDoing TaskStatus = "doing"
	TaskDone  TaskStatus = "done"
)

// IsValidTaskStatus checks if the given status is supported.
func IsValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskTodo, TaskDoing, TaskDone:
		return true
	default:
		return false
	}
}

// Task is a follow-up item. Links are weak references by id; dangling links are tolerated.
type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Status          TaskStatus `json:"status"`
	Due             *time.Time `json:"due,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	LinkedPlaceID   string     `json:"linkedPlaceId,omitempty"`
	LinkedInsightID string     `json:"linkedInsightId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Validate checks the user-editable fields of a task.
func (t *Task) Validate() error {
	if t.Title == "" {
		return ErrEmptyTaskTitle
	}
	if len(t.Title) > MaxTaskTitleLength {
		return ErrTaskTitleTooLong
	}
	if len(t.Notes) > MaxTaskNotesLength {
		return ErrTaskNotesTooLong
	}
	if !IsValidTaskStatus(t.Status) {
		return ErrInvalidTaskStatus
	}
	return nil
}

// CallScriptStatusApproved is the only status a persisted call script can have.
const CallScriptStatusApproved = "approved"

// ConsentTypeOutboundCall is the consent type recorded alongside a call script.
const ConsentTypeOutboundCall = "outbound_call"

// CallScript is an approved, call-ready script. It is created only when both approval and
// consent have been observed.
type CallScript struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	ClinicName  string    `json:"clinicName"`
	ClinicPhone string    `json:"clinicPhone,omitempty"`
	ScriptText  string    `json:"scriptText"`
	Status      string    `json:"status"`
	ApprovedAt  time.Time `json:"approvedAt"`
}

// ConsentRecord is created 1:1 with a CallScript.
type ConsentRecord struct {
	ScriptID  string    `json:"scriptId"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// EvidenceLock holds the evidence-lock policy flags of an episode.
type EvidenceLock struct {
	Enabled         bool `json:"enabled"`
	ShowUnverified  bool `json:"showUnverified"`
	StrictCitations bool `json:"strictCitations"`
}

// ScriptState is the state of the call script consent workflow.
type ScriptState string

const (
	ScriptNoScript  ScriptState = "no_script"
	ScriptDrafted   ScriptState = "drafted"
	ScriptRevising  ScriptState = "revising"
	ScriptApproved  ScriptState = "approved_and_consented"
	ScriptPersisted ScriptState = "persisted"
)

// ScriptWorkflow is the in-memory state of the call script consent workflow.
type ScriptWorkflow struct {
	State     ScriptState `json:"state"`
	Draft     string      `json:"draft,omitempty"`
	Approved  bool        `json:"approved,omitempty"`
	Consented bool        `json:"consented,omitempty"`
	ScriptID  string      `json:"scriptId,omitempty"`
	Revisions int         `json:"revisions,omitempty"`
}

// Episode is one continuous engagement. It is owned by a single session and mutated only
// by the turn pipeline and direct task edits.
type Episode struct {
	Messages     []Message      `json:"messages"`
	Risk         RiskLevel      `json:"risk"`
	RiskTrail    []RiskLevel    `json:"riskTrail"`
	Topic        Topic          `json:"topic,omitempty"`
	Insights     []InsightCard  `json:"insights"`
	Places       []Place        `json:"places"`
	Tasks        []Task         `json:"tasks"`
	Stage        Stage          `json:"stage"`
	Zip          string         `json:"zip,omitempty"`
	EvidenceLock EvidenceLock   `json:"evidenceLock"`
	Script       ScriptWorkflow `json:"script"`
}

// NewEpisode returns an empty episode in the intake stage.
func NewEpisode(lock EvidenceLock) Episode {
	return Episode{
		Messages:     []Message{},
		RiskTrail:    []RiskLevel{},
		Insights:     []InsightCard{},
		Places:       []Place{},
		Tasks:        []Task{},
		Stage:        StageIntake,
		EvidenceLock: lock,
		Script:       ScriptWorkflow{State: ScriptNoScript},
	}
}

// Clone returns a deep enough copy for the pipeline to mutate without aliasing the original.
func (e Episode) Clone() Episode {
	c := e
	c.Messages = append([]Message(nil), e.Messages...)
	c.RiskTrail = append([]RiskLevel(nil), e.RiskTrail...)
	c.Insights = append([]InsightCard(nil), e.Insights...)
	c.Places = append([]Place(nil), e.Places...)
	c.Tasks = append([]Task(nil), e.Tasks...)
	return c
}

// EpisodeSnapshot is the durable form of an episode. Tasks are stored separately.
type EpisodeSnapshot struct {
	Messages     []Message     `json:"messages"`
	Risk         RiskLevel     `json:"risk"`
	RiskTrail    []RiskLevel   `json:"riskTrail"`
	Topic        Topic         `json:"topic,omitempty"`
	Insights     []InsightCard `json:"insights"`
	Places       []Place       `json:"places"`
	Zip          string        `json:"zip,omitempty"`
	EvidenceLock EvidenceLock  `json:"evidenceLock"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Snapshot extracts the durable part of the episode.
func (e Episode) Snapshot(now time.Time) EpisodeSnapshot {
	return EpisodeSnapshot{
		Messages:     e.Messages,
		Risk:         e.Risk,
		RiskTrail:    e.RiskTrail,
		Topic:        e.Topic,
		Insights:     e.Insights,
		Places:       e.Places,
		Zip:          e.Zip,
		EvidenceLock: e.EvidenceLock,
		UpdatedAt:    now,
	}
}
