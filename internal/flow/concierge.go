// Package flow runs the per-session turn pipeline of the concierge: classification, the model
// call, evidence gating, merging, ranking, staging and the call script workflow.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/callscript"
	"github.com/BTreeMap/CareConcierge/internal/care"
	"github.com/BTreeMap/CareConcierge/internal/citation"
	"github.com/BTreeMap/CareConcierge/internal/episode"
	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/plan"
	"github.com/BTreeMap/CareConcierge/internal/risk"
	"github.com/BTreeMap/CareConcierge/internal/store"
	"github.com/BTreeMap/CareConcierge/internal/topic"
	"github.com/BTreeMap/CareConcierge/internal/util"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTurnInProgress  = errors.New("a turn is already in progress for this session")
	ErrStaleTurn       = errors.New("turn discarded because the session was reset")
)

// Texts the pipeline adds on its own.
const (
	UpstreamFallbackText = "I'm having trouble reaching the assistant right now. " +
		"If you have trouble breathing, chest pain, heavy bleeding or confusion, call 911 now. Otherwise, please try again in a moment."
	UpstreamAdvisory    = "The assistant is temporarily unavailable."
	PersistenceAdvisory = "Your progress could not be saved. It is still available in this session."
	MalformedAdvisory   = "The assistant's reply was incomplete."
)

// ModelService is the conversational model collaborator.
type ModelService interface {
	Complete(ctx context.Context, req models.ModelRequest) (models.ModelReply, error)
}

// session is the in-memory state of one episode.
type session struct {
	mu         sync.Mutex
	episode    models.Episode
	generation uint64
	busy       bool
	// handoffID is the pending call handoff of the last persisted script.
	handoffID string
}

func (s *session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

// SessionView is an episode as returned to clients.
type SessionView struct {
	ID string `json:"id"`
	models.Episode
}

// TurnResult is the outcome of one committed turn.
type TurnResult struct {
	SessionID  string            `json:"sessionId"`
	Reply      models.Message    `json:"reply"`
	Citations  []models.Citation `json:"citations"`
	Backfilled bool              `json:"backfilled,omitempty"`
	Withheld   bool              `json:"withheld,omitempty"`
	Advisories []models.Advisory `json:"advisories,omitempty"`
	ScriptID   string            `json:"scriptId,omitempty"`
	Session    SessionView       `json:"session"`
}

// Opts holds the collaborators and policy of a Concierge.
type Opts struct {
	Model     ModelService
	Store     store.Store
	Gate      *citation.Gate
	Review    care.ReviewGate
	Searcher  care.Searcher
	Completer *callscript.Completer
	Lock      models.EvidenceLock
	Clock     func() time.Time
}

// Option defines a configuration option for the Concierge.
type Option func(*Opts)

// WithModel sets the conversational model service.
func WithModel(m ModelService) Option {
	return func(o *Opts) { o.Model = m }
}

// WithStore sets the persistence store.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithGate sets the citation gate.
func WithGate(g *citation.Gate) Option {
	return func(o *Opts) { o.Gate = g }
}

// WithReviewGate sets the care option review gate.
func WithReviewGate(g care.ReviewGate) Option {
	return func(o *Opts) { o.Review = g }
}

// WithSearcher sets the nearby search collaborator.
func WithSearcher(s care.Searcher) Option {
	return func(o *Opts) { o.Searcher = s }
}

// WithCompleter sets the call script completer.
func WithCompleter(c *callscript.Completer) Option {
	return func(o *Opts) { o.Completer = c }
}

// WithEvidenceLock sets the evidence-lock flags new sessions start with.
func WithEvidenceLock(l models.EvidenceLock) Option {
	return func(o *Opts) { o.Lock = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

// Concierge owns all sessions and serialises turns per session.
type Concierge struct {
	mu       sync.Mutex
	sessions map[string]*session

	model     ModelService
	store     store.Store
	gate      *citation.Gate
	review    care.ReviewGate
	searcher  care.Searcher
	completer *callscript.Completer
	lock      models.EvidenceLock
	now       func() time.Time
}

// NewConcierge creates a Concierge. A model service is required; the store defaults to an
// in-memory store and the gate to the default allow-list with the soft policy.
func NewConcierge(opts ...Option) (*Concierge, error) {
	cfg := Opts{Lock: models.EvidenceLock{Enabled: true}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("model service is required")
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}
	if cfg.Gate == nil {
		cfg.Gate = citation.NewGate()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Concierge{
		sessions:  make(map[string]*session),
		model:     cfg.Model,
		store:     cfg.Store,
		gate:      cfg.Gate,
		review:    cfg.Review,
		searcher:  cfg.Searcher,
		completer: cfg.Completer,
		lock:      cfg.Lock,
		now:       cfg.Clock,
	}, nil
}

func (c *Concierge) reducerConfig() episode.Config {
	return episode.Config{Domains: c.gate.Domains(), Gate: c.review}
}

// CreateSession starts a new empty episode and returns its view.
func (c *Concierge) CreateSession() SessionView {
	id := util.GenerateSessionID()
	s := &session{episode: models.NewEpisode(c.lock)}

	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()

	if err := c.store.SaveSnapshot(id, s.episode.Snapshot(c.now())); err != nil {
		slog.Warn("Concierge.CreateSession: snapshot save failed", "sessionID", id, "error", err)
	}
	slog.Info("Concierge.CreateSession: session created", "sessionID", id)
	return SessionView{ID: id, Episode: s.episode.Clone()}
}

// session returns the live session, restoring it from the store when needed.
func (c *Concierge) session(id string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[id]; ok {
		return s, nil
	}

	snap, err := c.store.GetSnapshot(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	if snap == nil {
		return nil, ErrSessionNotFound
	}
	tasks, err := c.store.ListTasks(id)
	if err != nil {
		slog.Warn("Concierge.session: task load failed, continuing without tasks", "sessionID", id, "error", err)
		tasks = nil
	}
	e := restore(*snap, tasks)
	s := &session{episode: episode.Restage(e, c.gate.Domains())}
	c.sessions[id] = s
	slog.Debug("Concierge.session: session restored", "sessionID", id, "messages", len(e.Messages), "tasks", len(e.Tasks))
	return s, nil
}

func restore(snap models.EpisodeSnapshot, tasks []models.Task) models.Episode {
	e := models.NewEpisode(snap.EvidenceLock)
	if snap.Messages != nil {
		e.Messages = snap.Messages
	}
	if snap.RiskTrail != nil {
		e.RiskTrail = snap.RiskTrail
	}
	if snap.Insights != nil {
		e.Insights = snap.Insights
	}
	if snap.Places != nil {
		e.Places = snap.Places
	}
	if tasks != nil {
		e.Tasks = tasks
	}
	e.Risk = snap.Risk
	e.Topic = snap.Topic
	e.Zip = snap.Zip
	return e
}

// Get returns the current view of a session.
func (c *Concierge) Get(id string) (SessionView, error) {
	s, err := c.session(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{ID: id, Episode: s.episode.Clone()}, nil
}

// Turn runs one user turn. Only one turn per session may be outstanding; a second one is
// rejected with ErrTurnInProgress. A turn whose session was reset while it awaited the
// model is dropped with ErrStaleTurn.
func (c *Concierge) Turn(ctx context.Context, id string, in models.TurnInput) (TurnResult, error) {
	if err := in.Validate(); err != nil {
		return TurnResult{}, err
	}
	s, err := c.session(id)
	if err != nil {
		return TurnResult{}, err
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		slog.Debug("Concierge.Turn: rejected, turn in progress", "sessionID", id)
		return TurnResult{}, ErrTurnInProgress
	}
	s.busy = true
	s.generation++
	gen := s.generation
	base := s.episode.Clone()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.generation == gen {
			s.busy = false
		}
		s.mu.Unlock()
	}()

	now := c.now()
	text := strings.TrimSpace(in.Text)
	preRisk := risk.Classify(risk.Signals{Text: text, RedFlags: in.RedFlags, AgeBand: in.AgeBand, Previous: base.Risk})
	turnTopic := topic.Extract(text, in.Area)
	slog.Debug("Concierge.Turn: classified", "sessionID", id, "generation", gen, "risk", preRisk, "topic", turnTopic)

	var advisories []models.Advisory
	reply, err := c.model.Complete(ctx, models.ModelRequest{
		History:        base.Messages,
		Input:          in,
		Risk:           preRisk,
		Topic:          turnTopic,
		AllowedDomains: c.gate.Domains(),
		ScriptDraft:    base.Script.Draft,
	})
	upstreamFailed := err != nil
	if upstreamFailed {
		slog.Warn("Concierge.Turn: model unavailable, using fallback", "sessionID", id, "error", err)
		advisories = append(advisories, models.Advisory{Kind: models.ErrorKindUpstreamUnavailable, Message: UpstreamAdvisory})
		reply = models.ModelReply{}
	}

	// Script signals are read from the raw reply before any rewriting for display.
	sig := callscript.SignalFromReply(reply)
	wf, ready := callscript.Advance(base.Script, sig)

	display := callscript.StripMarkers(reply.Text)
	if display == "" && sig.HasDraft {
		display = sig.Draft
	}

	var gated citation.Result
	switch {
	case upstreamFailed:
		display = UpstreamFallbackText
	case display == "":
		advisories = append(advisories, models.Advisory{Kind: models.ErrorKindMalformedResponse, Message: MalformedAdvisory})
	case sig.HasDraft:
		// A call script draft is workflow payload, not a clinical claim: its citations are
		// allow-listed but it is never withheld or backfilled.
		gated = citation.Result{Citations: c.gate.Filter(reply.Citations)}
	default:
		gated = c.gate.Enforce(ctx, display, reply.Citations, base.EvidenceLock)
		advisories = append(advisories, gated.Advisories...)
		if gated.Withheld {
			display = citation.ClarifyPrompt
			wf, ready = base.Script, false
		}
	}

	incoming := make([]models.InsightCard, 0, len(reply.Insights))
	for _, card := range reply.Insights {
		if card.ID == "" {
			card.ID = util.GenerateInsightID()
		}
		if card.Timestamp.IsZero() {
			card.Timestamp = now
		}
		incoming = append(incoming, card)
	}

	out := episode.Outcome{
		User:      models.Message{Role: models.RoleUser, Content: text, Timestamp: now},
		Assistant: &models.Message{Role: models.RoleAssistant, Content: display, Timestamp: now},
		Risk: risk.Classify(risk.Signals{
			Text:      text,
			RedFlags:  in.RedFlags,
			ModelRisk: reply.Risk,
			AgeBand:   in.AgeBand,
			Previous:  base.Risk,
		}),
		Topic:    turnTopic,
		Insights: incoming,
		Places:   reply.Places,
		Script:   wf,
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		slog.Info("Concierge.Turn: dropping stale turn", "sessionID", id, "generation", gen)
		return TurnResult{}, ErrStaleTurn
	}
	s.episode = episode.ApplyTurn(s.episode, out, c.reducerConfig())
	s.mu.Unlock()

	result := TurnResult{
		SessionID:  id,
		Reply:      *out.Assistant,
		Citations:  gated.Citations,
		Backfilled: gated.Backfilled,
		Withheld:   gated.Withheld,
	}

	if ready {
		scriptID, extra := c.completeScript(id, gen, wf, in, now)
		result.ScriptID = scriptID
		advisories = append(advisories, extra...)
	}

	s.mu.Lock()
	committed := s.episode.Clone()
	s.mu.Unlock()
	if err := c.store.SaveSnapshot(id, committed.Snapshot(c.now())); err != nil {
		slog.Error("Concierge.Turn: snapshot save failed", "sessionID", id, "error", err)
		advisories = append(advisories, models.Advisory{Kind: models.ErrorKindPersistenceFailure, Message: PersistenceAdvisory})
	}

	result.Advisories = advisories
	result.Session = SessionView{ID: id, Episode: committed}
	slog.Debug("Concierge.Turn: committed", "sessionID", id, "generation", gen, "stage", committed.Stage, "risk", committed.Risk)
	return result, nil
}

// completeScript persists an approved script and appends the outcome message to the episode.
// Nothing is persisted for a turn that a reset already superseded, and a handoff scheduled
// by a turn superseded during persistence is cancelled.
func (c *Concierge) completeScript(id string, gen uint64, wf models.ScriptWorkflow, in models.TurnInput, now time.Time) (string, []models.Advisory) {
	s, err := c.session(id)
	if err != nil {
		return "", nil
	}
	if !s.current(gen) {
		slog.Info("Concierge.completeScript: session reset, skipping script", "sessionID", id, "generation", gen)
		return "", nil
	}

	var (
		msg        string
		scriptID   string
		handoffID  string
		advisories []models.Advisory
	)
	switch {
	case c.completer == nil:
		slog.Warn("Concierge.completeScript: no completer configured", "sessionID", id)
		msg = callscript.DIYMessage
	case strings.TrimSpace(in.OwnerID) == "":
		msg = callscript.SignInMessage
	default:
		done, err := c.completer.Complete(wf, callscript.Request{
			OwnerID:     in.OwnerID,
			ClinicName:  in.ClinicName,
			ClinicPhone: in.ClinicPhone,
			Now:         now,
		})
		if err != nil {
			slog.Error("Concierge.completeScript: persistence failed", "sessionID", id, "error", err)
			msg = callscript.DIYMessage
			if !errors.Is(err, callscript.ErrEmptyScript) && !errors.Is(err, callscript.ErrNotSignedIn) {
				advisories = append(advisories, models.Advisory{Kind: models.ErrorKindPersistenceFailure, Message: callscript.DIYMessage})
			}
		} else {
			msg = callscript.ConfirmationMessage
			scriptID = done.Script.ID
			handoffID = done.HandoffID
		}
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		slog.Info("Concierge.completeScript: session reset during persistence, cancelling handoff", "sessionID", id, "scriptID", scriptID)
		if handoffID != "" {
			c.completer.CancelHandoff(handoffID)
		}
		return "", nil
	}
	s.episode.Messages = append(s.episode.Messages, models.Message{Role: models.RoleAssistant, Content: msg, Timestamp: now})
	if scriptID != "" {
		s.episode.Script.State = models.ScriptPersisted
		s.episode.Script.ScriptID = scriptID
		s.handoffID = handoffID
	}
	s.mu.Unlock()
	return scriptID, advisories
}

// Reset clears the session episode, keeping its evidence-lock flags, and invalidates any
// turn still awaiting the model.
func (c *Concierge) Reset(id string) (SessionView, error) {
	s, err := c.session(id)
	if err != nil {
		return SessionView{}, err
	}
	s.mu.Lock()
	s.generation++
	s.busy = false
	s.episode = episode.Reset(s.episode)
	fresh := s.episode.Clone()
	handoffID := s.handoffID
	s.handoffID = ""
	s.mu.Unlock()

	if handoffID != "" {
		c.completer.CancelHandoff(handoffID)
	}

	if err := c.store.DeleteTasks(id); err != nil {
		slog.Warn("Concierge.Reset: task delete failed", "sessionID", id, "error", err)
	}
	if err := c.store.SaveSnapshot(id, fresh.Snapshot(c.now())); err != nil {
		slog.Warn("Concierge.Reset: snapshot save failed", "sessionID", id, "error", err)
	}
	slog.Info("Concierge.Reset: session reset", "sessionID", id)
	return SessionView{ID: id, Episode: fresh}, nil
}

// Plan builds the care plan for the session's current topic and risk.
func (c *Concierge) Plan(id, insurance string) (plan.Plan, error) {
	s, err := c.session(id)
	if err != nil {
		return plan.Plan{}, err
	}
	s.mu.Lock()
	t, r := s.episode.Topic, s.episode.Risk
	s.mu.Unlock()
	if t == "" {
		t = models.TopicGeneric
	}
	return plan.Build(t, r, plan.Input{Insurance: insurance, Now: c.now()}), nil
}

// Script returns a persisted call script with its consent record.
func (c *Concierge) Script(scriptID string) (*models.CallScript, *models.ConsentRecord, error) {
	cs, err := c.store.GetCallScript(scriptID)
	if err != nil {
		return nil, nil, err
	}
	if cs == nil {
		return nil, nil, store.ErrNotFound
	}
	consent, err := c.store.GetConsent(scriptID)
	if err != nil {
		return nil, nil, err
	}
	return cs, consent, nil
}
