package callscript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/util"
)

// Defaults and fixed texts of the workflow.
const (
	DefaultClinicName   = "Clinic"
	DefaultHandoffDelay = 1500 * time.Millisecond

	ConsentText = "I consent to an AI assistant placing a phone call on my behalf using the approved script above. " +
		"The assistant will identify itself as an AI and will not share information beyond the script."
	ConfirmationMessage = "Thanks! Your call script is approved and saved. I'll start the call now."
	DIYMessage          = "I couldn't save your call script right now, but you can still use it: copy the script above and make the call yourself."
	SignInMessage       = "Sign in to save this call script and let the assistant place the call. You can still copy the script above and call yourself."
)

var (
	ErrEmptyScript = errors.New("call script is empty")
	ErrNotSignedIn = errors.New("a signed-in identity is required to save a call script")
)

// Store persists a script and its consent record together.
type Store interface {
	SaveCallScript(script models.CallScript, consent models.ConsentRecord) error
}

// Scheduler runs fn once after delay. Cancel drops a pending run by the id ScheduleAfter
// returned; unknown or already fired ids are ignored.
type Scheduler interface {
	ScheduleAfter(delay time.Duration, fn func()) (string, error)
	Cancel(id string)
}

// Caller is the calling subsystem. It executes the call for a script id and reports only
// whether it succeeded.
type Caller interface {
	Call(ctx context.Context, scriptID string) bool
}

// Request carries the identity and clinic details for one completion.
type Request struct {
	OwnerID     string
	ClinicName  string
	ClinicPhone string
	Now         time.Time
}

// Completer persists approved scripts and hands them off to the calling subsystem.
type Completer struct {
	store  Store
	timer  Scheduler
	caller Caller
	delay  time.Duration
}

// NewCompleter creates a Completer. caller and timer may be nil, in which case no handoff
// is scheduled.
func NewCompleter(store Store, timer Scheduler, caller Caller, delay time.Duration) *Completer {
	if delay <= 0 {
		delay = DefaultHandoffDelay
	}
	return &Completer{store: store, timer: timer, caller: caller, delay: delay}
}

// Build creates the script and consent rows for an approved workflow without saving them.
func Build(wf models.ScriptWorkflow, req Request) (models.CallScript, models.ConsentRecord, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return models.CallScript{}, models.ConsentRecord{}, ErrNotSignedIn
	}
	text := strings.TrimSpace(wf.Draft)
	if text == "" {
		return models.CallScript{}, models.ConsentRecord{}, ErrEmptyScript
	}
	clinic := strings.TrimSpace(req.ClinicName)
	if clinic == "" {
		clinic = DefaultClinicName
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	script := models.CallScript{
		ID:          util.GenerateScriptID(),
		OwnerID:     req.OwnerID,
		ClinicName:  clinic,
		ClinicPhone: strings.TrimSpace(req.ClinicPhone),
		ScriptText:  text,
		Status:      models.CallScriptStatusApproved,
		ApprovedAt:  now,
	}
	consent := models.ConsentRecord{
		ScriptID:  script.ID,
		Type:      models.ConsentTypeOutboundCall,
		Text:      ConsentText,
		CreatedAt: now,
	}
	return script, consent, nil
}

// Completion is a saved script and its pending handoff. HandoffID is empty when no handoff
// was scheduled.
type Completion struct {
	Script    models.CallScript
	HandoffID string
}

// Complete persists the approved workflow. On success it returns the saved script and
// schedules a one-shot handoff to the caller. Persistence errors are returned wrapped and
// never retried.
func (c *Completer) Complete(wf models.ScriptWorkflow, req Request) (Completion, error) {
	script, consent, err := Build(wf, req)
	if err != nil {
		return Completion{}, err
	}
	if err := c.store.SaveCallScript(script, consent); err != nil {
		slog.Error("Completer.Complete: save failed", "error", err, "ownerID", req.OwnerID)
		return Completion{}, fmt.Errorf("failed to save call script: %w", err)
	}
	slog.Info("Completer.Complete: call script saved", "scriptID", script.ID, "ownerID", req.OwnerID)

	done := Completion{Script: script}
	if c.timer != nil && c.caller != nil {
		id := script.ID
		handoff, err := c.timer.ScheduleAfter(c.delay, func() {
			ok := c.caller.Call(context.Background(), id)
			slog.Info("Completer handoff finished", "scriptID", id, "success", ok)
		})
		if err != nil {
			slog.Warn("Completer.Complete: failed to schedule handoff", "error", err, "scriptID", id)
		} else {
			done.HandoffID = handoff
		}
	}
	return done, nil
}

// CancelHandoff drops a handoff that has not fired yet.
func (c *Completer) CancelHandoff(handoffID string) {
	if c.timer == nil || handoffID == "" {
		return
	}
	c.timer.Cancel(handoffID)
	slog.Debug("Completer.CancelHandoff: handoff cancelled", "handoffID", handoffID)
}
