package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/callscript"
	"github.com/BTreeMap/CareConcierge/internal/calling"
	"github.com/BTreeMap/CareConcierge/internal/citation"
	"github.com/BTreeMap/CareConcierge/internal/episode"
	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/plan"
	"github.com/BTreeMap/CareConcierge/internal/store"
)

// modelFunc adapts a function to ModelService.
type modelFunc func(ctx context.Context, req models.ModelRequest) (models.ModelReply, error)

func (f modelFunc) Complete(ctx context.Context, req models.ModelRequest) (models.ModelReply, error) {
	return f(ctx, req)
}

func staticModel(reply models.ModelReply) modelFunc {
	return func(context.Context, models.ModelRequest) (models.ModelReply, error) { return reply, nil }
}

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func newTestConcierge(t *testing.T, model ModelService, opts ...Option) *Concierge {
	t.Helper()
	base := []Option{WithModel(model), WithClock(func() time.Time { return fixedNow })}
	c, err := NewConcierge(append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewConcierge: %v", err)
	}
	return c
}

var medline = models.Citation{Title: "Sprains and Strains", URL: "https://medlineplus.gov/sprainsandstrains.html"}

func TestTurn_CommitsMessagesRiskAndStage(t *testing.T) {
	c := newTestConcierge(t, staticModel(models.ModelReply{
		Text:      "It sounds like a sprain. Rest, ice and elevate it.",
		Citations: []models.Citation{medline, {Title: "blog", URL: "https://example.com/ankle"}},
		Risk:      models.RiskLow,
		Insights: []models.InsightCard{
			{Title: "Likely sprain", Body: "Twisting injuries usually sprain ligaments.", Citations: []models.Citation{medline}},
		},
	}))
	sess := c.CreateSession()

	res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "I twisted my ankle and it is swollen"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if len(res.Citations) != 1 || res.Citations[0].URL != medline.URL {
		t.Errorf("expected only the trusted citation, got %+v", res.Citations)
	}
	got := res.Session
	if len(got.Messages) != 2 || got.Messages[0].Role != models.RoleUser || got.Messages[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
	if got.Topic != models.TopicSprain {
		t.Errorf("topic = %s, want sprain", got.Topic)
	}
	if got.Risk != models.RiskModerate {
		t.Errorf("risk = %s, want moderate from the heuristic", got.Risk)
	}
	if got.Stage != models.StagePlan {
		t.Errorf("stage = %s, want plan", got.Stage)
	}
	if len(got.Insights) != 1 || got.Insights[0].ID == "" || !got.Insights[0].Timestamp.Equal(fixedNow) {
		t.Errorf("unexpected insights %+v", got.Insights)
	}
}

func TestTurn_RiskNeverDecreases(t *testing.T) {
	replies := []models.ModelReply{
		{Text: "Please call 911.", Risk: models.RiskSevere, Citations: []models.Citation{medline}},
		{Text: "Glad you feel better.", Risk: models.RiskLow, Citations: []models.Citation{medline}},
	}
	i := 0
	c := newTestConcierge(t, modelFunc(func(context.Context, models.ModelRequest) (models.ModelReply, error) {
		r := replies[i]
		i++
		return r, nil
	}))
	sess := c.CreateSession()

	for _, text := range []string{"my chest feels tight", "actually I feel fine now"} {
		if _, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: text}); err != nil {
			t.Fatalf("Turn(%q): %v", text, err)
		}
	}
	view, _ := c.Get(sess.ID)
	if view.Risk != models.RiskSevere {
		t.Errorf("risk = %s, want severe", view.Risk)
	}
	if len(view.RiskTrail) != 1 || view.RiskTrail[0] != models.RiskSevere {
		t.Errorf("unexpected risk trail %v", view.RiskTrail)
	}

	reset, err := c.Reset(sess.ID)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reset.Risk != models.RiskNone || len(reset.RiskTrail) != 0 || len(reset.Messages) != 0 || reset.Stage != models.StageIntake {
		t.Errorf("reset did not clear the episode: %+v", reset.Episode)
	}
}

func TestTurn_RedFlagForcesSevere(t *testing.T) {
	c := newTestConcierge(t, staticModel(models.ModelReply{Text: "Okay."}))
	sess := c.CreateSession()
	res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "my arm hurts", RedFlags: models.RedFlags{VisibleDeformity: true}})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.Session.Risk != models.RiskSevere {
		t.Errorf("risk = %s, want severe", res.Session.Risk)
	}
}

func TestTurn_UpstreamFailureFallsBack(t *testing.T) {
	c := newTestConcierge(t, modelFunc(func(context.Context, models.ModelRequest) (models.ModelReply, error) {
		return models.ModelReply{}, errors.New("connection refused")
	}))
	sess := c.CreateSession()
	res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "I burned my hand on the stove"})
	if err != nil {
		t.Fatalf("Turn must not fail on upstream errors: %v", err)
	}
	if res.Reply.Content != UpstreamFallbackText {
		t.Errorf("unexpected reply %q", res.Reply.Content)
	}
	if !hasAdvisory(res.Advisories, models.ErrorKindUpstreamUnavailable) {
		t.Errorf("expected upstream advisory, got %+v", res.Advisories)
	}
	if res.Session.Topic != models.TopicBurn || len(res.Session.Messages) != 2 {
		t.Errorf("turn not committed: %+v", res.Session.Episode)
	}
}

type fakeBackfiller struct {
	calls int
	out   []models.Citation
}

func (f *fakeBackfiller) Backfill(ctx context.Context, text string, domains []string) ([]models.Citation, error) {
	f.calls++
	return f.out, nil
}

func TestTurn_CitationPolicy(t *testing.T) {
	declarative := models.ModelReply{Text: "A burn larger than three inches needs medical care."}

	t.Run("soft advisory", func(t *testing.T) {
		bf := &fakeBackfiller{}
		c := newTestConcierge(t, staticModel(declarative), WithGate(citation.NewGate(citation.WithBackfiller(bf))))
		sess := c.CreateSession()
		res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "how big is too big for a burn"})
		if err != nil {
			t.Fatalf("Turn: %v", err)
		}
		if bf.calls != 1 {
			t.Errorf("expected one backfill call, got %d", bf.calls)
		}
		if res.Withheld || res.Reply.Content != declarative.Text {
			t.Errorf("soft mode must keep the reply, got %+v", res.Reply)
		}
		if !hasAdvisory(res.Advisories, models.ErrorKindValidationGap) {
			t.Errorf("expected validation advisory, got %+v", res.Advisories)
		}
	})

	t.Run("backfill accepted", func(t *testing.T) {
		bf := &fakeBackfiller{out: []models.Citation{{Title: "Burns", URL: "https://www.mayoclinic.org/first-aid/first-aid-burns/basics/art-20056649"}}}
		c := newTestConcierge(t, staticModel(declarative), WithGate(citation.NewGate(citation.WithBackfiller(bf))))
		sess := c.CreateSession()
		res, _ := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "how big is too big for a burn"})
		if !res.Backfilled || len(res.Citations) != 1 {
			t.Errorf("expected backfilled citation, got %+v", res)
		}
	})

	t.Run("strict withholds", func(t *testing.T) {
		c := newTestConcierge(t, staticModel(declarative), WithGate(citation.NewGate(citation.WithPolicy(citation.PolicyStrict))))
		sess := c.CreateSession()
		res, _ := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "how big is too big for a burn"})
		if !res.Withheld || res.Reply.Content != citation.ClarifyPrompt {
			t.Errorf("expected withheld reply, got %+v", res.Reply)
		}
	})
}

func TestTurn_RejectsConcurrentTurnAndDropsStale(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	c := newTestConcierge(t, modelFunc(func(ctx context.Context, req models.ModelRequest) (models.ModelReply, error) {
		entered <- struct{}{}
		<-release
		return models.ModelReply{Text: "ok", Risk: models.RiskSevere}, nil
	}))
	sess := c.CreateSession()

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "first"})
	}()
	<-entered

	if _, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "second"}); !errors.Is(err, ErrTurnInProgress) {
		t.Fatalf("expected ErrTurnInProgress, got %v", err)
	}

	if _, err := c.Reset(sess.ID); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	close(release)
	wg.Wait()

	if !errors.Is(firstErr, ErrStaleTurn) {
		t.Fatalf("expected ErrStaleTurn, got %v", firstErr)
	}
	view, _ := c.Get(sess.ID)
	if len(view.Messages) != 0 || view.Risk != models.RiskNone {
		t.Errorf("stale turn leaked into the episode: %+v", view.Episode)
	}
}

func TestTurn_ValidationAndUnknownSession(t *testing.T) {
	c := newTestConcierge(t, staticModel(models.ModelReply{}))
	if _, err := c.Turn(context.Background(), "s_missing", models.TurnInput{Text: "hi"}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	sess := c.CreateSession()
	if _, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "   "}); !errors.Is(err, models.ErrEmptyTurnText) {
		t.Errorf("expected ErrEmptyTurnText, got %v", err)
	}
}

// immediateTimer runs callbacks synchronously.
type immediateTimer struct{ delays []time.Duration }

func (t *immediateTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	t.delays = append(t.delays, delay)
	fn()
	return "timer_1", nil
}

func (t *immediateTimer) Cancel(string) {}

type failingScriptStore struct {
	store.Store
}

func (failingScriptStore) SaveCallScript(models.CallScript, models.ConsentRecord) error {
	return errors.New("write failed")
}

const stellaReply = "Here is the final script.\n\nCALL SCRIPT DRAFT: Hi, my name is Stella, I'm calling for my mother about a wrist injury...\n\nCALL_SCRIPT_APPROVED_AND_CONSENTED"

func TestTurn_CallScriptPersistedAndHandedOff(t *testing.T) {
	st := store.NewInMemoryStore()
	timer := &immediateTimer{}
	caller := calling.NewMockClient()
	c := newTestConcierge(t, staticModel(models.ModelReply{Text: stellaReply}),
		WithStore(st), WithCompleter(callscript.NewCompleter(st, timer, caller, 0)))
	sess := c.CreateSession()

	res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "Yes, approved, go ahead and call", OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.ScriptID == "" {
		t.Fatal("expected a persisted script id")
	}
	if strings.Contains(res.Reply.Content, callscript.ConsentMarker) {
		t.Errorf("markers must be stripped from display: %q", res.Reply.Content)
	}
	cs, consent, err := c.Script(res.ScriptID)
	if err != nil || cs.ClinicName != callscript.DefaultClinicName || consent == nil {
		t.Fatalf("Script: %+v %+v %v", cs, consent, err)
	}
	if !strings.HasPrefix(cs.ScriptText, "Hi, my name is Stella") || strings.Contains(cs.ScriptText, callscript.ConsentMarker) {
		t.Errorf("unexpected script text %q", cs.ScriptText)
	}
	if caller.CallCount() != 1 || caller.Calls[0] != res.ScriptID {
		t.Errorf("expected handoff call, got %v", caller.Calls)
	}
	if len(timer.delays) != 1 || timer.delays[0] != callscript.DefaultHandoffDelay {
		t.Errorf("unexpected handoff delays %v", timer.delays)
	}
	msgs := res.Session.Messages
	if msgs[len(msgs)-1].Content != callscript.ConfirmationMessage {
		t.Errorf("expected confirmation message, got %q", msgs[len(msgs)-1].Content)
	}
	if res.Session.Script.State != models.ScriptPersisted || res.Session.Script.ScriptID != res.ScriptID {
		t.Errorf("unexpected workflow %+v", res.Session.Script)
	}
}

func TestTurn_CallScriptFailures(t *testing.T) {
	tests := []struct {
		name      string
		owner     string
		store     store.Store
		wantMsg   string
		wantAdvis bool
	}{
		{"anonymous", "", store.NewInMemoryStore(), callscript.SignInMessage, false},
		{"persistence failure", "user-1", failingScriptStore{store.NewInMemoryStore()}, callscript.DIYMessage, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := calling.NewMockClient()
			c := newTestConcierge(t, staticModel(models.ModelReply{Text: stellaReply}),
				WithStore(tt.store), WithCompleter(callscript.NewCompleter(tt.store, &immediateTimer{}, caller, 0)))
			sess := c.CreateSession()
			res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "approved", OwnerID: tt.owner})
			if err != nil {
				t.Fatalf("Turn: %v", err)
			}
			msgs := res.Session.Messages
			if got := msgs[len(msgs)-1].Content; got != tt.wantMsg {
				t.Errorf("last message = %q, want %q", got, tt.wantMsg)
			}
			if hasAdvisory(res.Advisories, models.ErrorKindPersistenceFailure) != tt.wantAdvis {
				t.Errorf("unexpected advisories %+v", res.Advisories)
			}
			if res.ScriptID != "" || caller.CallCount() != 0 {
				t.Errorf("no script or call expected, got %q / %d", res.ScriptID, caller.CallCount())
			}
		})
	}
}

func TestTurn_CallScriptUnderStrictCitations(t *testing.T) {
	strict := citation.NewGate(citation.WithPolicy(citation.PolicyStrict))

	t.Run("draft is not withheld", func(t *testing.T) {
		st := store.NewInMemoryStore()
		caller := calling.NewMockClient()
		c := newTestConcierge(t, staticModel(models.ModelReply{Text: stellaReply}),
			WithGate(strict), WithStore(st), WithCompleter(callscript.NewCompleter(st, &immediateTimer{}, caller, 0)))
		sess := c.CreateSession()

		res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "approved, please call", OwnerID: "user-1"})
		if err != nil {
			t.Fatalf("Turn: %v", err)
		}
		if res.Withheld || hasAdvisory(res.Advisories, models.ErrorKindValidationGap) {
			t.Errorf("script draft must pass the gate, got withheld=%v advisories=%+v", res.Withheld, res.Advisories)
		}
		if res.ScriptID == "" || caller.CallCount() != 1 {
			t.Errorf("expected persisted script and handoff, got %q / %d", res.ScriptID, caller.CallCount())
		}
	})

	t.Run("withheld approval does not persist", func(t *testing.T) {
		replies := []models.ModelReply{
			{Text: "CALL SCRIPT DRAFT: Hi, I'm calling about a burn on my hand."},
			{Text: "A burn larger than three inches needs medical care.", Approved: true, Consented: true},
		}
		turn := 0
		model := modelFunc(func(context.Context, models.ModelRequest) (models.ModelReply, error) {
			r := replies[turn]
			turn++
			return r, nil
		})
		st := store.NewInMemoryStore()
		caller := calling.NewMockClient()
		c := newTestConcierge(t, model,
			WithGate(strict), WithStore(st), WithCompleter(callscript.NewCompleter(st, &immediateTimer{}, caller, 0)))
		sess := c.CreateSession()

		first, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "draft a call script", OwnerID: "user-1"})
		if err != nil {
			t.Fatalf("first Turn: %v", err)
		}
		if first.Session.Script.State != models.ScriptDrafted {
			t.Fatalf("expected drafted workflow, got %+v", first.Session.Script)
		}

		res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "yes, go ahead", OwnerID: "user-1"})
		if err != nil {
			t.Fatalf("second Turn: %v", err)
		}
		if !res.Withheld || res.Reply.Content != citation.ClarifyPrompt {
			t.Fatalf("expected withheld reply, got %+v", res.Reply)
		}
		if res.ScriptID != "" || caller.CallCount() != 0 {
			t.Errorf("withheld reply must not persist, got %q / %d calls", res.ScriptID, caller.CallCount())
		}
		if res.Session.Script.State != models.ScriptDrafted || res.Session.Script.Approved {
			t.Errorf("workflow must not advance on a withheld reply, got %+v", res.Session.Script)
		}
	})
}

func TestTurn_CallScriptDraftSkipsBackfill(t *testing.T) {
	bf := &fakeBackfiller{}
	c := newTestConcierge(t, staticModel(models.ModelReply{
		Text:      "CALL SCRIPT DRAFT: Hi, I'm calling about a burn on my hand.",
		Citations: []models.Citation{medline, {URL: "https://blog.example/burns"}},
	}), WithGate(citation.NewGate(citation.WithBackfiller(bf))))
	sess := c.CreateSession()

	res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "draft a call script"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if bf.calls != 0 {
		t.Errorf("expected no backfill for a script draft, got %d calls", bf.calls)
	}
	if len(res.Advisories) != 0 {
		t.Errorf("expected no advisories, got %+v", res.Advisories)
	}
	if len(res.Citations) != 1 || res.Citations[0].URL != medline.URL {
		t.Errorf("draft citations must still be allow-listed, got %+v", res.Citations)
	}
}

// resettingScriptStore resets the session while the script is being saved.
type resettingScriptStore struct {
	store.Store
	reset func()
	saves int
}

func (r *resettingScriptStore) SaveCallScript(cs models.CallScript, consent models.ConsentRecord) error {
	r.saves++
	if r.reset != nil {
		r.reset()
	}
	return r.Store.SaveCallScript(cs, consent)
}

func TestReset_CancelsPendingHandoff(t *testing.T) {
	st := store.NewInMemoryStore()
	timer := NewSimpleTimer()
	defer timer.Stop()
	caller := calling.NewMockClient()
	c := newTestConcierge(t, staticModel(models.ModelReply{Text: stellaReply}),
		WithStore(st), WithCompleter(callscript.NewCompleter(st, timer, caller, time.Hour)))
	sess := c.CreateSession()

	res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "approved", OwnerID: "user-1"})
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if res.ScriptID == "" || len(timer.ListActive()) != 1 {
		t.Fatalf("expected a persisted script with a pending handoff, got %q / %v", res.ScriptID, timer.ListActive())
	}

	if _, err := c.Reset(sess.ID); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if active := timer.ListActive(); len(active) != 0 {
		t.Errorf("expected handoff cancelled on reset, still pending %v", active)
	}
	if caller.CallCount() != 0 {
		t.Errorf("no call expected after reset, got %d", caller.CallCount())
	}
}

func TestCompleteScript_SupersededByReset(t *testing.T) {
	t.Run("reset during persistence", func(t *testing.T) {
		st := store.NewInMemoryStore()
		scripts := &resettingScriptStore{Store: st}
		timer := NewSimpleTimer()
		defer timer.Stop()
		caller := calling.NewMockClient()
		c := newTestConcierge(t, staticModel(models.ModelReply{Text: stellaReply}),
			WithStore(st), WithCompleter(callscript.NewCompleter(scripts, timer, caller, time.Hour)))
		sess := c.CreateSession()
		scripts.reset = func() {
			if _, err := c.Reset(sess.ID); err != nil {
				t.Errorf("Reset: %v", err)
			}
		}

		res, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "approved", OwnerID: "user-1"})
		if err != nil {
			t.Fatalf("Turn: %v", err)
		}
		if res.ScriptID != "" {
			t.Errorf("superseded turn must not report a script, got %q", res.ScriptID)
		}
		if active := timer.ListActive(); len(active) != 0 {
			t.Errorf("expected handoff cancelled, still pending %v", active)
		}
		if caller.CallCount() != 0 {
			t.Errorf("no call expected, got %d", caller.CallCount())
		}
		view, _ := c.Get(sess.ID)
		if view.Script.ScriptID != "" || len(view.Messages) != 0 {
			t.Errorf("reset session must stay empty, got %+v", view.Episode)
		}
	})

	t.Run("reset before persistence", func(t *testing.T) {
		st := store.NewInMemoryStore()
		scripts := &resettingScriptStore{Store: st}
		timer := &immediateTimer{}
		caller := calling.NewMockClient()
		c := newTestConcierge(t, staticModel(models.ModelReply{}),
			WithStore(st), WithCompleter(callscript.NewCompleter(scripts, timer, caller, 0)))
		sess := c.CreateSession()
		if _, err := c.Reset(sess.ID); err != nil {
			t.Fatalf("Reset: %v", err)
		}

		wf := models.ScriptWorkflow{State: models.ScriptApproved, Draft: "Hello", Approved: true, Consented: true}
		id, advisories := c.completeScript(sess.ID, 0, wf, models.TurnInput{OwnerID: "user-1"}, fixedNow)
		if id != "" || len(advisories) != 0 {
			t.Errorf("stale completion returned %q / %+v", id, advisories)
		}
		if scripts.saves != 0 || len(timer.delays) != 0 || caller.CallCount() != 0 {
			t.Errorf("stale completion must not persist or hand off, got saves=%d delays=%v calls=%d",
				scripts.saves, timer.delays, caller.CallCount())
		}
	})
}

func TestTasks_DriveStage(t *testing.T) {
	c := newTestConcierge(t, staticModel(models.ModelReply{
		Text:     "Clean the cut and cover it.",
		Insights: []models.InsightCard{{Title: "Wound care", Citations: []models.Citation{{URL: "https://www.aad.org/public/everyday-care/injured-skin/burns/wound-care"}}}},
	}))
	sess := c.CreateSession()
	if _, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "I cut my finger"}); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	if _, err := c.AddTask(sess.ID, models.Task{Title: "  "}); !errors.Is(err, models.ErrEmptyTaskTitle) {
		t.Errorf("expected ErrEmptyTaskTitle, got %v", err)
	}

	added, err := c.AddTask(sess.ID, models.Task{Title: " Buy bandages "})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if added.Stage != models.StageActions || added.Task.Status != models.TaskTodo || added.Task.Title != "Buy bandages" {
		t.Fatalf("unexpected add result %+v / %+v", added, added.Task)
	}

	done := models.TaskDone
	updated, err := c.UpdateTask(sess.ID, added.Task.ID, episode.TaskPatch{Status: &done})
	if err != nil || updated.Stage != models.StageWrap {
		t.Fatalf("UpdateTask: %+v, %v", updated, err)
	}

	bogus := models.TaskStatus("later")
	if _, err := c.UpdateTask(sess.ID, added.Task.ID, episode.TaskPatch{Status: &bogus}); !errors.Is(err, models.ErrInvalidTaskStatus) {
		t.Errorf("expected ErrInvalidTaskStatus, got %v", err)
	}

	deleted, err := c.DeleteTask(sess.ID, added.Task.ID)
	if err != nil || deleted.Stage != models.StagePlan {
		t.Fatalf("DeleteTask: %+v, %v", deleted, err)
	}
	if _, err := c.DeleteTask(sess.ID, added.Task.ID); !errors.Is(err, episode.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestSession_RestoredFromStore(t *testing.T) {
	st := store.NewInMemoryStore()
	model := staticModel(models.ModelReply{Text: "Rest it."})
	first := newTestConcierge(t, model, WithStore(st))
	sess := first.CreateSession()
	if _, err := first.Turn(context.Background(), sess.ID, models.TurnInput{Text: "I sprained my wrist"}); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if _, err := first.AddTask(sess.ID, models.Task{Title: "Ice twice a day"}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	second := newTestConcierge(t, model, WithStore(st))
	view, err := second.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(view.Messages) != 2 || len(view.Tasks) != 1 || view.Topic != models.TopicSprain {
		t.Errorf("unexpected restored episode %+v", view.Episode)
	}
}

type fakeSearcher struct {
	err error
}

func (f fakeSearcher) NearbySearch(ctx context.Context, lat, lng, radiusKm float64, query string) ([]models.Place, error) {
	if f.err != nil {
		return nil, f.err
	}
	rating, reviews := 4.7, 250
	low, lowReviews := 3.9, 12
	return []models.Place{
		{Name: "Unverified Clinic", Lat: lat + 0.01, Lng: lng},
		{Name: "Good Urgent Care", Lat: lat + 0.02, Lng: lng, Rating: &rating, Reviews: &reviews},
		{Name: "Small Clinic", Lat: lat + 0.03, Lng: lng, Rating: &low, Reviews: &lowReviews},
	}, nil
}

func TestFindCare(t *testing.T) {
	c := newTestConcierge(t, staticModel(models.ModelReply{}), WithSearcher(fakeSearcher{}))
	sess := c.CreateSession()
	res, err := c.FindCare(context.Background(), sess.ID, CareRequest{Lat: 37.77, Lng: -122.42, Zip: "94103"})
	if err != nil {
		t.Fatalf("FindCare: %v", err)
	}
	if len(res.Places) != 2 || res.Places[0].Name != "Good Urgent Care" {
		t.Fatalf("unexpected places %+v", res.Places)
	}
	if res.Places[0].Score < 3 || res.Places[0].Score > 5 || res.Places[0].Reason == "" {
		t.Errorf("unexpected score/reason %+v", res.Places[0])
	}
	if res.Session.Zip != "94103" {
		t.Errorf("zip not recorded")
	}

	down := newTestConcierge(t, staticModel(models.ModelReply{}), WithSearcher(fakeSearcher{err: errors.New("timeout")}))
	sess = down.CreateSession()
	res, err = down.FindCare(context.Background(), sess.ID, CareRequest{Lat: 1, Lng: 1})
	if err != nil {
		t.Fatalf("FindCare must not fail on search outage: %v", err)
	}
	if !hasAdvisory(res.Advisories, models.ErrorKindUpstreamUnavailable) || len(res.Places) != 0 {
		t.Errorf("unexpected outage result %+v", res)
	}
}

func TestPlan_UsesEpisodeTopicAndRisk(t *testing.T) {
	c := newTestConcierge(t, staticModel(models.ModelReply{Text: "That could be broken."}))
	sess := c.CreateSession()
	if _, err := c.Turn(context.Background(), sess.ID, models.TurnInput{Text: "I think I broke my wrist"}); err != nil {
		t.Fatalf("Turn: %v", err)
	}
	p, err := c.Plan(sess.ID, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Topic != models.TopicFracture || p.Tier != plan.TierEscalate {
		t.Errorf("unexpected plan %s/%s", p.Topic, p.Tier)
	}
	if p.Coverage != nil || len(p.Assumptions) == 0 {
		t.Errorf("expected insurance assumption without insurance")
	}
}

func hasAdvisory(list []models.Advisory, kind models.ErrorKind) bool {
	for _, a := range list {
		if a.Kind == kind {
			return true
		}
	}
	return false
}
