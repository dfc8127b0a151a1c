package flow

import (
	"errors"
	"log/slog"

	"github.com/BTreeMap/CareConcierge/internal/episode"
	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/store"
	"github.com/BTreeMap/CareConcierge/internal/util"
)

// TaskResult is the outcome of a task edit.
type TaskResult struct {
	Task       *models.Task      `json:"task,omitempty"`
	Stage      models.Stage      `json:"stage"`
	Advisories []models.Advisory `json:"advisories,omitempty"`
}

// ListTasks returns the session's tasks in creation order.
func (c *Concierge) ListTasks(id string) ([]models.Task, error) {
	s, err := c.session(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Task{}, s.episode.Tasks...), nil
}

// AddTask creates a task. The id and creation time are assigned here; an empty status
// becomes todo.
func (c *Concierge) AddTask(id string, t models.Task) (TaskResult, error) {
	s, err := c.session(id)
	if err != nil {
		return TaskResult{}, err
	}
	t.ID = util.GenerateTaskID()
	t.CreatedAt = c.now()

	s.mu.Lock()
	next, err := episode.AddTask(s.episode, t, c.gate.Domains())
	if err != nil {
		s.mu.Unlock()
		return TaskResult{}, err
	}
	s.episode = next
	created := next.Tasks[len(next.Tasks)-1]
	stage := next.Stage
	s.mu.Unlock()

	res := TaskResult{Task: &created, Stage: stage}
	if err := c.store.SaveTask(id, created); err != nil {
		slog.Error("Concierge.AddTask: save failed", "sessionID", id, "taskID", created.ID, "error", err)
		res.Advisories = append(res.Advisories, models.Advisory{Kind: models.ErrorKindPersistenceFailure, Message: PersistenceAdvisory})
	}
	slog.Debug("Concierge.AddTask: task added", "sessionID", id, "taskID", created.ID, "stage", stage)
	return res, nil
}

// UpdateTask applies a partial update to a task.
func (c *Concierge) UpdateTask(id, taskID string, patch episode.TaskPatch) (TaskResult, error) {
	s, err := c.session(id)
	if err != nil {
		return TaskResult{}, err
	}

	s.mu.Lock()
	next, updated, err := episode.UpdateTask(s.episode, taskID, patch, c.gate.Domains())
	if err != nil {
		s.mu.Unlock()
		return TaskResult{}, err
	}
	s.episode = next
	stage := next.Stage
	s.mu.Unlock()

	res := TaskResult{Task: &updated, Stage: stage}
	if err := c.store.SaveTask(id, updated); err != nil {
		slog.Error("Concierge.UpdateTask: save failed", "sessionID", id, "taskID", taskID, "error", err)
		res.Advisories = append(res.Advisories, models.Advisory{Kind: models.ErrorKindPersistenceFailure, Message: PersistenceAdvisory})
	}
	return res, nil
}

// DeleteTask removes a task. Deleting the last task may move the stage backwards.
func (c *Concierge) DeleteTask(id, taskID string) (TaskResult, error) {
	s, err := c.session(id)
	if err != nil {
		return TaskResult{}, err
	}

	s.mu.Lock()
	next, err := episode.DeleteTask(s.episode, taskID, c.gate.Domains())
	if err != nil {
		s.mu.Unlock()
		return TaskResult{}, err
	}
	s.episode = next
	stage := next.Stage
	s.mu.Unlock()

	res := TaskResult{Stage: stage}
	if err := c.store.DeleteTask(id, taskID); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("Concierge.DeleteTask: delete failed", "sessionID", id, "taskID", taskID, "error", err)
		res.Advisories = append(res.Advisories, models.Advisory{Kind: models.ErrorKindPersistenceFailure, Message: PersistenceAdvisory})
	}
	return res, nil
}
