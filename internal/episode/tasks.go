package episode

import (
	"errors"
	"strings"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/models"
)

// ErrTaskNotFound is returned when a task id is not part of the episode.
var ErrTaskNotFound = errors.New("task not found")

// TaskPatch is a partial task update. Nil fields are left unchanged.
type TaskPatch struct {
	Title           *string            `json:"title,omitempty"`
	Status          *models.TaskStatus `json:"status,omitempty"`
	Due             *time.Time         `json:"due,omitempty"`
	Notes           *string            `json:"notes,omitempty"`
	LinkedPlaceID   *string            `json:"linkedPlaceId,omitempty"`
	LinkedInsightID *string            `json:"linkedInsightId,omitempty"`
}

// AddTask validates t and appends it, then restages.
func AddTask(e models.Episode, t models.Task, domains []string) (models.Episode, error) {
	t.Title = strings.TrimSpace(t.Title)
	if t.Status == "" {
		t.Status = models.TaskTodo
	}
	if err := t.Validate(); err != nil {
		return e, err
	}
	next := e.Clone()
	next.Tasks = append(next.Tasks, t)
	return Restage(next, domains), nil
}

// UpdateTask applies patch to the task with id, then restages.
func UpdateTask(e models.Episode, id string, patch TaskPatch, domains []string) (models.Episode, models.Task, error) {
	next := e.Clone()
	for i, t := range next.Tasks {
		if t.ID != id {
			continue
		}
		if patch.Title != nil {
			t.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Due != nil {
			due := *patch.Due
			t.Due = &due
		}
		if patch.Notes != nil {
			t.Notes = *patch.Notes
		}
		if patch.LinkedPlaceID != nil {
			t.LinkedPlaceID = *patch.LinkedPlaceID
		}
		if patch.LinkedInsightID != nil {
			t.LinkedInsightID = *patch.LinkedInsightID
		}
		if err := t.Validate(); err != nil {
			return e, models.Task{}, err
		}
		next.Tasks[i] = t
		return Restage(next, domains), t, nil
	}
	return e, models.Task{}, ErrTaskNotFound
}

// DeleteTask removes the task with id, then restages.
func DeleteTask(e models.Episode, id string, domains []string) (models.Episode, error) {
	next := e.Clone()
	for i, t := range next.Tasks {
		if t.ID == id {
			next.Tasks = append(next.Tasks[:i], next.Tasks[i+1:]...)
			return Restage(next, domains), nil
		}
	}
	return e, ErrTaskNotFound
}
