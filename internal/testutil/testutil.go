// Package testutil provides common test helpers and fakes for CareConcierge tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/store"
)

// Envelope mirrors models.APIResponse with the result left undecoded.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// StaticModel is a model service that returns the same reply to every request and records
// what it was asked.
type StaticModel struct {
	Reply models.ModelReply
	Err   error

	mu       sync.Mutex
	requests []models.ModelRequest
}

// Complete implements the concierge model service.
func (m *StaticModel) Complete(ctx context.Context, req models.ModelRequest) (models.ModelReply, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.Reply, m.Err
}

// Requests returns the requests seen so far.
func (m *StaticModel) Requests() []models.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ModelRequest(nil), m.requests...)
}

// ImmediateTimer runs scheduled functions synchronously.
type ImmediateTimer struct {
	mu     sync.Mutex
	Delays []time.Duration
}

// ScheduleAfter runs fn before returning.
func (t *ImmediateTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	t.mu.Lock()
	t.Delays = append(t.Delays, delay)
	t.mu.Unlock()
	fn()
	return "immediate", nil
}

// Cancel is a no-op; every scheduled function has already run.
func (t *ImmediateTimer) Cancel(string) {}

// DoJSON sends a request with an optional raw JSON body to h and decodes the envelope.
func DoJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON envelope %q: %v", method, path, rr.Body.String(), err)
	}
	return rr, env
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON %s: %v", data, err)
	}
}

// SeedTasks saves a todo task per title for sessionID and returns them in order.
func SeedTasks(t *testing.T, st store.Store, sessionID string, now time.Time, titles ...string) []models.Task {
	t.Helper()
	tasks := make([]models.Task, 0, len(titles))
	for i, title := range titles {
		task := models.Task{
			ID:        "t_seed" + string(rune('a'+i)),
			Title:     title,
			Status:    models.TaskTodo,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := st.SaveTask(sessionID, task); err != nil {
			t.Fatalf("failed to seed task %q: %v", title, err)
		}
		tasks = append(tasks, task)
	}
	return tasks
}
