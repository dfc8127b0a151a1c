package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BTreeMap/CareConcierge/internal/episode"
	"github.com/BTreeMap/CareConcierge/internal/flow"
	"github.com/BTreeMap/CareConcierge/internal/models"
)

// decodeJSON decodes a bounded request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body != nil {
		defer r.Body.Close()
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		slog.Warn("Server.decodeJSON: failed to decode JSON", "error", err, "path", r.URL.Path)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return false
	}
	return true
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	result := map[string]interface{}{"status": "healthy"}
	if s.timer != nil {
		result["pendingHandoffs"] = len(s.timer.ListActive())
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	view := s.concierge.CreateSession()
	slog.Debug("Server.createSessionHandler: session created", "sessionID", view.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(view))
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.concierge.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var in models.TurnInput
	if !decodeJSON(w, r, &in) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.turnTimeout)
	defer cancel()
	res, err := s.concierge.Turn(ctx, id, in)
	if err != nil {
		slog.Warn("Server.turnHandler: turn failed", "sessionID", id, "error", err)
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.concierge.Reset(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session reset", view))
}

func (s *Server) planHandler(w http.ResponseWriter, r *http.Request) {
	insurance := strings.TrimSpace(r.URL.Query().Get("insurance"))
	p, err := s.concierge.Plan(r.PathValue("id"), insurance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

func (s *Server) careSearchHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req flow.CareRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.turnTimeout)
	defer cancel()
	res, err := s.concierge.FindCare(ctx, id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.concierge.ListTasks(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tasks))
}

func (s *Server) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	var t models.Task
	if !decodeJSON(w, r, &t) {
		return
	}
	res, err := s.concierge.AddTask(r.PathValue("id"), t)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(res))
}

func (s *Server) updateTaskHandler(w http.ResponseWriter, r *http.Request) {
	var patch episode.TaskPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	res, err := s.concierge.UpdateTask(r.PathValue("id"), r.PathValue("taskID"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}

func (s *Server) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.concierge.DeleteTask(r.PathValue("id"), r.PathValue("taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Task deleted", res))
}

func (s *Server) getScriptHandler(w http.ResponseWriter, r *http.Request) {
	cs, consent, err := s.concierge.Script(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"script":  cs,
		"consent": consent,
	}))
}
