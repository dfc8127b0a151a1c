package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/CareConcierge/internal/episode"
	"github.com/BTreeMap/CareConcierge/internal/flow"
	"github.com/BTreeMap/CareConcierge/internal/models"
	"github.com/BTreeMap/CareConcierge/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, flow.ErrSessionNotFound),
		errors.Is(err, episode.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, flow.ErrTurnInProgress), errors.Is(err, flow.ErrStaleTurn):
		return http.StatusConflict
	case errors.Is(err, flow.ErrInvalidCoordinates),
		errors.Is(err, models.ErrEmptyTurnText),
		errors.Is(err, models.ErrTurnTextTooLong),
		errors.Is(err, models.ErrInvalidAgeBand),
		errors.Is(err, models.ErrEmptyTaskTitle),
		errors.Is(err, models.ErrTaskTitleTooLong),
		errors.Is(err, models.ErrTaskNotesTooLong),
		errors.Is(err, models.ErrInvalidTaskStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as an error envelope. Internal errors are not echoed to clients.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	writeJSONResponse(w, status, models.Error(msg))
}
