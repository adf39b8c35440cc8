package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"infraforge/internal/operations"
	"infraforge/internal/pipeline"
)

// envelope is the uniform response shape for every JSON endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Success: false, Error: message})
}

// statusForError maps core sentinel errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput),
		errors.Is(err, operations.ErrUnknownVerb),
		errors.Is(err, operations.ErrNoCompletedGeneration):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrUnknownSession),
		errors.Is(err, operations.ErrUnknownOperation),
		errors.Is(err, operations.ErrUnknownProject):
		return http.StatusNotFound
	case errors.Is(err, operations.ErrConflictingOperation):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeErrorFromErr(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}
