package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"infraforge/internal/operations"
)

func parseProjectID(r *http.Request) (uint, error) {
	raw := mux.Vars(r)["projectID"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid project id %q", raw)
	}
	return uint(id), nil
}

// handleOperationStart launches a deployment operation for the project.
// Conflicting operations come back as 409 with the active operation's ID so
// the client can attach to it instead.
func (s *Server) handleOperationStart(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	verbName := mux.Vars(r)["operation"]

	operationID, err := s.ops.Start(r.Context(), projectID, verbName)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	writeData(w, http.StatusAccepted, map[string]any{
		"operation_id": operationID,
		"status":       operations.StatusRunning,
		"logs_url":     fmt.Sprintf("/api/v1/deployment/operations/%s/logs", operationID),
	})
}

// handleOperationLogs serves incremental log delivery. since_index is the
// client's next expected line index; the response carries everything from
// there on plus the index to poll from next time.
func (s *Server) handleOperationLogs(w http.ResponseWriter, r *http.Request) {
	operationID := mux.Vars(r)["operationID"]

	sinceIndex := 0
	if raw := r.URL.Query().Get("since_index"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since_index must be an integer")
			return
		}
		sinceIndex = n
	}

	result, err := s.ops.Registry().Read(operationID, sinceIndex)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"logs":       result.Lines,
		"next_index": result.NextIndex,
		"completed":  result.Completed,
		"status":     result.Status,
		"error":      result.Error,
	})
}

func (s *Server) handleOperationStatus(w http.ResponseWriter, r *http.Request) {
	operationID := mux.Vars(r)["operationID"]

	info, err := s.ops.Registry().Get(operationID)
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	writeData(w, http.StatusOK, map[string]any{
		"operation_id": info.ID,
		"project_id":   info.ProjectID,
		"verb":         info.Verb,
		"status":       info.Status,
		"log_count":    info.LogCount,
		"error":        info.Error,
		"started_at":   info.StartedAt,
	})
}

// handleProjectLogs serves historical terminal operations from the durable
// store, newest first. An optional verb query filters by operation type.
func (s *Server) handleProjectLogs(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.opLogs.ListByProject(projectID, r.URL.Query().Get("verb"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load operation history")
		return
	}

	history := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		var lines []string
		_ = json.Unmarshal([]byte(entry.LogsJSON), &lines)
		history = append(history, map[string]any{
			"operation_id":     entry.OperationID,
			"verb":             entry.Verb,
			"status":           entry.Status,
			"error":            entry.Error,
			"lines":            lines,
			"duration_seconds": entry.DurationSeconds,
			"created_at":       entry.CreatedAt,
		})
	}
	writeData(w, http.StatusOK, map[string]any{"operations": history})
}

// handleProjectStatus reconciles a reloaded client: durable project state
// plus whatever operation is live right now.
func (s *Server) handleProjectStatus(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	project, err := s.projects.GetByID(projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	if project == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("project %d does not exist", projectID))
		return
	}

	data := map[string]any{
		"project_id":        project.ID,
		"name":              project.Name,
		"status":            project.Status,
		"deployment_status": project.DeploymentStatus,
		"application_url":   project.ApplicationURL,
	}
	if info, ok := s.ops.Registry().ActiveForProject(projectID); ok {
		data["active_operation"] = map[string]any{
			"operation_id": info.ID,
			"verb":         info.Verb,
			"status":       info.Status,
			"log_count":    info.LogCount,
		}
	}
	writeData(w, http.StatusOK, data)
}
