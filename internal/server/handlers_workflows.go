package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"infraforge/internal/events"
	"infraforge/internal/models"
	"infraforge/internal/pipeline"
)

type workflowStartRequest struct {
	ProjectID     uint   `json:"project_id"`
	ProjectName   string `json:"project_name"`
	RepositoryURL string `json:"repository_url"`
	TemplateKind  string `json:"template_kind"`
	CredentialRef string `json:"credential_ref"`
	ExternalID    string `json:"external_id"`
	Region        string `json:"region"`
}

// handleWorkflowStart registers the project if needed and launches a
// generation session. The session ID comes back immediately; progress is
// consumed through the stream or status endpoints.
func (s *Server) handleWorkflowStart(w http.ResponseWriter, r *http.Request) {
	var req workflowStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ProjectID == 0 {
		project := &models.Project{
			Name:          req.ProjectName,
			RepositoryURL: req.RepositoryURL,
			TemplateKind:  req.TemplateKind,
			CredentialRef: req.CredentialRef,
			ExternalID:    req.ExternalID,
			Region:        req.Region,
			Status:        models.WorkflowNotStarted,
		}
		if project.Name == "" {
			project.Name = req.RepositoryURL
		}
		if err := s.projects.Create(project); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to register project")
			return
		}
		req.ProjectID = project.ID
	}

	sessionID, err := s.driver.Start(r.Context(), pipeline.StartInput{
		ProjectID:     req.ProjectID,
		RepositoryURL: req.RepositoryURL,
		TemplateKind:  req.TemplateKind,
		CredentialRef: req.CredentialRef,
	})
	if err != nil {
		writeErrorFromErr(w, err)
		return
	}

	writeData(w, http.StatusAccepted, map[string]any{
		"session_id": sessionID,
		"project_id": req.ProjectID,
		"status":     models.WorkflowStarted,
		"stream_url": fmt.Sprintf("/api/v1/workflows/stream/%s", sessionID),
	})
}

// handleWorkflowStream delivers the session's event feed as server-sent
// events. Live sessions stream until the complete event; terminal sessions
// that already left memory are replayed from the durable record.
func (s *Server) handleWorkflowStream(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, err := s.driver.Subscribe(sessionID)
	if err != nil {
		replay, replayErr := s.replayEvents(sessionID)
		if replayErr != nil {
			writeErrorFromErr(w, err)
			return
		}
		s.streamEvents(w, r, flusher, replay)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

// replayEvents rebuilds the event list of a terminal session from the
// generations table.
func (s *Server) replayEvents(sessionID string) ([]events.Event, error) {
	gen, err := s.generations.GetBySessionID(sessionID)
	if err != nil || gen == nil {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrUnknownSession, sessionID)
	}
	var evs []events.Event
	if err := json.Unmarshal([]byte(gen.EventsJSON), &evs); err != nil {
		s.logger.Warn("failed to decode stored events",
			zap.String("session", sessionID), zap.Error(err))
		return nil, fmt.Errorf("%w: %s", pipeline.ErrUnknownSession, sessionID)
	}
	return evs, nil
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, flusher http.Flusher, evs []events.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	for _, ev := range evs {
		if r.Context().Err() != nil {
			return
		}
		writeSSE(w, ev)
		flusher.Flush()
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
}

// handleWorkflowStatus serves the polling fallback: current status, stage
// progress, and the artifact set once present.
func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]

	snap, err := s.driver.Status(sessionID)
	if err == nil {
		writeData(w, http.StatusOK, snap)
		return
	}

	gen, dbErr := s.generations.GetBySessionID(sessionID)
	if dbErr != nil || gen == nil {
		writeErrorFromErr(w, err)
		return
	}

	var files map[string]string
	_ = json.Unmarshal([]byte(gen.FilesJSON), &files)
	progress := 0
	if gen.Status == models.WorkflowCompleted {
		progress = 100
	}
	writeData(w, http.StatusOK, pipeline.Snapshot{
		SessionID: gen.SessionID,
		ProjectID: gen.ProjectID,
		Status:    gen.Status,
		Progress:  progress,
		Files:     files,
		Error:     gen.Error,
		CreatedAt: gen.CreatedAt,
		UpdatedAt: gen.UpdatedAt,
	})
}
