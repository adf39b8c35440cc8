package events

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindStatus   Kind = "status"
	KindLog      Kind = "log"
	KindComplete Kind = "complete"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one entry in a session's ordered event list. Kind selects which
// fields are meaningful: status events carry Stage+Message, log events carry
// Agent+Message+Level, complete events carry Status+Files+Error.
type Event struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	SessionKey string            `json:"sessionKey,omitempty"`
	Stage      string            `json:"stage,omitempty"`
	Agent      string            `json:"agent,omitempty"`
	Message    string            `json:"message,omitempty"`
	Level      Level             `json:"level,omitempty"`
	Status     string            `json:"status,omitempty"`
	Progress   int               `json:"progress,omitempty"`
	Files      map[string]string `json:"files,omitempty"`
	Error      string            `json:"error,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// NewStatus creates a status event for a stage transition.
func NewStatus(stage, status, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      KindStatus,
		Stage:     stage,
		Status:    status,
		Progress:  ProgressFor(stage),
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewLog creates a log event attributed to one agent.
func NewLog(agent, message string, level Level) Event {
	if level == "" {
		level = LevelInfo
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      KindLog,
		Agent:     agent,
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	}
}

// NewComplete creates the terminal event of a session.
func NewComplete(status string, files map[string]string, errMsg string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      KindComplete,
		Status:    status,
		Progress:  100,
		Files:     files,
		Error:     errMsg,
		Timestamp: time.Now(),
	}
}
