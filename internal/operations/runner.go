package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"infraforge/internal/cloud"
	"infraforge/internal/models"
	"infraforge/internal/repositories"
)

// errorTailLines is how many trailing output lines feed the error summary
// when the sandbox exits non-zero without an explicit error signal.
const errorTailLines = 5

// Runner drives one operation to completion against the sandbox and relays
// its output into the registry. Exactly one runner goroutine owns an
// operation; pollers only ever read.
type Runner struct {
	registry *Registry
	sandbox  Sandbox
	broker   cloud.CredentialBroker
	opLogs   repositories.OperationLogRepository
	projects repositories.ProjectRepository
	ceiling  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

type RunnerConfig struct {
	Registry         *Registry
	Sandbox          Sandbox
	Broker           cloud.CredentialBroker
	OperationLogs    repositories.OperationLogRepository
	Projects         repositories.ProjectRepository
	ExecutionCeiling time.Duration
	Logger           *zap.Logger
	Now              func() time.Time
}

func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{
		registry: cfg.Registry,
		sandbox:  cfg.Sandbox,
		broker:   cfg.Broker,
		opLogs:   cfg.OperationLogs,
		projects: cfg.Projects,
		ceiling:  cfg.ExecutionCeiling,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Run executes the verb for an already-created operation. It blocks until
// the operation reaches a terminal status; callers start it on its own
// goroutine.
func (r *Runner) Run(ctx context.Context, operationID string, verb Verb, pctx ProjectContext) {
	start := r.now()

	creds, commands, setupErr := r.prepare(ctx, verb, pctx)
	if setupErr != nil {
		// Pre-execution failure: no output was ever appended, and the
		// error message says so.
		r.logger.Warn("operation setup failed",
			zap.String("operation_id", operationID),
			zap.String("verb", string(verb)),
			zap.Error(setupErr))
		_ = r.registry.Complete(operationID, StatusFailed, setupErr.Error())
		r.persistTerminal(operationID, verb, pctx, start)
		return
	}

	runCtx := ctx
	if r.ceiling > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.ceiling)
		defer cancel()
	}

	env := append(os.Environ(), creds.Env()...)
	var tail []string
	onLine := func(line string) {
		_ = r.registry.Append(operationID, line)
		tail = append(tail, line)
		if len(tail) > errorTailLines {
			tail = tail[1:]
		}
	}

	for _, cmd := range commands {
		onLine(fmt.Sprintf("$ %s", cmd.Label))
		exit, err := r.sandbox.Run(runCtx, pctx.WorkDir, env, cmd, onLine)
		if err != nil {
			switch {
			case runCtx.Err() != nil:
				// The operation-wide deadline fired (or the caller cancelled).
				_ = r.registry.Complete(operationID, StatusFailed, r.timeoutMessage())
			case errors.Is(err, context.DeadlineExceeded):
				// Only this command's own time limit expired.
				_ = r.registry.Complete(operationID, StatusFailed,
					fmt.Sprintf("%s exceeded its time limit of %s and was terminated", cmd.Label, cmd.Timeout))
			default:
				_ = r.registry.Complete(operationID, StatusFailed,
					fmt.Sprintf("execution failed during %s: %v", cmd.Label, err))
			}
			r.persistTerminal(operationID, verb, pctx, start)
			return
		}
		if exit != 0 {
			_ = r.registry.Complete(operationID, StatusFailed,
				fmt.Sprintf("%s exited with code %d: %s", cmd.Label, exit, summarize(tail)))
			r.persistTerminal(operationID, verb, pctx, start)
			return
		}
	}

	_ = r.registry.Complete(operationID, StatusCompleted, "")
	r.persistTerminal(operationID, verb, pctx, start)
}

// prepare resolves credentials and the command sequence. Any failure here is
// a setup failure: the sandbox was never invoked.
func (r *Runner) prepare(ctx context.Context, verb Verb, pctx ProjectContext) (cloud.Credentials, []Command, error) {
	if pctx.WorkDir == "" {
		return cloud.Credentials{}, nil, &SetupError{Reason: "project workspace is not prepared"}
	}
	if _, err := os.Stat(pctx.WorkDir); err != nil {
		return cloud.Credentials{}, nil, &SetupError{Reason: "project workspace is missing", Cause: err}
	}
	creds, err := r.broker.Assume(ctx, pctx.RoleRef, pctx.ExternalID)
	if err != nil {
		return cloud.Credentials{}, nil, &SetupError{Reason: "could not assume deployment role", Cause: err}
	}
	commands, err := commandsFor(verb, pctx)
	if err != nil {
		return cloud.Credentials{}, nil, &SetupError{Reason: "could not assemble command sequence", Cause: err}
	}
	return creds, commands, nil
}

// ForceTimeout fails a running operation that exceeded the execution
// ceiling. The registry guarantees the transition happens at most once, so
// the reaper and a racing runner cannot both record an outcome.
func (r *Runner) ForceTimeout(operationID string) {
	info, err := r.registry.Get(operationID)
	if err != nil || info.Status.Terminal() {
		return
	}
	_ = r.registry.Complete(operationID, StatusFailed, r.timeoutMessage())
	r.persistTerminal(operationID, info.Verb, ProjectContext{ProjectID: info.ProjectID}, info.StartedAt)
}

func (r *Runner) timeoutMessage() string {
	return fmt.Sprintf("operation exceeded the execution ceiling of %s and was terminated", r.ceiling)
}

// persistTerminal writes the durable copy of a finished operation and keeps
// the project's deployment status consistent with the outcome.
func (r *Runner) persistTerminal(operationID string, verb Verb, pctx ProjectContext, start time.Time) {
	info, err := r.registry.Get(operationID)
	if err != nil {
		return
	}
	lines, _ := r.registry.Lines(operationID)

	if r.opLogs != nil {
		logsJSON, err := json.Marshal(lines)
		if err != nil {
			logsJSON = []byte("[]")
		}
		entry := &models.OperationLog{
			OperationID:     operationID,
			ProjectID:       info.ProjectID,
			Verb:            string(verb),
			Status:          string(info.Status),
			Error:           info.Error,
			LogsJSON:        string(logsJSON),
			DurationSeconds: int(r.now().Sub(start) / time.Second),
		}
		if err := r.opLogs.Save(entry); err != nil {
			r.logger.Warn("failed to persist operation log",
				zap.String("operation_id", operationID), zap.Error(err))
		}
	}

	if r.projects != nil && info.ProjectID != 0 {
		status := deploymentStatusFor(verb, info.Status)
		if status != "" {
			if err := r.projects.UpdateDeploymentStatus(info.ProjectID, status); err != nil {
				r.logger.Warn("failed to update project deployment status",
					zap.Uint("project_id", info.ProjectID), zap.Error(err))
			}
		}
	}

	r.logger.Info("operation finished",
		zap.String("operation_id", operationID),
		zap.String("verb", string(verb)),
		zap.String("status", string(info.Status)),
		zap.Int("log_lines", len(lines)))
}

func deploymentStatusFor(verb Verb, status Status) models.DeploymentStatus {
	if status == StatusFailed {
		return models.DeploymentFailed
	}
	switch verb {
	case VerbBuildImage:
		return models.DeploymentImageBuilt
	case VerbPlan:
		return models.DeploymentPlanned
	case VerbApply:
		return models.DeploymentDeployed
	case VerbDestroy:
		return models.DeploymentDestroyed
	}
	return ""
}

// summarize turns the trailing output lines into a short human-readable
// summary, kept distinct from the raw diagnostics in the log buffer.
func summarize(tail []string) string {
	parts := make([]string, 0, len(tail))
	for _, l := range tail {
		if trimmed := strings.TrimSpace(l); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "no output captured"
	}
	return strings.Join(parts, " | ")
}
