package operations

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"infraforge/internal/models"
	"infraforge/internal/repositories"
	"infraforge/internal/workspace"
)

// Service is the entry point for starting infrastructure verbs: it checks
// preconditions, registers the operation and hands it to a runner goroutine.
type Service struct {
	registry    *Registry
	runner      *Runner
	projects    repositories.ProjectRepository
	generations repositories.GenerationRepository
	workRoot    string
	logger      *zap.Logger
}

type ServiceConfig struct {
	Registry    *Registry
	Runner      *Runner
	Projects    repositories.ProjectRepository
	Generations repositories.GenerationRepository
	WorkRoot    string
	Logger      *zap.Logger
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		registry:    cfg.Registry,
		runner:      cfg.Runner,
		projects:    cfg.Projects,
		generations: cfg.Generations,
		workRoot:    cfg.WorkRoot,
		logger:      cfg.Logger,
	}
}

// Start validates the project, enforces the completed-generation
// precondition and launches the verb. The operation identifier is returned
// immediately; execution proceeds in the background.
func (s *Service) Start(ctx context.Context, projectID uint, verbName string) (string, error) {
	verb, err := ParseVerb(verbName)
	if err != nil {
		return "", err
	}

	project, err := s.projects.GetByID(projectID)
	if err != nil {
		return "", fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return "", fmt.Errorf("%w: %d", ErrUnknownProject, projectID)
	}

	// Infrastructure verbs are only meaningful once artifacts exist.
	generation, err := s.generations.LatestByProject(projectID)
	if err != nil {
		return "", fmt.Errorf("load generation: %w", err)
	}
	if generation == nil || generation.Status != models.WorkflowCompleted {
		return "", fmt.Errorf("%w: %d", ErrNoCompletedGeneration, projectID)
	}

	operationID, err := s.registry.Create(projectID, verb)
	if err != nil {
		return "", err
	}

	pctx := ProjectContext{
		ProjectID:  projectID,
		Name:       project.Name,
		WorkDir:    workspace.ProjectDir(s.workRoot, projectID),
		RoleRef:    project.CredentialRef,
		ExternalID: project.ExternalID,
		Region:     project.Region,
	}

	s.logger.Info("operation accepted",
		zap.String("operation_id", operationID),
		zap.String("verb", string(verb)),
		zap.Uint("project_id", projectID))

	// The runner owns the operation from here; detach from the request
	// context so a client disconnect does not kill the run.
	go s.runner.Run(context.WithoutCancel(ctx), operationID, verb, pctx)

	return operationID, nil
}

// Registry exposes the underlying registry for read paths.
func (s *Service) Registry() *Registry {
	return s.registry
}
