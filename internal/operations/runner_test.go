package operations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infraforge/internal/cloud"
	"infraforge/internal/models"
)

// fakeSandbox scripts the outcome of each command in order.
type fakeSandbox struct {
	calls []Command
	run   func(ctx context.Context, cmd Command, onLine func(string)) (int, error)
}

func (f *fakeSandbox) Run(ctx context.Context, workDir string, env []string, cmd Command, onLine func(string)) (int, error) {
	f.calls = append(f.calls, cmd)
	return f.run(ctx, cmd, onLine)
}

type fakeOpLogs struct {
	saved []*models.OperationLog
}

func (f *fakeOpLogs) Save(entry *models.OperationLog) error {
	f.saved = append(f.saved, entry)
	return nil
}

func (f *fakeOpLogs) ListByProject(projectID uint, verb string, limit int) ([]models.OperationLog, error) {
	return nil, nil
}

type fakeProjects struct {
	deployment map[uint]models.DeploymentStatus
}

func (f *fakeProjects) Create(p *models.Project) error { return nil }
func (f *fakeProjects) GetByID(id uint) (*models.Project, error) { return nil, nil }
func (f *fakeProjects) List(limit, offset int) ([]models.Project, error) { return nil, nil }
func (f *fakeProjects) UpdateGenerationStatus(id uint, s models.WorkflowStatus) error {
	return nil
}
func (f *fakeProjects) UpdateDeploymentStatus(id uint, s models.DeploymentStatus) error {
	if f.deployment == nil {
		f.deployment = map[uint]models.DeploymentStatus{}
	}
	f.deployment[id] = s
	return nil
}
func (f *fakeProjects) UpdateApplicationURL(id uint, url string) error { return nil }

func newTestRunner(t *testing.T, sandbox Sandbox, ceiling time.Duration) (*Runner, *Registry, *fakeOpLogs, *fakeProjects) {
	t.Helper()
	registry := NewRegistry(nil)
	opLogs := &fakeOpLogs{}
	projects := &fakeProjects{}
	runner := NewRunner(RunnerConfig{
		Registry:         registry,
		Sandbox:          sandbox,
		Broker:           cloud.StaticBroker{Creds: cloud.Credentials{AccessKeyID: "AKIA", SecretAccessKey: "secret", Region: "us-east-1"}},
		OperationLogs:    opLogs,
		Projects:         projects,
		ExecutionCeiling: ceiling,
	})
	return runner, registry, opLogs, projects
}

func testProjectContext(t *testing.T) ProjectContext {
	t.Helper()
	return ProjectContext{
		ProjectID: 1,
		Name:      "widget-api",
		WorkDir:   t.TempDir(),
		RoleRef:   "arn:aws:iam::123:role/deploy",
	}
}

func TestRunner_SuccessfulPlan(t *testing.T) {
	sandbox := &fakeSandbox{
		run: func(ctx context.Context, cmd Command, onLine func(string)) (int, error) {
			onLine(cmd.Label + ": ok")
			return 0, nil
		},
	}
	runner, registry, opLogs, projects := newTestRunner(t, sandbox, time.Minute)

	id, err := registry.Create(1, VerbPlan)
	require.NoError(t, err)

	runner.Run(context.Background(), id, VerbPlan, testProjectContext(t))

	res, err := registry.Read(id, 0)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{
		"$ terraform init",
		"terraform init: ok",
		"$ terraform plan",
		"terraform plan: ok",
	}, res.Lines)

	require.Len(t, opLogs.saved, 1)
	assert.Equal(t, "plan", opLogs.saved[0].Verb)
	assert.Equal(t, "completed", opLogs.saved[0].Status)
	assert.Equal(t, models.DeploymentPlanned, projects.deployment[1])
}

func TestRunner_NonZeroExitSummarizesTail(t *testing.T) {
	sandbox := &fakeSandbox{
		run: func(ctx context.Context, cmd Command, onLine func(string)) (int, error) {
			if cmd.Label == "terraform plan" {
				onLine("Error: Invalid provider configuration")
				return 1, nil
			}
			return 0, nil
		},
	}
	runner, registry, _, projects := newTestRunner(t, sandbox, time.Minute)

	id, _ := registry.Create(1, VerbPlan)
	runner.Run(context.Background(), id, VerbPlan, testProjectContext(t))

	info, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "terraform plan exited with code 1")
	assert.Contains(t, info.Error, "Invalid provider configuration")
	assert.Equal(t, models.DeploymentFailed, projects.deployment[1])
}

func TestRunner_SetupFailureProducesNoOutput(t *testing.T) {
	sandbox := &fakeSandbox{
		run: func(ctx context.Context, cmd Command, onLine func(string)) (int, error) {
			t.Fatal("sandbox must not be invoked on setup failure")
			return 0, nil
		},
	}
	registry := NewRegistry(nil)
	opLogs := &fakeOpLogs{}
	runner := NewRunner(RunnerConfig{
		Registry:      registry,
		Sandbox:       sandbox,
		Broker:        cloud.StaticBroker{Err: fmt.Errorf("role is not trusted")},
		OperationLogs: opLogs,
	})

	id, _ := registry.Create(1, VerbApply)
	runner.Run(context.Background(), id, VerbApply, testProjectContext(t))

	info, err := registry.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "could not assume deployment role")
	assert.Zero(t, info.LogCount)
	assert.Empty(t, sandbox.calls)
}

func TestRunner_MissingWorkspaceIsSetupFailure(t *testing.T) {
	sandbox := &fakeSandbox{
		run: func(ctx context.Context, cmd Command, onLine func(string)) (int, error) {
			return 0, nil
		},
	}
	runner, registry, _, _ := newTestRunner(t, sandbox, time.Minute)

	id, _ := registry.Create(1, VerbPlan)
	pctx := testProjectContext(t)
	pctx.WorkDir = "/nonexistent/project-1"
	runner.Run(context.Background(), id, VerbPlan, pctx)

	info, _ := registry.Get(id)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "project workspace is missing")
	assert.Zero(t, info.LogCount)
}

func TestRunner_CeilingTimeout(t *testing.T) {
	sandbox := &fakeSandbox{
		run: func(ctx context.Context, cmd Command, onLine func(string)) (int, error) {
			<-ctx.Done()
			return -1, ctx.Err()
		},
	}
	runner, registry, _, _ := newTestRunner(t, sandbox, 10*time.Millisecond)

	id, _ := registry.Create(1, VerbApply)
	runner.Run(context.Background(), id, VerbApply, testProjectContext(t))

	info, _ := registry.Get(id)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "execution ceiling")
}

func TestRunner_CommandTimeoutNamesTheCommand(t *testing.T) {
	// The command's own deadline expires while the operation-wide ceiling
	// is nowhere near; the failure must blame the command, not the ceiling.
	sandbox := &fakeSandbox{
		run: func(ctx context.Context, cmd Command, onLine func(string)) (int, error) {
			return -1, context.DeadlineExceeded
		},
	}
	runner, registry, _, _ := newTestRunner(t, sandbox, time.Hour)

	id, _ := registry.Create(1, VerbPlan)
	runner.Run(context.Background(), id, VerbPlan, testProjectContext(t))

	info, _ := registry.Get(id)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "terraform init exceeded its time limit of 5m0s")
	assert.NotContains(t, info.Error, "execution ceiling")
}

func TestRunner_ForceTimeoutIsIdempotent(t *testing.T) {
	runner, registry, opLogs, _ := newTestRunner(t, &fakeSandbox{}, time.Minute)

	id, _ := registry.Create(1, VerbPlan)
	require.NoError(t, registry.Complete(id, StatusCompleted, ""))

	runner.ForceTimeout(id)

	info, _ := registry.Get(id)
	assert.Equal(t, StatusCompleted, info.Status)
	assert.Empty(t, opLogs.saved)
}

func TestRunner_ForceTimeoutFailsRunningOperation(t *testing.T) {
	runner, registry, opLogs, _ := newTestRunner(t, &fakeSandbox{}, time.Minute)

	id, _ := registry.Create(1, VerbApply)
	registry.Append(id, "applying...")

	runner.ForceTimeout(id)

	info, _ := registry.Get(id)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, "execution ceiling")
	require.Len(t, opLogs.saved, 1)
	assert.Equal(t, "failed", opLogs.saved[0].Status)
}
