package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infraforge/internal/events"
	"infraforge/internal/memory"
	"infraforge/internal/models"
)

type fakeGenerations struct {
	mu       sync.Mutex
	created  []*models.Generation
	statuses []models.WorkflowStatus
	terminal *models.Generation
	prBranch string
}

func (f *fakeGenerations) Create(g *models.Generation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, g)
	return nil
}

func (f *fakeGenerations) GetBySessionID(sessionID string) (*models.Generation, error) {
	return nil, nil
}

func (f *fakeGenerations) LatestByProject(projectID uint) (*models.Generation, error) {
	return nil, nil
}

func (f *fakeGenerations) ListByProject(projectID uint, limit int) ([]models.Generation, error) {
	return nil, nil
}

func (f *fakeGenerations) UpdateStatus(sessionID string, status models.WorkflowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeGenerations) MarkTerminal(sessionID string, status models.WorkflowStatus, errMsg, filesJSON, eventsJSON, contextJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminal = &models.Generation{
		SessionID:   sessionID,
		Status:      status,
		Error:       errMsg,
		FilesJSON:   filesJSON,
		EventsJSON:  eventsJSON,
		ContextJSON: contextJSON,
	}
	return nil
}

func (f *fakeGenerations) AttachPullRequest(sessionID, branch, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prBranch = branch
	return nil
}

func (f *fakeGenerations) terminalRecord() *models.Generation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminal
}

type fakeProjects struct{}

func (fakeProjects) Create(p *models.Project) error { return nil }
func (fakeProjects) GetByID(id uint) (*models.Project, error) {
	return &models.Project{ID: id, Name: "widget-api"}, nil
}
func (fakeProjects) List(limit, offset int) ([]models.Project, error) { return nil, nil }
func (fakeProjects) UpdateGenerationStatus(id uint, s models.WorkflowStatus) error { return nil }
func (fakeProjects) UpdateDeploymentStatus(id uint, s models.DeploymentStatus) error {
	return nil
}
func (fakeProjects) UpdateApplicationURL(id uint, url string) error { return nil }

// scriptedStage runs a caller-provided function and counts invocations.
type scriptedStage struct {
	name     string
	requires []string
	run      func(ctx context.Context, sc *StageContext) error

	mu    sync.Mutex
	calls int
}

func (s *scriptedStage) Name() string { return s.name }
func (s *scriptedStage) Agent() string { return s.name + "_agent" }
func (s *scriptedStage) Requires() []string { return s.requires }

func (s *scriptedStage) Run(ctx context.Context, sc *StageContext) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.run == nil {
		return nil
	}
	return s.run(ctx, sc)
}

func (s *scriptedStage) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func validInput() StartInput {
	return StartInput{
		ProjectID:     1,
		RepositoryURL: "https://example.com/widget-api.git",
		TemplateKind:  "ecs-fargate",
		CredentialRef: "arn:aws:iam::123:role/deploy",
	}
}

func newTestDriver(t *testing.T, gens *fakeGenerations, stages ...Stage) *Driver {
	t.Helper()
	return NewDriver(DriverConfig{
		Store:       memory.NewStore(),
		Generations: gens,
		Projects:    fakeProjects{},
		Stages:      stages,
		Retries:     3,
		WorkRoot:    t.TempDir(),
	})
}

func waitTerminal(t *testing.T, d *Driver, sessionID string) Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := d.Status(sessionID)
		return err == nil && snap.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	snap, err := d.Status(sessionID)
	require.NoError(t, err)
	return snap
}

func TestDriver_RejectsInvalidInput(t *testing.T) {
	d := newTestDriver(t, &fakeGenerations{})

	cases := []StartInput{
		{},
		{ProjectID: 1, TemplateKind: "t", CredentialRef: "c"},
		{ProjectID: 1, RepositoryURL: "u", CredentialRef: "c"},
		{ProjectID: 1, RepositoryURL: "u", TemplateKind: "t"},
	}
	for _, input := range cases {
		_, err := d.Start(context.Background(), input)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestDriver_RunsStagesInOrderAndCompletes(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(name string) func(context.Context, *StageContext) error {
		return func(ctx context.Context, sc *StageContext) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return sc.WriteKey(name+"_out", "done")
		}
	}

	gens := &fakeGenerations{}
	d := newTestDriver(t, gens,
		&scriptedStage{name: "analysis", run: record("analysis")},
		&scriptedStage{name: "validation", requires: []string{"analysis_out"}, run: record("validation")},
		&scriptedStage{name: "delivery", requires: []string{"validation_out"},
			run: func(ctx context.Context, sc *StageContext) error {
				sc.AddFile("Dockerfile", "FROM alpine\n")
				mu.Lock()
				order = append(order, "delivery")
				mu.Unlock()
				return nil
			}},
	)

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)
	assert.True(t, len(id) > 5 && id[:5] == "sess_")

	snap := waitTerminal(t, d, id)
	assert.Equal(t, models.WorkflowCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, "FROM alpine\n", snap.Files["Dockerfile"])

	mu.Lock()
	assert.Equal(t, []string{"analysis", "validation", "delivery"}, order)
	mu.Unlock()

	evs, err := d.Events(id)
	require.NoError(t, err)
	require.NotEmpty(t, evs)
	assert.Equal(t, events.KindStatus, evs[0].Kind)
	last := evs[len(evs)-1]
	assert.Equal(t, events.KindComplete, last.Kind)
	assert.Equal(t, "completed", last.Status)

	term := gens.terminalRecord()
	require.NotNil(t, term)
	assert.Equal(t, models.WorkflowCompleted, term.Status)
	assert.Contains(t, term.FilesJSON, "Dockerfile")
}

func TestDriver_RetriesFlakyStage(t *testing.T) {
	attempts := 0
	flaky := &scriptedStage{name: "analysis", run: func(ctx context.Context, sc *StageContext) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient upstream error")
		}
		return nil
	}}
	d := newTestDriver(t, &fakeGenerations{}, flaky)

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)

	snap := waitTerminal(t, d, id)
	assert.Equal(t, models.WorkflowCompleted, snap.Status)
	assert.Equal(t, 3, flaky.callCount())

	evs, _ := d.Events(id)
	warns := 0
	for _, ev := range evs {
		if ev.Kind == events.KindLog && ev.Level == events.LevelWarn {
			warns++
		}
	}
	assert.Equal(t, 2, warns)
}

func TestDriver_FailsAfterRetryBudget(t *testing.T) {
	broken := &scriptedStage{name: "terraform_generation", run: func(ctx context.Context, sc *StageContext) error {
		return fmt.Errorf("model returned malformed output")
	}}
	gens := &fakeGenerations{}
	d := newTestDriver(t, gens, broken)

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)

	snap := waitTerminal(t, d, id)
	assert.Equal(t, models.WorkflowFailed, snap.Status)
	assert.Equal(t, "generation failed during terraform_generation", snap.Error)
	assert.Equal(t, 3, broken.callCount())

	record := gens.terminalRecord()
	require.NotNil(t, record)
	assert.Equal(t, models.WorkflowFailed, record.Status)

	// The raw diagnostic lives in the event log, separate from the summary.
	evs, _ := d.Events(id)
	found := false
	for _, ev := range evs {
		if ev.Kind == events.KindLog && ev.Level == events.LevelError {
			assert.Contains(t, ev.Message, "malformed output")
			found = true
		}
	}
	assert.True(t, found)
}

func TestDriver_MissingContextFailsWithoutRunningStage(t *testing.T) {
	starved := &scriptedStage{name: "quality_check", requires: []string{"terraform_files"}}
	d := newTestDriver(t, &fakeGenerations{}, starved)

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)

	snap := waitTerminal(t, d, id)
	assert.Equal(t, models.WorkflowFailed, snap.Status)
	assert.Zero(t, starved.callCount())

	evs, _ := d.Events(id)
	found := false
	for _, ev := range evs {
		if ev.Kind == events.KindLog && ev.Level == events.LevelError {
			assert.Contains(t, ev.Message, "terraform_files")
			found = true
		}
	}
	assert.True(t, found)
}

func TestDriver_MemorySealedAfterTerminal(t *testing.T) {
	store := memory.NewStore()
	d := NewDriver(DriverConfig{
		Store:       store,
		Generations: &fakeGenerations{},
		Projects:    fakeProjects{},
		Stages: []Stage{&scriptedStage{name: "analysis",
			run: func(ctx context.Context, sc *StageContext) error {
				return sc.WriteKey("repository_context", "{}")
			}}},
		WorkRoot: t.TempDir(),
	})

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)
	waitTerminal(t, d, id)

	err = store.Write(id, "repository_context", "tampered", "late_agent")
	assert.ErrorIs(t, err, memory.ErrSessionSealed)
}

func TestDriver_SubscribeReplaysTerminalSession(t *testing.T) {
	d := newTestDriver(t, &fakeGenerations{}, &scriptedStage{name: "analysis"})

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)
	waitTerminal(t, d, id)

	ch, err := d.Subscribe(id)
	require.NoError(t, err)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, events.KindComplete, got[len(got)-1].Kind)
}

func TestDriver_RetentionSweepEvictsTerminalSessions(t *testing.T) {
	var clockMu sync.Mutex
	current := time.Now()
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return current
	}
	advance := func(by time.Duration) {
		clockMu.Lock()
		current = current.Add(by)
		clockMu.Unlock()
	}

	store := memory.NewStore()
	d := NewDriver(DriverConfig{
		Store:       store,
		Generations: &fakeGenerations{},
		Projects:    fakeProjects{},
		Stages: []Stage{&scriptedStage{name: "analysis",
			run: func(ctx context.Context, sc *StageContext) error {
				return sc.WriteKey("repository_context", "{}")
			}}},
		WorkRoot:  t.TempDir(),
		Retention: 5 * time.Minute,
		Now:       now,
	})

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)
	waitTerminal(t, d, id)

	// Inside the retention window the session stays queryable in memory.
	d.sweepSessions()
	_, err = d.Status(id)
	require.NoError(t, err)

	advance(5*time.Minute + time.Second)
	d.sweepSessions()

	_, err = d.Status(id)
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.Nil(t, store.Snapshot(id), "memory namespace should be dropped with the session")
}

func TestDriver_RetentionSweepLeavesRunningSessions(t *testing.T) {
	var clockMu sync.Mutex
	current := time.Now()
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return current
	}

	release := make(chan struct{})
	d := NewDriver(DriverConfig{
		Store:       memory.NewStore(),
		Generations: &fakeGenerations{},
		Projects:    fakeProjects{},
		Stages: []Stage{&scriptedStage{name: "analysis",
			run: func(ctx context.Context, sc *StageContext) error {
				<-release
				return nil
			}}},
		WorkRoot:  t.TempDir(),
		Retention: 5 * time.Minute,
		Now:       now,
	})

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)

	clockMu.Lock()
	current = current.Add(time.Hour)
	clockMu.Unlock()
	d.sweepSessions()

	// A running session is never evicted, no matter how old.
	_, err = d.Status(id)
	require.NoError(t, err)

	close(release)
	waitTerminal(t, d, id)
}

func TestDriver_SubscribeUnknownSession(t *testing.T) {
	d := newTestDriver(t, &fakeGenerations{})

	_, err := d.Subscribe("sess_missing")
	assert.ErrorIs(t, err, ErrUnknownSession)

	_, err = d.Status("sess_missing")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestDriver_LiveSubscriberSeesCompleteLast(t *testing.T) {
	release := make(chan struct{})
	d := newTestDriver(t, &fakeGenerations{}, &scriptedStage{name: "analysis",
		run: func(ctx context.Context, sc *StageContext) error {
			<-release
			return nil
		}})

	id, err := d.Start(context.Background(), validInput())
	require.NoError(t, err)

	ch, err := d.Subscribe(id)
	require.NoError(t, err)
	close(release)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, events.KindComplete, got[len(got)-1].Kind)
	for _, ev := range got {
		assert.Equal(t, id, ev.SessionKey)
	}
}
