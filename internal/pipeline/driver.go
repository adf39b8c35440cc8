package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"infraforge/internal/events"
	"infraforge/internal/memory"
	"infraforge/internal/models"
	"infraforge/internal/repositories"
	"infraforge/internal/workspace"
)

const subscriberBuffer = 64

// StartInput is the request to begin a new generation session.
type StartInput struct {
	ProjectID     uint
	RepositoryURL string
	TemplateKind  string
	CredentialRef string
}

func (in StartInput) validate() error {
	if in.ProjectID == 0 {
		return fmt.Errorf("%w: project id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.RepositoryURL) == "" {
		return fmt.Errorf("%w: repository url is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.TemplateKind) == "" {
		return fmt.Errorf("%w: template kind is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.CredentialRef) == "" {
		return fmt.Errorf("%w: credential reference is required", ErrInvalidInput)
	}
	return nil
}

// Snapshot is a point-in-time view of a session for status polling.
type Snapshot struct {
	SessionID  string                `json:"session_id"`
	ProjectID  uint                  `json:"project_id"`
	Status     models.WorkflowStatus `json:"status"`
	Stage      string                `json:"stage,omitempty"`
	Progress   int                   `json:"progress"`
	Files      map[string]string     `json:"files,omitempty"`
	Error      string                `json:"error,omitempty"`
	EventCount int                   `json:"event_count"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

type session struct {
	mu sync.Mutex

	id            string
	projectID     uint
	repositoryURL string
	templateKind  string
	credentialRef string

	status    models.WorkflowStatus
	stage     string
	errMsg    string
	prBranch  string
	events    []events.Event
	files     map[string]string
	createdAt time.Time
	updatedAt time.Time

	subscribers []chan events.Event
}

// Driver runs the fixed generation stage sequence for each session and is
// the single writer of session state. Readers poll through Status and
// Subscribe; the ordered event list is the only source of progress truth.
type Driver struct {
	mu       sync.RWMutex
	sessions map[string]*session

	store         *memory.Store
	generations   repositories.GenerationRepository
	projects      repositories.ProjectRepository
	stages        []Stage
	retries       int
	workRoot      string
	retention     time.Duration
	sweepInterval time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// DriverConfig wires a Driver. Retries defaults to 3, Retention to 5m,
// SweepInterval to 30s and Now to time.Now.
type DriverConfig struct {
	Store         *memory.Store
	Generations   repositories.GenerationRepository
	Projects      repositories.ProjectRepository
	Stages        []Stage
	Retries       int
	WorkRoot      string
	Retention     time.Duration
	SweepInterval time.Duration
	Logger        *zap.Logger
	Now           func() time.Time
}

func NewDriver(cfg DriverConfig) *Driver {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Driver{
		sessions:      make(map[string]*session),
		store:         cfg.Store,
		generations:   cfg.Generations,
		projects:      cfg.Projects,
		stages:        cfg.Stages,
		retries:       cfg.Retries,
		workRoot:      cfg.WorkRoot,
		retention:     cfg.Retention,
		sweepInterval: cfg.SweepInterval,
		logger:        cfg.Logger,
		now:           cfg.Now,
	}
}

func newSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Start validates the request, registers the session, and launches the
// stage sequence in the background. The session ID is returned immediately.
func (d *Driver) Start(ctx context.Context, input StartInput) (string, error) {
	if err := input.validate(); err != nil {
		return "", err
	}

	project, err := d.projects.GetByID(input.ProjectID)
	if err != nil {
		return "", fmt.Errorf("failed to load project %d: %w", input.ProjectID, err)
	}
	if project == nil {
		return "", fmt.Errorf("%w: project %d does not exist", ErrInvalidInput, input.ProjectID)
	}

	now := d.now()
	sess := &session{
		id:            newSessionID(),
		projectID:     input.ProjectID,
		repositoryURL: input.RepositoryURL,
		templateKind:  input.TemplateKind,
		credentialRef: input.CredentialRef,
		status:        models.WorkflowStarted,
		files:         make(map[string]string),
		createdAt:     now,
		updatedAt:     now,
	}

	if err := d.generations.Create(&models.Generation{
		SessionID:     sess.id,
		ProjectID:     input.ProjectID,
		RepositoryURL: input.RepositoryURL,
		TemplateKind:  input.TemplateKind,
		Status:        models.WorkflowStarted,
	}); err != nil {
		return "", fmt.Errorf("failed to record generation session: %w", err)
	}

	d.store.CreateSession(sess.id)

	d.mu.Lock()
	d.sessions[sess.id] = sess
	d.mu.Unlock()

	d.emit(sess, events.NewStatus("accepted", string(models.WorkflowStarted), "generation session accepted"))

	go d.run(context.WithoutCancel(ctx), sess)
	return sess.id, nil
}

// Subscribe returns a finite, forward-only feed of the session's events.
// Events already emitted are replayed first; the channel closes once the
// session reaches a terminal state.
func (d *Driver) Subscribe(sessionID string) (<-chan events.Event, error) {
	d.mu.RLock()
	sess, ok := d.sessions[sessionID]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	backlog := make([]events.Event, len(sess.events))
	copy(backlog, sess.events)

	ch := make(chan events.Event, len(backlog)+subscriberBuffer)
	for _, ev := range backlog {
		ch <- ev
	}
	if sess.status.Terminal() {
		close(ch)
		return ch, nil
	}
	sess.subscribers = append(sess.subscribers, ch)
	return ch, nil
}

// Status returns a point-in-time snapshot of the session.
func (d *Driver) Status(sessionID string) (Snapshot, error) {
	d.mu.RLock()
	sess, ok := d.sessions[sessionID]
	d.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	files := make(map[string]string, len(sess.files))
	for k, v := range sess.files {
		files[k] = v
	}
	progress := events.ProgressFor(sess.stage)
	if sess.status == models.WorkflowCompleted {
		progress = 100
	}
	return Snapshot{
		SessionID:  sess.id,
		ProjectID:  sess.projectID,
		Status:     sess.status,
		Stage:      sess.stage,
		Progress:   progress,
		Files:      files,
		Error:      sess.errMsg,
		EventCount: len(sess.events),
		CreatedAt:  sess.createdAt,
		UpdatedAt:  sess.updatedAt,
	}, nil
}

// Events returns a copy of the ordered event list.
func (d *Driver) Events(sessionID string) ([]events.Event, error) {
	d.mu.RLock()
	sess, ok := d.sessions[sessionID]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]events.Event, len(sess.events))
	copy(out, sess.events)
	return out, nil
}

// StartRetention runs the fixed-interval sweep that removes terminal
// sessions from memory once their retention window elapses, dropping the
// session's memory namespace with them. Queries for swept sessions fall
// back to the durable generation record.
func (d *Driver) StartRetention(ctx context.Context) {
	ticker := time.NewTicker(d.sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.sweepSessions()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *Driver) sweepSessions() {
	now := d.now()

	d.mu.Lock()
	expired := make(map[string]models.WorkflowStatus)
	for id, sess := range d.sessions {
		sess.mu.Lock()
		done := sess.status.Terminal() && now.Sub(sess.updatedAt) > d.retention
		status := sess.status
		sess.mu.Unlock()
		if done {
			delete(d.sessions, id)
			expired[id] = status
		}
	}
	d.mu.Unlock()

	for id, status := range expired {
		d.store.DropSession(id)
		d.logger.Info("evicted session",
			zap.String("session", id), zap.String("status", string(status)))
	}
}

func (d *Driver) run(ctx context.Context, sess *session) {
	log := d.logger.With(zap.String("session", sess.id), zap.Uint("project", sess.projectID))

	for _, stage := range d.stages {
		if key, ok := d.missingKey(sess.id, stage); !ok {
			d.fail(sess, stage.Name(),
				fmt.Errorf("%w: stage %s requires %s", ErrMissingContext, stage.Name(), key))
			return
		}

		d.setStage(sess, stage.Name())
		d.emit(sess, events.NewStatus(stage.Name(), string(d.statusFor(stage.Name())),
			fmt.Sprintf("starting %s", stage.Name())))
		log.Info("stage starting", zap.String("stage", stage.Name()))

		sc := d.stageContext(sess, stage)
		var lastErr error
		for attempt := 1; attempt <= d.retries; attempt++ {
			lastErr = stage.Run(ctx, sc)
			if lastErr == nil {
				break
			}
			log.Warn("stage attempt failed",
				zap.String("stage", stage.Name()), zap.Int("attempt", attempt), zap.Error(lastErr))
			d.emit(sess, events.NewLog(stage.Agent(),
				fmt.Sprintf("attempt %d/%d failed: %v", attempt, d.retries, lastErr), events.LevelWarn))
		}
		if lastErr != nil {
			d.fail(sess, stage.Name(), lastErr)
			return
		}
	}

	d.complete(sess)
	log.Info("session completed")
}

// missingKey returns the first required memory key the stage is missing.
func (d *Driver) missingKey(sessionID string, stage Stage) (string, bool) {
	for _, key := range stage.Requires() {
		if !d.store.Has(sessionID, key) {
			return key, false
		}
	}
	return "", true
}

func (d *Driver) stageContext(sess *session, stage Stage) *StageContext {
	return &StageContext{
		SessionID:     sess.id,
		ProjectID:     sess.projectID,
		RepositoryURL: sess.repositoryURL,
		TemplateKind:  sess.templateKind,
		WorkDir:       workspace.ProjectDir(d.workRoot, sess.projectID),
		store:         d.store,
		agent:         stage.Agent(),
		log: func(message string, level events.Level) {
			d.emit(sess, events.NewLog(stage.Agent(), message, level))
		},
		addFile: func(name, content string) {
			sess.mu.Lock()
			sess.files[name] = content
			sess.mu.Unlock()
		},
		files: func() map[string]string {
			sess.mu.Lock()
			defer sess.mu.Unlock()
			out := make(map[string]string, len(sess.files))
			for k, v := range sess.files {
				out[k] = v
			}
			return out
		},
		setBranch: func(branch string) {
			sess.mu.Lock()
			sess.prBranch = branch
			sess.mu.Unlock()
		},
	}
}

// statusFor maps a stage to the coarse workflow status clients see.
func (d *Driver) statusFor(stageName string) models.WorkflowStatus {
	if stageName == StageAnalysis {
		return models.WorkflowAnalyzing
	}
	return models.WorkflowGenerating
}

func (d *Driver) setStage(sess *session, stageName string) {
	status := d.statusFor(stageName)
	sess.mu.Lock()
	sess.stage = stageName
	sess.status = status
	sess.updatedAt = d.now()
	sess.mu.Unlock()

	if err := d.generations.UpdateStatus(sess.id, status); err != nil {
		d.logger.Warn("failed to persist session status",
			zap.String("session", sess.id), zap.Error(err))
	}
	if err := d.projects.UpdateGenerationStatus(sess.projectID, status); err != nil {
		d.logger.Warn("failed to persist project status",
			zap.String("session", sess.id), zap.Error(err))
	}
}

// emit appends the event to the session's ordered list and fans it out to
// subscribers. A subscriber that cannot keep up loses the event rather than
// blocking the pipeline.
func (d *Driver) emit(sess *session, ev events.Event) {
	ev.SessionKey = sess.id

	sess.mu.Lock()
	sess.events = append(sess.events, ev)
	sess.updatedAt = d.now()
	subs := make([]chan events.Event, len(sess.subscribers))
	copy(subs, sess.subscribers)
	sess.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (d *Driver) complete(sess *session) {
	sess.mu.Lock()
	sess.status = models.WorkflowCompleted
	sess.errMsg = ""
	sess.updatedAt = d.now()
	files := make(map[string]string, len(sess.files))
	for k, v := range sess.files {
		files[k] = v
	}
	branch := sess.prBranch
	sess.mu.Unlock()

	d.store.Seal(sess.id)
	d.persistTerminal(sess, models.WorkflowCompleted, "")
	if branch != "" {
		if err := d.generations.AttachPullRequest(sess.id, branch, ""); err != nil {
			d.logger.Warn("failed to record delivery branch",
				zap.String("session", sess.id), zap.Error(err))
		}
	}

	d.emit(sess, events.NewComplete(string(models.WorkflowCompleted), files, ""))
	d.closeSubscribers(sess)
}

func (d *Driver) fail(sess *session, stageName string, cause error) {
	summary := fmt.Sprintf("generation failed during %s", stageName)

	sess.mu.Lock()
	sess.status = models.WorkflowFailed
	sess.errMsg = summary
	sess.updatedAt = d.now()
	sess.mu.Unlock()

	d.logger.Error("session failed",
		zap.String("session", sess.id), zap.String("stage", stageName), zap.Error(cause))
	d.emit(sess, events.NewLog("orchestrator", cause.Error(), events.LevelError))

	d.store.Seal(sess.id)
	d.persistTerminal(sess, models.WorkflowFailed, summary)

	d.emit(sess, events.NewComplete(string(models.WorkflowFailed), nil, summary))
	d.closeSubscribers(sess)
}

// persistTerminal writes the durable record before the terminal state is
// announced to subscribers.
func (d *Driver) persistTerminal(sess *session, status models.WorkflowStatus, errMsg string) {
	sess.mu.Lock()
	filesJSON := mustJSON(sess.files)
	eventsJSON := mustJSON(sess.events)
	sess.mu.Unlock()
	contextJSON := mustJSON(d.store.Snapshot(sess.id))

	if err := d.generations.MarkTerminal(sess.id, status, errMsg, filesJSON, eventsJSON, contextJSON); err != nil {
		d.logger.Error("failed to persist terminal session state",
			zap.String("session", sess.id), zap.Error(err))
	}
	if err := d.projects.UpdateGenerationStatus(sess.projectID, status); err != nil {
		d.logger.Warn("failed to persist terminal project status",
			zap.String("session", sess.id), zap.Error(err))
	}
}

func (d *Driver) closeSubscribers(sess *session) {
	sess.mu.Lock()
	subs := sess.subscribers
	sess.subscribers = nil
	sess.mu.Unlock()

	for _, ch := range subs {
		close(ch)
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
