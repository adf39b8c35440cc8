package operations

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Verb is one infrastructure operation kind.
type Verb string

const (
	VerbBuildImage Verb = "build_image"
	VerbPlan       Verb = "plan"
	VerbApply      Verb = "apply"
	VerbDestroy    Verb = "destroy"
)

// ParseVerb validates a client-supplied verb name.
func ParseVerb(s string) (Verb, error) {
	switch Verb(strings.TrimSpace(s)) {
	case VerbBuildImage:
		return VerbBuildImage, nil
	case VerbPlan:
		return VerbPlan, nil
	case VerbApply:
		return VerbApply, nil
	case VerbDestroy:
		return VerbDestroy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVerb, s)
	}
}

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type operation struct {
	id          string
	projectID   uint
	verb        Verb
	status      Status
	lines       []string
	errMsg      string
	startedAt   time.Time
	completedAt time.Time
}

// ReadResult is the incremental log delivery payload for one poll.
type ReadResult struct {
	Lines     []string
	NextIndex int
	Completed bool
	Status    Status
	Error     string
}

// Info is a point-in-time snapshot of an operation's metadata.
type Info struct {
	ID          string
	ProjectID   uint
	Verb        Verb
	Status      Status
	LogCount    int
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Registry is the single source of truth for active and recently-completed
// operations. One writer (the task runner that owns an operation) appends
// and completes; any number of pollers read concurrently. Reads never mutate
// state, and line indices are stable once assigned.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*operation
	now func() time.Time
}

// NewRegistry builds a registry with an injected clock for deterministic
// tests.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{ops: make(map[string]*operation), now: now}
}

func newOperationID() string {
	return "op_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create registers a new operation for a project. It fails with
// ErrConflictingOperation when any non-terminal operation exists for the
// same project; terminal operations still within retention do not conflict.
func (r *Registry) Create(projectID uint, verb Verb) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, op := range r.ops {
		if op.projectID == projectID && !op.status.Terminal() {
			return "", fmt.Errorf("%w: %s %s is still %s",
				ErrConflictingOperation, op.verb, op.id, op.status)
		}
	}

	id := newOperationID()
	r.ops[id] = &operation{
		id:        id,
		projectID: projectID,
		verb:      verb,
		status:    StatusRunning,
		startedAt: r.now(),
	}
	return id, nil
}

// Append stores a line under the next monotonic index. Lines arriving after
// the operation reached a terminal status are dropped silently; that is the
// documented late-output path, not an error.
func (r *Registry) Append(operationID, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[operationID]
	if !ok {
		return ErrUnknownOperation
	}
	if op.status.Terminal() {
		return nil
	}
	op.lines = append(op.lines, line)
	return nil
}

// Complete transitions the operation to a terminal status. The first call
// wins; later calls are no-ops so a lingering runner cannot corrupt the
// recorded outcome.
func (r *Registry) Complete(operationID string, status Status, errMsg string) error {
	if !status.Terminal() {
		return fmt.Errorf("operations: %s is not a terminal status", status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[operationID]
	if !ok {
		return ErrUnknownOperation
	}
	if op.status.Terminal() {
		return nil
	}
	op.status = status
	op.errMsg = errMsg
	op.completedAt = r.now()
	return nil
}

// Read returns every line with index >= sinceIndex in order, plus the next
// index to poll with. NextIndex is authoritative even when no new lines were
// returned. Read is pure: polling at any frequency never mutates state.
func (r *Registry) Read(operationID string, sinceIndex int) (ReadResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[operationID]
	if !ok {
		return ReadResult{}, ErrUnknownOperation
	}
	if sinceIndex < 0 {
		sinceIndex = 0
	}

	res := ReadResult{
		NextIndex: sinceIndex,
		Completed: op.status.Terminal(),
		Status:    op.status,
		Error:     op.errMsg,
	}
	if sinceIndex < len(op.lines) {
		res.Lines = append([]string(nil), op.lines[sinceIndex:]...)
		res.NextIndex = len(op.lines)
	}
	return res, nil
}

// Get returns the metadata snapshot for one operation.
func (r *Registry) Get(operationID string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[operationID]
	if !ok {
		return Info{}, ErrUnknownOperation
	}
	return op.info(), nil
}

// ActiveForProject returns the non-terminal operation for a project, if any.
func (r *Registry) ActiveForProject(projectID uint) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, op := range r.ops {
		if op.projectID == projectID && !op.status.Terminal() {
			return op.info(), true
		}
	}
	return Info{}, false
}

// Lines returns a copy of the full log buffer.
func (r *Registry) Lines(operationID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[operationID]
	if !ok {
		return nil, ErrUnknownOperation
	}
	return append([]string(nil), op.lines...), nil
}

// Evict removes the entry entirely. Only the retention reaper calls this.
func (r *Registry) Evict(operationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, operationID)
}

// snapshot lists all operations; used by the reaper's sweep.
func (r *Registry) snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op.info())
	}
	return out
}

func (o *operation) info() Info {
	return Info{
		ID:          o.id,
		ProjectID:   o.projectID,
		Verb:        o.verb,
		Status:      o.status,
		LogCount:    len(o.lines),
		Error:       o.errMsg,
		StartedAt:   o.startedAt,
		CompletedAt: o.completedAt,
	}
}
