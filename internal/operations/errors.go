package operations

import "errors"

var (
	// ErrConflictingOperation is returned by Create when the project
	// already has a non-terminal operation. Mutual exclusion is
	// project-wide, not verb-specific.
	ErrConflictingOperation = errors.New("operations: project already has an active operation")

	// ErrUnknownOperation is returned for identifiers that never existed
	// or have been evicted. Callers must treat this as "not found", not
	// as "still running".
	ErrUnknownOperation = errors.New("operations: operation not found or expired")

	// ErrUnknownVerb is returned for verb names outside the supported set.
	ErrUnknownVerb = errors.New("operations: unsupported operation verb")

	// ErrUnknownProject is returned when the target project does not exist.
	ErrUnknownProject = errors.New("operations: project not found")

	// ErrNoCompletedGeneration rejects infrastructure verbs on a project
	// whose latest generation session did not complete.
	ErrNoCompletedGeneration = errors.New("operations: project has no completed generation")
)

// SetupError marks a failure before the sandbox produced any output, so
// client-facing messages can distinguish it from an execution failure.
type SetupError struct {
	Reason string
	Cause  error
}

func (e *SetupError) Error() string {
	if e.Cause != nil {
		return "sandbox setup failed: " + e.Reason + ": " + e.Cause.Error()
	}
	return "sandbox setup failed: " + e.Reason
}

func (e *SetupError) Unwrap() error { return e.Cause }
