package pipeline

import "errors"

var (
	// ErrInvalidInput rejects a malformed start request synchronously; the
	// session is never created.
	ErrInvalidInput = errors.New("pipeline: invalid start request")

	// ErrMissingContext marks a stage-ordering violation: a stage's
	// required memory key was never written, so the stage is refused
	// rather than invoked with partial data.
	ErrMissingContext = errors.New("pipeline: required memory key is missing")

	// ErrUnknownSession is returned for session identifiers that never
	// existed or have been dropped from the in-memory table.
	ErrUnknownSession = errors.New("pipeline: session not found")
)
