package pipeline

import (
	"fmt"

	"clinsight/internal/phi"
)

// PhiError reports that the gate blocked the note. It is a routine policy
// outcome, not a system failure: the caller must edit the input, retrying the
// same note can never succeed.
type PhiError struct {
	Kinds []phi.PatternKind
}

func (e *PhiError) Error() string {
	return fmt.Sprintf("input blocked: %d identifying pattern kind(s) detected", len(e.Kinds))
}

// ValidationError reports malformed or oversized input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid request: " + e.Reason }

// ExternalServiceError wraps a failure of one of the model backends. The
// pipeline performs no retries; transient-failure handling belongs to the
// collaborator wrapper.
type ExternalServiceError struct {
	Stage string // embedding | generation | translation
	Err   error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s backend failed: %v", e.Stage, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// InvariantError reports corpus or configuration breakage detected mid-run,
// fatal to the request only.
type InvariantError struct {
	Err error
}

func (e *InvariantError) Error() string { return "pipeline invariant violated: " + e.Err.Error() }

func (e *InvariantError) Unwrap() error { return e.Err }
