package orchestrator

import "fmt"

// PipelineError wraps any fatal phase failure so the run loop can abort the
// remaining phases with enough context to log and report.
type PipelineError struct {
	Phase int
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("phase %d (%s): %v", e.Phase, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// ValidationError marks a malformed run request before any phase executes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
