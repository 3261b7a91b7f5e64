package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyEvaluated is returned when a decision's outcome has
	// already been recorded. Outcomes are written exactly once.
	ErrAlreadyEvaluated = errors.New("decision outcome already recorded")

	// ErrDecisionNotFound is returned when the decision does not exist or
	// belongs to another user.
	ErrDecisionNotFound = errors.New("decision not found")
)

// PersistenceError wraps a durable-store failure. It is fatal to the phase
// that hit it: memory writes must never fail silently.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("memory persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
