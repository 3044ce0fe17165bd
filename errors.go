package pipeflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycleDetected is wrapped by CycleError.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrUnknownDependency is wrapped by UnknownDependencyError.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrInvalidTransition is wrapped by InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrDuplicateJob is returned when two descriptors share an identifier.
	ErrDuplicateJob = errors.New("duplicate job id")

	// ErrEmptyJobID is returned for a descriptor with a blank identifier.
	ErrEmptyJobID = errors.New("empty job id")

	// ErrUnknownJob is returned when an identifier is not part of the run.
	ErrUnknownJob = errors.New("unknown job id")

	// ErrNoExecutor is returned when no executor is registered for a
	// descriptor's command kind.
	ErrNoExecutor = errors.New("no executor registered")
)

// CycleError reports a dependency cycle found while building a graph.
// Members holds the cycle's job identifiers in traversal order; the first
// identifier is repeated at the end to close the loop.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	if len(e.Members) == 0 {
		return ErrCycleDetected.Error()
	}
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Members, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// UnknownDependencyError reports a descriptor referencing a dependency
// identifier absent from the input set.
type UnknownDependencyError struct {
	JobID     string
	DependsOn string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("job %q depends on unknown job %q", e.JobID, e.DependsOn)
}

func (e *UnknownDependencyError) Unwrap() error { return ErrUnknownDependency }

// InvalidTransitionError reports a state-machine event that is not legal for
// the job's current status. The tracker leaves the entry unchanged.
type InvalidTransitionError struct {
	JobID string
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for job %q: %s does not accept %s", e.JobID, e.From, e.Event)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
