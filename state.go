package pipeflow

import (
	"sync"
	"time"
)

// Status enumerates the possible states of a job within a run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// Event is a state-machine input applied through Tracker.Transition.
type Event string

const (
	// EventDepsSucceeded promotes a Pending job whose dependencies all
	// succeeded.
	EventDepsSucceeded Event = "DEPS_SUCCEEDED"

	// EventDepBlocked skips a Pending job because an ancestor failed, was
	// skipped, or was cancelled.
	EventDepBlocked Event = "DEP_BLOCKED"

	// EventDispatched marks a Ready job as handed to a worker.
	EventDispatched Event = "DISPATCHED"

	// EventSucceeded records a worker success report.
	EventSucceeded Event = "WORKER_SUCCEEDED"

	// EventRetry returns a failed Running job to Ready for another attempt.
	EventRetry Event = "WORKER_FAILED_RETRY"

	// EventExhausted records a failure with no retries remaining.
	EventExhausted Event = "WORKER_FAILED_EXHAUSTED"

	// EventCancelled cancels a job that has not yet finished.
	EventCancelled Event = "CANCELLED"
)

// Attempt records one execution try of a job.
type Attempt struct {
	Number     uint
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    OutcomeKind
	Err        string
}

// RunState is the tracked state of one job within one run.
type RunState struct {
	Status     Status
	Attempts   uint
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	LastErr    error
	History    []Attempt
}

func (s RunState) clone() RunState {
	cp := s
	cp.History = append([]Attempt(nil), s.History...)
	return cp
}

type trackerEntry struct {
	mu    sync.Mutex
	state RunState
}

// Tracker is the authoritative job -> RunState mapping for one run. All
// mutation goes through Transition, which validates the state machine and
// serializes per job entry, so unrelated jobs' state changes can proceed
// concurrently. The entry map itself is fixed at construction.
type Tracker struct {
	entries map[string]*trackerEntry
}

// NewTracker initializes every job of the set to Pending.
func NewTracker(set *DescriptorSet) *Tracker {
	now := time.Now()
	t := &Tracker{entries: make(map[string]*trackerEntry, set.Len())}
	for _, id := range set.ids {
		t.entries[id] = &trackerEntry{state: RunState{
			Status:   StatusPending,
			QueuedAt: now,
		}}
	}
	return t
}

// Transition applies ev to the job's state machine and returns the new
// status. Any transition not listed in the table fails with
// InvalidTransitionError and leaves the entry unchanged. A job's status only
// ever moves forward; terminal states accept no events.
func (t *Tracker) Transition(jobID string, ev Event) (Status, error) {
	e, ok := t.entries[jobID]
	if !ok {
		return "", ErrUnknownJob
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next, ok := nextStatus(e.state.Status, ev)
	if !ok {
		return e.state.Status, &InvalidTransitionError{JobID: jobID, From: e.state.Status, Event: ev}
	}

	now := time.Now()
	if ev == EventDispatched {
		e.state.Attempts++
		if e.state.StartedAt.IsZero() {
			e.state.StartedAt = now
		}
	}
	if next.Terminal() {
		e.state.FinishedAt = now
	}
	e.state.Status = next
	return next, nil
}

func nextStatus(cur Status, ev Event) (Status, bool) {
	switch cur {
	case StatusPending:
		switch ev {
		case EventDepsSucceeded:
			return StatusReady, true
		case EventDepBlocked:
			return StatusSkipped, true
		case EventCancelled:
			return StatusCancelled, true
		}
	case StatusReady:
		switch ev {
		case EventDispatched:
			return StatusRunning, true
		case EventCancelled:
			return StatusCancelled, true
		}
	case StatusRunning:
		switch ev {
		case EventSucceeded:
			return StatusSucceeded, true
		case EventRetry:
			return StatusReady, true
		case EventExhausted:
			return StatusFailed, true
		case EventCancelled:
			return StatusCancelled, true
		}
	}
	return "", false
}

// Get returns a copy of the job's current state.
func (t *Tracker) Get(jobID string) (RunState, bool) {
	e, ok := t.entries[jobID]
	if !ok {
		return RunState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone(), true
}

// Status returns the job's current status, or "" if unknown.
func (t *Tracker) Status(jobID string) Status {
	e, ok := t.entries[jobID]
	if !ok {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status
}

// RecordAttempt appends one execution try to the job's history and updates
// LastErr. History is append-only.
func (t *Tracker) RecordAttempt(jobID string, att Attempt, lastErr error) {
	e, ok := t.entries[jobID]
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.History = append(e.state.History, att)
	if lastErr != nil {
		e.state.LastErr = lastErr
	}
}

// Snapshot returns a deep copy of every job's state, for external observers.
func (t *Tracker) Snapshot() map[string]RunState {
	out := make(map[string]RunState, len(t.entries))
	for id, e := range t.entries {
		e.mu.Lock()
		out[id] = e.state.clone()
		e.mu.Unlock()
	}
	return out
}
