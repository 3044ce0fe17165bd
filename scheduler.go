package pipeflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RunResult is the aggregate outcome of one pipeline run. OK is true only if
// every job ended Succeeded or Skipped.
type RunResult struct {
	RunID string
	OK    bool

	// Cancelled reports whether the run was cancelled, and CancelReason
	// records the reason supplied to the first Cancel call.
	Cancelled    bool
	CancelReason string

	// Failed lists the jobs that exhausted their retries, ascending.
	Failed []string

	// Final holds every job's terminal state.
	Final map[string]RunState

	// DispatchOrder is the ordered list of dispatches (jobs may repeat on
	// retry). Deterministic for a serial run with no failures.
	DispatchOrder []string
}

type eventKind int

const (
	evOutcome eventKind = iota
	evCancel
	evRetryDue
)

type schedEvent struct {
	kind    eventKind
	outcome Outcome
	reason  string
	jobID   string
}

// Run is a handle on one pipeline execution. The control loop is a single
// goroutine: it mutates job state strictly in event order, so the DAG walk
// needs no locking of its own. Workers run concurrently and report back
// through the event channel.
type Run struct {
	id      string
	cfg     *Config
	set     *DescriptorSet
	graph   *Graph
	tracker *Tracker
	policy  *RetryPolicy
	pool    *pool
	history *historyStore

	events     chan schedEvent
	cancelOnce sync.Once

	attemptCtx     context.Context
	cancelAttempts context.CancelFunc

	done   chan struct{}
	result *RunResult

	// Loop-owned fields below; touched only by the control goroutine.
	inFlight      int
	cancelled     bool
	cancelReason  string
	hold          map[string]bool
	dispatchOrder []string

	timerMu sync.Mutex
	timers  []*time.Timer
}

// ID returns the run's unique identifier.
func (r *Run) ID() string { return r.id }

// Snapshot returns a read-only copy of every job's current state. External
// observers may poll it at any time, including while the run is in flight.
func (r *Run) Snapshot() map[string]RunState { return r.tracker.Snapshot() }

// Cancel requests cancellation of the run. It is idempotent: only the first
// call's reason is recorded, and repeated calls have no additional effect.
// Cancellation is cooperative; in-flight attempts are asked to stop and the
// run completes once they have reported.
func (r *Run) Cancel(reason string) {
	r.cancelOnce.Do(func() {
		r.events <- schedEvent{kind: evCancel, reason: reason}
	})
}

// Wait blocks until the run terminates and returns its result.
func (r *Run) Wait() *RunResult {
	<-r.done
	return r.result
}

// Done returns a channel closed when the run terminates.
func (r *Run) Done() <-chan struct{} { return r.done }

func (r *Run) loop() {
	defer close(r.done)

	// Every job with no dependencies starts out runnable.
	for _, id := range r.graph.Roots() {
		r.transition(id, EventDepsSucceeded)
	}

	for {
		r.dispatch()
		if r.settled() {
			break
		}
		ev := <-r.events
		switch ev.kind {
		case evOutcome:
			r.handleOutcome(ev.outcome)
		case evCancel:
			r.handleCancel(ev.reason)
		case evRetryDue:
			delete(r.hold, ev.jobID)
		}
	}

	r.stopTimers()
	r.cancelAttempts()
	r.pool.Wait()
	r.finalize()
}

// settled reports whether the run is complete: nothing Pending, Ready, or
// Running, and every dispatched attempt has reported back.
func (r *Run) settled() bool {
	if r.inFlight > 0 {
		return false
	}
	for _, id := range r.set.ids {
		switch r.tracker.Status(id) {
		case StatusPending, StatusReady, StatusRunning:
			return false
		}
	}
	return true
}

// dispatch hands Ready jobs to the pool, lowest identifier first, while
// capacity remains. Jobs waiting out a retry delay are held back.
func (r *Run) dispatch() {
	for r.inFlight < r.cfg.MaxConcurrency {
		id, ok := r.nextReady()
		if !ok {
			return
		}
		if _, err := r.tracker.Transition(id, EventDispatched); err != nil {
			r.logTransitionErr(id, err)
			return
		}
		desc, _ := r.set.Get(id)
		st, _ := r.tracker.Get(id)

		r.inFlight++
		r.dispatchOrder = append(r.dispatchOrder, id)
		r.cfg.logInfo(LogEvent{
			Message: fmt.Sprintf("Dispatching job %s (attempt %d)", id, st.Attempts),
			RunID:   r.id,
			JobID:   &id,
			Attempt: &st.Attempts,
		})
		r.pool.Execute(r.attemptCtx, desc, st.Attempts)
	}
}

func (r *Run) nextReady() (string, bool) {
	for _, id := range r.set.ids {
		if r.hold[id] {
			continue
		}
		if r.tracker.Status(id) == StatusReady {
			return id, true
		}
	}
	return "", false
}

func (r *Run) handleOutcome(out Outcome) {
	r.inFlight--

	errText := ""
	if out.Err != nil {
		errText = out.Err.Error()
	}
	att := Attempt{
		Number:     out.Attempt,
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
		Outcome:    out.Kind,
		Err:        errText,
	}
	r.tracker.RecordAttempt(out.JobID, att, out.Err)
	r.history.recordAttempt(r.id, out.JobID, att)

	if out.Kind == OutcomeSuccess {
		if _, err := r.tracker.Transition(out.JobID, EventSucceeded); err != nil {
			// Late report for an already-terminal job (e.g. cancelled while
			// the worker was finishing). Logged and discarded.
			r.logTransitionErr(out.JobID, err)
			return
		}
		r.promoteSuccessors(out.JobID)
		return
	}

	// Failure or timeout.
	desc, _ := r.set.Get(out.JobID)
	if r.policy.ShouldRetry(out.Attempt, desc.MaxRetries) {
		if _, err := r.tracker.Transition(out.JobID, EventRetry); err != nil {
			r.logTransitionErr(out.JobID, err)
			return
		}
		delay := r.policy.NextDelay(out.Attempt)
		r.hold[out.JobID] = true
		r.afterDelay(delay, out.JobID)
		r.cfg.logInfo(LogEvent{
			Message: fmt.Sprintf("Job %s attempt %d failed, retrying in %s", out.JobID, out.Attempt, delay),
			RunID:   r.id,
			JobID:   &out.JobID,
			Attempt: &out.Attempt,
			Err:     out.Err,
		})
		return
	}

	if _, err := r.tracker.Transition(out.JobID, EventExhausted); err != nil {
		r.logTransitionErr(out.JobID, err)
		return
	}
	r.skipDescendants(out.JobID)
}

// promoteSuccessors moves each direct successor of id to Ready once all of
// its dependencies have succeeded.
func (r *Run) promoteSuccessors(id string) {
	for _, s := range r.graph.Successors(id) {
		if r.tracker.Status(s) != StatusPending {
			continue
		}
		if !r.depsSucceeded(s) {
			continue
		}
		r.transition(s, EventDepsSucceeded)
	}
}

func (r *Run) depsSucceeded(id string) bool {
	for _, p := range r.graph.Predecessors(id) {
		if r.tracker.Status(p) != StatusSucceeded {
			return false
		}
	}
	return true
}

// skipDescendants marks every not-yet-started descendant of id as Skipped.
// Descendants of a non-succeeded job can only be Pending: a job becomes
// Ready only after all its dependencies succeed.
func (r *Run) skipDescendants(id string) {
	for _, d := range r.graph.Descendants(id) {
		if r.tracker.Status(d) == StatusPending {
			r.transition(d, EventDepBlocked)
		}
	}
}

// handleCancel is the cancellation coordinator. Non-terminal jobs move to
// Cancelled, in-flight attempts get their context cancelled, and retry holds
// are dropped. Idempotence is structural: on a second pass every job is
// already terminal and there is nothing left to do.
func (r *Run) handleCancel(reason string) {
	if r.cancelled {
		return
	}
	r.cancelled = true
	r.cancelReason = reason
	r.cfg.logInfo(LogEvent{
		Message: fmt.Sprintf("Run cancelled: %s", reason),
		RunID:   r.id,
	})

	r.cancelAttempts()
	r.stopTimers()
	r.hold = make(map[string]bool)

	for _, id := range r.set.ids {
		if r.tracker.Status(id).Terminal() {
			continue
		}
		r.transition(id, EventCancelled)
	}
}

// transition applies ev and logs (never propagates) an invalid transition.
func (r *Run) transition(id string, ev Event) {
	if _, err := r.tracker.Transition(id, ev); err != nil {
		r.logTransitionErr(id, err)
	}
}

func (r *Run) logTransitionErr(id string, err error) {
	if errors.Is(err, ErrInvalidTransition) {
		r.cfg.logInfo(LogEvent{
			Message: fmt.Sprintf("Discarding late event for job %s", id),
			RunID:   r.id,
			JobID:   &id,
			Err:     err,
		})
		return
	}
	r.cfg.logError(LogEvent{
		Message: fmt.Sprintf("Transition for job %s", id),
		RunID:   r.id,
		JobID:   &id,
		Err:     err,
	})
}

func (r *Run) afterDelay(delay time.Duration, jobID string) {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	r.timers = append(r.timers, time.AfterFunc(delay, func() {
		r.events <- schedEvent{kind: evRetryDue, jobID: jobID}
	}))
}

func (r *Run) stopTimers() {
	r.timerMu.Lock()
	defer r.timerMu.Unlock()
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}

func (r *Run) finalize() {
	final := r.tracker.Snapshot()
	failed := make([]string, 0)
	for _, id := range r.set.ids {
		if final[id].Status == StatusFailed {
			failed = append(failed, id)
		}
	}

	res := &RunResult{
		RunID:         r.id,
		OK:            !r.cancelled && len(failed) == 0,
		Cancelled:     r.cancelled,
		CancelReason:  r.cancelReason,
		Failed:        failed,
		Final:         final,
		DispatchOrder: r.dispatchOrder,
	}
	r.result = res
	r.history.finishRun(r.id, res)

	msg := fmt.Sprintf("Run finished: ok=%t failed=%d jobs=%d", res.OK, len(failed), r.set.Len())
	if res.Cancelled {
		msg = fmt.Sprintf("Run finished: cancelled (%s)", res.CancelReason)
	}
	r.cfg.logInfo(LogEvent{Message: msg, RunID: r.id})
}
