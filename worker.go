package pipeflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// OutcomeKind classifies how one attempt ended.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "SUCCESS"
	OutcomeFailure OutcomeKind = "FAILURE"
	OutcomeTimeout OutcomeKind = "TIMED_OUT"
)

// Outcome is the worker pool's report for one finished attempt. It is
// delivered on the scheduler's event queue, never via callback, so the
// control loop stays linear.
type Outcome struct {
	JobID      string
	Attempt    uint
	Kind       OutcomeKind
	Err        error
	Stdout     []byte
	Stderr     []byte
	StartedAt  time.Time
	FinishedAt time.Time
}

// pool executes dispatched jobs concurrently. Admission is weight-aware: a
// job holds its Weight slots of the run's MaxConcurrency capacity while its
// attempt runs. Outcomes are posted to the run's event channel.
type pool struct {
	cfg       *Config
	runID     string
	sem       *semaphore.Weighted
	capacity  int64
	executors map[CommandKind]Executor
	report    func(Outcome)
	wg        sync.WaitGroup
}

func newPool(cfg *Config, runID string, executors map[CommandKind]Executor, report func(Outcome)) *pool {
	capacity := int64(cfg.MaxConcurrency)
	return &pool{
		cfg:       cfg,
		runID:     runID,
		sem:       semaphore.NewWeighted(capacity),
		capacity:  capacity,
		executors: executors,
		report:    report,
	}
}

// Execute dispatches one attempt asynchronously and returns immediately.
// The outcome is reported through the pool's report function.
func (p *pool) Execute(ctx context.Context, job JobDescriptor, attempt uint) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.report(p.runAttempt(ctx, job, attempt))
	}()
}

// Wait blocks until every in-flight attempt has reported.
func (p *pool) Wait() { p.wg.Wait() }

func (p *pool) runAttempt(ctx context.Context, job JobDescriptor, attempt uint) Outcome {
	out := Outcome{JobID: job.ID, Attempt: attempt}

	weight := job.weight()
	if weight > p.capacity {
		weight = p.capacity
	}
	if err := p.sem.Acquire(ctx, weight); err != nil {
		out.Kind = OutcomeFailure
		out.Err = err
		out.StartedAt = time.Now()
		out.FinishedAt = out.StartedAt
		return out
	}
	defer p.sem.Release(weight)

	ex, ok := p.executors[job.Command.Kind]
	if !ok {
		out.Kind = OutcomeFailure
		out.Err = fmt.Errorf("%w for kind %q", ErrNoExecutor, job.Command.Kind)
		out.StartedAt = time.Now()
		out.FinishedAt = out.StartedAt
		return out
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = p.cfg.JobTimeout
	}
	attemptCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out.StartedAt = time.Now()
	res, err := ex.Run(attemptCtx, job, attempt)
	out.FinishedAt = time.Now()

	if res != nil {
		out.Stdout = res.Stdout
		out.Stderr = res.Stderr
	}
	p.shipOutput(job.ID, attempt, out.Stdout, out.Stderr)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = OutcomeTimeout
		out.Err = fmt.Errorf("attempt timed out after %s", timeout)
	case err != nil:
		out.Kind = OutcomeFailure
		out.Err = err
	case res == nil:
		out.Kind = OutcomeFailure
		out.Err = fmt.Errorf("executor for kind %q returned no result", job.Command.Kind)
	case res.ExitCode != 0:
		out.Kind = OutcomeFailure
		out.Err = fmt.Errorf("exit code %d", res.ExitCode)
	default:
		out.Kind = OutcomeSuccess
	}

	dur := out.FinishedAt.Sub(out.StartedAt)
	ev := LogEvent{
		Message:  fmt.Sprintf("Job %s attempt %d finished: %s", job.ID, attempt, out.Kind),
		RunID:    p.runID,
		JobID:    &job.ID,
		Attempt:  &attempt,
		Duration: &dur,
	}
	if out.Err != nil {
		ev.Err = out.Err
		p.cfg.logError(ev)
	} else {
		p.cfg.logInfo(ev)
	}
	return out
}

// shipOutput uploads captured attempt output to the configured log store, if
// any. Upload failures are logged and never affect the attempt's outcome.
func (p *pool) shipOutput(jobID string, attempt uint, stdout, stderr []byte) {
	if p.cfg.LogStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.cfg.LogStore.PutAttemptLog(ctx, p.runID, jobID, attempt, stdout, stderr); err != nil {
		p.cfg.logError(LogEvent{
			Message: fmt.Sprintf("Shipping output for job %s attempt %d", jobID, attempt),
			RunID:   p.runID,
			JobID:   &jobID,
			Attempt: &attempt,
			Err:     err,
		})
	}
}
