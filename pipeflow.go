// Package pipeflow is a pipeline orchestration engine: it takes a set of
// immutable job descriptors, derives their dependency DAG, and drives every
// job to a terminal state through a bounded pool of concurrent workers, with
// retries, per-attempt timeouts, and cooperative cancellation.
//
// The engine is a library, not a service. Command execution is delegated to
// Executor implementations registered per command kind; observability is
// exposed through Run.Snapshot and the Config log callbacks.
package pipeflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Engine holds configuration and the executor registry shared across runs.
// Multiple pipelines may run concurrently on one Engine; each Run carries its
// own graph, state, and pool, so runs never cross-contaminate.
type Engine struct {
	cfg       *Config
	history   *historyStore
	executors map[CommandKind]Executor
	execMu    sync.RWMutex
}

// New creates an Engine. A ShellExecutor is pre-registered for shell command
// specs; register additional executors for container or remote kinds.
func New(cfg Config) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		cfg:       &cfg,
		executors: make(map[CommandKind]Executor),
	}
	if cfg.DB != nil {
		e.history = &historyStore{cfg: &cfg}
	}
	e.RegisterExecutor(CommandShell, &ShellExecutor{})
	return e
}

// RegisterExecutor associates a command kind with an Executor. Registering
// the same kind twice replaces the previous executor.
func (e *Engine) RegisterExecutor(kind CommandKind, ex Executor) {
	e.execMu.Lock()
	e.executors[kind] = ex
	e.execMu.Unlock()
}

func (e *Engine) executorSnapshot() map[CommandKind]Executor {
	e.execMu.RLock()
	defer e.execMu.RUnlock()
	out := make(map[CommandKind]Executor, len(e.executors))
	for k, v := range e.executors {
		out[k] = v
	}
	return out
}

// Start validates the pipeline definition and launches its run, returning a
// handle immediately. Definition errors (CycleError, UnknownDependencyError)
// are returned before any job executes.
func (e *Engine) Start(ctx context.Context, set *DescriptorSet) (*Run, error) {
	graph, err := BuildGraph(set)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	attemptCtx, cancelAttempts := context.WithCancel(ctx)

	r := &Run{
		id:             runID,
		cfg:            e.cfg,
		set:            set,
		graph:          graph,
		tracker:        NewTracker(set),
		policy:         NewRetryPolicy(e.cfg.BackoffBase, e.cfg.BackoffCap),
		history:        e.history,
		events:         make(chan schedEvent, eventBudget(set)),
		attemptCtx:     attemptCtx,
		cancelAttempts: cancelAttempts,
		done:           make(chan struct{}),
		hold:           make(map[string]bool),
	}
	r.pool = newPool(e.cfg, runID, e.executorSnapshot(), func(out Outcome) {
		r.events <- schedEvent{kind: evOutcome, outcome: out}
	})

	e.history.createRun(ctx, runID, set.Len())
	e.cfg.logInfo(LogEvent{
		Message: fmt.Sprintf("Starting run with %d jobs", set.Len()),
		RunID:   runID,
	})

	go r.loop()
	return r, nil
}

// Run executes the pipeline to completion and returns its result. It is
// Start followed by Wait; the run is cancelled with the reason "context
// cancelled" if ctx ends first.
func (e *Engine) Run(ctx context.Context, set *DescriptorSet) (*RunResult, error) {
	r, err := e.Start(ctx, set)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		r.Cancel("context cancelled")
		return r.Wait(), nil
	case <-r.Done():
		return r.Wait(), nil
	}
}

// eventBudget sizes the run's event channel so that outcome reports, retry
// timers, and one cancellation can never block a sender, even after the
// control loop has exited.
func eventBudget(set *DescriptorSet) int {
	n := 2
	for _, id := range set.ids {
		d := set.jobs[id]
		n += 2*int(d.MaxRetries) + 1
	}
	return n
}
