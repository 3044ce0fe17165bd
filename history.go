package pipeflow

import (
	"context"
	"fmt"
	"time"
)

// historyStore persists run history to the user-provided database. All
// methods are nil-receiver safe and best-effort: persistence failures are
// logged and never affect the run's outcome.
//
// Expected schema (MySQL):
//
//	CREATE TABLE pipeline_runs (
//	  id            VARCHAR(36) PRIMARY KEY,
//	  job_count     INT NOT NULL,
//	  ok            TINYINT(1) NULL,
//	  cancelled     TINYINT(1) NULL,
//	  cancel_reason TEXT NULL,
//	  started_at    DATETIME(6) NOT NULL,
//	  finished_at   DATETIME(6) NULL
//	);
//
//	CREATE TABLE pipeline_attempts (
//	  run_id      VARCHAR(36) NOT NULL,
//	  job_id      VARCHAR(255) NOT NULL,
//	  attempt     INT UNSIGNED NOT NULL,
//	  outcome     VARCHAR(16) NOT NULL,
//	  error       TEXT NULL,
//	  started_at  DATETIME(6) NOT NULL,
//	  finished_at DATETIME(6) NOT NULL,
//	  PRIMARY KEY (run_id, job_id, attempt)
//	);
//
//	CREATE TABLE pipeline_job_states (
//	  run_id   VARCHAR(36) NOT NULL,
//	  job_id   VARCHAR(255) NOT NULL,
//	  status   VARCHAR(16) NOT NULL,
//	  attempts INT UNSIGNED NOT NULL,
//	  PRIMARY KEY (run_id, job_id)
//	);
type historyStore struct {
	cfg *Config
}

func (h *historyStore) table(name string) string {
	if h.cfg.DbName == "" {
		return name
	}
	return h.cfg.DbName + "." + name
}

func (h *historyStore) createRun(ctx context.Context, runID string, jobCount int) {
	if h == nil {
		return
	}
	query := fmt.Sprintf("INSERT INTO %s (id, job_count, started_at) VALUES (?, ?, ?)", h.table("pipeline_runs"))
	if _, err := h.cfg.DB.ExecContext(ctx, query, runID, jobCount, now()); err != nil {
		h.cfg.logError(LogEvent{
			Message: fmt.Sprintf("Recording run %s start", runID),
			RunID:   runID,
			Err:     err,
		})
	}
}

func (h *historyStore) recordAttempt(runID, jobID string, att Attempt) {
	if h == nil {
		return
	}
	var errText *string
	if att.Err != "" {
		errText = &att.Err
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (run_id, job_id, attempt, outcome, error, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		h.table("pipeline_attempts"),
	)
	_, err := h.cfg.DB.Exec(query,
		runID, jobID, att.Number, string(att.Outcome), errText,
		att.StartedAt.UTC().Round(time.Microsecond),
		att.FinishedAt.UTC().Round(time.Microsecond),
	)
	if err != nil {
		h.cfg.logError(LogEvent{
			Message: fmt.Sprintf("Recording attempt %d of job %s", att.Number, jobID),
			RunID:   runID,
			JobID:   &jobID,
			Attempt: &att.Number,
			Err:     err,
		})
	}
}

func (h *historyStore) finishRun(runID string, res *RunResult) {
	if h == nil {
		return
	}
	query := fmt.Sprintf(
		"UPDATE %s SET ok = ?, cancelled = ?, cancel_reason = ?, finished_at = ? WHERE id = ?",
		h.table("pipeline_runs"),
	)
	if _, err := h.cfg.DB.Exec(query, res.OK, res.Cancelled, res.CancelReason, now(), runID); err != nil {
		h.cfg.logError(LogEvent{
			Message: fmt.Sprintf("Recording run %s finish", runID),
			RunID:   runID,
			Err:     err,
		})
		return
	}

	stateQ := fmt.Sprintf(
		"INSERT INTO %s (run_id, job_id, status, attempts) VALUES (?, ?, ?, ?)",
		h.table("pipeline_job_states"),
	)
	for jobID, st := range res.Final {
		if _, err := h.cfg.DB.Exec(stateQ, runID, jobID, string(st.Status), st.Attempts); err != nil {
			h.cfg.logError(LogEvent{
				Message: fmt.Sprintf("Recording final state of job %s", jobID),
				RunID:   runID,
				JobID:   &jobID,
				Err:     err,
			})
		}
	}
}

func now() time.Time {
	return time.Now().UTC().Round(time.Microsecond)
}
