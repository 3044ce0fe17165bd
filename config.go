package pipeflow

import (
	"database/sql"
	"time"
)

// Config holds the settings and resources needed by the orchestration engine.
type Config struct {
	// MaxConcurrency is the maximum number of jobs allowed to run at once.
	// If zero, DefaultMaxConcurrency is used.
	MaxConcurrency int

	// DefaultMaxRetries is the retry budget applied to jobs loaded from a
	// pipeline file that do not declare their own.
	DefaultMaxRetries uint

	// BackoffBase is the delay before the first retry of a failed job.
	// Subsequent retries double the delay. If zero, DefaultBackoffBase is used.
	BackoffBase time.Duration

	// BackoffCap bounds the retry delay. If zero, DefaultBackoffCap is used.
	BackoffCap time.Duration

	// JobTimeout is the per-attempt timeout applied to jobs that do not
	// declare their own. If zero, there is no enforced timeout.
	JobTimeout time.Duration

	// DB is an optional user-provided database connection where run history
	// is recorded. If nil, no history is persisted.
	DB *sql.DB

	// DbName is name of the database holding the history tables.
	DbName string

	// LogStore is an optional sink for captured attempt output.
	// If nil, output is kept in memory only.
	LogStore LogStore

	// InfoLog is called for informational or success logs.
	// If nil, defaults to printing to stdout.
	InfoLog func(ev LogEvent)

	// ErrorLog is called for error logs.
	// If nil, defaults to printing to stderr (or stdout).
	ErrorLog func(ev LogEvent)
}

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxConcurrency = 4
	DefaultBackoffBase    = 500 * time.Millisecond
	DefaultBackoffCap     = 30 * time.Second
)

func (c *Config) applyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = DefaultMaxConcurrency
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}
}
