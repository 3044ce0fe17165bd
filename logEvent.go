package pipeflow

import (
	"fmt"
	"os"
	"time"
)

// LogEvent captures information about a logging event.
type LogEvent struct {
	// A human-readable message about the event.
	Message string

	// The ID of the run that triggered the log (if any).
	RunID string

	// The job identifier, if available.
	JobID *string

	// The attempt number, if relevant.
	Attempt *uint

	// Any error associated with the event.
	Err error

	// How long the job or operation took, if relevant.
	Duration *time.Duration
}

func defaultInfoLog(ev LogEvent) {
	// Simple fallback to stdout
	msg := fmt.Sprintf("[pipeflow:INFO] %s", ev.Message)
	if ev.Err != nil {
		msg += fmt.Sprintf(" | error: %v", ev.Err)
	}
	_, _ = fmt.Fprintln(os.Stdout, msg)
}

func defaultErrorLog(ev LogEvent) {
	// Simple fallback to stderr
	msg := fmt.Sprintf("[pipeflow:ERROR] %s", ev.Message)
	if ev.Err != nil {
		msg += fmt.Sprintf(" | error: %v", ev.Err)
	}
	_, _ = fmt.Fprintln(os.Stderr, msg)
}

// Helper methods to invoke logging
func (c *Config) logInfo(ev LogEvent) {
	if c.InfoLog == nil {
		defaultInfoLog(ev)
		return
	}
	c.InfoLog(ev)
}

func (c *Config) logError(ev LogEvent) {
	if c.ErrorLog == nil {
		defaultErrorLog(ev)
		return
	}
	c.ErrorLog(ev)
}
