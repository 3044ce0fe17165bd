package pipeflow

import (
	"fmt"
	"sort"
	"time"
)

// CommandKind tags the variant of a CommandSpec. The worker pool dispatches
// to the executor registered for the kind.
type CommandKind string

const (
	CommandShell     CommandKind = "shell"
	CommandContainer CommandKind = "container"
	CommandRemote    CommandKind = "remote"
)

// CommandSpec describes what a job actually does. It is opaque to the
// scheduling core; only the executor for its Kind interprets it.
type CommandSpec struct {
	Kind CommandKind

	// Shell jobs.
	Script  string
	WorkDir string
	Env     map[string]string

	// Container jobs.
	Image string
	Args  []string

	// Remote jobs.
	Endpoint string
	Payload  map[string]string
}

// JobDescriptor is the immutable definition of one job within a pipeline.
// Descriptors are created at pipeline-definition load time and never mutated.
type JobDescriptor struct {
	// ID uniquely identifies the job within its pipeline.
	ID string

	// Command is what the job runs.
	Command CommandSpec

	// DependsOn lists the identifiers of jobs that must succeed first.
	DependsOn []string

	// Weight is the job's concurrency weight. A job occupies this many
	// slots of the pool's capacity while running. Zero means one.
	Weight int64

	// MaxRetries is how many times the job may be resubmitted after a
	// failed attempt. Zero means a single attempt.
	MaxRetries uint

	// Timeout bounds a single attempt. Zero falls back to Config.JobTimeout.
	Timeout time.Duration
}

func (d JobDescriptor) weight() int64 {
	if d.Weight <= 0 {
		return 1
	}
	return d.Weight
}

// DescriptorSet is the job descriptor store for one pipeline run. It owns the
// descriptors for the lifetime of the run and is read-only after construction.
type DescriptorSet struct {
	jobs map[string]JobDescriptor
	ids  []string
}

// NewDescriptorSet collects descriptors into a store, rejecting blank or
// duplicate identifiers.
func NewDescriptorSet(descriptors ...JobDescriptor) (*DescriptorSet, error) {
	s := &DescriptorSet{
		jobs: make(map[string]JobDescriptor, len(descriptors)),
		ids:  make([]string, 0, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, ErrEmptyJobID
		}
		if _, exists := s.jobs[d.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateJob, d.ID)
		}
		s.jobs[d.ID] = d
		s.ids = append(s.ids, d.ID)
	}
	sort.Strings(s.ids)
	return s, nil
}

// Get returns the descriptor for id, if present.
func (s *DescriptorSet) Get(id string) (JobDescriptor, bool) {
	d, ok := s.jobs[id]
	return d, ok
}

// IDs returns all job identifiers in ascending order.
func (s *DescriptorSet) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of descriptors in the set.
func (s *DescriptorSet) Len() int { return len(s.ids) }
