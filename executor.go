package pipeflow

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"syscall"
	"time"
)

// ExecResult carries the captured output of one finished attempt.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Executor runs a single job attempt. Implementations interpret the
// descriptor's CommandSpec for their kind: a local process spawner, a
// container runtime client, or a remote job-submission API.
//
// A non-zero ExitCode is an ordinary job failure. A non-nil error indicates
// an infrastructure problem (e.g. inability to start a process). Executors
// must honor ctx cancellation by terminating the attempt.
type Executor interface {
	Run(ctx context.Context, job JobDescriptor, attempt uint) (*ExecResult, error)
}

// ShellExecutor runs shell command specs via `sh -c` on the local host.
type ShellExecutor struct {
	// WorkDir is the default working directory when the spec declares none.
	WorkDir string

	// GracePeriod is how long a terminated process gets between SIGTERM and
	// SIGKILL. Zero means DefaultGracePeriod.
	GracePeriod time.Duration
}

// DefaultGracePeriod is the SIGTERM-to-SIGKILL window for cancelled attempts.
const DefaultGracePeriod = 5 * time.Second

func (e *ShellExecutor) grace() time.Duration {
	if e.GracePeriod <= 0 {
		return DefaultGracePeriod
	}
	return e.GracePeriod
}

// Run spawns the job's script in its own process group so the whole tree can
// be signalled on cancellation. On ctx cancellation it sends SIGTERM, waits
// the grace period, then SIGKILLs the group.
func (e *ShellExecutor) Run(ctx context.Context, job JobDescriptor, attempt uint) (*ExecResult, error) {
	if job.Command.Script == "" {
		return nil, fmt.Errorf("job %q: empty shell script", job.ID)
	}

	cmd := exec.Command("sh", "-c", job.Command.Script)
	if job.Command.WorkDir != "" {
		cmd.Dir = job.Command.WorkDir
	} else if e.WorkDir != "" {
		cmd.Dir = e.WorkDir
	}
	cmd.Env = flattenEnv(job.Command.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting job %q: %w", job.ID, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-ctx.Done():
		// Cooperative stop: SIGTERM the group, escalate after the grace
		// period, then wait for the process to actually exit.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		select {
		case waitErr = <-done:
		case <-time.After(e.grace()):
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			waitErr = <-done
		}
		return &ExecResult{
			Stdout:   stdout.Bytes(),
			Stderr:   stderr.Bytes(),
			ExitCode: exitCode(waitErr),
		}, ctx.Err()
	case waitErr = <-done:
	}

	if waitErr != nil {
		if _, ok := waitErr.(*exec.ExitError); !ok {
			return nil, fmt.Errorf("waiting for job %q: %w", job.ID, waitErr)
		}
	}
	return &ExecResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode(waitErr),
	}, nil
}

func exitCode(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// flattenEnv renders the declared environment, sorted for reproducibility.
// Only declared variables are visible to the command.
func flattenEnv(env map[string]string) []string {
	if len(env) == 0 {
		return []string{}
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
