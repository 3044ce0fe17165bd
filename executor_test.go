package pipeflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestShellExecutorCapturesOutput(t *testing.T) {
	ex := &ShellExecutor{}
	job := JobDescriptor{
		ID:      "hello",
		Command: CommandSpec{Kind: CommandShell, Script: "echo out; echo err 1>&2"},
	}

	res, err := ex.Run(context.Background(), job, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "out" {
		t.Errorf("stdout = %q, want out", got)
	}
	if got := strings.TrimSpace(string(res.Stderr)); got != "err" {
		t.Errorf("stderr = %q, want err", got)
	}
}

func TestShellExecutorNonZeroExit(t *testing.T) {
	ex := &ShellExecutor{}
	job := JobDescriptor{
		ID:      "failing",
		Command: CommandSpec{Kind: CommandShell, Script: "exit 3"},
	}

	res, err := ex.Run(context.Background(), job, 1)
	if err != nil {
		t.Fatalf("a non-zero exit is not an infrastructure error, got %v", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", res.ExitCode)
	}
}

func TestShellExecutorEmptyScript(t *testing.T) {
	ex := &ShellExecutor{}
	if _, err := ex.Run(context.Background(), JobDescriptor{ID: "empty"}, 1); err == nil {
		t.Error("Run accepted an empty script")
	}
}

func TestShellExecutorEnvIsolation(t *testing.T) {
	t.Setenv("PIPEFLOW_LEAK_CHECK", "leaked")

	ex := &ShellExecutor{}
	job := JobDescriptor{
		ID: "env",
		Command: CommandSpec{
			Kind:   CommandShell,
			Script: `echo "declared=${DECLARED:-unset} leak=${PIPEFLOW_LEAK_CHECK:-unset}"`,
			Env:    map[string]string{"DECLARED": "yes"},
		},
	}

	res, err := ex.Run(context.Background(), job, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := strings.TrimSpace(string(res.Stdout))
	if got != "declared=yes leak=unset" {
		t.Errorf("stdout = %q, want only declared variables visible", got)
	}
}

func TestShellExecutorWorkDir(t *testing.T) {
	dir := t.TempDir()
	ex := &ShellExecutor{WorkDir: dir}
	job := JobDescriptor{
		ID:      "pwd",
		Command: CommandSpec{Kind: CommandShell, Script: "pwd"},
	}

	res, err := ex.Run(context.Background(), job, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); !strings.HasSuffix(got, dir) && got != dir {
		t.Errorf("pwd = %q, want %q", got, dir)
	}
}

func TestShellExecutorCancellation(t *testing.T) {
	ex := &ShellExecutor{GracePeriod: 200 * time.Millisecond}
	job := JobDescriptor{
		ID:      "sleeper",
		Command: CommandSpec{Kind: CommandShell, Script: "sleep 30"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := ex.Run(ctx, job, 1)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if res == nil {
		t.Fatal("cancelled attempt returned no partial result")
	}
	if elapsed > 5*time.Second {
		t.Errorf("termination took %s, want prompt SIGTERM handling", elapsed)
	}
}

func TestFlattenEnvSorted(t *testing.T) {
	got := flattenEnv(map[string]string{"B": "2", "A": "1", "C": "3"})
	want := []string{"A=1", "B=2", "C=3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flattenEnv = %v, want %v", got, want)
		}
	}
	if len(flattenEnv(nil)) != 0 {
		t.Error("flattenEnv(nil) not empty")
	}
}
