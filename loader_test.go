package pipeflow

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

const samplePipeline = `
jobs:
  - id: build
    run: make build
    env:
      CGO_ENABLED: "0"
  - id: test
    needs: [build]
    run: make test
    retries: 2
    timeout: 5m
    weight: 2
  - id: package
    needs: [build]
    image: docker.io/library/alpine
    args: ["tar", "czf", "out.tgz", "dist/"]
  - id: notify
    needs: [test, package]
    endpoint: https://hooks.example.com/deploys
    payload:
      channel: releases
`

func TestParsePipeline(t *testing.T) {
	set, err := ParsePipeline([]byte(samplePipeline), Config{DefaultMaxRetries: 1})
	if err != nil {
		t.Fatalf("ParsePipeline: %v", err)
	}
	if set.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", set.Len())
	}

	build, _ := set.Get("build")
	if build.Command.Kind != CommandShell || build.Command.Script != "make build" {
		t.Errorf("build command = %+v, want shell make build", build.Command)
	}
	if build.Command.Env["CGO_ENABLED"] != "0" {
		t.Errorf("build env = %v", build.Command.Env)
	}
	if build.MaxRetries != 1 {
		t.Errorf("build retries = %d, want the config default 1", build.MaxRetries)
	}

	test, _ := set.Get("test")
	if test.MaxRetries != 2 {
		t.Errorf("test retries = %d, want declared 2", test.MaxRetries)
	}
	if test.Timeout != 5*time.Minute {
		t.Errorf("test timeout = %s, want 5m", test.Timeout)
	}
	if test.Weight != 2 {
		t.Errorf("test weight = %d, want 2", test.Weight)
	}
	if !reflect.DeepEqual(test.DependsOn, []string{"build"}) {
		t.Errorf("test needs = %v, want [build]", test.DependsOn)
	}

	pkg, _ := set.Get("package")
	if pkg.Command.Kind != CommandContainer || pkg.Command.Image != "docker.io/library/alpine" {
		t.Errorf("package command = %+v, want container alpine", pkg.Command)
	}

	notify, _ := set.Get("notify")
	if notify.Command.Kind != CommandRemote || notify.Command.Endpoint != "https://hooks.example.com/deploys" {
		t.Errorf("notify command = %+v, want remote", notify.Command)
	}

	// The loaded set must build into a valid graph.
	if _, err := BuildGraph(set); err != nil {
		t.Errorf("BuildGraph on loaded set: %v", err)
	}
}

func TestParsePipelineErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", `{{{`},
		{"no jobs", `jobs: []`},
		{"no command", "jobs:\n  - id: a\n"},
		{"two commands", "jobs:\n  - id: a\n    run: make\n    image: alpine\n"},
		{"bad timeout", "jobs:\n  - id: a\n    run: make\n    timeout: soon\n"},
		{"duplicate id", "jobs:\n  - id: a\n    run: make\n  - id: a\n    run: make\n"},
		{"blank id", "jobs:\n  - run: make\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePipeline([]byte(tt.yaml), Config{}); err == nil {
				t.Error("ParsePipeline accepted an invalid definition")
			}
		})
	}
}

func TestLoadPipeline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(samplePipeline), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := LoadPipeline(path, Config{})
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	if set.Len() != 4 {
		t.Errorf("Len() = %d, want 4", set.Len())
	}

	if _, err := LoadPipeline(filepath.Join(t.TempDir(), "missing.yaml"), Config{}); err == nil {
		t.Error("LoadPipeline accepted a missing file")
	}
}
