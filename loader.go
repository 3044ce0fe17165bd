package pipeflow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline definition file format. The loader is intentionally minimal: it
// produces descriptors and nothing more; the engine never reads the file
// format itself.
//
//	jobs:
//	  - id: build
//	    run: make build
//	  - id: test
//	    needs: [build]
//	    run: make test
//	    retries: 2
//	    timeout: 5m
//	  - id: package
//	    needs: [build]
//	    image: docker.io/library/alpine
//	    args: ["tar", "czf", "out.tgz", "dist/"]
type pipelineFile struct {
	Jobs []jobSpec `yaml:"jobs"`
}

type jobSpec struct {
	ID      string            `yaml:"id"`
	Run     string            `yaml:"run"`
	WorkDir string            `yaml:"workdir"`
	Env     map[string]string `yaml:"env"`

	Image string   `yaml:"image"`
	Args  []string `yaml:"args"`

	Endpoint string            `yaml:"endpoint"`
	Payload  map[string]string `yaml:"payload"`

	Needs   []string `yaml:"needs"`
	Weight  int64    `yaml:"weight"`
	Retries *uint    `yaml:"retries"`
	Timeout string   `yaml:"timeout"`
}

// LoadPipeline reads a pipeline definition file into a descriptor set, using
// cfg for defaults that the file omits (retry budget).
func LoadPipeline(path string, cfg Config) (*DescriptorSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	return ParsePipeline(data, cfg)
}

// ParsePipeline decodes a YAML pipeline definition into a descriptor set.
func ParsePipeline(data []byte, cfg Config) (*DescriptorSet, error) {
	var pf pipelineFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	if len(pf.Jobs) == 0 {
		return nil, fmt.Errorf("pipeline declares no jobs")
	}

	descriptors := make([]JobDescriptor, 0, len(pf.Jobs))
	for _, js := range pf.Jobs {
		d, err := js.descriptor(cfg)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return NewDescriptorSet(descriptors...)
}

func (js jobSpec) descriptor(cfg Config) (JobDescriptor, error) {
	cmd, err := js.command()
	if err != nil {
		return JobDescriptor{}, err
	}

	retries := cfg.DefaultMaxRetries
	if js.Retries != nil {
		retries = *js.Retries
	}

	var timeout time.Duration
	if js.Timeout != "" {
		timeout, err = time.ParseDuration(js.Timeout)
		if err != nil {
			return JobDescriptor{}, fmt.Errorf("job %q: invalid timeout %q: %w", js.ID, js.Timeout, err)
		}
	}

	return JobDescriptor{
		ID:         js.ID,
		Command:    cmd,
		DependsOn:  append([]string(nil), js.Needs...),
		Weight:     js.Weight,
		MaxRetries: retries,
		Timeout:    timeout,
	}, nil
}

// command infers the spec variant from which fields are set: an image makes
// a container job, an endpoint a remote job, otherwise a shell job.
func (js jobSpec) command() (CommandSpec, error) {
	set := 0
	if js.Run != "" {
		set++
	}
	if js.Image != "" {
		set++
	}
	if js.Endpoint != "" {
		set++
	}
	if set == 0 {
		return CommandSpec{}, fmt.Errorf("job %q: one of run, image, or endpoint is required", js.ID)
	}
	if set > 1 {
		return CommandSpec{}, fmt.Errorf("job %q: run, image, and endpoint are mutually exclusive", js.ID)
	}

	switch {
	case js.Image != "":
		return CommandSpec{Kind: CommandContainer, Image: js.Image, Args: append([]string(nil), js.Args...)}, nil
	case js.Endpoint != "":
		return CommandSpec{Kind: CommandRemote, Endpoint: js.Endpoint, Payload: js.Payload}, nil
	default:
		return CommandSpec{Kind: CommandShell, Script: js.Run, WorkDir: js.WorkDir, Env: js.Env}, nil
	}
}
