package config

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	engine "github.com/siteforge/pipeline"
)

// pipelineFile is the YAML shape of one declared pipeline: module names
// per phase plus the placement metadata the graph builder needs.
type pipelineFile struct {
	Name            string   `yaml:"name"`
	Input           []string `yaml:"input"`
	Process         []string `yaml:"process"`
	PostProcess     []string `yaml:"post_process"`
	Output          []string `yaml:"output"`
	Dependencies    []string `yaml:"dependencies"`
	Isolated        bool     `yaml:"isolated"`
	Deployment      bool     `yaml:"deployment"`
	ExecutionPolicy string   `yaml:"execution_policy"`
}

type declarationsFile struct {
	Pipelines []pipelineFile `yaml:"pipelines"`
}

// ModuleResolver maps a declared module name to the engine.Module that
// implements it. The engine ships no concrete modules; callers supply
// their own registry.
type ModuleResolver func(name string) (engine.Module, error)

// LoadDeclarations decodes a YAML document of named pipelines from r,
// resolving each phase's module names through resolve, and returns the
// resulting engine.Pipeline values in document order (preserved for the
// graph builder's deterministic tie-breaking).
func LoadDeclarations(r io.Reader, resolve ModuleResolver) ([]engine.Pipeline, error) {
	var doc declarationsFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("config: decode pipeline declarations: %w", err)
	}

	pipelines := make([]engine.Pipeline, 0, len(doc.Pipelines))
	for _, pf := range doc.Pipelines {
		input, err := resolveModules(pf.Input, resolve)
		if err != nil {
			return nil, fmt.Errorf("config: pipeline %q input phase: %w", pf.Name, err)
		}
		process, err := resolveModules(pf.Process, resolve)
		if err != nil {
			return nil, fmt.Errorf("config: pipeline %q process phase: %w", pf.Name, err)
		}
		postProcess, err := resolveModules(pf.PostProcess, resolve)
		if err != nil {
			return nil, fmt.Errorf("config: pipeline %q post_process phase: %w", pf.Name, err)
		}
		output, err := resolveModules(pf.Output, resolve)
		if err != nil {
			return nil, fmt.Errorf("config: pipeline %q output phase: %w", pf.Name, err)
		}

		pipelines = append(pipelines, engine.Pipeline{
			Name:            pf.Name,
			Input:           input,
			Process:         process,
			PostProcess:     postProcess,
			Output:          output,
			Dependencies:    pf.Dependencies,
			Isolated:        pf.Isolated,
			Deployment:      pf.Deployment,
			ExecutionPolicy: parseExecutionPolicy(pf.ExecutionPolicy),
		})
	}
	return pipelines, nil
}

func resolveModules(names []string, resolve ModuleResolver) ([]engine.Module, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]engine.Module, 0, len(names))
	for _, name := range names {
		m, err := resolve(name)
		if err != nil {
			return nil, fmt.Errorf("module %q: %w", name, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func parseExecutionPolicy(s string) engine.ExecutionPolicy {
	switch strings.ToLower(s) {
	case "always":
		return engine.PolicyAlways
	case "manual":
		return engine.PolicyManual
	case "normal":
		return engine.PolicyNormal
	default:
		return engine.PolicyDefault
	}
}
