package pipeline

import "github.com/siteforge/pipeline/models"

// ExecutionPolicy controls whether a pipeline runs when Execute is called
// without naming it explicitly.
type ExecutionPolicy int

const (
	// PolicyDefault resolves to PolicyManual for a Deployment pipeline and
	// PolicyNormal otherwise (Pipeline.effectivePolicy).
	PolicyDefault ExecutionPolicy = iota
	// PolicyAlways runs the pipeline on every Execute call, regardless of
	// includeNormal or explicit selection.
	PolicyAlways
	// PolicyManual runs the pipeline only when it is named explicitly, or
	// pulled in transitively as another selected pipeline's dependency.
	PolicyManual
	// PolicyNormal runs the pipeline when includeNormal is true, or when it
	// is named explicitly/pulled in as a dependency.
	PolicyNormal
)

func (p ExecutionPolicy) String() string {
	switch p {
	case PolicyAlways:
		return "Always"
	case PolicyManual:
		return "Manual"
	case PolicyNormal:
		return "Normal"
	default:
		return "Default"
	}
}

// Pipeline is a named, user-declared sequence of modules grouped into the
// four fixed phases, plus the metadata the graph builder and scheduler need
// to place it among the other pipelines.
type Pipeline struct {
	// Name is compared case-insensitively against every other pipeline's
	// Name; two registered pipelines differing only by case make the phase
	// graph build (Validate or Execute) fail with a ConfigError. Register
	// itself does not check names.
	Name string

	Input       []Module
	Process     []Module
	PostProcess []Module
	Output      []Module

	// Dependencies names other pipelines whose Process phase must complete
	// before this pipeline's own Process phase runs.
	Dependencies []string

	// Isolated pipelines may declare no Dependencies, no other pipeline may
	// depend on them, and the PostProcess cross-link pass skips them. The
	// deployment input gate still applies: a Deployment pipeline's Input
	// waits on an isolated non-deployment pipeline's Output, and an
	// isolated Deployment pipeline's Input waits on every non-deployment
	// Output.
	Isolated bool

	// Deployment pipelines run after every non-deployment pipeline's Output
	// phase and the synthetic BeforeDeployment gate.
	Deployment bool

	ExecutionPolicy ExecutionPolicy
}

// effectivePolicy resolves PolicyDefault against Deployment: Default is
// Manual for a Deployment pipeline and Normal otherwise.
func (p Pipeline) effectivePolicy() ExecutionPolicy {
	if p.ExecutionPolicy != PolicyDefault {
		return p.ExecutionPolicy
	}
	if p.Deployment {
		return PolicyManual
	}
	return PolicyNormal
}

// modulesFor returns the module chain for one of the pipeline's four phases.
func (p Pipeline) modulesFor(kind models.PhaseKind) []Module {
	switch kind {
	case models.Input:
		return p.Input
	case models.Process:
		return p.Process
	case models.PostProcess:
		return p.PostProcess
	case models.Output:
		return p.Output
	default:
		return nil
	}
}
