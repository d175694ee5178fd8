package pipeline

import (
	"strings"

	"github.com/siteforge/pipeline/models"
)

// phaseGraph is the compiled, topologically-sorted result of buildPhaseGraph:
// order lists every phase in an order that respects every Dependencies edge,
// and byPipeline indexes the four phases belonging to each pipeline by name
// (lower-cased) for the scheduler's selection and input-gathering logic.
type phaseGraph struct {
	order      []*Phase
	byPipeline map[string]map[models.PhaseKind]*Phase
}

// buildPhaseGraph compiles a pipeline collection into a phase dependency
// graph. It runs in four passes:
//
//  1. Per-pipeline DFS: build the four Phase nodes for every pipeline,
//     wiring the fixed intra-pipeline edges (Process depends on its own
//     Input plus every dependency's Process; PostProcess depends on its own
//     Process; Output depends on its own PostProcess) and validating the
//     isolated/dependency/deployment rules along the way.
//  2. Post-process cross-link: every non-isolated pipeline P's PostProcess
//     additionally depends on every other non-isolated pipeline Q's Process,
//     where Q.Deployment == P.Deployment.
//  3. Deployment input gate: every Deployment pipeline P's Input
//     additionally depends on every non-Deployment pipeline Q's Output.
//  4. Final topological sort, visiting each pipeline's four phases in
//     Input, Process, PostProcess, Output order, in pipeline insertion
//     order, for a deterministic result.
func buildPhaseGraph(pipelines []Pipeline) (*phaseGraph, error) {
	byName := make(map[string]Pipeline, len(pipelines))
	for _, p := range pipelines {
		key := strings.ToLower(p.Name)
		if _, exists := byName[key]; exists {
			return nil, errConfig("duplicate pipeline name %q (case-insensitive)", p.Name)
		}
		byName[key] = p
	}

	phases := make(map[string]map[models.PhaseKind]*Phase, len(pipelines))
	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(name string) error
	visit = func(name string) error {
		key := strings.ToLower(name)
		if visited[key] {
			return nil
		}
		if visiting[key] {
			return errConfig("circular dependency detected at pipeline %q", name)
		}
		p, ok := byName[key]
		if !ok {
			return errConfig("unknown pipeline %q", name)
		}
		visiting[key] = true
		defer delete(visiting, key)

		nodes := make(map[models.PhaseKind]*Phase, len(models.AllPhaseKinds))
		for _, k := range models.AllPhaseKinds {
			nodes[k] = &Phase{Pipeline: p.Name, Kind: k, Modules: p.modulesFor(k)}
		}
		nodes[models.PostProcess].Dependencies = []*Phase{nodes[models.Process]}
		nodes[models.Output].Dependencies = []*Phase{nodes[models.PostProcess]}

		if p.Isolated {
			if len(p.Dependencies) > 0 {
				return errConfig("isolated pipeline %q may not declare dependencies", p.Name)
			}
			nodes[models.Process].Dependencies = []*Phase{nodes[models.Input]}
			phases[key] = nodes
			visited[key] = true
			return nil
		}

		processDeps := []*Phase{nodes[models.Input]}
		for _, depName := range p.Dependencies {
			depKey := strings.ToLower(depName)
			dep, ok := byName[depKey]
			if !ok {
				return errConfig("pipeline %q depends on unknown pipeline %q", p.Name, depName)
			}
			if dep.Isolated {
				return errConfig("pipeline %q cannot depend on isolated pipeline %q", p.Name, depName)
			}
			if !p.Deployment && dep.Deployment {
				return errConfig("non-deployment pipeline %q cannot depend on deployment pipeline %q", p.Name, depName)
			}
			if err := visit(depName); err != nil {
				return err
			}
			processDeps = append(processDeps, phases[depKey][models.Process])
		}
		nodes[models.Process].Dependencies = processDeps

		phases[key] = nodes
		visited[key] = true
		return nil
	}

	for _, p := range pipelines {
		if err := visit(p.Name); err != nil {
			return nil, err
		}
	}

	for _, p := range pipelines {
		if p.Isolated {
			continue
		}
		pk := strings.ToLower(p.Name)
		for _, q := range pipelines {
			if q.Isolated || strings.EqualFold(p.Name, q.Name) || q.Deployment != p.Deployment {
				continue
			}
			qk := strings.ToLower(q.Name)
			phases[pk][models.PostProcess].Dependencies = append(phases[pk][models.PostProcess].Dependencies, phases[qk][models.Process])
		}
	}

	for _, p := range pipelines {
		if !p.Deployment {
			continue
		}
		pk := strings.ToLower(p.Name)
		for _, q := range pipelines {
			if q.Deployment {
				continue
			}
			qk := strings.ToLower(q.Name)
			phases[pk][models.Input].Dependencies = append(phases[pk][models.Input].Dependencies, phases[qk][models.Output])
		}
	}

	order, err := sortPhases(pipelines, phases)
	if err != nil {
		return nil, err
	}

	return &phaseGraph{order: order, byPipeline: phases}, nil
}

func sortPhases(pipelines []Pipeline, phases map[string]map[models.PhaseKind]*Phase) ([]*Phase, error) {
	var order []*Phase
	done := make(map[*Phase]bool)
	visiting := make(map[*Phase]bool)

	var visit func(ph *Phase) error
	visit = func(ph *Phase) error {
		if done[ph] {
			return nil
		}
		if visiting[ph] {
			return errConfig("cyclic phase dependency involving pipeline %q phase %s", ph.Pipeline, ph.Kind)
		}
		visiting[ph] = true
		for _, dep := range ph.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[ph] = false
		done[ph] = true
		order = append(order, ph)
		return nil
	}

	for _, p := range pipelines {
		key := strings.ToLower(p.Name)
		for _, k := range models.AllPhaseKinds {
			if err := visit(phases[key][k]); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}
