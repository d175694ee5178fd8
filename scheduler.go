package pipeline

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/siteforge/pipeline/models"
)

// selectPipelines resolves which pipelines run for one Execute call:
// every Always-policy pipeline, every Normal-policy
// pipeline when includeNormal is set, every pipeline named explicitly, and
// the transitive closure of Dependencies for anything selected so far. An
// unknown explicit name is a ConfigError before any phase runs.
func selectPipelines(pipelines []Pipeline, explicit []string, includeNormal bool) (map[string]bool, error) {
	byName := make(map[string]Pipeline, len(pipelines))
	for _, p := range pipelines {
		byName[strings.ToLower(p.Name)] = p
	}

	selected := make(map[string]bool)
	var add func(name string) error
	add = func(name string) error {
		key := strings.ToLower(name)
		p, ok := byName[key]
		if !ok {
			return errConfig("unknown pipeline %q", name)
		}
		if selected[key] {
			return nil
		}
		selected[key] = true
		for _, dep := range p.Dependencies {
			if err := add(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, p := range pipelines {
		policy := p.effectivePolicy()
		if policy == PolicyAlways || (includeNormal && policy == PolicyNormal) {
			if err := add(p.Name); err != nil {
				return nil, err
			}
		}
	}
	for _, name := range explicit {
		if err := add(name); err != nil {
			return nil, err
		}
	}
	return selected, nil
}

// phaseRun tracks one selected phase's execution within a single Execute
// call; phases not selected for the execution get no phaseRun. done closes
// once the phase has either run to completion, failed, or been skipped.
type phaseRun struct {
	phase     *Phase
	done      chan struct{}
	succeeded bool
	err       error
	result    *PhaseResult
}

// runGraph drives every selected phase concurrently, honoring the
// dependency graph, the synthetic BeforeDeployment gate, and serial mode.
// It always returns: cancellation and phase failures are
// recorded on the individual phaseRuns, never by aborting the errgroup.
func (e *Engine) runGraph(ctx context.Context, graph *phaseGraph, selected map[string]bool, serial bool) map[*Phase]*phaseRun {
	runs := make(map[*Phase]*phaseRun, len(graph.order))
	for _, ph := range graph.order {
		if !selected[strings.ToLower(ph.Pipeline)] {
			continue
		}
		runs[ph] = &phaseRun{phase: ph, done: make(chan struct{})}
	}

	var nonDeploymentRuns []*phaseRun
	deploymentInput := make(map[*Phase]bool)
	for ph, run := range runs {
		p := e.pipelineByName(ph.Pipeline)
		if !p.Deployment {
			nonDeploymentRuns = append(nonDeploymentRuns, run)
		} else if ph.Kind == models.Input {
			deploymentInput[ph] = true
		}
	}

	gate := &phaseRun{phase: &Phase{Pipeline: "", Kind: models.PhaseKind(-1)}, done: make(chan struct{})}

	boundary := len(graph.order)
	for i, ph := range graph.order {
		if _, ok := runs[ph]; !ok {
			continue
		}
		if e.pipelineByName(ph.Pipeline).Deployment {
			boundary = i
			break
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if serial {
		g.SetLimit(1)
	}

	launchGate := func() {
		g.Go(func() error {
			for _, dep := range nonDeploymentRuns {
				select {
				case <-dep.done:
				case <-gctx.Done():
				}
			}
			_, _ = e.events.raiseBeforeDeployment(&EngineEventArgs{ExecutionID: e.currentExecutionID()})
			close(gate.done)
			return nil
		})
	}

	for i, ph := range graph.order {
		if i == boundary {
			launchGate()
		}
		run, ok := runs[ph]
		if !ok {
			continue
		}
		isGateDependent := deploymentInput[ph]
		g.Go(func() error {
			e.runPhase(gctx, run, runs, gate, isGateDependent)
			return nil
		})
	}
	if boundary == len(graph.order) {
		launchGate()
	}

	_ = g.Wait()
	return runs
}

// runPhase waits for every dependency (and, for a Deployment pipeline's
// Input phase, the BeforeDeployment gate) to settle, then either
// skip-cascades or executes the phase's module chain. A dependency that is
// not part of this execution's
// selected set is treated as vacuously satisfied: the cross-link passes in
// buildPhaseGraph can point at phases outside the user's selection, and
// those simply do not gate anything this run.
func (e *Engine) runPhase(ctx context.Context, run *phaseRun, runs map[*Phase]*phaseRun, gate *phaseRun, gateDependent bool) {
	defer close(run.done)

	for _, dep := range run.phase.Dependencies {
		depRun, ok := runs[dep]
		if !ok {
			continue
		}
		select {
		case <-depRun.done:
			if !depRun.succeeded {
				run.err = &SkipError{Pipeline: run.phase.Pipeline, Phase: run.phase.Kind, Cause: depRun.err}
				return
			}
		case <-ctx.Done():
			run.err = &SkipError{Pipeline: run.phase.Pipeline, Phase: run.phase.Kind, Cause: ctx.Err()}
			return
		}
	}

	if gateDependent {
		select {
		case <-gate.done:
		case <-ctx.Done():
			run.err = &SkipError{Pipeline: run.phase.Pipeline, Phase: run.phase.Kind, Cause: ctx.Err()}
			return
		}
	}

	// Unlike the skip-cascade branches above (a dependency that failed or
	// was itself skipped), a phase with no pending dependency that still
	// observes a cancelled context is directly cancelled: it counts as an
	// execution error, not a synthetic skip.
	if err := ctx.Err(); err != nil {
		run.err = err
		return
	}

	inputs := gatherInputs(run.phase, runs)

	start := time.Now()
	outputs, err := e.executeModuleChain(ctx, run.phase.Pipeline, run.phase.Kind, run.phase.Modules, inputs)
	elapsed := time.Since(start)

	for _, a := range e.services.Analyzers {
		e.recordAnalyzerResults(a.Analyze(run.phase.Pipeline, run.phase.Kind, outputs, err))
	}

	if err != nil {
		run.err = err
		e.logger().Error("phase failed", map[string]any{
			"pipeline": run.phase.Pipeline,
			"phase":    run.phase.Kind.String(),
			"error":    err.Error(),
		})
		return
	}

	run.succeeded = true
	run.result = &PhaseResult{Kind: run.phase.Kind, Outputs: outputs, Start: start, ElapsedMS: elapsed.Milliseconds()}
	e.recordResult(run.phase.Pipeline, run.result)
}

// gatherInputs returns the batch a phase should receive: the empty batch
// for Input, or its intra-pipeline predecessor's outputs otherwise. The
// intra-pipeline predecessor is always present among
// Dependencies at the matching PhaseKind by construction.
func gatherInputs(ph *Phase, runs map[*Phase]*phaseRun) models.Batch {
	if ph.Kind == models.Input {
		return models.EmptyBatch
	}
	predKind := ph.Kind - 1
	for _, dep := range ph.Dependencies {
		if dep.Pipeline == ph.Pipeline && dep.Kind == predKind {
			if run, ok := runs[dep]; ok && run.succeeded {
				return run.result.Outputs
			}
			return models.EmptyBatch
		}
	}
	return models.EmptyBatch
}

// executeModuleChain runs modules in order against inputs, raising
// BeforeModuleExecution/AfterModuleExecution around each one and honoring
// OverriddenOutputs. A module's error, or a handler's error, is
// wrapped as a ModuleError and aborts the chain; cancellation is checked
// before each module so a cooperative cancel takes effect between modules
// rather than mid-module.
func (e *Engine) executeModuleChain(ctx context.Context, pipelineName string, phase models.PhaseKind, modules []Module, inputs models.Batch) (models.Batch, error) {
	batch := inputs

	for _, m := range modules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ec := &ExecutionContext{
			Context:      ctx,
			Inputs:       batch,
			Phase:        phase,
			PipelineName: pipelineName,
			Services:     e.services,
		}
		ec.executeModules = func(innerCtx context.Context, innerModules []Module, innerInputs models.Batch) (models.Batch, error) {
			return e.executeModuleChain(innerCtx, pipelineName, phase, innerModules, innerInputs)
		}

		before := &ModuleEventArgs{Context: ec, Module: m}
		if _, err := e.events.raiseBeforeModuleExecution(before); err != nil {
			return nil, &ModuleError{Pipeline: pipelineName, Phase: phase, Module: m.Name(), Err: err}
		}

		var out models.Batch
		var elapsedMS int64
		if before.HasOverride {
			out = before.OverriddenOutputs
		} else {
			start := time.Now()
			produced, err := m.Execute(ec)
			elapsedMS = time.Since(start).Milliseconds()
			if err != nil {
				return nil, &ModuleError{Pipeline: pipelineName, Phase: phase, Module: m.Name(), Err: err}
			}
			out = models.NormalizeBatch(produced)
		}

		after := &ModuleEventArgs{Context: ec, Module: m, Outputs: out, ElapsedMS: elapsedMS}
		if _, err := e.events.raiseAfterModuleExecution(after); err != nil {
			return nil, &ModuleError{Pipeline: pipelineName, Phase: phase, Module: m.Name(), Err: err}
		}
		if after.HasOverride {
			out = after.OverriddenOutputs
		}

		batch = models.NormalizeBatch(out)
	}

	return batch, nil
}
