// Package pipeline is a static-content pipeline execution engine: it
// compiles pipeline declarations into a phase dependency graph, drives
// that graph concurrently, and streams documents through each phase's
// module chain. It does not parse configuration files, load pipelines
// from disk, set up logging sinks, or implement any concrete module;
// those concerns live in package config, the collaborators subpackages,
// and cmd/sitepipe respectively.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/siteforge/pipeline/collaborators"
	"github.com/siteforge/pipeline/models"
	"github.com/siteforge/pipeline/summary"
)

// Engine owns the registered pipelines, caches their compiled phase graph,
// and drives one execution at a time.
type Engine struct {
	mu        sync.Mutex
	pipelines []Pipeline
	graph     *phaseGraph
	running   bool
	disposed  bool
	execID    string
	firstRun  bool

	cfg      EngineConfig
	events   *eventBus
	services *Services

	fs  collaborators.FileSystem
	log collaborators.Logger

	resultsMu sync.Mutex
	results   map[string]*[4]*PhaseResult

	analyzerMu      sync.Mutex
	analyzerResults []models.AnalyzerResult
	analyzerLevels  map[string]collaborators.Level
}

// NewEngine constructs an Engine from its collaborators. Every registered
// Initializer runs once here, before any pipeline executes.
func NewEngine(cfg EngineConfig, fs collaborators.FileSystem, log collaborators.Logger, container collaborators.ServiceContainer) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		events:   newEventBus(),
		fs:       fs,
		log:      log,
		results:  make(map[string]*[4]*PhaseResult),
		firstRun: true,
	}

	analyzers, levels := selectAnalyzers(container.Analyzers(), cfg.Analyzers)
	e.analyzerLevels = levels

	e.services = &Services{
		FileSystem:            fs,
		Logger:                log,
		Settings:              map[string]any{},
		Analyzers:             analyzers,
		UseStringContentFiles: cfg.UseStringContentFiles,
		// Modules read a dependency's documents from its Process phase: the
		// cross-pipeline edges only guarantee ordering against Process (a
		// dependent's Process waits on the dependency's Process, PostProcess
		// on the peer group's Process), so Process is the latest phase whose
		// result is deterministically visible to another pipeline's modules.
		Outputs: func(pipelineName string) (models.Batch, bool) {
			return e.phaseOutput(pipelineName, models.Process)
		},
	}

	for _, init := range container.Initializers() {
		if err := init.Initialize(container); err != nil {
			return nil, fmt.Errorf("engine: initializer failed: %w", err)
		}
	}

	return e, nil
}

// selectAnalyzers filters all by the "name=level" entries in specs,
// returning the activated analyzers alongside each one's minimum result
// level. The entry "All" applies its level to every registered analyzer.
// An entry with no "=level" suffix, an empty value, or the value "true"
// activates at LevelDebug, i.e. every result the analyzer produces is
// kept. An empty specs activates no analyzers, since analyzers are
// opt-in.
func selectAnalyzers(all []models.Analyzer, specs []string) ([]models.Analyzer, map[string]collaborators.Level) {
	levels := make(map[string]collaborators.Level)
	if len(specs) == 0 {
		return nil, levels
	}
	byName := make(map[string]models.Analyzer, len(all))
	for _, a := range all {
		byName[a.Name()] = a
	}

	var out []models.Analyzer
	seen := make(map[string]bool)
	for _, spec := range specs {
		name := spec
		level := collaborators.LevelDebug
		if idx := strings.IndexByte(spec, '='); idx >= 0 {
			name = spec[:idx]
			// "name=true" and "name=" keep the analyzer's default, the
			// same as a bare "name"; only a real level name narrows it.
			if v := spec[idx+1:]; v != "" && v != "true" {
				level = collaborators.ParseLevel(v)
			}
		}
		if name == "All" {
			for _, a := range all {
				if !seen[a.Name()] {
					seen[a.Name()] = true
					out = append(out, a)
				}
				levels[a.Name()] = level
			}
			continue
		}
		if a, ok := byName[name]; ok {
			if !seen[name] {
				seen[name] = true
				out = append(out, a)
			}
			levels[name] = level
		}
	}
	return out, levels
}

// Register adds a pipeline declaration. It invalidates the cached phase
// graph, which is rebuilt lazily on the next Execute call.
func (e *Engine) Register(p Pipeline) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return &DisposedError{}
	}
	e.pipelines = append(e.pipelines, p)
	e.graph = nil
	return nil
}

// Pipelines returns every registered pipeline declaration, in registration
// order, for callers that need to inspect the collection without
// executing it (e.g. a CLI's `pipelines list`).
func (e *Engine) Pipelines() []Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Pipeline, len(e.pipelines))
	copy(out, e.pipelines)
	return out
}

// Validate builds the phase graph from the currently registered pipelines
// without executing anything, surfacing any ConfigError (cycles, unknown
// dependencies, isolation conflicts) up front.
func (e *Engine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return &DisposedError{}
	}
	graph, err := buildPhaseGraph(e.pipelines)
	if err != nil {
		return err
	}
	e.graph = graph
	return nil
}

func (e *Engine) pipelineByName(name string) Pipeline {
	key := strings.ToLower(name)
	for _, p := range e.pipelines {
		if strings.ToLower(p.Name) == key {
			return p
		}
	}
	return Pipeline{}
}

func (e *Engine) logger() collaborators.Logger {
	return e.log
}

func (e *Engine) currentExecutionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execID
}

func (e *Engine) recordResult(pipelineName string, result *PhaseResult) {
	key := strings.ToLower(pipelineName)
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	slot, ok := e.results[key]
	if !ok {
		slot = &[4]*PhaseResult{}
		e.results[key] = slot
	}
	slot[result.Kind] = result
}

// recordAnalyzerResults keeps only the results at or above the activating
// "name=level" threshold for their analyzer; a result below its analyzer's
// configured level is dropped before it ever reaches AnalyzerResults.
func (e *Engine) recordAnalyzerResults(results []models.AnalyzerResult) {
	if len(results) == 0 {
		return
	}
	e.analyzerMu.Lock()
	defer e.analyzerMu.Unlock()
	for _, r := range results {
		if min, ok := e.analyzerLevels[r.Analyzer]; ok && collaborators.ParseLevel(r.Level) < min {
			continue
		}
		e.analyzerResults = append(e.analyzerResults, r)
	}
}

// AnalyzerResults returns every diagnostic recorded by activated analyzers
// across every execution so far, in the order they were produced.
func (e *Engine) AnalyzerResults() []models.AnalyzerResult {
	e.analyzerMu.Lock()
	defer e.analyzerMu.Unlock()
	out := make([]models.AnalyzerResult, len(e.analyzerResults))
	copy(out, e.analyzerResults)
	return out
}

func (e *Engine) phaseOutput(pipelineName string, kind models.PhaseKind) (models.Batch, bool) {
	key := strings.ToLower(pipelineName)
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()
	slot, ok := e.results[key]
	if !ok {
		return nil, false
	}
	r := slot[kind]
	if r == nil {
		return nil, false
	}
	return r.Outputs, true
}

// Execute runs the engine once: it resolves the phase graph (building it if
// this is the first call or the pipeline collection has changed since),
// selects which pipelines participate, and drives the scheduler to
// completion. Outputs always reflects whatever succeeded, even when the
// returned error is non-nil. serial forces every phase to complete before
// the next one is launched, while still honoring the dependency graph.
func (e *Engine) Execute(ctx context.Context, names []string, includeNormal bool, serial bool) (map[string]models.Batch, summary.Summary, error) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return nil, summary.Summary{}, &DisposedError{}
	}
	if e.running {
		e.mu.Unlock()
		return nil, summary.Summary{}, &ReentrancyError{}
	}
	e.running = true
	e.execID = uuid.NewString()
	first := e.firstRun
	e.firstRun = false
	if e.graph == nil {
		graph, err := buildPhaseGraph(e.pipelines)
		if err != nil {
			e.running = false
			e.mu.Unlock()
			return nil, summary.Summary{}, err
		}
		e.graph = graph
	}
	graph := e.graph
	pipelines := append([]Pipeline{}, e.pipelines...)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if err := e.fs.WipeTempDir(); err != nil {
		return nil, summary.Summary{}, err
	}
	switch {
	case first || e.cfg.CleanMode == CleanFull:
		if err := e.fs.DeleteOutputDir(); err != nil {
			return nil, summary.Summary{}, err
		}
	case e.cfg.CleanMode == CleanSelf:
		if err := e.fs.DeleteWrittenFiles(e.fs.WrittenFiles()); err != nil {
			return nil, summary.Summary{}, err
		}
	}
	if err := e.fs.CreateOutputDir(); err != nil {
		return nil, summary.Summary{}, err
	}

	e.log.ResetFailureCount()

	// Results are overwritten each execution: a phase that fails or is
	// skipped this run must leave an empty cell, not last run's result.
	e.resultsMu.Lock()
	e.results = make(map[string]*[4]*PhaseResult)
	e.resultsMu.Unlock()

	selected, err := selectPipelines(pipelines, names, includeNormal)
	if err != nil {
		return nil, summary.Summary{}, err
	}
	if len(selected) == 0 {
		e.log.Warn("no pipelines selected for execution", nil)
	}

	startedAt := time.Now()
	if _, err := e.events.raiseBeforeEngineExecution(&EngineEventArgs{ExecutionID: e.execID}); err != nil {
		return nil, summary.Summary{}, err
	}

	runs := e.runGraph(ctx, graph, selected, serial)

	outputs := make(map[string]models.Batch)
	var failures []error
	for _, p := range pipelines {
		if !selected[strings.ToLower(p.Name)] {
			continue
		}
		if out, ok := e.phaseOutput(p.Name, models.Output); ok {
			outputs[p.Name] = out
		}
	}
	for _, run := range runs {
		if run.err == nil {
			continue
		}
		if _, isSkip := run.err.(*SkipError); !isSkip {
			failures = append(failures, run.err)
		}
	}

	elapsed := time.Since(startedAt)
	result := e.buildSummary(pipelines, selected)

	afterArgs := &AfterEngineEventArgs{ExecutionID: e.execID, Outputs: outputs, ElapsedMS: elapsed.Milliseconds()}
	if len(failures) > 0 {
		afterArgs.Err = &AggregateError{Errors: failures}
	}
	// AfterEngineExecution fires unconditionally, even on a cancelled
	// execution, for symmetry with BeforeEngineExecution.
	_, _ = e.events.raiseAfterEngineExecution(afterArgs)

	if e.cfg.FailureLogLevel != collaborators.LevelNone {
		if n := e.log.FailureCount(e.cfg.FailureLogLevel); n > 0 {
			failures = append(failures, &FailureLogError{Count: n, Level: e.cfg.FailureLogLevel})
		}
	}

	if len(failures) > 0 {
		return outputs, result, &AggregateError{Errors: failures}
	}
	return outputs, result, nil
}

// buildSummary renders the machine-readable summary.Summary from the
// results recorded by this execution.
func (e *Engine) buildSummary(pipelines []Pipeline, selected map[string]bool) summary.Summary {
	e.resultsMu.Lock()
	defer e.resultsMu.Unlock()

	var out summary.Summary
	for _, p := range pipelines {
		key := strings.ToLower(p.Name)
		if !selected[key] {
			continue
		}
		slot, ok := e.results[key]
		if !ok {
			continue
		}
		entry := summary.PipelineEntry{Name: p.Name}
		for _, kind := range models.AllPhaseKinds {
			r := slot[kind]
			if r == nil {
				continue
			}
			entry.Phases = append(entry.Phases, summary.PhaseEntry{
				Kind:        r.Kind,
				OutputCount: len(r.Outputs),
				Start:       r.Start,
				ElapsedMS:   r.ElapsedMS,
			})
		}
		if len(entry.Phases) > 0 {
			out.Pipelines = append(out.Pipelines, entry)
		}
	}
	return out
}

// Dispose tears down the engine: it is no longer usable for Execute calls
// afterward. Per CleanMode it also removes either the files this engine
// wrote (Self) or the entire output directory (Full); None leaves the
// output directory as-is.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return &DisposedError{}
	}
	e.disposed = true

	switch e.cfg.CleanMode {
	case CleanFull:
		return e.fs.DeleteOutputDir()
	case CleanSelf:
		return e.fs.DeleteWrittenFiles(e.fs.WrittenFiles())
	default:
		return nil
	}
}

// OnBeforeEngineExecution registers a handler for the BeforeEngineExecution
// event.
func (e *Engine) OnBeforeEngineExecution(h func(*EngineEventArgs) error) {
	e.events.OnBeforeEngineExecution(h)
}

// OnAfterEngineExecution registers a handler for the AfterEngineExecution
// event.
func (e *Engine) OnAfterEngineExecution(h func(*AfterEngineEventArgs) error) {
	e.events.OnAfterEngineExecution(h)
}

// OnBeforeDeployment registers a handler for the synthetic BeforeDeployment
// gate event.
func (e *Engine) OnBeforeDeployment(h func(*EngineEventArgs) error) {
	e.events.OnBeforeDeployment(h)
}

// OnBeforeModuleExecution registers a handler for BeforeModuleExecution.
// The handler may set args.OverriddenOutputs (and args.HasOverride) to
// suppress the module's own Execute call.
func (e *Engine) OnBeforeModuleExecution(h func(*ModuleEventArgs) error) {
	e.events.OnBeforeModuleExecution(h)
}

// OnAfterModuleExecution registers a handler for AfterModuleExecution.
func (e *Engine) OnAfterModuleExecution(h func(*ModuleEventArgs) error) {
	e.events.OnAfterModuleExecution(h)
}
