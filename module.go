package pipeline

import (
	"context"

	"github.com/siteforge/pipeline/collaborators"
	"github.com/siteforge/pipeline/models"
)

// Module is one step of a phase's module chain. Execute
// receives the batch produced by the previous module (or the phase's
// gathered inputs, for the first module) and returns the batch to hand to
// the next one. A nil batch is treated as empty; an error aborts the
// enclosing phase and is wrapped in a ModuleError.
type Module interface {
	Name() string
	Execute(ec *ExecutionContext) (models.Batch, error)
}

// Services bundles the engine-wide collaborators every ExecutionContext
// exposes to a module: the file system, the logger, a settings map
// (created empty by NewEngine), a lookup of other pipelines' Process-phase
// batches, and the activated analyzer set.
type Services struct {
	FileSystem collaborators.FileSystem
	Logger     collaborators.Logger
	Settings   map[string]any
	Analyzers  []models.Analyzer

	// UseStringContentFiles mirrors EngineConfig.UseStringContentFiles,
	// so a module can pass it straight to FileSystem.NewMemoryStream
	// without the engine having to know which modules need a memory
	// stream at all.
	UseStringContentFiles bool

	// Outputs returns the Process-phase batch recorded for pipeline in
	// this execution, or (nil, false) if it has not completed Process yet.
	// Process is the latest phase the cross-pipeline dependency edges
	// order against, so it is the only phase another pipeline's modules
	// can read deterministically: call it from a phase that depends on
	// pipeline's Process (your own Process, via a declared dependency, or
	// PostProcess, via the same-group cross-link).
	Outputs func(pipeline string) (models.Batch, bool)
}

// ExecutionContext is passed to every module's Execute call. It carries
// the inputs gathered for this phase, identifies the owning phase and
// pipeline, exposes the engine-wide Services, and threads cancellation
// through context.Context the way every blocking engine operation does.
type ExecutionContext struct {
	Context      context.Context
	Inputs       models.Batch
	Phase        models.PhaseKind
	PipelineName string
	Services     *Services

	executeModules func(ctx context.Context, modules []Module, inputs models.Batch) (models.Batch, error)
}

// ExecuteModules runs modules as a nested chain against inputs, using the
// same diagnostic wrapping and event raising as the enclosing phase. It
// exists for container modules that re-enter the module chain once per
// item (a for-each-document module, for instance).
func (ec *ExecutionContext) ExecuteModules(ctx context.Context, modules []Module, inputs models.Batch) (models.Batch, error) {
	return ec.executeModules(ctx, modules, inputs)
}
