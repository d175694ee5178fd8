package main

import (
	"fmt"

	engine "github.com/siteforge/pipeline"
	"github.com/siteforge/pipeline/models"
)

// passthroughModule is the only module sitepipe ships built in. Concrete
// content modules are deployment-specific; this one exists purely so
// run/validate have something real to exercise end to end.
type passthroughModule struct{ name string }

func (m passthroughModule) Name() string { return m.name }

func (m passthroughModule) Execute(ec *engine.ExecutionContext) (models.Batch, error) {
	ec.Services.Logger.Debug("passthrough module ran", map[string]any{
		"pipeline": ec.PipelineName,
		"phase":    ec.Phase.String(),
		"module":   m.name,
	})
	return ec.Inputs, nil
}

// builtinResolver resolves any declared module name to a passthroughModule,
// so that declaration YAML can be validated and run without a real module
// registry wired in. A production deployment supplies its own
// config.ModuleResolver in place of this one.
func builtinResolver(name string) (engine.Module, error) {
	if name == "" {
		return nil, fmt.Errorf("module name must not be empty")
	}
	return passthroughModule{name: name}, nil
}
