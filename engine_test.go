package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteforge/pipeline/collaborators"
	"github.com/siteforge/pipeline/collaborators/catalog"
	"github.com/siteforge/pipeline/collaborators/osfs"
	"github.com/siteforge/pipeline/collaborators/zlog"
	"github.com/siteforge/pipeline/models"
)

// fnModule is a Module implemented by a plain function.
type fnModule struct {
	name string
	fn   func(ec *ExecutionContext) (models.Batch, error)
}

func (m *fnModule) Name() string { return m.name }
func (m *fnModule) Execute(ec *ExecutionContext) (models.Batch, error) {
	return m.fn(ec)
}

func appendModule(name, tag string) Module {
	return &fnModule{name: name, fn: func(ec *ExecutionContext) (models.Batch, error) {
		doc := models.NewDocument().WithMetadata("tag", tag)
		return models.Concat(ec.Inputs, models.NewBatch(doc)), nil
	}}
}

func newTestEngine(t *testing.T, cfg EngineConfig) *Engine {
	t.Helper()
	fs := osfs.New(t.TempDir(), t.TempDir(), t.TempDir())
	log := zlog.New(io.Discard)
	e, err := NewEngine(cfg, fs, log, catalog.New())
	require.NoError(t, err)
	return e
}

func TestEngineExecuteLinearPipelineProducesOutputs(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	require.NoError(t, e.Register(Pipeline{
		Name:    "content",
		Input:   []Module{appendModule("read", "input")},
		Process: []Module{appendModule("render", "process")},
		Output:  []Module{appendModule("write", "output")},
	}))

	outputs, sum, err := e.Execute(context.Background(), nil, true, false)
	require.NoError(t, err)
	require.Contains(t, outputs, "content")
	assert.Len(t, outputs["content"], 3)
	assert.NotEmpty(t, sum.Pipelines)
}

func TestEngineExecuteDependencyOrderingByTimestamp(t *testing.T) {
	var mu sync.Mutex
	var aProcessEnd, bProcessStart time.Time

	e := newTestEngine(t, DefaultEngineConfig())
	require.NoError(t, e.Register(Pipeline{
		Name: "A",
		Process: []Module{&fnModule{name: "a-process", fn: func(ec *ExecutionContext) (models.Batch, error) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			aProcessEnd = time.Now()
			mu.Unlock()
			return models.EmptyBatch, nil
		}}},
	}))
	require.NoError(t, e.Register(Pipeline{
		Name:         "B",
		Dependencies: []string{"A"},
		Process: []Module{&fnModule{name: "b-process", fn: func(ec *ExecutionContext) (models.Batch, error) {
			mu.Lock()
			bProcessStart = time.Now()
			mu.Unlock()
			return models.EmptyBatch, nil
		}}},
	}))

	_, _, err := e.Execute(context.Background(), nil, true, false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, aProcessEnd.Before(bProcessStart) || aProcessEnd.Equal(bProcessStart))
}

func TestEngineExecuteFailureIsolation(t *testing.T) {
	// "fine" is Isolated specifically so the PostProcess cross-link
	// (every non-isolated pipeline's PostProcess depends on every other
	// non-isolated pipeline's Process) does not drag it into broken's
	// failure: without isolation, fine's own PostProcess would depend on
	// broken's Process and get skip-cascaded too.
	e := newTestEngine(t, DefaultEngineConfig())
	require.NoError(t, e.Register(Pipeline{
		Name: "broken",
		Process: []Module{&fnModule{name: "explode", fn: func(ec *ExecutionContext) (models.Batch, error) {
			return nil, errors.New("kaboom")
		}}},
		Output: []Module{appendModule("write", "output")},
	}))
	require.NoError(t, e.Register(Pipeline{
		Name:     "fine",
		Isolated: true,
		Input:    []Module{appendModule("read", "input")},
		Output:   []Module{appendModule("write", "output")},
	}))

	outputs, _, err := e.Execute(context.Background(), nil, true, false)
	require.Error(t, err)
	var agg *AggregateError
	require.ErrorAs(t, err, &agg)

	assert.Contains(t, outputs, "fine")
	assert.NotContains(t, outputs, "broken")
}

func TestEngineExecuteCancelledBeforeStartRunsNoModules(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran bool
	require.NoError(t, e.Register(Pipeline{
		Name: "content",
		Input: []Module{&fnModule{name: "read", fn: func(ec *ExecutionContext) (models.Batch, error) {
			ran = true
			return models.EmptyBatch, nil
		}}},
	}))

	_, _, err := e.Execute(ctx, nil, true, false)
	require.Error(t, err)
	assert.False(t, ran)
}

func TestEngineBeforeModuleExecutionOverrideSkipsExecute(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	var executed bool
	override := models.NewBatch(models.NewDocument().WithDestPath("from-handler.html"))

	e.OnBeforeModuleExecution(func(a *ModuleEventArgs) error {
		if a.Module.Name() == "render" {
			a.OverriddenOutputs = override
			a.HasOverride = true
		}
		return nil
	})

	require.NoError(t, e.Register(Pipeline{
		Name: "content",
		Process: []Module{&fnModule{name: "render", fn: func(ec *ExecutionContext) (models.Batch, error) {
			executed = true
			return models.EmptyBatch, nil
		}}},
	}))

	outputs, _, err := e.Execute(context.Background(), nil, true, false)
	require.NoError(t, err)
	assert.False(t, executed)
	assert.Equal(t, override, outputs["content"])
}

func TestEngineReentrancyGuard(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	block := make(chan struct{})
	require.NoError(t, e.Register(Pipeline{
		Name: "content",
		Input: []Module{&fnModule{name: "wait", fn: func(ec *ExecutionContext) (models.Batch, error) {
			<-block
			return models.EmptyBatch, nil
		}}},
	}))

	done := make(chan error, 1)
	go func() {
		_, _, err := e.Execute(context.Background(), nil, true, false)
		done <- err
	}()

	// Give the first execution time to set the running flag.
	time.Sleep(10 * time.Millisecond)
	_, _, err := e.Execute(context.Background(), nil, true, false)
	var reentrant *ReentrancyError
	assert.ErrorAs(t, err, &reentrant)

	close(block)
	require.NoError(t, <-done)
}

func TestEngineUnknownExplicitPipelineNameIsConfigError(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	require.NoError(t, e.Register(Pipeline{Name: "content"}))

	_, _, err := e.Execute(context.Background(), []string{"ghost"}, false, false)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestEngineEmptyModuleListsProduceEmptyBatchDeterministically(t *testing.T) {
	e := newTestEngine(t, DefaultEngineConfig())
	require.NoError(t, e.Register(Pipeline{Name: "content"}))

	out1, _, err := e.Execute(context.Background(), nil, true, false)
	require.NoError(t, err)
	out2, _, err := e.Execute(context.Background(), nil, true, false)
	require.NoError(t, err)

	assert.Empty(t, out1["content"])
	assert.Empty(t, out2["content"])
}

func TestEngineDeploymentRunsAfterNonDeploymentOutput(t *testing.T) {
	var mu sync.Mutex
	var contentOutputEnd, deployInputStart time.Time

	e := newTestEngine(t, DefaultEngineConfig())
	require.NoError(t, e.Register(Pipeline{
		Name: "content",
		Output: []Module{&fnModule{name: "write", fn: func(ec *ExecutionContext) (models.Batch, error) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			contentOutputEnd = time.Now()
			mu.Unlock()
			return models.EmptyBatch, nil
		}}},
	}))
	require.NoError(t, e.Register(Pipeline{
		Name:       "deploy",
		Deployment: true,
		Input: []Module{&fnModule{name: "push", fn: func(ec *ExecutionContext) (models.Batch, error) {
			mu.Lock()
			deployInputStart = time.Now()
			mu.Unlock()
			return models.EmptyBatch, nil
		}}},
	}))

	// "deploy" has no declared ExecutionPolicy, so its effective policy is
	// Manual (Deployment pipelines default to Manual, not Normal) and it
	// must be named explicitly to run this execution.
	_, _, err := e.Execute(context.Background(), []string{"deploy"}, true, false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, contentOutputEnd.Before(deployInputStart) || contentOutputEnd.Equal(deployInputStart))
}

func TestEngineBeforeDeploymentGateFiresBetweenOutputAndDeploymentInput(t *testing.T) {
	var mu sync.Mutex
	var contentOutputEnd, gateTime, deployInputStart time.Time

	e := newTestEngine(t, DefaultEngineConfig())
	e.OnBeforeDeployment(func(a *EngineEventArgs) error {
		mu.Lock()
		gateTime = time.Now()
		mu.Unlock()
		return nil
	})

	require.NoError(t, e.Register(Pipeline{
		Name: "content",
		Output: []Module{&fnModule{name: "write", fn: func(ec *ExecutionContext) (models.Batch, error) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			contentOutputEnd = time.Now()
			mu.Unlock()
			return models.EmptyBatch, nil
		}}},
	}))
	require.NoError(t, e.Register(Pipeline{
		Name:       "deploy",
		Deployment: true,
		Input: []Module{&fnModule{name: "push", fn: func(ec *ExecutionContext) (models.Batch, error) {
			mu.Lock()
			deployInputStart = time.Now()
			mu.Unlock()
			return models.EmptyBatch, nil
		}}},
	}))

	_, _, err := e.Execute(context.Background(), []string{"deploy"}, true, false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, gateTime.IsZero(), "BeforeDeployment handler never fired")
	assert.True(t, contentOutputEnd.Before(gateTime) || contentOutputEnd.Equal(gateTime))
	assert.True(t, gateTime.Before(deployInputStart) || gateTime.Equal(deployInputStart))
}

// stubAnalyzer returns the same canned results for every phase it sees.
type stubAnalyzer struct {
	name    string
	results []models.AnalyzerResult
}

func (a stubAnalyzer) Name() string { return a.name }
func (a stubAnalyzer) Analyze(pipeline string, phase models.PhaseKind, outputs models.Batch, phaseErr error) []models.AnalyzerResult {
	return a.results
}

func TestSelectAnalyzersNameLevelParsing(t *testing.T) {
	all := []models.Analyzer{
		stubAnalyzer{name: "links"},
		stubAnalyzer{name: "spelling"},
		stubAnalyzer{name: "images"},
	}

	out, levels := selectAnalyzers(all, []string{"links=warn", "spelling=true", "images"})
	require.Len(t, out, 3)
	assert.Equal(t, collaborators.LevelWarn, levels["links"])
	// "name=true" and a bare "name" both keep the analyzer's default.
	assert.Equal(t, collaborators.LevelDebug, levels["spelling"])
	assert.Equal(t, collaborators.LevelDebug, levels["images"])
}

func TestSelectAnalyzersAllSetsLevelOnEveryAnalyzer(t *testing.T) {
	all := []models.Analyzer{stubAnalyzer{name: "links"}, stubAnalyzer{name: "spelling"}}

	out, levels := selectAnalyzers(all, []string{"All=error"})
	require.Len(t, out, 2)
	assert.Equal(t, collaborators.LevelError, levels["links"])
	assert.Equal(t, collaborators.LevelError, levels["spelling"])
}

func TestSelectAnalyzersEmptySpecActivatesNone(t *testing.T) {
	out, levels := selectAnalyzers([]models.Analyzer{stubAnalyzer{name: "links"}}, nil)
	assert.Empty(t, out)
	assert.Empty(t, levels)
}

func TestEngineAnalyzerResultsFilteredByConfiguredLevel(t *testing.T) {
	cat := catalog.New()
	cat.RegisterAnalyzer("lint", stubAnalyzer{
		name: "lint",
		results: []models.AnalyzerResult{
			{Analyzer: "lint", Message: "minor nit", Level: "warn"},
			{Analyzer: "lint", Message: "broken link", Level: "error"},
		},
	})

	cfg := DefaultEngineConfig()
	cfg.Analyzers = []string{"lint=error"}
	fs := osfs.New(t.TempDir(), t.TempDir(), t.TempDir())
	e, err := NewEngine(cfg, fs, zlog.New(io.Discard), cat)
	require.NoError(t, err)
	require.NoError(t, e.Register(Pipeline{Name: "content"}))

	_, _, err = e.Execute(context.Background(), nil, true, false)
	require.NoError(t, err)

	results := e.AnalyzerResults()
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "error", r.Level)
	}
}

func TestEngineFailureLogLevelReportsAggregateErrorWithoutModuleErrors(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.FailureLogLevel = collaborators.LevelWarn

	e := newTestEngine(t, cfg)
	require.NoError(t, e.Register(Pipeline{
		Name: "content",
		Process: []Module{&fnModule{name: "warn-loudly", fn: func(ec *ExecutionContext) (models.Batch, error) {
			ec.Services.Logger.Warn("something looked off", map[string]any{"pipeline": "content"})
			return models.EmptyBatch, nil
		}}},
	}))

	_, _, err := e.Execute(context.Background(), nil, true, false)
	require.Error(t, err)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)

	var logErr *FailureLogError
	require.ErrorAs(t, err, &logErr)
	assert.Equal(t, collaborators.LevelWarn, logErr.Level)
	assert.GreaterOrEqual(t, logErr.Count, 1)
}
