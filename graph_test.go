package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteforge/pipeline/models"
)

func indexOf(order []*Phase, pipeline string, kind models.PhaseKind) int {
	for i, ph := range order {
		if ph.Pipeline == pipeline && ph.Kind == kind {
			return i
		}
	}
	return -1
}

func TestBuildPhaseGraphLinearOrder(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "content"},
	}
	g, err := buildPhaseGraph(pipelines)
	require.NoError(t, err)

	order := g.order
	require.Equal(t, 4, len(order))
	assert.Less(t, indexOf(order, "content", models.Input), indexOf(order, "content", models.Process))
	assert.Less(t, indexOf(order, "content", models.Process), indexOf(order, "content", models.PostProcess))
	assert.Less(t, indexOf(order, "content", models.PostProcess), indexOf(order, "content", models.Output))
}

func TestBuildPhaseGraphDependencyOrdersAcrossPipelines(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "A"},
		{Name: "B", Dependencies: []string{"A"}},
	}
	g, err := buildPhaseGraph(pipelines)
	require.NoError(t, err)

	order := g.order
	assert.Less(t, indexOf(order, "A", models.Process), indexOf(order, "B", models.Process))
}

func TestBuildPhaseGraphCycleDetected(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "A", Dependencies: []string{"B"}},
		{Name: "B", Dependencies: []string{"A"}},
	}
	_, err := buildPhaseGraph(pipelines)
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestBuildPhaseGraphUnknownDependency(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "A", Dependencies: []string{"ghost"}},
	}
	_, err := buildPhaseGraph(pipelines)
	require.Error(t, err)
}

func TestBuildPhaseGraphIsolatedCannotDeclareDependencies(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "A"},
		{Name: "B", Isolated: true, Dependencies: []string{"A"}},
	}
	_, err := buildPhaseGraph(pipelines)
	require.Error(t, err)
}

func TestBuildPhaseGraphCannotDependOnIsolated(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "A", Isolated: true},
		{Name: "B", Dependencies: []string{"A"}},
	}
	_, err := buildPhaseGraph(pipelines)
	require.Error(t, err)
}

func TestBuildPhaseGraphNonDeploymentCannotDependOnDeployment(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "deploy", Deployment: true},
		{Name: "content", Dependencies: []string{"deploy"}},
	}
	_, err := buildPhaseGraph(pipelines)
	require.Error(t, err)
}

func TestBuildPhaseGraphIsolatedPipelineHasNoCrossEdges(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "A"},
		{Name: "solo", Isolated: true},
	}
	g, err := buildPhaseGraph(pipelines)
	require.NoError(t, err)

	solo := g.byPipeline["solo"]
	assert.Len(t, solo[models.PostProcess].Dependencies, 1) // only its own Process
	assert.Len(t, solo[models.Input].Dependencies, 0)
}

func TestBuildPhaseGraphPostProcessCrossLinkSameDeploymentGroup(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "A"},
		{Name: "B"},
	}
	g, err := buildPhaseGraph(pipelines)
	require.NoError(t, err)

	order := g.order
	// A.PostProcess depends on B.Process and vice versa: both directions
	// must precede the corresponding PostProcess.
	assert.Less(t, indexOf(order, "B", models.Process), indexOf(order, "A", models.PostProcess))
	assert.Less(t, indexOf(order, "A", models.Process), indexOf(order, "B", models.PostProcess))
}

func TestBuildPhaseGraphDeploymentInputGate(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "content"},
		{Name: "deploy", Deployment: true},
	}
	g, err := buildPhaseGraph(pipelines)
	require.NoError(t, err)

	order := g.order
	assert.Less(t, indexOf(order, "content", models.Output), indexOf(order, "deploy", models.Input))
}

func TestBuildPhaseGraphDuplicateNameCaseInsensitive(t *testing.T) {
	pipelines := []Pipeline{
		{Name: "Content"},
		{Name: "content"},
	}
	_, err := buildPhaseGraph(pipelines)
	require.Error(t, err)
}
