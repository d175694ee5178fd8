package summary

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/siteforge/pipeline/models"
)

func TestRenderEmptySummary(t *testing.T) {
	assert.Equal(t, "(no phases executed)", Render(Summary{}))
}

func TestRenderIncludesPipelineNamesAndPhaseLetters(t *testing.T) {
	now := time.Now()
	s := Summary{
		Pipelines: []PipelineEntry{
			{
				Name: "content",
				Phases: []PhaseEntry{
					{Kind: models.Input, OutputCount: 3, Start: now, ElapsedMS: 5},
					{Kind: models.Process, OutputCount: 3, Start: now.Add(5 * time.Millisecond), ElapsedMS: 2},
				},
			},
		},
	}

	out := Render(s)
	assert.Contains(t, out, "content")
	assert.Contains(t, out, "Input")
	assert.Contains(t, out, "Process")
	// timeline strip should contain the Input ('I') and Process ('P') markers.
	assert.True(t, strings.ContainsRune(out, 'I'))
	assert.True(t, strings.ContainsRune(out, 'P'))
}

func TestSortedPipelineNames(t *testing.T) {
	s := Summary{Pipelines: []PipelineEntry{{Name: "b"}, {Name: "a"}}}
	assert.Equal(t, []string{"a", "b"}, SortedPipelineNames(s))
}
