package pipeline

import (
	"time"

	"github.com/siteforge/pipeline/models"
)

// Phase is one pipeline's module chain for a single PhaseKind, plus its
// resolved dependency edges in the phase graph. Phase values are built
// once by buildPhaseGraph and never mutated afterward.
type Phase struct {
	Pipeline     string
	Kind         models.PhaseKind
	Modules      []Module
	Dependencies []*Phase
}

// PhaseResult is a phase's recorded outcome: how many documents it
// produced, when it started, and how long it took. Only phases
// that complete successfully get a PhaseResult; a skipped or failed phase
// leaves an empty cell in the result aggregator.
type PhaseResult struct {
	Kind      models.PhaseKind
	Outputs   models.Batch
	Start     time.Time
	ElapsedMS int64
}
