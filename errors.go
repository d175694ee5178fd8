package pipeline

import (
	"fmt"
	"strings"

	"github.com/siteforge/pipeline/collaborators"
	"github.com/siteforge/pipeline/models"
)

// ConfigError reports a phase-graph construction failure detected before
// any phase runs: an unknown dependency, an isolated pipeline with
// dependencies, a dependency on an isolated pipeline, a non-deployment
// pipeline depending on a deployment pipeline, or a cycle.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "pipeline configuration error: " + e.Reason
}

func errConfig(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// ModuleError wraps a module's error with pipeline/phase/module diagnostic
// context. A failing module aborts its enclosing phase; the wrapped error
// is what propagates upward.
type ModuleError struct {
	Pipeline string
	Phase    models.PhaseKind
	Module   string
	Err      error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("pipeline %q phase %s module %s: %v", e.Pipeline, e.Phase, e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// SkipError is the synthetic error a phase fails with when one or more of
// its dependencies did not complete successfully. It cascades: a skipped
// phase skips its own dependents the same way.
type SkipError struct {
	Pipeline string
	Phase    models.PhaseKind
	Cause    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("pipeline %q phase %s skipped: a dependency did not complete successfully", e.Pipeline, e.Phase)
}

func (e *SkipError) Unwrap() error {
	return e.Cause
}

// ReentrancyError is returned when Execute is called while another
// execution is already in flight on the same Engine.
type ReentrancyError struct{}

func (e *ReentrancyError) Error() string {
	return "engine: an execution is already in progress"
}

// DisposedError is returned by any Engine operation attempted after
// Dispose.
type DisposedError struct{}

func (e *DisposedError) Error() string {
	return "engine: already disposed"
}

// FailureLogError is added to Execute's AggregateError when at least one
// log record at or above FailureLogLevel was observed, whether or not any
// phase failed.
type FailureLogError struct {
	Count int
	Level collaborators.Level
}

func (e *FailureLogError) Error() string {
	return fmt.Sprintf("engine: %d log record(s) at or above level %q were emitted during execution", e.Count, e.Level)
}

// AggregateError wraps every failure recorded during one execution. Execute
// returns it when a phase failed or the failure-log threshold was crossed;
// outputs are populated with whatever did succeed before it is returned.
// Errors raised before any phase is scheduled (configuration, reentrancy,
// disposal, file-system setup, a BeforeEngineExecution handler) are
// returned by Execute unwrapped.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("engine: %d failure(s) during execution:\n- %s", len(e.Errors), strings.Join(parts, "\n- "))
}

// Unwrap exposes every wrapped failure to errors.Is/errors.As.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}
