package pipeline

import "github.com/siteforge/pipeline/collaborators"

// CleanMode controls what executions and Dispose remove from the output
// directory.
type CleanMode int

const (
	// CleanNone leaves the output directory untouched.
	CleanNone CleanMode = iota
	// CleanSelf removes only the files this engine wrote during its most
	// recent execution.
	CleanSelf
	// CleanFull wipes the entire output directory. It is also applied on
	// an engine's first execution regardless of the configured mode.
	CleanFull
)

func (m CleanMode) String() string {
	switch m {
	case CleanSelf:
		return "Self"
	case CleanFull:
		return "Full"
	default:
		return "None"
	}
}

// EngineConfig is the engine's construction-time configuration.
// Package config loads this from a file/environment/flags via viper and
// validates it with go-playground/validator; lives here rather than in
// package config so the config loader can depend on the engine package
// without creating an import cycle.
type EngineConfig struct {
	// FailureLogLevel is the minimum log level that, if emitted during
	// execution, turns an otherwise-successful run into a failure.
	// LevelNone disables the check. Defaults to LevelError.
	FailureLogLevel collaborators.Level

	// CleanMode controls Dispose's output-directory cleanup.
	CleanMode CleanMode

	// Analyzers lists "name=level" activation entries (or the single
	// entry "All"). An omitted value or "true" keeps the analyzer's own
	// default level.
	Analyzers []string

	// UseStringContentFiles, when set, backs NewMemoryStream with a temp
	// file instead of an in-memory buffer.
	UseStringContentFiles bool
}

// DefaultEngineConfig returns the engine's default configuration:
// FailureLogLevel=Error, CleanMode=None, no analyzers activated, in-memory
// content streams.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FailureLogLevel: collaborators.LevelError,
		CleanMode:       CleanNone,
	}
}
