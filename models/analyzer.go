package models

// AnalyzerResult is a diagnostic record produced by an optional analyzer
// keyed to a phase. Analyzer results are collected even when the phase
// they are attached to fails.
type AnalyzerResult struct {
	Analyzer    string
	Pipeline    string
	Phase       PhaseKind
	Message     string
	Level       string
	PhaseFailed bool
}

// Analyzer inspects a phase's outcome and emits diagnostics. The engine
// only knows how to run a registered analyzer against a phase result,
// never how analyzers are discovered.
type Analyzer interface {
	Name() string
	Analyze(pipeline string, phase PhaseKind, outputs Batch, phaseErr error) []AnalyzerResult
}
