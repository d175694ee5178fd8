// Package collaborators declares the interfaces the engine consumes but
// does not implement: file system access, logging, and the two
// discovery mechanisms ("service container" and "class catalog") used to
// wire in initializers and analyzers at construction time.
// Nothing in this package schedules a phase or touches a Document's
// content; that is the engine's job. Default implementations live in the
// osfs, zlog and catalog subpackages.
package collaborators

import (
	"io"
	"strings"

	"github.com/siteforge/pipeline/models"
)

// FileSystem enumerates input paths, manages the output and temp
// directories, and opens files for reading and writing. CleanMode is
// interpreted by the engine; FileSystem only performs the deletes the
// engine asks for.
type FileSystem interface {
	// EnumerateInputFiles lists every input file under root, where root is
	// itself relative to the input root; each returned path is relative to
	// the input root, not to root.
	EnumerateInputFiles(root string) ([]string, error)
	// ResolveOutputPath maps a document-relative destination to an
	// absolute path under the output directory.
	ResolveOutputPath(relative string) string
	// CreateOutputDir ensures the output directory exists.
	CreateOutputDir() error
	// DeleteOutputDir removes the entire output directory (CleanMode=Full).
	DeleteOutputDir() error
	// DeleteWrittenFiles removes only the files tracked by OpenWrite in
	// a previous execution (CleanMode=Self).
	DeleteWrittenFiles(paths []string) error
	// TempDir returns the path of a temp directory that is always wiped at
	// the start of execution.
	TempDir() string
	// WipeTempDir removes and recreates the temp directory; the engine
	// calls it once at the start of every execution, regardless of
	// CleanMode.
	WipeTempDir() error
	// OpenRead opens an input file for reading.
	OpenRead(path string) (io.ReadCloser, error)
	// OpenWrite opens (creating parent directories as needed) an output
	// file for writing and marks it written.
	OpenWrite(path string) (io.WriteCloser, error)
	// WrittenFiles returns every path passed to OpenWrite so far.
	WrittenFiles() []string
	// NewMemoryStream returns the in-memory stream backing used for string
	// content, unless UseStringContentFiles is set, in which case a
	// temp-file-backed stream is returned instead.
	NewMemoryStream(useStringContentFiles bool) (io.ReadWriteCloser, error)
}

// Level is a log severity, ordered least to most severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelNone disables the failure-log threshold entirely.
	LevelNone
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseLevel parses a case-insensitive level name. An empty or unrecognized
// string defaults to LevelError, matching FailureLogLevel's default;
// "none" is the only way to get LevelNone, since that
// value disables the failure-log check entirely rather than selecting it.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "none":
		return LevelNone
	default:
		return LevelError
	}
}

// Logger is a leveled structured log sink. FailureCount reports how many
// records at or above minLevel have been emitted since the logger was
// created or last reset; the engine consults this after
// AfterEngineExecution to decide whether FailureLogLevel was crossed.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	FailureCount(minLevel Level) int
	ResetFailureCount()
}

// Initializer runs once at engine construction, before any pipeline
// executes.
type Initializer interface {
	Initialize(services ServiceContainer) error
}

// ServiceContainer is a typed lookup of optional services registered by
// the bootstrapper: initializers to run and analyzers to activate. It does
// not supply pipelines; those are added with Engine.Register.
type ServiceContainer interface {
	Initializers() []Initializer
	Analyzers() []models.Analyzer
}

// ClassCatalog discovers registered implementations of a named kind
// ("initializer", "analyzer", ...). The engine never performs reflection
// itself; a default, explicit-registration implementation lives in the
// catalog subpackage.
type ClassCatalog interface {
	Discover(kind string) []string
}
