// Package osfs is the default collaborators.FileSystem, backed by the
// real filesystem via os and io.
package osfs

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/siteforge/pipeline/collaborators"
	"github.com/siteforge/pipeline/models"
	"github.com/siteforge/pipeline/pathexpr"
)

var _ collaborators.FileSystem = (*FileSystem)(nil)

// FileSystem implements collaborators.FileSystem against a real input
// root, output directory and temp directory.
type FileSystem struct {
	inputRoot string
	outputDir string
	tempDir   string

	mu      sync.Mutex
	written []string
}

// New creates a FileSystem rooted at inputRoot, writing to outputDir and
// using tempDir for scratch files.
func New(inputRoot, outputDir, tempDir string) *FileSystem {
	return &FileSystem{inputRoot: inputRoot, outputDir: outputDir, tempDir: tempDir}
}

func (f *FileSystem) EnumerateInputFiles(root string) ([]string, error) {
	base := filepath.Join(f.inputRoot, root)
	var out []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.inputRoot, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("osfs: enumerate %s: %w", base, err)
	}
	return out, nil
}

func (f *FileSystem) ResolveOutputPath(relative string) string {
	return filepath.Join(f.outputDir, filepath.FromSlash(relative))
}

// ResolveDestination renders tmpl against doc's metadata (see package
// pathexpr) and maps the result to an absolute path under the output
// directory. It is a convenience for writer modules that compute a
// document's destination from a path template rather than a literal
// DestPath.
func (f *FileSystem) ResolveDestination(tmpl string, doc models.Document) (string, error) {
	rel, err := pathexpr.Resolve(tmpl, doc)
	if err != nil {
		return "", err
	}
	return f.ResolveOutputPath(rel), nil
}

func (f *FileSystem) CreateOutputDir() error {
	return os.MkdirAll(f.outputDir, 0o755)
}

func (f *FileSystem) DeleteOutputDir() error {
	if err := os.RemoveAll(f.outputDir); err != nil {
		return fmt.Errorf("osfs: delete output dir: %w", err)
	}
	f.mu.Lock()
	f.written = nil
	f.mu.Unlock()
	return nil
}

// DeleteWrittenFiles removes paths from disk and clears the tracked
// written-files list, so CleanMode=Self only ever removes what this
// engine wrote since the last time it cleaned. Without clearing,
// WrittenFiles would keep accumulating every path from every execution
// for the life of the process.
func (f *FileSystem) DeleteWrittenFiles(paths []string) error {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("osfs: delete %s: %w", p, err)
		}
	}
	f.mu.Lock()
	f.written = nil
	f.mu.Unlock()
	return nil
}

func (f *FileSystem) TempDir() string {
	return f.tempDir
}

// WipeTempDir removes and recreates the temp directory. The engine always
// calls this once at the start of execution, regardless of CleanMode.
func (f *FileSystem) WipeTempDir() error {
	if err := os.RemoveAll(f.tempDir); err != nil {
		return fmt.Errorf("osfs: wipe temp dir: %w", err)
	}
	return os.MkdirAll(f.tempDir, 0o755)
}

func (f *FileSystem) OpenRead(path string) (io.ReadCloser, error) {
	full := filepath.Join(f.inputRoot, path)
	file, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("osfs: open %s: %w", full, err)
	}
	return file, nil
}

func (f *FileSystem) OpenWrite(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("osfs: mkdir for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("osfs: create %s: %w", path, err)
	}

	f.mu.Lock()
	f.written = append(f.written, path)
	f.mu.Unlock()

	return file, nil
}

func (f *FileSystem) WrittenFiles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.written))
	copy(out, f.written)
	return out
}

// NewMemoryStream returns an in-memory buffer, or a temp-file-backed
// stream when useStringContentFiles is set.
func (f *FileSystem) NewMemoryStream(useStringContentFiles bool) (io.ReadWriteCloser, error) {
	if !useStringContentFiles {
		return &memoryStream{Buffer: &bytes.Buffer{}}, nil
	}

	file, err := os.CreateTemp(f.tempDir, "content-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("osfs: create temp content file: %w", err)
	}
	return file, nil
}

// memoryStream adapts a bytes.Buffer to io.ReadWriteCloser; Close is a
// no-op since there is no underlying resource to release.
type memoryStream struct {
	*bytes.Buffer
}

func (m *memoryStream) Close() error { return nil }
