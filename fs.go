package mimic

import (
	"fmt"
	"os"
	"sort"
)

// FileSystem answers path queries made by file system summaries.
// Implementations are provided by the host; states share the instance
// across forks.
type FileSystem interface {
	// Exists returns true if a file exists at path.
	Exists(path string) bool

	// Delete removes the file at path.
	Delete(path string) error

	// Getwd returns the working directory.
	Getwd() (string, error)
}

// MapFileSystem is an in-memory FileSystem backed by a path set.
type MapFileSystem struct {
	cwd   string
	files map[string]struct{}
}

// NewMapFileSystem returns an empty MapFileSystem rooted at cwd.
func NewMapFileSystem(cwd string) *MapFileSystem {
	if cwd == "" {
		cwd = "/"
	}
	return &MapFileSystem{
		cwd:   cwd,
		files: make(map[string]struct{}),
	}
}

// Add registers a file at path.
func (fs *MapFileSystem) Add(path string) {
	fs.files[path] = struct{}{}
}

// Exists returns true if a file was registered at path.
func (fs *MapFileSystem) Exists(path string) bool {
	_, ok := fs.files[path]
	return ok
}

// Delete removes the file at path. Returns an error if path does not exist.
func (fs *MapFileSystem) Delete(path string) error {
	if _, ok := fs.files[path]; !ok {
		return fmt.Errorf("delete %s: file does not exist", path)
	}
	delete(fs.files, path)
	return nil
}

// Getwd returns the working directory.
func (fs *MapFileSystem) Getwd() (string, error) {
	return fs.cwd, nil
}

// Paths returns all registered paths, sorted.
func (fs *MapFileSystem) Paths() []string {
	a := make([]string, 0, len(fs.files))
	for path := range fs.files {
		a = append(a, path)
	}
	sort.Strings(a)
	return a
}

// OSFileSystem is a FileSystem that passes queries through to the host
// operating system.
type OSFileSystem struct{}

// NewOSFileSystem returns a new instance of OSFileSystem.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

// Exists returns true if a file exists at path on the host.
func (fs *OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Delete removes the file at path on the host.
func (fs *OSFileSystem) Delete(path string) error {
	return os.Remove(path)
}

// Getwd returns the host working directory.
func (fs *OSFileSystem) Getwd() (string, error) {
	return os.Getwd()
}
