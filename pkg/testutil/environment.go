// Package testutil provides in-memory test environments so engine tests
// never touch the real filesystem.
package testutil

import (
	"testing"

	"github.com/spf13/afero"

	"github.com/memlab-tools/stager/pkg/filesystem"
)

// Env is a self-contained in-memory environment for one test.
type Env struct {
	FS filesystem.FS

	t *testing.T
}

// NewEnv creates an in-memory environment.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	return &Env{
		FS: filesystem.NewAferoFS(afero.NewMemMapFs()),
		t:  t,
	}
}

// WriteFile creates a file (and its parents) in the environment.
func (e *Env) WriteFile(path, content string) {
	e.t.Helper()
	if err := e.FS.WriteFile(path, []byte(content), 0644); err != nil {
		e.t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

// WriteFiles creates many files at once.
func (e *Env) WriteFiles(files map[string]string) {
	e.t.Helper()
	for path, content := range files {
		e.WriteFile(path, content)
	}
}

// Exists reports whether a path is present.
func (e *Env) Exists(path string) bool {
	_, err := e.FS.Stat(path)
	return err == nil
}

// ReadFile returns a file's content, failing the test when absent.
func (e *Env) ReadFile(path string) string {
	e.t.Helper()
	raw, err := e.FS.ReadFile(path)
	if err != nil {
		e.t.Fatalf("ReadFile(%s): %v", path, err)
	}
	return string(raw)
}
