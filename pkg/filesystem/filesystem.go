// Package filesystem provides the path-addressable storage abstraction the
// engine reads origins from and materializes destinations into. The planner
// and validator only use the read side; the executor uses both.
package filesystem

import (
	"io"
	"io/fs"
)

// FS is the filesystem interface required for stager operations.
// Resolution is pure string composition; every phase that touches disk
// (multiplicity expansion, existence probes, checksum reads, transfers)
// goes through this interface so tests can run against an in-memory tree.
type FS interface {
	// Read side
	Stat(name string) (fs.FileInfo, error)
	Lstat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	Open(name string) (io.ReadCloser, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	Glob(pattern string) ([]string, error)

	// Write side
	WriteFile(name string, data []byte, perm fs.FileMode) error
	Create(name string) (io.WriteCloser, error)
	MkdirAll(path string, perm fs.FileMode) error
	Symlink(oldname, newname string) error
	Readlink(name string) (string, error)
	Remove(name string) error
}
