package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements FileStore on the local filesystem. Paths are used as
// given (absolute or relative to the working directory), matching how CLI
// users name their files.
type Local struct{}

// NewLocal creates a local filesystem store.
func NewLocal() *Local {
	return &Local{}
}

// Read opens the named file for reading.
func (*Local) Read(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(filepath.FromSlash(path))
}

// Write opens the named file for writing, creating parent directories as
// needed.
func (*Local) Write(_ context.Context, path string) (io.WriteCloser, error) {
	full := filepath.FromSlash(path)
	if dir := filepath.Dir(full); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(full)
}

// Delete removes the named file; absent files are not an error.
func (*Local) Delete(_ context.Context, path string) error {
	err := os.Remove(filepath.FromSlash(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether the named file exists.
func (*Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(filepath.FromSlash(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Compile-time interface check.
var _ FileStore = (*Local)(nil)
