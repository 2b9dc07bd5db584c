// Package storage abstracts where the anonymization pipeline keeps its
// files: embedding batches, calibration stats and candidate pools. Small
// installations read everything from local disk; shared pipelines keep
// corpora and calibration files in an S3-compatible object store. Callers
// address files through [FileStore] and stay independent of the backend.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated. Implementations must be safe for
// concurrent use.
type FileStore interface {
	// Read opens the named file for reading. The caller must close the
	// returned ReadCloser. If the file does not exist, an error wrapping
	// os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating any existing
	// content. The caller must close the returned WriteCloser to flush.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Deleting an absent file is not an
	// error (idempotent).
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// S3Opener constructs an S3-backed store for a bucket. The CLI installs
// one built from its credentials; tests install fakes.
type S3Opener func(bucket string) (FileStore, error)

// Resolve maps a target like "s3://bucket/path/to/file" or a plain local
// path to a FileStore plus the path within it. openS3 may be nil when S3
// targets are not expected.
func Resolve(target string, openS3 S3Opener) (FileStore, string, error) {
	if rest, ok := strings.CutPrefix(target, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket == "" || key == "" {
			return nil, "", fmt.Errorf("storage: malformed S3 target %q (want s3://bucket/key)", target)
		}
		if openS3 == nil {
			return nil, "", fmt.Errorf("storage: S3 target %q but no S3 credentials configured", target)
		}
		store, err := openS3(bucket)
		if err != nil {
			return nil, "", err
		}
		return store, key, nil
	}
	return NewLocal(), target, nil
}
