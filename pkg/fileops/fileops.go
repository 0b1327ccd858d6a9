// Package fileops is the filesystem surface used by the wix tooling. It
// exists so that generation and patching can run against something other
// than the local disk (a remote agent, a test fixture) without the callers
// caring.
package fileops

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrSizeUnknown is returned by File.Size when the underlying stream
// cannot report its length.
var ErrSizeUnknown = errors.New("file size unknown")

// File is an open, readable file.
type File interface {
	io.ReadCloser

	// Size returns the length of the file in bytes, or ErrSizeUnknown.
	Size() (int64, error)
}

type FileOps interface {
	// ListFiles returns every file under root, recursively. A directory's
	// own files come before anything in its subdirectories, and both are
	// in lexical order. Directories are not included.
	ListFiles(ctx context.Context, root string) ([]string, error)

	// ListDirectories returns the immediate subdirectories of root, in
	// lexical order.
	ListDirectories(ctx context.Context, root string) ([]string, error)

	Open(ctx context.Context, path string) (File, error)
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Remove deletes path. A missing path is not an error.
	Remove(ctx context.Context, path string) error

	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte) error

	// ClearReadOnly makes path writable by its owner, if it isn't already.
	ClearReadOnly(ctx context.Context, path string) error
}
