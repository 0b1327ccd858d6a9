package components

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/kolide/wixgen/pkg/fileops"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under root. Keys are slash separated paths.
func writeTree(t *testing.T, root string, files map[string]string) {
	for name, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	}
}

func mkdirs(t *testing.T, root string, dirs ...string) {
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0755))
	}
}

// sequentialIDs hands out 00000000-0000-0000-0000-000000000001, then 2,
// and so on.
func sequentialIDs() func() (uuid.UUID, error) {
	var n uint64
	return func() (uuid.UUID, error) {
		var id uuid.UUID
		binary.BigEndian.PutUint64(id[8:], atomic.AddUint64(&n, 1))
		return id, nil
	}
}

func at(root, name string) string {
	return filepath.Join(root, filepath.FromSlash(name))
}

// unsizedOps hides file sizes, like a stream that can't report length.
type unsizedOps struct {
	fileops.FileOps
}

type unsizedFile struct {
	fileops.File
}

func (unsizedFile) Size() (int64, error) {
	return 0, fileops.ErrSizeUnknown
}

func (u unsizedOps) Open(ctx context.Context, path string) (fileops.File, error) {
	f, err := u.FileOps.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return unsizedFile{f}, nil
}

// countingOps records how many files are open at once, and can fail
// opening a given path. onRead, when set, runs before every read.
type countingOps struct {
	fileops.FileOps
	open     int64
	failPath string
	onRead   func()
}

type countingFile struct {
	fileops.File
	ops *countingOps
}

func (c countingFile) Read(p []byte) (int, error) {
	if c.ops.onRead != nil {
		c.ops.onRead()
	}
	return c.File.Read(p)
}

func (c countingFile) Close() error {
	atomic.AddInt64(&c.ops.open, -1)
	return c.File.Close()
}

func (c *countingOps) Open(ctx context.Context, path string) (fileops.File, error) {
	if path == c.failPath {
		return nil, os.ErrPermission
	}

	f, err := c.FileOps.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&c.open, 1)
	return countingFile{File: f, ops: c}, nil
}
