package fileops

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Local implements FileOps against the host filesystem.
type Local struct{}

func NewLocal() *Local {
	return &Local{}
}

// ListFiles lists each directory's files before descending into its
// subdirectories. Both are visited in lexical order.
func (l Local) ListFiles(ctx context.Context, root string) ([]string, error) {
	var files []string
	if err := l.listFiles(ctx, root, &files); err != nil {
		return nil, errors.Wrapf(err, "walking %s", root)
	}
	return files, nil
}

func (l Local) listFiles(ctx context.Context, dir string, files *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "reading directory %s", dir)
	}

	var subdirs []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())

		// Symlinks are typed by their target. Links to directories are
		// not followed.
		if e.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(path)
			if err != nil {
				return errors.Wrapf(err, "stat %s", path)
			}
			if info.IsDir() {
				continue
			}
		}

		if e.IsDir() {
			subdirs = append(subdirs, path)
			continue
		}

		*files = append(*files, path)
	}

	for _, sub := range subdirs {
		if err := l.listFiles(ctx, sub, files); err != nil {
			return err
		}
	}

	return nil
}

func (Local) ListDirectories(ctx context.Context, root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", root)
	}

	var dirs []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}

	return dirs, nil
}

func (Local) Open(_ context.Context, path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	return &localFile{File: fh}, nil
}

func (Local) Create(_ context.Context, path string) (io.WriteCloser, error) {
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return fh, nil
}

func (Local) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", path)
	}
	return nil
}

func (Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return data, nil
}

// WriteFile replaces the contents of path, keeping its existing mode when
// there is one.
func (Local) WriteFile(_ context.Context, path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(path, data, mode); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

func (Local) ClearReadOnly(_ context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "stat %s", path)
	}

	mode := info.Mode().Perm()
	if mode&0200 != 0 {
		return nil
	}

	if err := os.Chmod(path, mode|0200); err != nil {
		return errors.Wrapf(err, "clearing read-only on %s", path)
	}
	return nil
}

type localFile struct {
	*os.File
}

func (f *localFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat %s", f.Name())
	}

	if !info.Mode().IsRegular() {
		return 0, ErrSizeUnknown
	}

	return info.Size(), nil
}
