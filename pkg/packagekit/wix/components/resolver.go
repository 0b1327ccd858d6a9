package components

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/kolide/wixgen/pkg/fileops"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"golang.org/x/text/cases"
)

// ResolvedFile is one file found under the source root. Files with the
// same name and contents share a PhysicalPath, but every occurrence gets
// its own ID, and so its own component.
type ResolvedFile struct {
	ID           uuid.UUID
	SourcePath   string // where this occurrence lives
	PhysicalPath string // whose bytes get packaged
}

// IsReference reports whether this file is packaged from the bytes of
// an earlier identical file.
func (f *ResolvedFile) IsReference() bool {
	return f.SourcePath != f.PhysicalPath
}

func (f *ResolvedFile) Name() string {
	return filepath.Base(f.SourcePath)
}

func (f *ResolvedFile) Dir() string {
	return filepath.Dir(f.SourcePath)
}

type Stats struct {
	Files      int
	Roots      int
	References int
}

type resolver struct {
	ops  fileops.FileOps
	opts *options

	// Root files, keyed by case folded name, in resolution order. Only
	// roots are needed. The first identical file in resolution order is
	// always the root of its class.
	roots map[string][]*ResolvedFile
	fold  cases.Caser
}

// Resolve walks root and returns a ResolvedFile for every file found, in
// walk order. Each file is checked against the earlier ones, and when an
// identical file exists, the new file points at its physical path.
func Resolve(ctx context.Context, ops fileops.FileOps, root string, opts ...Option) ([]*ResolvedFile, Stats, error) {
	ctx, span := trace.StartSpan(ctx, "components.Resolve")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	r := &resolver{
		ops:   ops,
		opts:  newOptions(opts...),
		roots: make(map[string][]*ResolvedFile),
		fold:  cases.Fold(),
	}

	paths, err := ops.ListFiles(ctx, root)
	if err != nil {
		return nil, Stats{}, errors.Wrap(err, "listing source files")
	}

	var stats Stats
	files := make([]*ResolvedFile, 0, len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, Stats{}, err
		}

		rf, err := r.resolve(ctx, path)
		if err != nil {
			return nil, Stats{}, err
		}

		files = append(files, rf)
		stats.Files++
		if rf.IsReference() {
			stats.References++
			level.Debug(logger).Log(
				"msg", "duplicate file",
				"file", rf.SourcePath,
				"physical", rf.PhysicalPath,
			)
		} else {
			stats.Roots++
		}
	}

	level.Debug(logger).Log(
		"msg", "resolved source files",
		"root", root,
		"files", stats.Files,
		"unique", stats.Roots,
		"duplicates", stats.References,
	)

	return files, stats, nil
}

func (r *resolver) resolve(ctx context.Context, path string) (*ResolvedFile, error) {
	key := r.fold.String(filepath.Base(path))

	var match *ResolvedFile
	for _, candidate := range r.roots[key] {
		same, err := r.identical(ctx, candidate, path)
		if err != nil {
			return nil, err
		}
		if same {
			match = candidate
			break
		}
	}

	id, err := r.opts.newID()
	if err != nil {
		return nil, errors.Wrap(err, "generating file id")
	}

	if match != nil {
		return &ResolvedFile{
			ID:           id,
			SourcePath:   path,
			PhysicalPath: match.PhysicalPath,
		}, nil
	}

	rf := &ResolvedFile{
		ID:           id,
		SourcePath:   path,
		PhysicalPath: path,
	}
	r.roots[key] = append(r.roots[key], rf)

	return rf, nil
}

// identical compares names case insensitively, then sizes when both
// sides know them, then contents, chunk by chunk.
func (r *resolver) identical(ctx context.Context, existing *ResolvedFile, path string) (bool, error) {
	if !strings.EqualFold(existing.Name(), filepath.Base(path)) {
		return false, nil
	}

	f1, err := r.ops.Open(ctx, existing.PhysicalPath)
	if err != nil {
		return false, err
	}
	defer f1.Close()

	f2, err := r.ops.Open(ctx, path)
	if err != nil {
		return false, err
	}
	defer f2.Close()

	size1, err := knownSize(f1)
	if err != nil {
		return false, errors.Wrapf(err, "sizing %s", existing.PhysicalPath)
	}
	size2, err := knownSize(f2)
	if err != nil {
		return false, errors.Wrapf(err, "sizing %s", path)
	}
	if size1 >= 0 && size2 >= 0 && size1 != size2 {
		return false, nil
	}

	buf1 := make([]byte, r.opts.chunkSize)
	buf2 := make([]byte, r.opts.chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		n1, err := readChunk(f1, buf1)
		if err != nil {
			return false, errors.Wrapf(err, "reading %s", existing.PhysicalPath)
		}

		n2, err := readChunk(f2, buf2)
		if err != nil {
			return false, errors.Wrapf(err, "reading %s", path)
		}

		if n1 != n2 || !bytes.Equal(buf1[:n1], buf2[:n2]) {
			return false, nil
		}

		// A short chunk means both streams hit EOF at the same spot.
		if n1 < len(buf1) {
			return true, nil
		}
	}
}

// knownSize returns the size of f, or -1 if the stream can't say.
func knownSize(f fileops.File) (int64, error) {
	size, err := f.Size()
	if errors.Is(err, fileops.ErrSizeUnknown) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return size, nil
}

// readChunk fills buf unless the stream ends first. EOF is not an error.
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}
