package components

import (
	"bufio"
	"context"
	"encoding/xml"
	"io"
	"path/filepath"
	"unicode/utf8"

	"github.com/go-kit/kit/log/level"
	"github.com/kolide/wixgen/pkg/contexts/ctxlog"
	"github.com/kolide/wixgen/pkg/fileops"
	"github.com/kolide/wixgen/pkg/packagekit/wix"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"golang.org/x/sync/errgroup"
)

// Request names the source tree to harvest and where the fragment goes.
type Request struct {
	SourceDirectory  string
	TargetDirectory  string
	FragmentFileName string
}

// Result summarizes a generated fragment.
type Result struct {
	OutputPath string
	Groups     []string
	Components int
	References int
}

// Generate harvests req.SourceDirectory into a wix fragment file. Each
// immediate subdirectory of the source becomes a ComponentGroup named
// after it. A request without a fragment file name is skipped with a
// warning, and returns a nil Result.
func Generate(ctx context.Context, ops fileops.FileOps, req Request, opts ...Option) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "components.Generate")
	defer span.End()

	logger := ctxlog.FromContext(ctx)

	if req.FragmentFileName == "" {
		level.Warn(logger).Log("msg", "fragment file name not specified; cannot generate components")
		return nil, nil
	}

	root, err := filepath.Abs(req.SourceDirectory)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving source directory %s", req.SourceDirectory)
	}

	outFile := filepath.Join(req.TargetDirectory, req.FragmentFileName)

	level.Info(logger).Log(
		"msg", "generating fragment",
		"out", outFile,
		"root", root,
	)

	files, stats, err := Resolve(ctx, ops, root, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "resolving source files")
	}

	groups, err := ops.ListDirectories(ctx, root)
	if err != nil {
		return nil, errors.Wrap(err, "listing groups")
	}

	doc, err := Build(ctx, groups, files, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "building fragment")
	}

	// Nothing on disk changes until resolution is complete
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := writeDocument(ctx, ops, outFile, doc); err != nil {
		return nil, err
	}

	result := &Result{
		OutputPath: outFile,
		References: stats.References,
	}
	for _, g := range groups {
		result.Groups = append(result.Groups, filepath.Base(g))
	}
	for _, cg := range doc.Fragments[1].ComponentGroups {
		result.Components += len(cg.ComponentRefs)
	}

	level.Info(logger).Log(
		"msg", "finished generating components",
		"out", outFile,
		"groups", len(result.Groups),
		"components", result.Components,
	)

	return result, nil
}

// Build assembles the two fragment document. The first fragment holds
// a DirectoryRef per group with the pruned directory tree and its
// components, the second a ComponentGroup per group referencing them.
func Build(ctx context.Context, groups []string, files []*ResolvedFile, opts ...Option) (*wix.Wix, error) {
	ctx, span := trace.StartSpan(ctx, "components.Build")
	defer span.End()

	logger := ctxlog.FromContext(ctx)
	o := newOptions(opts...)

	directoryRefs := make([]*wix.DirectoryRef, len(groups))
	componentGroups := make([]*wix.ComponentGroup, len(groups))

	// Groups share nothing but the read only file list, so each one is
	// assembled on its own goroutine into its own slot.
	g, gctx := errgroup.WithContext(ctx)
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}

	for i, groupDir := range groups {
		i, groupDir := i, groupDir
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			groupName := filepath.Base(groupDir)
			if !utf8.ValidString(groupName) {
				return errors.Errorf("group name %q is not valid utf-8", groupName)
			}
			level.Debug(logger).Log("msg", "generating component group", "group", groupName)

			members := filesInGroup(groupDir, files)

			ref := &wix.DirectoryRef{Id: wix.TargetDirectory}
			tree, err := buildGroupTree(groupDir, members)
			if err != nil {
				return err
			}
			if tree != nil {
				dir, err := tree.toDirectory(true, o)
				if err != nil {
					return err
				}
				ref.Directories = append(ref.Directories, dir)
			}

			cg := &wix.ComponentGroup{Id: groupName}
			for _, f := range members {
				cg.ComponentRefs = append(cg.ComponentRefs, &wix.ComponentRef{Id: wix.ComponentId(f.ID)})
			}

			directoryRefs[i] = ref
			componentGroups[i] = cg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &wix.Wix{
		Fragments: []*wix.Fragment{
			{DirectoryRefs: directoryRefs},
			{ComponentGroups: componentGroups},
		},
	}, nil
}

// Encode writes doc as an indented xml document.
func Encode(w io.Writer, doc *wix.Wix) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encoding fragment")
	}

	_, err := io.WriteString(w, "\n")
	return err
}

// writeDocument replaces path with doc in a single pass. If the write
// fails part way, the partial file is removed.
func writeDocument(ctx context.Context, ops fileops.FileOps, path string, doc *wix.Wix) (err error) {
	if err := ops.Remove(ctx, path); err != nil {
		return errors.Wrap(err, "removing previous fragment")
	}

	fh, err := ops.Create(ctx, path)
	if err != nil {
		return errors.Wrap(err, "creating fragment")
	}

	defer func() {
		if closeErr := fh.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "closing fragment")
		}
		if err != nil {
			if rmErr := ops.Remove(ctx, path); rmErr != nil {
				level.Warn(ctxlog.FromContext(ctx)).Log(
					"msg", "could not remove partial fragment",
					"path", path,
					"err", rmErr,
				)
			}
		}
	}()

	bw := bufio.NewWriter(fh)
	if err := Encode(bw, doc); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}

	if err := bw.Flush(); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}

	return nil
}
