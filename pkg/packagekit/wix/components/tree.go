package components

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kolide/wixgen/pkg/packagekit/wix"
	"github.com/pkg/errors"
)

// directoryNode is one directory that ends up in the fragment. Only
// directories holding a group file, or with a descendant that does, ever
// become nodes.
type directoryNode struct {
	name     string
	files    []*ResolvedFile
	children []*directoryNode
	byName   map[string]*directoryNode
}

func newDirectoryNode(name string) *directoryNode {
	return &directoryNode{
		name:   name,
		byName: make(map[string]*directoryNode),
	}
}

// child returns the named child, creating it if needed. Children keep
// the order in which they were first needed.
func (n *directoryNode) child(name string) *directoryNode {
	if c, ok := n.byName[name]; ok {
		return c
	}
	c := newDirectoryNode(name)
	n.byName[name] = c
	n.children = append(n.children, c)
	return c
}

// within reports whether path is strictly inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// filesInGroup returns the files under groupDir, in resolution order.
func filesInGroup(groupDir string, files []*ResolvedFile) []*ResolvedFile {
	var matched []*ResolvedFile
	for _, f := range files {
		if within(groupDir, f.SourcePath) {
			matched = append(matched, f)
		}
	}
	return matched
}

// buildGroupTree places each file under the directory chain leading to
// it from groupDir. It returns nil when the group has no files.
func buildGroupTree(groupDir string, files []*ResolvedFile) (*directoryNode, error) {
	if len(files) == 0 {
		return nil, nil
	}

	root := newDirectoryNode(filepath.Base(groupDir))

	for _, f := range files {
		rel, err := filepath.Rel(groupDir, f.Dir())
		if err != nil {
			return nil, errors.Wrapf(err, "placing %s under %s", f.SourcePath, groupDir)
		}

		node := root
		if rel != "." {
			for _, part := range strings.Split(rel, string(filepath.Separator)) {
				node = node.child(part)
			}
		}
		node.files = append(node.files, f)
	}

	return root, nil
}

// toDirectory converts a node into its wix Directory. Only the group root
// gets a readable id. Everything below it gets a fresh opaque one.
func (n *directoryNode) toDirectory(readable bool, o *options) (*wix.Directory, error) {
	if !utf8.ValidString(n.name) {
		return nil, errors.Errorf("directory name %q is not valid utf-8", n.name)
	}

	dir := &wix.Directory{Name: n.name}

	if readable {
		dir.Id = wix.ReadableDirectoryId(n.name)
	} else {
		id, err := o.newID()
		if err != nil {
			return nil, errors.Wrap(err, "generating directory id")
		}
		dir.Id = wix.DirectoryId(id)
	}

	for _, f := range n.files {
		c, err := toComponent(f)
		if err != nil {
			return nil, err
		}
		dir.Components = append(dir.Components, c)
	}

	for _, c := range n.children {
		child, err := c.toDirectory(false, o)
		if err != nil {
			return nil, err
		}
		dir.Directories = append(dir.Directories, child)
	}

	return dir, nil
}

// toComponent wraps a single file. The component guid is the file id,
// and the file source is the physical path, so duplicates are packaged
// once but installed everywhere they occur. The encoder would replace
// invalid utf-8 in the source path, so such paths are refused.
func toComponent(f *ResolvedFile) (*wix.Component, error) {
	if !utf8.ValidString(f.PhysicalPath) {
		return nil, errors.Errorf("source path %q is not valid utf-8", f.PhysicalPath)
	}

	return &wix.Component{
		Id:   wix.ComponentId(f.ID),
		Guid: wix.BracedGuid(f.ID),
		File: &wix.File{
			Id:      wix.FileId(f.ID),
			KeyPath: wix.Yes,
			Source:  f.PhysicalPath,
		},
	}, nil
}
