package wix

import "encoding/xml"

// Namespace is the WiX v3 source schema namespace.
const Namespace = "http://schemas.microsoft.com/wix/2006/wi"

// TargetDirectory is the conventional id of the root directory that
// harvested fragments attach to.
const TargetDirectory = "TARGETDIR"

type YesNoType string

const (
	Yes YesNoType = "yes"
	No  YesNoType = "no"
)

// Wix is the root of a wix source document. It only models the parts
// that fragment generation and product patching care about.
//
// Only the root carries the namespace. encoding/xml would otherwise
// repeat the xmlns attribute on every child element.
type Wix struct {
	XMLName   xml.Name    `xml:"http://schemas.microsoft.com/wix/2006/wi Wix"`
	Product   *Product    `xml:"Product,omitempty"`
	Fragments []*Fragment `xml:"Fragment"`
}

// Product implements http://wixtoolset.org/documentation/manual/v3/xsd/wix/product.html
type Product struct {
	Id      string `xml:",attr,omitempty"`
	Name    string `xml:",attr,omitempty"`
	Version string `xml:",attr,omitempty"`
}

// Fragment implements http://wixtoolset.org/documentation/manual/v3/xsd/wix/fragment.html
type Fragment struct {
	DirectoryRefs   []*DirectoryRef   `xml:"DirectoryRef"`
	ComponentGroups []*ComponentGroup `xml:"ComponentGroup"`
}

// DirectoryRef implements http://wixtoolset.org/documentation/manual/v3/xsd/wix/directoryref.html
type DirectoryRef struct {
	Id          string       `xml:",attr"`
	Directories []*Directory `xml:"Directory"`
}

// Directory implements http://wixtoolset.org/documentation/manual/v3/xsd/wix/directory.html
type Directory struct {
	Id          string       `xml:",attr"`
	Name        string       `xml:",attr"`
	Components  []*Component `xml:"Component"`
	Directories []*Directory `xml:"Directory"`
}

// Component implements http://wixtoolset.org/documentation/manual/v3/xsd/wix/component.html
type Component struct {
	Id   string `xml:",attr"`
	Guid string `xml:",attr"`
	File *File  `xml:"File"`
}

// File implements http://wixtoolset.org/documentation/manual/v3/xsd/wix/file.html
type File struct {
	Id      string    `xml:",attr"`
	KeyPath YesNoType `xml:",attr,omitempty"`
	Source  string    `xml:",attr"`
}

// ComponentGroup implements http://wixtoolset.org/documentation/manual/v3/xsd/wix/componentgroup.html
type ComponentGroup struct {
	Id            string          `xml:",attr"`
	ComponentRefs []*ComponentRef `xml:"ComponentRef"`
}

// ComponentRef implements http://wixtoolset.org/documentation/manual/v3/xsd/wix/componentref.html
type ComponentRef struct {
	Id string `xml:",attr"`
}

// RetFiles returns every File in the document, walking all fragments
// and directories depth first.
func (w *Wix) RetFiles() []*File {
	var files []*File
	for _, frag := range w.Fragments {
		for _, dr := range frag.DirectoryRefs {
			for _, d := range dr.Directories {
				files = append(files, d.retFiles()...)
			}
		}
	}
	return files
}

func (d *Directory) retFiles() []*File {
	var files []*File
	for _, c := range d.Components {
		if c.File != nil {
			files = append(files, c.File)
		}
	}
	for _, child := range d.Directories {
		files = append(files, child.retFiles()...)
	}
	return files
}
