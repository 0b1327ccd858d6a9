package wix

import (
	"fmt"

	"github.com/google/uuid"
)

// Identifier prefixes, matching the ones heat.exe uses for harvested
// files.
const (
	ComponentPrefix = "cmp"
	FilePrefix      = "fil"
	DirectoryPrefix = "dir"
)

// hexId is the 32 character, uppercase, unhyphenated form of a uuid.
func hexId(id uuid.UUID) string {
	return fmt.Sprintf("%X", id[:])
}

func ComponentId(id uuid.UUID) string {
	return ComponentPrefix + hexId(id)
}

func FileId(id uuid.UUID) string {
	return FilePrefix + hexId(id)
}

// DirectoryId is the opaque id used for directories below a group root.
func DirectoryId(id uuid.UUID) string {
	return DirectoryPrefix + hexId(id)
}

// ReadableDirectoryId is the id used for a group root directory. Other
// wix sources refer to it by name, so it is derived from the directory
// name and nothing else.
func ReadableDirectoryId(name string) string {
	return DirectoryPrefix + name
}

// BracedGuid formats id as {xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx}
func BracedGuid(id uuid.UUID) string {
	return "{" + id.String() + "}"
}
