// Package manifest loads the static transfer manifest: a forest of file,
// directory and link entries with merged policy attributes, plus the named
// path fragments the entries compose their origins from. The manifest is
// built once per process and immutable after load.
package manifest

import (
	"fmt"

	"github.com/memlab-tools/stager/pkg/template"
)

// EntryType discriminates the manifest entry variants.
type EntryType int

const (
	File EntryType = iota
	Directory
	Link
)

func (t EntryType) String() string {
	switch t {
	case File:
		return "file"
	case Directory:
		return "directory"
	case Link:
		return "link"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the type as its schema keyword, so serialized plans
// read the same way the manifest does.
func (t EntryType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses the schema keyword form.
func (t *EntryType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"file"`:
		*t = File
	case `"directory"`:
		*t = Directory
	case `"link"`:
		*t = Link
	default:
		return fmt.Errorf("unknown entry type %s", data)
	}
	return nil
}

// Policy holds the merged per-entry transfer attributes. Immutable once
// merged: overrides replace default scalars wholesale, and the groups set
// is replaced, never combined.
type Policy struct {
	Required         bool     `json:"required"`
	Multiple         bool     `json:"multiple"`
	ChecksumContents bool     `json:"checksum_contents"`
	Groups           []string `json:"groups,omitempty"`
}

// Grouped reports whether the entry is one of several mutually exclusive
// variants of the same artifact.
func (p Policy) Grouped() bool {
	return len(p.Groups) > 0
}

// Entry is one node of the manifest tree. OriginDirectory may be empty for
// nested entries, meaning "inherit the parent directory's resolved origin".
type Entry struct {
	Name            string
	Type            EntryType
	OriginDirectory string // path template, may be empty
	OriginFile      string // filename template or glob pattern
	Destination     string // path template, relative to the destination root
	Policy          Policy
	Children        []*Entry // Directory entries only
}

// Manifest is the loaded, validated transfer schema.
type Manifest struct {
	Templates       *template.Registry
	DestinationRoot string // path template for the destination tree root
	Entries         []*Entry
}
