package manifest

import (
	"gopkg.in/yaml.v3"

	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/logging"
	"github.com/memlab-tools/stager/pkg/template"
)

// rawPolicy mirrors the policy keys of the schema. Pointer fields
// distinguish "absent" from "false" so overrides only replace what they
// actually declare.
type rawPolicy struct {
	Required         *bool    `yaml:"required"`
	Multiple         *bool    `yaml:"multiple"`
	ChecksumContents *bool    `yaml:"checksum_contents"`
	Groups           []string `yaml:"groups"`
}

type rawEntry struct {
	Name            string     `yaml:"name"`
	Type            string     `yaml:"type"`
	OriginDirectory string     `yaml:"origin_directory"`
	OriginFile      string     `yaml:"origin_file"`
	Destination     string     `yaml:"destination"`
	Policy          rawPolicy  `yaml:",inline"`
	Files           []rawEntry `yaml:"files"`
}

type rawManifest struct {
	Directories     map[string]string `yaml:"directories"`
	DestinationRoot string            `yaml:"destination_root"`
	DefaultPolicy   rawPolicy         `yaml:"default_policy"`
	Files           []rawEntry        `yaml:"files"`
}

// Load parses and validates a manifest document. All schema problems are
// fatal: a manifest that loads is guaranteed structurally sound, so later
// phases only ever deal with resolution and filesystem state.
func Load(raw []byte) (*Manifest, error) {
	logger := logging.GetLogger("manifest")

	var doc rawManifest
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrSchemaParse, "cannot parse manifest document")
	}

	if doc.DestinationRoot == "" {
		return nil, errors.New(errors.ErrSchema, "manifest missing destination_root")
	}

	reg := template.NewRegistry()
	for name, tpl := range doc.Directories {
		if err := reg.Add(name, tpl); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	defaults := mergePolicy(Policy{}, doc.DefaultPolicy)

	entries, err := loadEntries(doc.Files, defaults, "")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.New(errors.ErrSchema, "manifest declares no entries")
	}

	logger.Debug().
		Int("entries", len(entries)).
		Int("templates", len(reg.Names())).
		Msg("Manifest loaded")

	return &Manifest{
		Templates:       reg,
		DestinationRoot: doc.DestinationRoot,
		Entries:         entries,
	}, nil
}

func loadEntries(raws []rawEntry, defaults Policy, parent string) ([]*Entry, error) {
	entries := make([]*Entry, 0, len(raws))
	seen := make(map[string]bool, len(raws))

	for _, r := range raws {
		entry, err := loadEntry(r, defaults, parent)
		if err != nil {
			return nil, err
		}
		if seen[entry.Name] {
			return nil, errors.Newf(errors.ErrSchema,
				"duplicate sibling entry name %q under %q", entry.Name, displayParent(parent))
		}
		seen[entry.Name] = true
		entries = append(entries, entry)
	}
	return entries, nil
}

func loadEntry(r rawEntry, defaults Policy, parent string) (*Entry, error) {
	if r.Name == "" {
		return nil, errors.Newf(errors.ErrSchema,
			"entry under %q missing name", displayParent(parent))
	}
	if r.Type == "" {
		return nil, errors.Newf(errors.ErrSchema, "entry %q missing type", r.Name)
	}

	var typ EntryType
	switch r.Type {
	case "file":
		typ = File
	case "directory":
		typ = Directory
	case "link":
		typ = Link
	default:
		return nil, errors.Newf(errors.ErrSchema,
			"entry %q has unknown type %q", r.Name, r.Type)
	}

	if r.Destination == "" {
		return nil, errors.Newf(errors.ErrSchema, "entry %q missing destination", r.Name)
	}
	// Only nested entries can inherit a base from their parent directory.
	if parent == "" && r.OriginDirectory == "" {
		return nil, errors.Newf(errors.ErrSchema,
			"root entry %q missing origin_directory", r.Name)
	}

	switch typ {
	case File, Link:
		if r.OriginFile == "" {
			return nil, errors.Newf(errors.ErrSchema, "entry %q missing origin_file", r.Name)
		}
		if len(r.Files) > 0 {
			return nil, errors.Newf(errors.ErrSchema,
				"entry %q is a %s and cannot have nested files", r.Name, typ)
		}
	case Directory:
		if r.OriginFile == "" && r.OriginDirectory == "" {
			return nil, errors.Newf(errors.ErrSchema,
				"directory entry %q must identify its source via origin_directory or origin_file", r.Name)
		}
	}

	policy := mergePolicy(defaults, r.Policy)
	if typ == Directory {
		// Content digests only apply to leaves.
		policy.ChecksumContents = false
	}

	entry := &Entry{
		Name:            r.Name,
		Type:            typ,
		OriginDirectory: r.OriginDirectory,
		OriginFile:      r.OriginFile,
		Destination:     r.Destination,
		Policy:          policy,
	}

	if typ == Directory && len(r.Files) > 0 {
		children, err := loadEntries(r.Files, defaults, r.Name)
		if err != nil {
			return nil, err
		}
		entry.Children = children
	}

	return entry, nil
}

// mergePolicy applies the shallow default-plus-override rule: scalar keys
// and the groups set replace wholesale when present, everything else
// inherits from the base.
func mergePolicy(base Policy, override rawPolicy) Policy {
	merged := base
	if override.Required != nil {
		merged.Required = *override.Required
	}
	if override.Multiple != nil {
		merged.Multiple = *override.Multiple
	}
	if override.ChecksumContents != nil {
		merged.ChecksumContents = *override.ChecksumContents
	}
	if override.Groups != nil {
		merged.Groups = append([]string(nil), override.Groups...)
	}
	return merged
}

func displayParent(parent string) string {
	if parent == "" {
		return "root"
	}
	return parent
}
