package manifest

import (
	_ "embed"

	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/filesystem"
)

//go:embed default_manifest.yaml
var defaultManifest []byte

// LoadDefault loads the embedded localization transfer manifest.
func LoadDefault() (*Manifest, error) {
	return Load(defaultManifest)
}

// LoadFile reads and loads a manifest document from the given filesystem.
func LoadFile(fs filesystem.FS, path string) (*Manifest, error) {
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess,
			"cannot read manifest %s", path)
	}
	return Load(raw)
}
