// Package checksum provides the content digest collaborator. The engine
// treats digesting as a pure bytes-to-string function; algorithm choice is
// runtime policy. BLAKE3 is the default, MD5 remains available because the
// historical pipeline recorded .md5 files next to transferred data.
package checksum

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/filesystem"
)

// Digester computes a content digest over a byte stream.
type Digester interface {
	// Name identifies the algorithm; it doubles as the sidecar file suffix.
	Name() string
	Digest(r io.Reader) (string, error)
}

// New returns the digester for the given algorithm name.
func New(algorithm string) (Digester, error) {
	switch strings.ToLower(algorithm) {
	case "", "blake3":
		return hashDigester{name: "blake3", factory: func() hash.Hash { return blake3.New() }}, nil
	case "md5":
		return hashDigester{name: "md5", factory: md5.New}, nil
	default:
		return nil, errors.Newf(errors.ErrInvalidInput,
			"unknown checksum algorithm %q", algorithm)
	}
}

// MustNew is New for algorithm names known valid at compile time.
func MustNew(algorithm string) Digester {
	d, err := New(algorithm)
	if err != nil {
		panic(err)
	}
	return d
}

type hashDigester struct {
	name    string
	factory func() hash.Hash
}

func (d hashDigester) Name() string {
	return d.name
}

func (d hashDigester) Digest(r io.Reader) (string, error) {
	h := d.factory()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File computes the digest of one file through the filesystem collaborator.
// It only ever reads.
func File(fsys filesystem.FS, d Digester, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "cannot open %s for digest", path)
	}
	defer func() { _ = f.Close() }()

	digest, err := d.Digest(f)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrFileAccess, "digest of %s failed", path)
	}
	return digest, nil
}

// SidecarPath returns where a destination's recorded digest lives. The
// record sits next to the destination file so re-runs can skip unchanged
// transfers without re-reading content.
func SidecarPath(destination string, d Digester) string {
	return destination + "." + d.Name()
}

// ReadSidecar returns the recorded digest for a destination, or "" when no
// record exists.
func ReadSidecar(fsys filesystem.FS, destination string, d Digester) string {
	raw, err := fsys.ReadFile(SidecarPath(destination, d))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// WriteSidecar records a destination's digest.
func WriteSidecar(fsys filesystem.FS, destination string, d Digester, digest string) error {
	path := SidecarPath(destination, d)
	if err := fsys.WriteFile(path, []byte(digest+"\n"), 0644); err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite, "cannot record digest at %s", path)
	}
	return nil
}
