package executor

import (
	"context"
	"io"
	"path"

	"github.com/memlab-tools/stager/pkg/checksum"
	"github.com/memlab-tools/stager/pkg/errors"
	"github.com/memlab-tools/stager/pkg/manifest"
	"github.com/memlab-tools/stager/pkg/planner"
)

// alreadyMaterialized decides whether the destination is already up to
// date. The recorded sidecar digest is authoritative when available;
// otherwise destination existence plus size/mtime serves as a fallback.
func (e *Executor) alreadyMaterialized(item planner.Item, originDigest string) (string, bool) {
	if item.Kind == manifest.Link || e.opts.Mode == ModeLink {
		target, err := e.fs.Readlink(item.Destination)
		if err == nil && target == item.Origin {
			return "link already in place", true
		}
		return "", false
	}

	destInfo, err := e.fs.Stat(item.Destination)
	if err != nil {
		return "", false
	}

	if originDigest != "" {
		if checksum.ReadSidecar(e.fs, item.Destination, e.digester) == originDigest {
			return "origin digest matches prior transfer", true
		}
		return "", false
	}

	if item.Kind == manifest.Directory {
		return "destination directory exists", true
	}

	originInfo, err := e.fs.Stat(item.Origin)
	if err != nil {
		return "", false
	}
	if destInfo.Size() == originInfo.Size() && !destInfo.ModTime().Before(originInfo.ModTime()) {
		return "destination size and mtime current", true
	}
	return "", false
}

// verifyDestination digests the freshly written destination and compares
// it against the origin digest recorded at validation time. Only file
// copies are verifiable: links and directories carry no content digest.
func (e *Executor) verifyDestination(item planner.Item, want string) error {
	if want == "" || item.Kind != manifest.File || e.opts.Mode == ModeLink {
		return nil
	}
	got, err := checksum.File(e.fs, e.digester, item.Destination)
	if err != nil {
		return err
	}
	if got != want {
		return errors.Newf(errors.ErrChecksumMismatch,
			"destination %s digest %s does not match origin digest %s",
			item.Destination, got, want)
	}
	return nil
}

// transfer performs one materialization. Link entries always symlink;
// file and directory entries follow the configured mode.
func (e *Executor) transfer(ctx context.Context, item planner.Item) error {
	if err := e.fs.MkdirAll(path.Dir(item.Destination), 0755); err != nil {
		return err
	}

	if item.Kind == manifest.Link || e.opts.Mode == ModeLink {
		return e.relink(item.Origin, item.Destination)
	}

	if item.Kind == manifest.Directory {
		return e.copyDir(ctx, item.Origin, item.Destination)
	}
	return e.copyFile(ctx, item.Origin, item.Destination)
}

// relink replaces whatever occupies the destination with a symlink to the
// origin. Idempotent re-links were already filtered by alreadyMaterialized.
func (e *Executor) relink(origin, destination string) error {
	if _, err := e.fs.Lstat(destination); err == nil {
		if err := e.fs.Remove(destination); err != nil {
			return err
		}
	}
	return e.fs.Symlink(origin, destination)
}

// copyFile copies bytes in bounded chunks, honoring cancellation between
// chunks so a stuck or canceled transfer stops promptly.
func (e *Executor) copyFile(ctx context.Context, src, dst string) error {
	in, err := e.fs.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := e.fs.Create(dst)
	if err != nil {
		return err
	}

	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			return err
		}
		n, rerr := in.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = out.Close()
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = out.Close()
			return rerr
		}
	}
	return out.Close()
}

// copyDir recursively copies a directory tree.
func (e *Executor) copyDir(ctx context.Context, src, dst string) error {
	if err := e.fs.MkdirAll(dst, 0755); err != nil {
		return err
	}
	entries, err := e.fs.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		srcPath := path.Join(src, entry.Name())
		dstPath := path.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := e.copyDir(ctx, srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := e.copyFile(ctx, srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}
