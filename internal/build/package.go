package build

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"time"

	"github.com/goplus/kiln/internal/artifact"
	"github.com/goplus/kiln/internal/graph"
)

// ArchivePackager packs the files folder of a cache entry into a zstd
// tarball and optionally uploads it.
type ArchivePackager struct {
	// Store receives published packages.
	Store artifact.Store
}

// Pack archives dir/files into dir/<package id>.tar.zst.
func (p *ArchivePackager) Pack(ctx context.Context, n *graph.Node, dir string) (*artifact.Manifest, error) {
	archive := n.PackageID + ".tar.zst"
	digest, err := artifact.Pack(filepath.Join(dir, filesDir), filepath.Join(dir, archive))
	if err != nil {
		return nil, err
	}
	return &artifact.Manifest{
		Ref:       n.Ref,
		PackageID: n.PackageID,
		Settings:  n.Settings,
		Options:   n.Options,
		Archive:   archive,
		Digest:    digest,
		Created:   time.Now().UTC(),
	}, nil
}

// Publish uploads the archive and manifest of dir.
func (p *ArchivePackager) Publish(ctx context.Context, n *graph.Node, dir string) error {
	if p.Store == nil {
		return errors.New("no package store configured")
	}
	prefix := path.Join(n.Ref.Name, n.Ref.Version, n.PackageID)
	for _, name := range []string{n.PackageID + ".tar.zst", artifact.ManifestFile} {
		if err := p.Store.Put(ctx, path.Join(prefix, name), filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
