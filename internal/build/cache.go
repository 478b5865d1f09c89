package build

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/kiln/internal/artifact"
	"github.com/goplus/kiln/internal/graph"
)

// Package cache layout:
//
//	Dir/
//	  <name>/<version>/<package id>/
//	    manifest.json                 # artifact.Manifest
//	    <package id>.tar.zst          # archive of files/
//	    files/                        # package folder
//	      include/
//	      lib/
//	      ...
const filesDir = "files"

// Cache stores built packages by package id.
type Cache struct {
	Dir string
}

// PackageDir returns the cache folder of n.
func (c *Cache) PackageDir(n *graph.Node) string {
	version := n.Ref.Version
	if version == "" {
		version = "_"
	}
	name := n.Ref.Name
	if n.Ref.User != "" {
		name = fmt.Sprintf("%s@%s_%s", name, n.Ref.User, n.Ref.Channel)
	}
	return filepath.Join(c.Dir, name, version, n.PackageID)
}

// FilesDir returns the folder the package of n is installed into.
func (c *Cache) FilesDir(n *graph.Node) string {
	return filepath.Join(c.PackageDir(n), filesDir)
}

// Lookup returns the manifest of n if its package is in the cache and its
// archive is intact.
func (c *Cache) Lookup(n *graph.Node) (*artifact.Manifest, bool) {
	dir := c.PackageDir(n)
	m, err := artifact.ReadManifest(dir)
	if err != nil {
		return nil, false
	}
	if m.PackageID != n.PackageID || m.Ref != n.Ref || !m.Verify(dir) {
		return nil, false
	}
	if m.Info != nil {
		m.Info.Root = c.FilesDir(n)
	}
	return m, true
}

// Reset empties the cache folder of n and creates its files folder.
func (c *Cache) Reset(n *graph.Node) error {
	dir := c.PackageDir(n)
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(filepath.Join(dir, filesDir), 0o755)
}

// Save records m as the manifest of n.
func (c *Cache) Save(n *graph.Node, m *artifact.Manifest) error {
	return artifact.WriteManifest(c.PackageDir(n), m)
}
