// Package artifact packs built packages into archives and publishes them.
package artifact

import (
	"archive/tar"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/kiln/recipe"
	"github.com/klauspost/compress/zstd"
	"lukechampine.com/blake3"
)

// ManifestFile is the name of the manifest written next to an archive.
const ManifestFile = "manifest.json"

// Manifest describes a packed package.
type Manifest struct {
	Ref       recipe.Ref          `json:"ref"`
	PackageID string              `json:"package_id"`
	Settings  map[string]string   `json:"settings,omitempty"`
	Options   recipe.Options      `json:"options,omitempty"`
	Archive   string              `json:"archive"`
	Digest    string              `json:"digest"`
	Info      *recipe.PackageInfo `json:"info,omitempty"`
	Created   time.Time           `json:"created"`
}

// Pack writes the files of dir into the zstd compressed tarball dst and
// returns the blake3 digest of dst. Entries are written in lexical order
// with paths relative to dir.
func Pack(dir, dst string) (string, error) {
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	h := blake3.New(32, nil)
	zw, err := zstd.NewWriter(io.MultiWriter(f, h))
	if err != nil {
		f.Close()
		return "", err
	}
	tw := tar.NewWriter(zw)
	skip, _ := filepath.Abs(dst)

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil || rel == "." {
			return err
		}
		if abs, _ := filepath.Abs(path); abs == skip || (d.Name() == ManifestFile && filepath.Dir(rel) == ".") {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		link := ""
		if fi.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !fi.Mode().IsRegular() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if err == nil {
		err = tw.Close()
	}
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("failed to pack %s: %w", dir, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileDigest returns the hex blake3 digest of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteManifest writes m into dir.
func WriteManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0o644)
}

// ReadManifest reads the manifest stored in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest in %s: %w", dir, err)
	}
	return &m, nil
}

// Verify reports whether the archive named by m exists in dir with the
// recorded digest.
func (m *Manifest) Verify(dir string) bool {
	if m.Archive == "" || m.Digest == "" {
		return false
	}
	digest, err := FileDigest(filepath.Join(dir, m.Archive))
	return err == nil && digest == m.Digest
}
