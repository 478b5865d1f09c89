// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package index implements the persistent recipe index consulted when a
// recipe is not registered locally.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/loader"
	"github.com/goplus/kiln/internal/vcs"
	"github.com/goplus/kiln/internal/version"
	"github.com/goplus/kiln/recipe"
)

// ErrNotFound is returned when the index holds no recipe for a reference.
var ErrNotFound = errors.New("recipe not found in index")

// noValue names the user or channel directory of references without one.
const noValue = "_"

// Index is a directory of recipes laid out as
//
//	dir/
//	  <name>/<version>/<user|_>/<channel|_>/
//	    recipe.hcl or <name>_recipe.gox
//	    ...                                # files next to the recipe
type Index struct {
	dir    string
	loader loader.Loader
	vcs    vcs.VCS
}

// New creates an Index stored in dir. v is used by Sync and may be nil.
func New(dir string, l loader.Loader, v vcs.VCS) *Index {
	return &Index{
		dir:    dir,
		loader: l,
		vcs:    v,
	}
}

// Dir returns the root directory of the index.
func (x *Index) Dir() string {
	return x.dir
}

// Lookup loads the recipe stored for ref.
func (x *Index) Lookup(ctx context.Context, ref recipe.Ref) (*recipe.Definition, error) {
	if ref.Version == "" {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	dir := x.refDir(ref)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return nil, err
	}
	path, err := loader.FindRecipe(dir)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Loading recipe from index.", "ref", ref.String(), "path", path)
	def, err := x.loader.Load(path)
	if err != nil {
		return nil, err
	}
	if def.Ref.Name != ref.Name || (def.Ref.Version != "" && def.Ref.Version != ref.Version) {
		return nil, fmt.Errorf("index entry %s holds recipe %s", ref, def.Ref)
	}
	if def.Ref != ref {
		def = def.WithRef(ref)
	}
	return def, nil
}

// Versions returns the versions of name held by the index, lowest first.
func (x *Index) Versions(name string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(x.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var vers []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			vers = append(vers, e.Name())
		}
	}
	version.Sort(vers)
	return vers, nil
}

// List returns every reference held by the index. If name is not empty,
// only references of that package are returned.
func (x *Index) List(name string) ([]recipe.Ref, error) {
	var names []string
	if name != "" {
		names = []string{name}
	} else {
		entries, err := os.ReadDir(x.dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
				names = append(names, e.Name())
			}
		}
	}
	var refs []recipe.Ref
	for _, n := range names {
		vers, err := x.Versions(n)
		if err != nil {
			return nil, err
		}
		for _, v := range vers {
			matches, err := filepath.Glob(filepath.Join(x.dir, n, v, "*", "*"))
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				channel := filepath.Base(m)
				user := filepath.Base(filepath.Dir(m))
				ref := recipe.Ref{Name: n, Version: v}
				if user != noValue {
					ref = ref.WithUserChannel(user, channel)
				}
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}

// Export copies the recipe at src, together with the files next to it,
// into the index under its declared reference with user and channel
// applied. The reference is returned.
func (x *Index) Export(ctx context.Context, src, user, channel string) (recipe.Ref, error) {
	fi, err := os.Stat(src)
	if err != nil {
		return recipe.Ref{}, err
	}
	if fi.IsDir() {
		if src, err = loader.FindRecipe(src); err != nil {
			return recipe.Ref{}, err
		}
	}
	ref, err := loader.Peek(src)
	if err != nil {
		return recipe.Ref{}, err
	}
	if user != "" || channel != "" {
		if user == "" || channel == "" {
			return recipe.Ref{}, fmt.Errorf("export %s: user and channel must be given together", src)
		}
		ref = ref.WithUserChannel(user, channel)
	}
	if ref.Version == "" {
		return recipe.Ref{}, fmt.Errorf("export %s: recipe declares no version", src)
	}

	dst := x.refDir(ref)
	if err := os.RemoveAll(dst); err != nil {
		return recipe.Ref{}, err
	}
	if err := copyTree(filepath.Dir(src), dst); err != nil {
		return recipe.Ref{}, fmt.Errorf("export %s: %w", ref, err)
	}
	ctxlog.FromContext(ctx).Info("Exported recipe.", "ref", ref.String(), "dir", dst)
	return ref, nil
}

// Sync updates the index directory from the git repository remote at ref.
func (x *Index) Sync(ctx context.Context, remote, ref string) error {
	if x.vcs == nil {
		return fmt.Errorf("index sync: no version control configured")
	}
	if ref == "" {
		latest, err := x.vcs.Latest(ctx, remote)
		if err != nil {
			return err
		}
		ref = latest
	}
	ctxlog.FromContext(ctx).Info("Syncing recipe index.", "remote", remote, "ref", ref)
	return x.vcs.Sync(ctx, remote, ref, x.dir)
}

func (x *Index) refDir(ref recipe.Ref) string {
	user, channel := ref.User, ref.Channel
	if user == "" {
		user = noValue
	}
	if channel == "" {
		channel = noValue
	}
	return filepath.Join(x.dir, ref.Name, ref.Version, user, channel)
}

// copyTree copies the regular files of src into dst, skipping hidden
// entries.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel != "." && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	fi, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
