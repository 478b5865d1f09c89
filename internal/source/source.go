// Package source fetches the sources of a package into its workspace.
package source

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/goplus/kiln/internal/artifact"
	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/internal/vcs"
	"github.com/goplus/kiln/recipe"
	"lukechampine.com/blake3"
)

// Fetcher fetches git, archive and local path sources.
type Fetcher struct {
	// VCS clones git sources. Defaults to the git command line.
	VCS vcs.VCS
	// Client downloads archives. Defaults to http.DefaultClient.
	Client *http.Client
	// CacheDir keeps downloaded archives between builds. Archives are
	// downloaded to the target's parent when empty.
	CacheDir string
}

// Fetch places the sources declared by the recipe of n into target.
func (f *Fetcher) Fetch(ctx context.Context, n *graph.Node, target string) error {
	src := n.Recipe.Source
	log := ctxlog.FromContext(ctx)
	switch {
	case src.Git != nil:
		log.Debug("Fetching git source.", "ref", n.Ref.String(), "url", src.Git.URL)
		return f.fetchGit(ctx, n.Ref, src.Git, target)
	case src.Archive != nil:
		log.Debug("Fetching archive source.", "ref", n.Ref.String(), "url", src.Archive.URL)
		return f.fetchArchive(ctx, src.Archive, target)
	case src.Path != "":
		dir := src.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(n.Recipe.Dir, dir)
		}
		log.Debug("Copying local source.", "ref", n.Ref.String(), "dir", dir)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
		return os.CopyFS(target, os.DirFS(dir))
	}
	return os.MkdirAll(target, 0o755)
}

func (f *Fetcher) vcs() vcs.VCS {
	if f.VCS != nil {
		return f.VCS
	}
	return vcs.NewGitVCS()
}

func (f *Fetcher) fetchGit(ctx context.Context, ref recipe.Ref, src *recipe.GitSource, target string) error {
	v := f.vcs()
	rev := src.Ref
	if rev == "" {
		tags, err := v.Tags(ctx, src.URL)
		if err != nil {
			return err
		}
		tag, ok := vcs.MatchTag(tags, ref.Version)
		if !ok {
			return fmt.Errorf("no tag of %s matches version %s", src.URL, ref.Version)
		}
		rev = tag
	}
	return v.Sync(ctx, src.URL, rev, target)
}

func (f *Fetcher) fetchArchive(ctx context.Context, src *recipe.ArchiveSource, target string) error {
	cache := f.CacheDir
	if cache == "" {
		cache = filepath.Dir(target)
	}
	if err := os.MkdirAll(cache, 0o755); err != nil {
		return err
	}
	file := filepath.Join(cache, archiveName(src.URL))

	if _, err := os.Stat(file); err == nil && verify(file, src.Blake3) == nil {
		ctxlog.FromContext(ctx).Debug("Using cached archive.", "file", file)
	} else {
		if err := f.download(ctx, src.URL, file); err != nil {
			return err
		}
		if err := verify(file, src.Blake3); err != nil {
			os.Remove(file)
			return err
		}
	}
	return Extract(file, target, src.StripComponents)
}

func (f *Fetcher) download(ctx context.Context, rawURL, file string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme == "file" {
		return copyFile(u.Path, file)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: %s", rawURL, resp.Status)
	}
	return writeFile(file, resp.Body)
}

func verify(file, digest string) error {
	if digest == "" {
		return nil
	}
	got, err := artifact.FileDigest(file)
	if err != nil {
		return err
	}
	if got != digest {
		return fmt.Errorf("blake3 mismatch for %s: got %s, want %s", filepath.Base(file), got, digest)
	}
	return nil
}

// archiveName keeps the extension of the URL so Extract can detect the
// compression, prefixed to keep distinct URLs apart.
func archiveName(rawURL string) string {
	sum := blake3.Sum256([]byte(rawURL))
	base := path.Base(rawURL)
	if u, err := url.Parse(rawURL); err == nil {
		base = path.Base(u.Path)
	}
	return hex.EncodeToString(sum[:6]) + "-" + base
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeFile(dst, in)
}

func writeFile(dst string, r io.Reader) error {
	tmp := dst + ".part"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(0o644))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
