// Package vcs fetches recipe indexes and package sources from git.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/version"
)

// VCS checks out remote repositories.
type VCS interface {
	// Sync makes dir a shallow checkout of ref of remote, creating dir if
	// needed. ref may be a branch, a tag or a commit hash; an empty ref
	// means the default branch. Submodules are checked out too.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Tags returns the tags of remote, lowest version first.
	Tags(ctx context.Context, remote string) ([]string, error)

	// Latest returns the commit hash of the HEAD of remote.
	Latest(ctx context.Context, remote string) (string, error)

	// Head returns the commit hash checked out in dir.
	Head(ctx context.Context, dir string) (string, error)
}

// GitError is a failed git invocation.
type GitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	msg := e.Stderr
	if msg == "" {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("git %s: %s", strings.Join(e.Args, " "), msg)
}

func (e *GitError) Unwrap() error {
	return e.Err
}

type gitVCS struct {
	git string
}

// GitOption configures the git implementation of VCS.
type GitOption func(*gitVCS)

// WithGitPath sets the git executable.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS returns a VCS running the git command line.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ".git")); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if _, err := g.run(ctx, dir, "init", "--quiet"); err != nil {
			return err
		}
	}
	args := []string{"fetch", "--quiet", "--depth", "1", remote}
	if ref != "" {
		args = append(args, ref)
	}
	if _, err := g.run(ctx, dir, args...); err != nil {
		return err
	}
	if _, err := g.run(ctx, dir, "checkout", "--quiet", "--force", "FETCH_HEAD"); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, ".gitmodules")); err == nil {
		_, err := g.run(ctx, dir, "submodule", "update", "--init", "--recursive", "--depth", "1")
		return err
	}
	return nil
}

func (g *gitVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	out, err := g.run(ctx, "", "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, err
	}
	var tags []string
	for line := range strings.Lines(out) {
		// <hash>\trefs/tags/<tag>
		_, ref, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if ok {
			tags = append(tags, strings.TrimPrefix(ref, "refs/tags/"))
		}
	}
	version.Sort(tags)
	return tags, nil
}

func (g *gitVCS) Latest(ctx context.Context, remote string) (string, error) {
	out, err := g.run(ctx, "", "ls-remote", remote, "HEAD")
	if err != nil {
		return "", err
	}
	hash, _, _ := strings.Cut(strings.TrimSpace(out), "\t")
	if hash == "" {
		return "", fmt.Errorf("no HEAD found in remote %s", remote)
	}
	return hash, nil
}

func (g *gitVCS) Head(ctx context.Context, dir string) (string, error) {
	out, err := g.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// run runs git in dir and returns its standard output. Prompts for
// credentials are disabled.
func (g *gitVCS) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctxlog.FromContext(ctx).Debug("Running git.", "dir", dir, "args", args)
	cmd := exec.CommandContext(ctx, g.git, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &GitError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}

// MatchTag returns the tag of tags naming version, as used by upstream
// projects that prefix their release tags ("v2.6.1", "OpenSSL_1_1_1w",
// "openssl-3.2.1"). An exact match wins over a suffix match.
func MatchTag(tags []string, version string) (string, bool) {
	if version == "" {
		return "", false
	}
	for _, t := range tags {
		if t == version {
			return t, true
		}
	}
	underscored := strings.ReplaceAll(version, ".", "_")
	for _, t := range tags {
		if strings.HasSuffix(t, version) || strings.HasSuffix(t, underscored) {
			return t, true
		}
	}
	return "", false
}
