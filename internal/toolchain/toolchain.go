// Package toolchain generates the build environment of a node and runs its
// stages as external processes.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/recipe"
)

// LogFile is the name of the build log written into the workspace root
// when Process has no output configured.
const LogFile = "build.log"

// Deps are the package infos of the dependencies of a node.
type Deps struct {
	// Runtime holds the transitive runtime dependencies.
	Runtime []*recipe.PackageInfo
	// Tools holds the direct tool dependencies.
	Tools []*recipe.PackageInfo
}

// Process runs recipe stages in the current host.
type Process struct {
	// Stdout and Stderr receive the output of stages. When nil, output is
	// appended to LogFile in the workspace root.
	Stdout io.Writer
	Stderr io.Writer

	// Runner overrides how commands are run, used by tests.
	Runner recipe.Runner

	// Base is the environment the node environments are layered over.
	// Defaults to os.Environ().
	Base []string
}

// Generate produces the environment of n from its dependencies and build
// settings, then runs the recipe's generate stage if it has one.
func (p *Process) Generate(ctx context.Context, n *graph.Node, ws *Workspace, deps Deps) (*Environment, error) {
	base := p.Base
	if base == nil {
		base = os.Environ()
	}
	env := NewEnvironment(base)
	for _, flag := range buildTypeFlags(n.Settings["build_type"]) {
		env.AppendFlag("CFLAGS", flag)
		env.AppendFlag("CXXFLAGS", flag)
	}
	for _, info := range deps.Runtime {
		env.Use(info)
	}
	for _, info := range deps.Tools {
		env.UseTool(info)
	}
	if !n.Recipe.Stages.Has(recipe.StageGenerate) {
		return env, nil
	}

	sc, err := env.Scope(recipe.StageGenerate, ws)
	if err != nil {
		return nil, err
	}
	defer sc.Close()
	c, closeOut, err := p.stageContext(ctx, n, sc)
	if err != nil {
		return nil, err
	}
	defer closeOut()
	if err := n.Recipe.Impl.Run(recipe.StageGenerate, c); err != nil {
		return nil, err
	}
	env.Merge(c.Vars())
	return env, nil
}

// Run runs stage st of n inside scope sc.
func (p *Process) Run(ctx context.Context, n *graph.Node, st recipe.Stage, sc *Scope) error {
	if n.Recipe.Impl == nil {
		return fmt.Errorf("%s: recipe has no implementation of %s", n.Ref, st)
	}
	c, closeOut, err := p.stageContext(ctx, n, sc)
	if err != nil {
		return err
	}
	defer closeOut()
	ctxlog.FromContext(ctx).Debug("Running stage.", "ref", n.Ref.String(), "stage", st.String())
	return n.Recipe.Impl.Run(st, c)
}

func (p *Process) stageContext(ctx context.Context, n *graph.Node, sc *Scope) (*recipe.StageContext, func(), error) {
	ws := sc.Workspace
	stdout, stderr := p.Stdout, p.Stderr
	closeOut := func() {}
	if stdout == nil || stderr == nil {
		f, err := os.OpenFile(filepath.Join(ws.Root, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		fmt.Fprintf(f, "==> %s: %s\n", n.Ref, sc.Stage)
		if stdout == nil {
			stdout = f
		}
		if stderr == nil {
			stderr = f
		}
		closeOut = func() { f.Close() }
	}
	runner := p.Runner
	if runner == nil {
		runner = runCommand
	}
	c := &recipe.StageContext{
		Context:    ctx,
		Ref:        n.Ref,
		Stage:      sc.Stage,
		Settings:   n.Settings,
		Options:    n.Options,
		RecipeDir:  ws.RecipeDir,
		SourceDir:  ws.SourceDir,
		BuildDir:   ws.BuildDir,
		PackageDir: ws.PackageDir,
		Env:        sc.Env(),
		Stdout:     stdout,
		Stderr:     stderr,
		Info:       sc.Info,
		Runner:     runner,
	}
	return c, closeOut, nil
}

func buildTypeFlags(buildType string) []string {
	switch buildType {
	case "Debug":
		return []string{"-O0", "-g"}
	case "RelWithDebInfo":
		return []string{"-O2", "-g"}
	case "MinSizeRel":
		return []string{"-Os"}
	case "Release":
		return []string{"-O2"}
	}
	return nil
}

// ExitStatus extracts the exit status of a failed external command from
// err.
func ExitStatus(err error) (int, bool) {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), true
	}
	var st interface{ ExitStatus() int }
	if errors.As(err, &st) {
		return st.ExitStatus(), true
	}
	return 0, false
}
