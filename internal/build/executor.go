// Package build executes the lifecycle of every node of a resolved graph.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goplus/kiln/internal/artifact"
	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/internal/metrics"
	"github.com/goplus/kiln/internal/options"
	"github.com/goplus/kiln/internal/par"
	"github.com/goplus/kiln/internal/toolchain"
	"github.com/goplus/kiln/recipe"
)

// Toolchain generates node environments and runs recipe stages.
type Toolchain interface {
	Generate(ctx context.Context, n *graph.Node, ws *toolchain.Workspace, deps toolchain.Deps) (*toolchain.Environment, error)
	Run(ctx context.Context, n *graph.Node, st recipe.Stage, sc *toolchain.Scope) error
}

// Fetcher acquires the declared sources of a node.
type Fetcher interface {
	Fetch(ctx context.Context, n *graph.Node, target string) error
}

// Packager archives and publishes the package folder of a node.
type Packager interface {
	Pack(ctx context.Context, n *graph.Node, dir string) (*artifact.Manifest, error)
	Publish(ctx context.Context, n *graph.Node, dir string) error
}

// Observer is notified when nodes start and finish. Calls may come from
// several goroutines.
type Observer interface {
	NodeStarted(n *graph.Node)
	NodeFinished(r *NodeResult)
}

// Executor builds the nodes of a graph in dependency order.
type Executor struct {
	Toolchain Toolchain
	Fetcher   Fetcher
	Packager  Packager
	Cache     *Cache

	// WorkDir holds the source and build folders of every node.
	WorkDir string
	// Jobs is the maximum number of nodes built concurrently.
	Jobs int
	// Publish uploads every built package through Packager.
	Publish bool

	Observer Observer
	Metrics  *metrics.Metrics
}

type execState struct {
	g       *graph.Graph
	mu      sync.Mutex
	results []*NodeResult
	infos   []*recipe.PackageInfo
}

// Execute builds every node of g. A failing node fails all its transitive
// dependents, which are never dispatched; independent nodes keep building.
// The returned error reports problems preventing the execution itself, node
// failures are in the report.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph) (*Report, error) {
	if e.Cache == nil || e.WorkDir == "" {
		return nil, errors.New("build: executor needs a cache and a work dir")
	}
	if err := os.MkdirAll(e.WorkDir, 0o755); err != nil {
		return nil, err
	}
	for _, n := range g.Nodes {
		if n.PackageID == "" {
			graph.ComputePackageIDs(g)
			break
		}
	}

	st := &execState{
		g:       g,
		results: make([]*NodeResult, len(g.Nodes)),
		infos:   make([]*recipe.PackageInfo, len(g.Nodes)),
	}
	for i, n := range g.Nodes {
		st.results[i] = &NodeResult{Ref: n.Ref, PackageID: n.PackageID}
	}

	w := &par.Work[*graph.Node]{
		Priority: func(n *graph.Node) int { return n.Index },
	}
	for _, n := range g.Nodes {
		if len(n.Edges) == 0 {
			w.Add(n)
		}
	}
	jobs := e.Jobs
	if jobs < 1 {
		jobs = 1
	}
	w.Do(jobs, func(n *graph.Node) {
		e.execNode(ctx, st, n)
		if n.Status() == graph.Built {
			for _, d := range n.Dependents {
				if ready(d) {
					w.Add(d)
				}
			}
		}
	})
	return &Report{Results: st.results}, nil
}

func ready(n *graph.Node) bool {
	if n.Status() != graph.Unresolved {
		return false
	}
	for _, dep := range n.Deps() {
		if dep.Status() != graph.Built {
			return false
		}
	}
	return true
}

func (e *Executor) execNode(ctx context.Context, st *execState, n *graph.Node) {
	log := ctxlog.FromContext(ctx).With("ref", n.Ref.String())
	ctx = ctxlog.WithLogger(ctx, log)
	if e.Observer != nil {
		e.Observer.NodeStarted(n)
	}
	e.Metrics.NodeStarted()
	start := time.Now()

	res := st.results[n.Index]
	info, m, cached, err := e.runNode(ctx, st, n)

	st.mu.Lock()
	res.Duration = time.Since(start)
	res.Cached = cached
	if m != nil {
		res.Archive = filepath.Join(e.Cache.PackageDir(n), m.Archive)
		res.Digest = m.Digest
	}
	if err != nil {
		n.Finish(graph.Failed)
		res.Status = graph.Failed
		res.Err = err
	} else {
		n.Finish(graph.Built)
		res.Status = graph.Built
		res.Info = info
		st.infos[n.Index] = info
	}
	st.mu.Unlock()

	e.Metrics.NodeFinished(res.Status.String(), cached, res.Duration)
	if e.Observer != nil {
		e.Observer.NodeFinished(res)
	}
	if err != nil {
		log.Error("Package failed.", "err", err)
		e.block(ctx, st, n)
		return
	}
	log.Info("Package built.", "cached", cached, "duration", res.Duration.Round(time.Millisecond))
}

// block fails every transitive dependent of the failed node n.
func (e *Executor) block(ctx context.Context, st *execState, n *graph.Node) {
	for _, d := range st.g.Dependents(n) {
		if !d.Finish(graph.Failed) {
			continue
		}
		st.mu.Lock()
		res := st.results[d.Index]
		res.Status = graph.Failed
		res.BlockedBy = n.Ref
		res.Err = &BlockedError{Ref: d.Ref, By: n.Ref}
		st.mu.Unlock()

		e.Metrics.NodeBlocked()
		if e.Observer != nil {
			e.Observer.NodeFinished(res)
		}
		ctxlog.FromContext(ctx).Warn("Skipping package with failed dependency.", "dependent", d.Ref.String())
	}
}

func (e *Executor) workspace(n *graph.Node) *toolchain.Workspace {
	version := n.Ref.Version
	if version == "" {
		version = "0"
	}
	id := n.PackageID
	if len(id) > 12 {
		id = id[:12]
	}
	root := filepath.Join(e.WorkDir, fmt.Sprintf("%s-%s-%s", n.Ref.Name, version, id))
	return &toolchain.Workspace{
		Root:       root,
		RecipeDir:  n.Recipe.Dir,
		SourceDir:  filepath.Join(root, "src"),
		BuildDir:   filepath.Join(root, "build"),
		PackageDir: e.Cache.FilesDir(n),
	}
}

func (e *Executor) deps(st *execState, n *graph.Node) toolchain.Deps {
	st.mu.Lock()
	defer st.mu.Unlock()
	var deps toolchain.Deps
	for _, d := range st.g.RuntimeDeps(n) {
		if info := st.infos[d.Index]; info != nil {
			deps.Runtime = append(deps.Runtime, info)
		}
	}
	for _, d := range st.g.ToolDeps(n) {
		if info := st.infos[d.Index]; info != nil {
			deps.Tools = append(deps.Tools, info)
		}
	}
	return deps
}

// runNode runs the declared stages of n in lifecycle order.
func (e *Executor) runNode(ctx context.Context, st *execState, n *graph.Node) (*recipe.PackageInfo, *artifact.Manifest, bool, error) {
	log := ctxlog.FromContext(ctx)
	def := n.Recipe
	if m, ok := e.Cache.Lookup(n); ok {
		info := m.Info
		if info == nil {
			info = recipe.DefaultPackageInfo(e.Cache.FilesDir(n))
		}
		log.Debug("Using cached package.", "package_id", n.PackageID)
		return info, m, true, nil
	}

	ws := e.workspace(n)
	if err := os.RemoveAll(ws.Root); err != nil {
		return nil, nil, false, err
	}
	for _, dir := range []string{ws.SourceDir, ws.BuildDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, false, err
		}
	}
	if err := e.Cache.Reset(n); err != nil {
		return nil, nil, false, &PackagingError{Ref: n.Ref, Err: err}
	}

	var (
		// Stages before generate see a bare environment.
		env  = toolchain.NewEnvironment(nil)
		m    *artifact.Manifest
		info *recipe.PackageInfo
	)
	for _, s := range recipe.Lifecycle {
		if s != recipe.StageGenerate && !def.Stages.Has(s) {
			continue
		}
		start := time.Now()
		var err error
		switch s {
		case recipe.StageRequirements, recipe.StageBuildRequirements:
			kind := recipe.Runtime
			if s == recipe.StageBuildRequirements {
				kind = recipe.Tool
			}
			err = e.scoped(ctx, n, s, env, ws, nil, func(*toolchain.Scope) error {
				for _, edge := range n.Edges {
					if edge.Kind == kind {
						log.Debug("Requirement.", "kind", kind.String(), "requires", edge.To.Ref.String())
					}
				}
				return nil
			})
		case recipe.StageConfigure:
			err = e.scoped(ctx, n, s, env, ws, nil, func(*toolchain.Scope) error {
				return e.configure(n)
			})
		case recipe.StageGenerate:
			env, err = e.Toolchain.Generate(ctx, n, ws, e.deps(st, n))
			if err != nil {
				err = stepError(n, s, err)
			}
		case recipe.StageSource:
			err = e.scoped(ctx, n, s, env, ws, nil, func(sc *toolchain.Scope) error {
				var err error
				if def.Source.IsZero() {
					err = e.Toolchain.Run(ctx, n, s, sc)
				} else {
					err = e.Fetcher.Fetch(ctx, n, ws.SourceDir)
				}
				if err != nil {
					return &SourceFetchError{Ref: n.Ref, Err: err}
				}
				return nil
			})
		case recipe.StagePackage:
			err = e.scoped(ctx, n, s, env, ws, nil, func(sc *toolchain.Scope) error {
				if err := e.Toolchain.Run(ctx, n, s, sc); err != nil {
					return stepError(n, s, err)
				}
				var err error
				if m, err = e.Packager.Pack(ctx, n, e.Cache.PackageDir(n)); err != nil {
					return &PackagingError{Ref: n.Ref, Err: err}
				}
				return nil
			})
		case recipe.StagePackageInfo:
			info = recipe.DefaultPackageInfo(ws.PackageDir)
			err = e.scoped(ctx, n, s, env, ws, info, func(sc *toolchain.Scope) error {
				if err := e.Toolchain.Run(ctx, n, s, sc); err != nil {
					return stepError(n, s, err)
				}
				return nil
			})
		default:
			err = e.scoped(ctx, n, s, env, ws, nil, func(sc *toolchain.Scope) error {
				if err := e.Toolchain.Run(ctx, n, s, sc); err != nil {
					return stepError(n, s, err)
				}
				return nil
			})
		}
		e.Metrics.StageDone(s.String(), time.Since(start))
		if err != nil {
			return nil, nil, false, err
		}
	}

	if info == nil {
		info = recipe.DefaultPackageInfo(ws.PackageDir)
	}
	if m == nil {
		return info, nil, false, nil
	}
	m.Info = info
	dir := e.Cache.PackageDir(n)
	if err := e.Cache.Save(n, m); err != nil {
		return nil, nil, false, &PackagingError{Ref: n.Ref, Err: err}
	}
	if e.Publish {
		if err := e.Packager.Publish(ctx, n, dir); err != nil {
			return nil, nil, false, &PackagingError{Ref: n.Ref, Err: err}
		}
		log.Info("Published package.", "package_id", n.PackageID)
	}
	return info, m, false, nil
}

// scoped runs fn inside a fresh scope of env, removed when fn returns.
func (e *Executor) scoped(ctx context.Context, n *graph.Node, s recipe.Stage, env *toolchain.Environment, ws *toolchain.Workspace, info *recipe.PackageInfo, fn func(sc *toolchain.Scope) error) error {
	sc, err := env.Scope(s, ws)
	if err != nil {
		return stepError(n, s, err)
	}
	defer func() {
		if err := sc.Close(); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to remove stage scope.", "stage", s.String(), "err", err)
		}
	}()
	sc.Info = info
	return fn(sc)
}

// configure re-runs the configure hook with the resolved options. Values
// the recipe forces on itself must agree with them.
func (e *Executor) configure(n *graph.Node) error {
	cc, err := n.Recipe.Configure(n.Settings, n.Options)
	if err != nil {
		return stepError(n, recipe.StageConfigure, err)
	}
	for _, o := range cc.SelfOptions() {
		if got := n.Options[o.Key]; got != o.Value {
			return &options.OptionConflictError{
				Package: n.Ref.Name,
				Key:     o.Key,
				First:   options.Entry{Value: got, Source: "resolved"},
				Second:  options.Entry{Value: o.Value, Source: n.Ref.String()},
			}
		}
	}
	return nil
}

func stepError(n *graph.Node, s recipe.Stage, err error) error {
	status, ok := toolchain.ExitStatus(err)
	if !ok {
		status = -1
	}
	return &BuildStepError{Ref: n.Ref, Stage: s, Status: status, Err: err}
}
