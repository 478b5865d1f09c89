// Package engine plans and builds the graph of one invocation: local
// exports, resolution, option propagation and execution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/kiln/internal/build"
	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/internal/loader"
	"github.com/goplus/kiln/internal/lock"
	"github.com/goplus/kiln/internal/options"
	"github.com/goplus/kiln/internal/registry"
	"github.com/goplus/kiln/recipe"
)

// Engine holds the collaborators shared by every plan. It keeps no state
// between plans, so independent contexts can be planned concurrently.
type Engine struct {
	loader loader.Loader
	index  registry.Index
}

// New creates an Engine loading recipes with l and falling back to index
// for recipes not exported locally. index may be nil.
func New(l loader.Loader, index registry.Index) *Engine {
	if l == nil {
		l = loader.New()
	}
	return &Engine{loader: l, index: index}
}

// LocalExport is a recipe registered for one invocation only.
type LocalExport struct {
	Path    string
	User    string
	Channel string
}

// ParseLocalExport parses "path[@user/channel]".
func ParseLocalExport(s string) (LocalExport, error) {
	path, uc, ok := strings.Cut(s, "@")
	if path == "" {
		return LocalExport{}, fmt.Errorf("invalid export %q: missing path", s)
	}
	ex := LocalExport{Path: path}
	if ok {
		user, channel, ok := strings.Cut(uc, "/")
		if !ok || user == "" || channel == "" {
			return LocalExport{}, fmt.Errorf("invalid export %q: expected path@user/channel", s)
		}
		ex.User, ex.Channel = user, channel
	}
	return ex, nil
}

// Request describes one invocation context.
type Request struct {
	// Roots are the paths of the root recipes.
	Roots []string
	// Exports are registered before resolution.
	Exports []LocalExport
	// Options are the user overrides.
	Options []recipe.Override
	// Settings are the context settings.
	Settings map[string]string
}

// Plan is a resolved graph ready to build.
type Plan struct {
	Graph    *graph.Graph
	Registry *registry.Registry
	Roots    []*recipe.Definition
}

type planner struct {
	e        *Engine
	reg      *registry.Registry
	exported map[string]bool
}

// prepare loads the roots and registers every local export, the ones of
// req first and then the export blocks of the loaded recipes.
func (e *Engine) prepare(ctx context.Context, req *Request) (*planner, []*recipe.Definition, error) {
	p := &planner{
		e:        e,
		reg:      registry.New(e.index),
		exported: make(map[string]bool),
	}
	for _, ex := range req.Exports {
		if err := p.export(ctx, ex, ""); err != nil {
			return nil, nil, err
		}
	}
	var roots []*recipe.Definition
	for _, path := range req.Roots {
		def, err := e.loader.Load(path)
		if err != nil {
			return nil, nil, err
		}
		if err := p.exportsOf(ctx, def); err != nil {
			return nil, nil, err
		}
		roots = append(roots, def)
	}
	return p, roots, nil
}

// export registers the recipe at ex.Path. A recipe that fails to load is
// skipped with a warning: its consumers report it as missing.
func (p *planner) export(ctx context.Context, ex LocalExport, from string) error {
	path := ex.Path
	if from != "" && !filepath.IsAbs(path) {
		path = filepath.Join(from, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	key := abs + "@" + ex.User + "/" + ex.Channel
	if p.exported[key] {
		return nil
	}
	p.exported[key] = true

	log := ctxlog.FromContext(ctx)
	def, err := p.e.loader.Load(abs)
	if err != nil {
		log.Warn("Skipping local export that failed to load.", "path", abs, "err", err)
		return nil
	}
	if ex.User != "" {
		def = def.WithRef(def.Ref.WithUserChannel(ex.User, ex.Channel))
	}
	if def.Ref.Version == "" {
		log.Warn("Skipping local export without version.", "path", abs)
		return nil
	}
	if err := p.reg.Register(def); err != nil {
		return err
	}
	log.Debug("Exported recipe locally.", "ref", def.Ref.String(), "path", abs)
	return p.exportsOf(ctx, def)
}

func (p *planner) exportsOf(ctx context.Context, def *recipe.Definition) error {
	for _, ex := range def.Exports {
		if err := p.export(ctx, LocalExport(ex), def.Dir); err != nil {
			return err
		}
	}
	return nil
}

// Plan registers the local exports, resolves the graph of the roots,
// propagates options and computes package ids.
func (e *Engine) Plan(ctx context.Context, req *Request) (*Plan, error) {
	p, roots, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	table := new(options.Table)
	for _, o := range req.Options {
		if err := table.Add(o.Package, o.Key, o.Value, options.SourceUser); err != nil {
			return nil, err
		}
	}
	r := &graph.Resolver{Lookup: p.reg}
	g, err := r.Resolve(ctx, roots, req.Settings, table)
	if err != nil {
		return nil, err
	}
	if err := graph.Propagate(ctx, g); err != nil {
		return nil, err
	}
	graph.ComputePackageIDs(g)
	return &Plan{Graph: g, Registry: p.reg, Roots: roots}, nil
}

// Restore rebuilds the plan recorded in a lock file without resolution or
// propagation. Recipes are looked up among the roots and local exports of
// req, then in the index. The roots of req must be roots of f, and req may
// not carry user options.
func (e *Engine) Restore(ctx context.Context, req *Request, f *lock.File) (*Plan, error) {
	if len(req.Options) > 0 {
		return nil, errors.New("options cannot be overridden when building from a lock file")
	}
	p, roots, err := e.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, def := range roots {
		if !slices.Contains(f.Roots, def.Ref) {
			return nil, fmt.Errorf("recipe %s is not a root of the lock file", def.Ref)
		}
	}
	lookup := &rootLookup{roots: roots, next: p.reg}
	g, err := lock.Restore(ctx, f, lookup)
	if err != nil {
		return nil, err
	}
	return &Plan{Graph: g, Registry: p.reg, Roots: roots}, nil
}

// Build executes p with x.
func (e *Engine) Build(ctx context.Context, p *Plan, x *build.Executor) (*build.Report, error) {
	return x.Execute(ctx, p.Graph)
}

type rootLookup struct {
	roots []*recipe.Definition
	next  graph.Lookuper
}

func (l *rootLookup) Lookup(ctx context.Context, ref recipe.Ref) (*recipe.Definition, error) {
	for _, def := range l.roots {
		if def.Ref == ref {
			return def, nil
		}
	}
	return l.next.Lookup(ctx, ref)
}
