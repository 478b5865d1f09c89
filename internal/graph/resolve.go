package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/options"
	"github.com/goplus/kiln/internal/registry"
	"github.com/goplus/kiln/internal/version"
	"github.com/goplus/kiln/recipe"
)

// Lookuper finds the recipe of a reference.
type Lookuper interface {
	Lookup(ctx context.Context, ref recipe.Ref) (*recipe.Definition, error)
}

// Resolver builds requirement graphs.
type Resolver struct {
	Lookup Lookuper
}

type resolveState struct {
	ctx      context.Context
	lookup   Lookuper
	g        *Graph
	stack    []recipe.Ref
	visiting map[recipe.Ref]bool
}

// Resolve builds the graph reachable from roots, walking requirements depth
// first in declaration order. Overrides declared by recipes and by
// requirement edges are merged into table, which becomes the graph's table.
func (r *Resolver) Resolve(ctx context.Context, roots []*recipe.Definition, settings map[string]string, table *options.Table) (*Graph, error) {
	g := New(settings)
	if table != nil {
		g.Table = table
	}
	st := &resolveState{
		ctx:      ctx,
		lookup:   r.Lookup,
		g:        g,
		visiting: make(map[recipe.Ref]bool),
	}
	for _, def := range roots {
		if n := g.Node(def.Ref); n != nil {
			if !slices.Contains(g.Roots, n) {
				g.Roots = append(g.Roots, n)
			}
			continue
		}
		n, err := st.visit(def)
		if err != nil {
			return nil, err
		}
		g.Roots = append(g.Roots, n)
	}
	if err := st.configure(); err != nil {
		return nil, err
	}
	warnVersions(ctx, g)
	return g, nil
}

// configure runs the configure hook of every node, consumers first, with
// the options the table currently assigns it. Hooks are re-run until the
// overrides and forced values they declare no longer change, so the result
// does not depend on the order nodes were discovered in.
func (st *resolveState) configure() error {
	g := st.g
	base := g.Table.Clone()
	prev := base
	for pass := 0; pass < len(g.Nodes)+2; pass++ {
		t := base.Clone()
		changed := pass == 0
		for i := len(g.Nodes) - 1; i >= 0; i-- {
			n := g.Nodes[i]
			cc, err := n.Recipe.Configure(n.Settings, configureInput(n, t, prev))
			if err != nil {
				return err
			}
			self, over := cc.SelfOptions(), cc.Overrides()
			if !slices.Equal(self, n.SelfOptions) || !slices.Equal(over, n.Overrides) {
				changed = true
			}
			n.SelfOptions, n.Overrides = self, over
			source := n.Ref.String()
			for _, o := range over {
				if err := t.Add(o.Package, o.Key, o.Value, source); err != nil {
					return err
				}
			}
		}
		if !changed && t.Equal(prev) {
			*g.Table = *t
			return nil
		}
		prev = t
	}
	return fmt.Errorf("configure hooks did not settle after %d passes", len(g.Nodes)+2)
}

// configureInput returns the options n is configured with: its defaults,
// then the valid values assigned to it in cur, falling back to prev for
// keys no node has assigned yet in the current pass.
func configureInput(n *Node, cur, prev *options.Table) recipe.Options {
	opts := n.Recipe.Defaults()
	for key, decl := range n.Recipe.Options {
		e, ok := cur.Get(n.Ref.Name, key)
		if !ok {
			e, ok = prev.Get(n.Ref.Name, key)
		}
		if !ok {
			continue
		}
		if v, err := decl.Check(e.Value); err == nil {
			opts[key] = v
		}
	}
	return opts
}

func (st *resolveState) visit(def *recipe.Definition) (*Node, error) {
	g := st.g
	n := NewNode(def, g.Settings)
	g.byRef[n.Ref] = n

	source := n.Ref.String()

	st.stack = append(st.stack, n.Ref)
	st.visiting[n.Ref] = true
	for _, req := range def.Requires {
		for _, key := range req.Options.Keys() {
			if err := g.Table.Add(req.Ref.Name, key, req.Options[key], source); err != nil {
				return nil, err
			}
		}
		if st.visiting[req.Ref] {
			i := slices.Index(st.stack, req.Ref)
			cycle := append(slices.Clone(st.stack[i:]), req.Ref)
			return nil, &CyclicRequirementError{Cycle: cycle}
		}
		dep := g.Node(req.Ref)
		if dep == nil {
			depDef, err := st.lookup.Lookup(st.ctx, req.Ref)
			if err != nil {
				var missing *registry.MissingRecipeError
				if errors.As(err, &missing) && missing.Consumer.IsZero() {
					missing.Consumer = n.Ref
				}
				return nil, err
			}
			if depDef.Ref.Name != req.Ref.Name {
				return nil, fmt.Errorf("%s: lookup of %s returned recipe %s", n.Ref, req.Ref, depDef.Ref)
			}
			if depDef.Ref != req.Ref {
				depDef = depDef.WithRef(req.Ref)
			}
			if dep, err = st.visit(depDef); err != nil {
				return nil, err
			}
		}
		g.Connect(n, dep, req.Kind, req.Options)
	}
	st.stack = st.stack[:len(st.stack)-1]
	delete(st.visiting, n.Ref)

	n.Index = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	ctxlog.FromContext(st.ctx).Debug("Resolved recipe.", "ref", source, "requires", len(def.Requires))
	return n, nil
}

// warnVersions logs every package name present in more than one version.
func warnVersions(ctx context.Context, g *Graph) {
	byName := make(map[string][]string)
	var names []string
	for _, n := range g.Nodes {
		if _, ok := byName[n.Ref.Name]; !ok {
			names = append(names, n.Ref.Name)
		}
		if !slices.Contains(byName[n.Ref.Name], n.Ref.Version) {
			byName[n.Ref.Name] = append(byName[n.Ref.Name], n.Ref.Version)
		}
	}
	for _, name := range names {
		if vers := byName[name]; len(vers) > 1 {
			version.Sort(vers)
			ctxlog.FromContext(ctx).Warn("Package required in multiple versions.", "name", name, "versions", vers)
		}
	}
}
