package graph

import (
	"context"
	"errors"
	"slices"

	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/options"
)

// ErrUnknownOption is wrapped by InvalidOptionError when a key is not
// declared by the recipe.
var ErrUnknownOption = errors.New("option not declared by recipe")

// Propagate computes the final options of every node of g in place:
// declared defaults, then the table entries addressed to the node's name,
// then the node's own forced values.
func Propagate(ctx context.Context, g *Graph) error {
	table := g.Table
	seen := make(map[string]bool)
	for _, n := range g.Nodes {
		seen[n.Ref.Name] = true
		decls := n.Recipe.Options
		opts := n.Recipe.Defaults()

		entries := table.Entries(n.Ref.Name)
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, key := range keys {
			e := entries[key]
			decl, ok := decls[key]
			if !ok {
				return &options.InvalidOptionError{Package: n.Ref.Name, Key: key, Value: e.Value, Source: e.Source, Err: ErrUnknownOption}
			}
			v, err := decl.Check(e.Value)
			if err != nil {
				return &options.InvalidOptionError{Package: n.Ref.Name, Key: key, Value: e.Value, Source: e.Source, Err: err}
			}
			opts[key] = v
		}

		source := n.Ref.String()
		for _, o := range n.SelfOptions {
			decl, ok := decls[o.Key]
			if !ok {
				return &options.InvalidOptionError{Package: n.Ref.Name, Key: o.Key, Value: o.Value, Source: source, Err: ErrUnknownOption}
			}
			v, err := decl.Check(o.Value)
			if err != nil {
				return &options.InvalidOptionError{Package: n.Ref.Name, Key: o.Key, Value: o.Value, Source: source, Err: err}
			}
			if e, ok := entries[o.Key]; ok && e.Value != v {
				return &options.OptionConflictError{
					Package: n.Ref.Name,
					Key:     o.Key,
					First:   e,
					Second:  options.Entry{Value: v, Source: source},
				}
			}
			opts[o.Key] = v
		}
		n.Options = opts
	}

	log := ctxlog.FromContext(ctx)
	for _, pkg := range table.Packages() {
		if !seen[pkg] {
			log.Warn("Ignoring options for package not in graph.", "package", pkg)
		}
	}
	return nil
}
