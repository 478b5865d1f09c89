package graph

import (
	"context"

	"github.com/goplus/kiln/internal/registry"
	"github.com/goplus/kiln/recipe"
)

// fakeImpl implements recipe.Impl with an optional configure hook.
type fakeImpl struct {
	configure func(c *recipe.ConfigureContext) error
}

func (f *fakeImpl) Configure(c *recipe.ConfigureContext) error {
	if f.configure != nil {
		return f.configure(c)
	}
	return nil
}

func (f *fakeImpl) Run(st recipe.Stage, c *recipe.StageContext) error {
	return nil
}

// mapLookup serves recipes from memory.
type mapLookup struct {
	defs    map[recipe.Ref]*recipe.Definition
	lookups []recipe.Ref
}

func (m *mapLookup) Lookup(ctx context.Context, ref recipe.Ref) (*recipe.Definition, error) {
	m.lookups = append(m.lookups, ref)
	if def, ok := m.defs[ref]; ok {
		return def, nil
	}
	return nil, &registry.MissingRecipeError{Ref: ref}
}

func newLookup(defs ...*recipe.Definition) *mapLookup {
	m := &mapLookup{defs: make(map[recipe.Ref]*recipe.Definition)}
	for _, d := range defs {
		m.defs[d.Ref] = d
	}
	return m
}

// def builds a definition for ref requiring reqs ("name/ver" for runtime,
// "tool:name/ver" for tool requirements).
func def(ref string, reqs ...string) *recipe.Definition {
	d := &recipe.Definition{
		Ref:      recipe.MustParseRef(ref),
		Settings: []string{"os", "build_type"},
		Options: map[string]recipe.OptionDecl{
			"shared": {Kind: recipe.Bool, Default: "false"},
		},
		Impl: &fakeImpl{},
	}
	for _, r := range reqs {
		kind := recipe.Runtime
		if len(r) > 5 && r[:5] == "tool:" {
			kind, r = recipe.Tool, r[5:]
		}
		d.Requires = append(d.Requires, recipe.Requirement{Ref: recipe.MustParseRef(r), Kind: kind})
	}
	return d
}

func withConfigure(d *recipe.Definition, fn func(c *recipe.ConfigureContext) error) *recipe.Definition {
	d.Stages = d.Stages.With(recipe.StageConfigure)
	d.Impl = &fakeImpl{configure: fn}
	return d
}

var testSettings = map[string]string{"os": "Linux", "arch": "x86_64", "build_type": "Release"}
