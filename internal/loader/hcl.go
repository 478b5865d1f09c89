package loader

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/goplus/kiln/recipe"
)

// fileRoot decodes the top level of a recipe file.
type fileRoot struct {
	Recipe *recipeBlock `hcl:"recipe,block"`
	Remain hcl.Body     `hcl:",remain"`
}

type recipeBlock struct {
	Name        string   `hcl:"name,label"`
	Version     string   `hcl:"version,optional"`
	User        string   `hcl:"user,optional"`
	Channel     string   `hcl:"channel,optional"`
	Settings    []string `hcl:"settings,optional"`
	License     string   `hcl:"license,optional"`
	URL         string   `hcl:"url,optional"`
	Description string   `hcl:"description,optional"`

	Options      []*optionBlock  `hcl:"option,block"`
	Requires     []*requireBlock `hcl:"requires,block"`
	ToolRequires []*requireBlock `hcl:"tool_requires,block"`
	Exports      []*exportBlock  `hcl:"export,block"`

	// Blocks below reference variables and are decoded later.
	Source      *bodyBlock `hcl:"source,block"`
	Configure   *bodyBlock `hcl:"configure,block"`
	Generate    *bodyBlock `hcl:"generate,block"`
	Build       *bodyBlock `hcl:"build,block"`
	Package     *bodyBlock `hcl:"package,block"`
	PackageInfo *bodyBlock `hcl:"package_info,block"`
}

type optionBlock struct {
	Name    string   `hcl:"name,label"`
	Type    string   `hcl:"type,optional"`
	Values  []string `hcl:"values,optional"`
	Default string   `hcl:"default,optional"`
}

type requireBlock struct {
	Ref     string            `hcl:"ref,label"`
	Options map[string]string `hcl:"options,optional"`
}

type exportBlock struct {
	Path    string `hcl:"path,label"`
	User    string `hcl:"user,optional"`
	Channel string `hcl:"channel,optional"`
}

type bodyBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type sourceBlock struct {
	Git *struct {
		URL string `hcl:"url"`
		Ref string `hcl:"ref,optional"`
	} `hcl:"git,block"`
	Archive *struct {
		URL             string `hcl:"url"`
		Blake3          string `hcl:"blake3,optional"`
		StripComponents int    `hcl:"strip_components,optional"`
	} `hcl:"archive,block"`
	Path string `hcl:"path,optional"`
}

func parseHCL(path string) (*recipeBlock, error) {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse recipe %s: %w", path, diags)
	}
	var root fileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode recipe %s: %w", path, diags)
	}
	if root.Recipe == nil {
		return nil, fmt.Errorf("failed to decode recipe %s: no recipe block", path)
	}
	return root.Recipe, nil
}

func peekHCL(path string) (recipe.Ref, error) {
	rb, err := parseHCL(path)
	if err != nil {
		return recipe.Ref{}, err
	}
	return recipe.Ref{Name: rb.Name, Version: rb.Version, User: rb.User, Channel: rb.Channel}, nil
}

// loadHCL loads a declarative recipe.
func loadHCL(path string) (*recipe.Definition, error) {
	rb, err := parseHCL(path)
	if err != nil {
		return nil, err
	}
	d := &recipe.Definition{
		Ref:      recipe.Ref{Name: rb.Name, Version: rb.Version, User: rb.User, Channel: rb.Channel},
		Settings: rb.Settings,
		Metadata: recipe.Metadata{License: rb.License, URL: rb.URL, Description: rb.Description},
		Dir:      filepath.Dir(path),
		Path:     path,
	}

	for _, ob := range rb.Options {
		kind := recipe.Bool
		if ob.Type != "" {
			if kind, err = recipe.ParseOptionKind(ob.Type); err != nil {
				return nil, fmt.Errorf("recipe %s: option %q: %w", path, ob.Name, err)
			}
		} else if len(ob.Values) > 0 {
			kind = recipe.Enum
		}
		if d.Options == nil {
			d.Options = make(map[string]recipe.OptionDecl)
		}
		d.Options[ob.Name] = recipe.OptionDecl{Kind: kind, Values: ob.Values, Default: ob.Default}
	}

	addRequires := func(blocks []*requireBlock, kind recipe.Kind) error {
		for _, rq := range blocks {
			ref, err := recipe.ParseRef(rq.Ref)
			if err != nil {
				return fmt.Errorf("recipe %s: %w", path, err)
			}
			req := recipe.Requirement{Ref: ref, Kind: kind}
			for _, k := range slices.Sorted(maps.Keys(rq.Options)) {
				if req.Options == nil {
					req.Options = make(recipe.Options)
				}
				req.Options[k] = recipe.Normalize(rq.Options[k])
			}
			d.Requires = append(d.Requires, req)
		}
		return nil
	}
	if err := addRequires(rb.Requires, recipe.Runtime); err != nil {
		return nil, err
	}
	if err := addRequires(rb.ToolRequires, recipe.Tool); err != nil {
		return nil, err
	}

	for _, eb := range rb.Exports {
		d.Exports = append(d.Exports, recipe.Export{Path: eb.Path, User: eb.User, Channel: eb.Channel})
	}

	if rb.Source != nil {
		var sb sourceBlock
		ectx := &hcl.EvalContext{
			Variables: map[string]cty.Value{
				"name":    cty.StringVal(d.Ref.Name),
				"version": cty.StringVal(d.Ref.Version),
			},
			Functions: functions(),
		}
		if diags := gohcl.DecodeBody(rb.Source.Body, ectx, &sb); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode source of recipe %s: %w", path, diags)
		}
		if sb.Git != nil {
			d.Source.Git = &recipe.GitSource{URL: sb.Git.URL, Ref: sb.Git.Ref}
		}
		if sb.Archive != nil {
			d.Source.Archive = &recipe.ArchiveSource{
				URL:             sb.Archive.URL,
				Blake3:          sb.Archive.Blake3,
				StripComponents: sb.Archive.StripComponents,
			}
		}
		d.Source.Path = sb.Path
	}

	impl := &hclImpl{ref: d.Ref}
	if len(d.Runtime()) > 0 {
		d.Stages = d.Stages.With(recipe.StageRequirements)
	}
	if len(d.Tools()) > 0 {
		d.Stages = d.Stages.With(recipe.StageBuildRequirements)
	}
	if !d.Source.IsZero() {
		d.Stages = d.Stages.With(recipe.StageSource)
	}
	for st, b := range map[recipe.Stage]*bodyBlock{
		recipe.StageConfigure:   rb.Configure,
		recipe.StageGenerate:    rb.Generate,
		recipe.StageBuild:       rb.Build,
		recipe.StagePackage:     rb.Package,
		recipe.StagePackageInfo: rb.PackageInfo,
	} {
		if b != nil {
			impl.bodies[st] = b.Body
			d.Stages = d.Stages.With(st)
		}
	}
	d.Impl = impl

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}
