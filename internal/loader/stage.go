package loader

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/goplus/kiln/recipe"
	"github.com/goplus/kiln/x/autotools"
	"github.com/goplus/kiln/x/cmake"
)

// hclImpl runs the stage blocks of a declarative recipe. Blocks are
// evaluated when the stage runs, with the setting, option, folder, name and
// version variables in scope.
type hclImpl struct {
	ref    recipe.Ref
	bodies [recipe.StagePackageInfo + 1]hcl.Body
}

type configureSpec struct {
	Options   map[string]string `hcl:"options,optional"`
	Overrides []*struct {
		Package string   `hcl:"package,label"`
		Body    hcl.Body `hcl:",remain"`
	} `hcl:"override,block"`
}

type stageSpec struct {
	Env       map[string]string `hcl:"env,optional"`
	Workdir   string            `hcl:"workdir,optional"`
	Run       [][]string        `hcl:"run,optional"`
	CMake     *cmakeSpec        `hcl:"cmake,block"`
	Autotools *autotoolsSpec    `hcl:"autotools,block"`
	Copies    []*copySpec       `hcl:"copy,block"`

	Libs        []string `hcl:"libs,optional"`
	Defines     []string `hcl:"defines,optional"`
	IncludeDirs []string `hcl:"include_dirs,optional"`
	LibDirs     []string `hcl:"lib_dirs,optional"`
	BinDirs     []string `hcl:"bin_dirs,optional"`
}

type cmakeSpec struct {
	Generator string            `hcl:"generator,optional"`
	Defines   map[string]string `hcl:"defines,optional"`
	Args      []string          `hcl:"args,optional"`
}

type autotoolsSpec struct {
	Autoreconf bool              `hcl:"autoreconf,optional"`
	Env        map[string]string `hcl:"env,optional"`
	Args       []string          `hcl:"args,optional"`
}

type copySpec struct {
	Pattern string `hcl:"pattern,label"`
	From    string `hcl:"from,optional"`
	Dst     string `hcl:"dst,optional"`
}

func (p *hclImpl) Configure(c *recipe.ConfigureContext) error {
	body := p.bodies[recipe.StageConfigure]
	if body == nil {
		return nil
	}
	ectx := p.evalContext(c.Settings, c.Options, nil)
	var spec configureSpec
	if diags := gohcl.DecodeBody(body, ectx, &spec); diags.HasErrors() {
		return diags
	}
	for _, k := range slices.Sorted(maps.Keys(spec.Options)) {
		c.SetOption(k, spec.Options[k])
	}
	for _, o := range spec.Overrides {
		attrs, diags := o.Body.JustAttributes()
		if diags.HasErrors() {
			return diags
		}
		for _, k := range slices.Sorted(maps.Keys(attrs)) {
			val, diags := attrs[k].Expr.Value(ectx)
			if diags.HasErrors() {
				return diags
			}
			s, err := ctyString(val)
			if err != nil {
				return fmt.Errorf("override %s:%s: %w", o.Package, k, err)
			}
			c.Override(o.Package, k, s)
		}
	}
	return nil
}

func (p *hclImpl) Run(st recipe.Stage, c *recipe.StageContext) error {
	body := p.bodies[st]
	if body == nil {
		return nil
	}
	folders := map[string]string{
		"recipe":  c.RecipeDir,
		"source":  c.SourceDir,
		"build":   c.BuildDir,
		"package": c.PackageDir,
	}
	var spec stageSpec
	if diags := gohcl.DecodeBody(body, p.evalContext(c.Settings, c.Options, folders), &spec); diags.HasErrors() {
		return diags
	}

	for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
		c.Setenv(k, spec.Env[k])
	}

	if spec.CMake != nil {
		if err := runCMake(st, c, spec.CMake); err != nil {
			return err
		}
	}
	if spec.Autotools != nil {
		if err := runAutotools(st, c, spec.Autotools); err != nil {
			return err
		}
	}

	dir := c.BuildDir
	if spec.Workdir != "" {
		dir = spec.Workdir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(c.BuildDir, dir)
		}
	}
	for _, argv := range spec.Run {
		if len(argv) == 0 {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := c.ExecIn(dir, argv[0], argv[1:]...); err != nil {
			return err
		}
	}

	for _, cp := range spec.Copies {
		if err := copyFiles(c, cp); err != nil {
			return err
		}
	}

	if st == recipe.StagePackageInfo && c.Info != nil {
		c.Info.Libs = append(c.Info.Libs, spec.Libs...)
		c.Info.Defines = append(c.Info.Defines, spec.Defines...)
		c.Info.IncludeDirs = appendNew(c.Info.IncludeDirs, spec.IncludeDirs...)
		c.Info.LibDirs = appendNew(c.Info.LibDirs, spec.LibDirs...)
		c.Info.BinDirs = appendNew(c.Info.BinDirs, spec.BinDirs...)
	}
	return nil
}

func runCMake(st recipe.Stage, c *recipe.StageContext, spec *cmakeSpec) error {
	m := cmake.New(c)
	if spec.Generator != "" {
		m.Generator(spec.Generator)
	}
	for _, k := range slices.Sorted(maps.Keys(spec.Defines)) {
		m.Define(k, spec.Defines[k])
	}
	switch st {
	case recipe.StageBuild:
		if err := m.Configure(spec.Args...); err != nil {
			return err
		}
		return m.Build()
	case recipe.StagePackage:
		return m.Install()
	}
	return nil
}

func runAutotools(st recipe.Stage, c *recipe.StageContext, spec *autotoolsSpec) error {
	a := autotools.New(c)
	for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
		a.Env(k, spec.Env[k])
	}
	switch st {
	case recipe.StageBuild:
		if spec.Autoreconf {
			if err := a.Autoreconf(); err != nil {
				return err
			}
		}
		if err := a.Configure(spec.Args...); err != nil {
			return err
		}
		return a.Build()
	case recipe.StagePackage:
		return a.Install()
	}
	return nil
}

// copyFiles copies the files matching cp.Pattern, relative to the source
// folder unless cp.From says otherwise, into the package folder.
func copyFiles(c *recipe.StageContext, cp *copySpec) error {
	from := c.SourceDir
	if cp.From != "" {
		from = cp.From
	}
	matches, err := filepath.Glob(filepath.Join(from, cp.Pattern))
	if err != nil {
		return err
	}
	dst := filepath.Join(c.PackageDir, cp.Dst)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, m := range matches {
		fi, err := os.Stat(m)
		if err != nil {
			return err
		}
		if fi.IsDir() {
			continue
		}
		if err := copyFile(m, filepath.Join(dst, filepath.Base(m)), fi.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func appendNew(dst []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(dst, it) {
			dst = append(dst, it)
		}
	}
	return dst
}

func (p *hclImpl) evalContext(settings map[string]string, opts recipe.Options, folders map[string]string) *hcl.EvalContext {
	vars := map[string]cty.Value{
		"name":    cty.StringVal(p.ref.Name),
		"version": cty.StringVal(p.ref.Version),
		"setting": stringObject(settings),
	}
	optVals := make(map[string]cty.Value, len(opts))
	for k, v := range opts {
		switch v {
		case "true":
			optVals[k] = cty.True
		case "false":
			optVals[k] = cty.False
		default:
			optVals[k] = cty.StringVal(v)
		}
	}
	vars["option"] = cty.ObjectVal(optVals)
	if folders != nil {
		vars["folder"] = stringObject(folders)
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions()}
}

func stringObject(m map[string]string) cty.Value {
	vals := make(map[string]cty.Value, len(m))
	for k, v := range m {
		vals[k] = cty.StringVal(v)
	}
	return cty.ObjectVal(vals)
}

func functions() map[string]function.Function {
	return map[string]function.Function{
		"concat":  stdlib.ConcatFunc,
		"format":  stdlib.FormatFunc,
		"join":    stdlib.JoinFunc,
		"lower":   stdlib.LowerFunc,
		"replace": stdlib.ReplaceFunc,
		"split":   stdlib.SplitFunc,
		"upper":   stdlib.UpperFunc,
	}
}

// ctyString converts a primitive value to its canonical option string.
func ctyString(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	if !v.IsKnown() {
		return "", fmt.Errorf("value is unknown")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		if v.True() {
			return "true", nil
		}
		return "false", nil
	case cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	}
	return "", fmt.Errorf("unsupported value type %s", v.Type().FriendlyName())
}
