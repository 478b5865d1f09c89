package recipe

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/gsh"
)

const GopPackage = true

// -----------------------------------------------------------------------------

// RecipeApp is the classfile of a scripted recipe (*_recipe.gox).
type RecipeApp struct {
	gsh.App

	ref      Ref
	settings []string
	options  map[string]OptionDecl
	requires []Requirement
	source   SourceSpec
	exports  []Export
	meta     Metadata
	errs     []error

	fOnConfigure   func(c *ConfigureContext)
	fOnGenerate    func(c *StageContext) error
	fOnBuild       func(c *StageContext) error
	fOnPackage     func(c *StageContext) error
	fOnPackageInfo func(c *StageContext, info *PackageInfo)
}

func (p *RecipeApp) app() *gsh.App {
	return &p.App
}

// Name sets the package name.
func (p *RecipeApp) Name(name string) {
	p.ref.Name = name
}

// Version sets the package version.
func (p *RecipeApp) Version(ver string) {
	p.ref.Version = ver
}

// UserChannel sets the user and channel of the recipe reference.
func (p *RecipeApp) UserChannel(user, channel string) {
	p.ref.User, p.ref.Channel = user, channel
}

// Settings declares the settings axes the package depends on.
func (p *RecipeApp) Settings(axes ...string) {
	p.settings = append(p.settings, axes...)
}

// Option declares an option. kind is "bool", "enum" or "string"; values
// lists the allowed values of an enum.
func (p *RecipeApp) Option(key, kind, def string, values ...string) {
	k, err := ParseOptionKind(kind)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("option %q: %w", key, err))
		return
	}
	if p.options == nil {
		p.options = make(map[string]OptionDecl)
	}
	p.options[key] = OptionDecl{Kind: k, Values: values, Default: def}
}

// Requires declares a runtime dependency. opts are "key=value" overrides
// applied to the dependency.
func (p *RecipeApp) Requires(ref string, opts ...string) {
	p.require(ref, Runtime, opts)
}

// ToolRequires declares a dependency needed only to perform the build.
func (p *RecipeApp) ToolRequires(ref string, opts ...string) {
	p.require(ref, Tool, opts)
}

func (p *RecipeApp) require(ref string, kind Kind, opts []string) {
	r, err := ParseRef(ref)
	if err != nil {
		p.errs = append(p.errs, err)
		return
	}
	req := Requirement{Ref: r, Kind: kind}
	for _, opt := range opts {
		key, value, ok := strings.Cut(opt, "=")
		if !ok {
			p.errs = append(p.errs, fmt.Errorf("requires %s: invalid option %q", ref, opt))
			continue
		}
		if req.Options == nil {
			req.Options = make(Options)
		}
		req.Options[key] = Normalize(value)
	}
	p.requires = append(p.requires, req)
}

// License sets the license metadata.
func (p *RecipeApp) License(license string) { p.meta.License = license }

// Url sets the homepage metadata.
func (p *RecipeApp) Url(url string) { p.meta.URL = url }

// Description sets the description metadata.
func (p *RecipeApp) Description(desc string) { p.meta.Description = desc }

// GitSource declares a git source checked out at ref.
func (p *RecipeApp) GitSource(url, ref string) {
	p.source = SourceSpec{Git: &GitSource{URL: url, Ref: ref}}
}

// ArchiveSource declares a tarball source. digest is an optional blake3 hex digest.
func (p *RecipeApp) ArchiveSource(url, digest string, strip int) {
	p.source = SourceSpec{Archive: &ArchiveSource{URL: url, Blake3: digest, StripComponents: strip}}
}

// SourcePath declares a local source folder relative to the recipe.
func (p *RecipeApp) SourcePath(path string) {
	p.source = SourceSpec{Path: path}
}

// Export registers a sibling recipe before this recipe is resolved.
func (p *RecipeApp) Export(path, user, channel string) {
	p.exports = append(p.exports, Export{Path: path, User: user, Channel: channel})
}

// OnConfigure is called to declare option overrides.
func (p *RecipeApp) OnConfigure(f func(c *ConfigureContext)) {
	p.fOnConfigure = f
}

// OnGenerate is called to prepare the build environment.
func (p *RecipeApp) OnGenerate(f func(c *StageContext) error) {
	p.fOnGenerate = f
}

// OnBuild is called to compile the package.
func (p *RecipeApp) OnBuild(f func(c *StageContext) error) {
	p.fOnBuild = f
}

// OnPackage is called to install build outputs into c.PackageDir.
func (p *RecipeApp) OnPackage(f func(c *StageContext) error) {
	p.fOnPackage = f
}

// OnPackageInfo is called to describe what the package exports.
func (p *RecipeApp) OnPackageInfo(f func(c *StageContext, info *PackageInfo)) {
	p.fOnPackageInfo = f
}

// -----------------------------------------------------------------------------

// Definition converts the declarations collected by the classfile into a
// recipe definition loaded from path. name is used when the recipe does not
// declare one.
func (p *RecipeApp) Definition(path, name string) (*Definition, error) {
	if len(p.errs) > 0 {
		return nil, fmt.Errorf("recipe %s: %w", path, errors.Join(p.errs...))
	}
	ref := p.ref
	if ref.Name == "" {
		ref.Name = name
	}
	d := &Definition{
		Ref:      ref,
		Settings: p.settings,
		Options:  p.options,
		Requires: p.requires,
		Source:   p.source,
		Exports:  p.exports,
		Metadata: p.meta,
		Dir:      filepath.Dir(path),
		Path:     path,
		Impl:     appImpl{p},
	}
	if p.fOnConfigure != nil {
		d.Stages = d.Stages.With(StageConfigure)
	}
	if len(d.Runtime()) > 0 {
		d.Stages = d.Stages.With(StageRequirements)
	}
	if len(d.Tools()) > 0 {
		d.Stages = d.Stages.With(StageBuildRequirements)
	}
	if !p.source.IsZero() {
		d.Stages = d.Stages.With(StageSource)
	}
	if p.fOnGenerate != nil {
		d.Stages = d.Stages.With(StageGenerate)
	}
	if p.fOnBuild != nil {
		d.Stages = d.Stages.With(StageBuild)
	}
	if p.fOnPackage != nil {
		d.Stages = d.Stages.With(StagePackage)
	}
	if p.fOnPackageInfo != nil {
		d.Stages = d.Stages.With(StagePackageInfo)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

type appImpl struct {
	app *RecipeApp
}

func (a appImpl) Configure(c *ConfigureContext) error {
	if a.app.fOnConfigure != nil {
		a.app.fOnConfigure(c)
	}
	return nil
}

func (a appImpl) Run(st Stage, c *StageContext) error {
	a.app.setOutput(c.Stdout, c.Stderr)
	switch st {
	case StageGenerate:
		if a.app.fOnGenerate != nil {
			return a.app.fOnGenerate(c)
		}
	case StageBuild:
		if a.app.fOnBuild != nil {
			return a.app.fOnBuild(c)
		}
	case StagePackage:
		if a.app.fOnPackage != nil {
			return a.app.fOnPackage(c)
		}
	case StagePackageInfo:
		if a.app.fOnPackageInfo != nil && c.Info != nil {
			a.app.fOnPackageInfo(c, c.Info)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Gopt_RecipeApp_Main is main entry of this classfile.
func Gopt_RecipeApp_Main(this interface {
	app() *gsh.App
	MainEntry()
}) {
	this.MainEntry()
	gsh.InitApp(this.app())
}
