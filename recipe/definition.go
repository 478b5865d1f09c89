package recipe

import (
	"fmt"
	"slices"
	"strings"
)

// Kind tags a requirement edge.
type Kind int

const (
	// Runtime dependencies are linked into and shipped with the consumer.
	Runtime Kind = iota
	// Tool dependencies are only needed to perform the build.
	Tool
)

func (k Kind) String() string {
	if k == Tool {
		return "tool"
	}
	return "runtime"
}

// ParseKind parses "runtime" or "tool".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "runtime":
		return Runtime, nil
	case "tool", "build":
		return Tool, nil
	}
	return 0, fmt.Errorf("unknown requirement kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Requirement is one declared dependency of a recipe.
type Requirement struct {
	Ref  Ref
	Kind Kind
	// Options are explicit overrides applied to the dependency.
	Options Options
}

// Metadata is carried through unchanged; the engine never inspects it.
type Metadata struct {
	License     string
	URL         string
	Description string
}

// SourceSpec declares where the sources of a package come from.
// At most one of Git, Archive or Path is set.
type SourceSpec struct {
	Git     *GitSource
	Archive *ArchiveSource
	// Path is a local directory relative to the recipe folder.
	Path string
}

// IsZero reports whether no source is declared.
func (s SourceSpec) IsZero() bool {
	return s.Git == nil && s.Archive == nil && s.Path == ""
}

// GitSource clones URL and checks out Ref (a tag, branch or commit).
type GitSource struct {
	URL string
	Ref string
}

// ArchiveSource downloads and extracts a tarball.
type ArchiveSource struct {
	URL             string
	Blake3          string // hex digest, optional
	StripComponents int
}

// Export is a sibling recipe that must be registered locally before
// resolution of the recipe declaring it.
type Export struct {
	Path    string // relative to the declaring recipe's folder
	User    string
	Channel string
}

// Impl implements the stages of a recipe. Unimplemented stages are never
// dispatched to it: the executor checks Definition.Stages first.
type Impl interface {
	// Configure declares option overrides.
	Configure(c *ConfigureContext) error
	// Run runs stage st.
	Run(st Stage, c *StageContext) error
}

// Definition is the immutable description of one buildable unit.
type Definition struct {
	Ref      Ref
	Settings []string
	Options  map[string]OptionDecl
	Requires []Requirement
	Stages   StageSet
	Source   SourceSpec
	Exports  []Export
	Metadata Metadata

	// Dir is the folder holding the recipe file, Path the file itself.
	Dir  string
	Path string

	Impl Impl
}

// Defaults returns the declared default value of every option.
func (d *Definition) Defaults() Options {
	opts := make(Options, len(d.Options))
	for k, decl := range d.Options {
		opts[k] = Normalize(decl.Default)
	}
	return opts
}

// Runtime returns the runtime requirements in declaration order.
func (d *Definition) Runtime() []Requirement {
	return d.filter(Runtime)
}

// Tools returns the tool requirements in declaration order.
func (d *Definition) Tools() []Requirement {
	return d.filter(Tool)
}

func (d *Definition) filter(kind Kind) []Requirement {
	var ret []Requirement
	for _, r := range d.Requires {
		if r.Kind == kind {
			ret = append(ret, r)
		}
	}
	return ret
}

// Configure runs the configure stage of d with the given settings and
// current option values. It returns an empty context when the recipe does
// not implement configure.
func (d *Definition) Configure(settings map[string]string, opts Options) (*ConfigureContext, error) {
	c := &ConfigureContext{
		Ref:      d.Ref,
		Settings: settings,
		Options:  opts.Clone(),
	}
	if d.Impl == nil || !d.Stages.Has(StageConfigure) {
		return c, nil
	}
	if err := d.Impl.Configure(c); err != nil {
		return nil, fmt.Errorf("configure %s: %w", d.Ref, err)
	}
	return c, nil
}

// WithRef returns a shallow copy of d addressed by ref. The copy shares the
// stage implementation with d.
func (d *Definition) WithRef(ref Ref) *Definition {
	c := *d
	c.Ref = ref
	c.Settings = slices.Clone(d.Settings)
	c.Requires = slices.Clone(d.Requires)
	return &c
}

// Validate checks the structural consistency of d.
func (d *Definition) Validate() error {
	if d.Ref.Name == "" {
		return fmt.Errorf("recipe %s: missing name", d.Path)
	}
	for key, decl := range d.Options {
		if _, err := decl.Check(decl.Default); err != nil {
			return fmt.Errorf("recipe %s: option %q default: %w", d.Ref, key, err)
		}
	}
	for _, r := range d.Requires {
		if r.Ref.Version == "" {
			return fmt.Errorf("recipe %s: requirement %q has no version", d.Ref, r.Ref.Name)
		}
		if r.Ref == d.Ref {
			return fmt.Errorf("recipe %s: requires itself", d.Ref)
		}
	}
	if d.Source.Git != nil && d.Source.Archive != nil {
		return fmt.Errorf("recipe %s: source declares both git and archive", d.Ref)
	}
	return nil
}

// ConfigureContext is passed to a recipe's configure stage.
type ConfigureContext struct {
	Ref      Ref
	Settings map[string]string
	Options  Options

	overrides []Override
	self      []Override
}

// Setting returns the value of settings axis name.
func (c *ConfigureContext) Setting(name string) string {
	return c.Settings[name]
}

// Option returns the current value of the recipe's own option key.
func (c *ConfigureContext) Option(key string) string {
	return c.Options[key]
}

// SetOption forces one of the recipe's own option values.
func (c *ConfigureContext) SetOption(key, value string) {
	value = Normalize(value)
	c.self = append(c.self, Override{Package: c.Ref.Name, Key: key, Value: value})
	c.Options[key] = value
}

// Override assigns option key of package pkg, which may be any package in
// the graph, not only a direct dependency.
func (c *ConfigureContext) Override(pkg, key, value string) {
	if pkg == c.Ref.Name {
		c.SetOption(key, value)
		return
	}
	c.overrides = append(c.overrides, Override{Package: pkg, Key: key, Value: Normalize(value)})
}

// Overrides returns the overrides declared for other packages.
func (c *ConfigureContext) Overrides() []Override {
	return slices.Clone(c.overrides)
}

// SelfOptions returns the overrides the recipe declared for itself.
func (c *ConfigureContext) SelfOptions() []Override {
	return slices.Clone(c.self)
}
