package recipe

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// OptionKind is the value domain of a declared option.
type OptionKind int

const (
	Bool OptionKind = iota
	Enum
	String
)

func (k OptionKind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Enum:
		return "enum"
	case String:
		return "string"
	}
	return fmt.Sprintf("OptionKind(%d)", int(k))
}

// ParseOptionKind parses "bool", "enum" or "string".
func ParseOptionKind(s string) (OptionKind, error) {
	switch strings.ToLower(s) {
	case "bool", "boolean":
		return Bool, nil
	case "enum":
		return Enum, nil
	case "string", "any":
		return String, nil
	}
	return 0, fmt.Errorf("unknown option type %q", s)
}

// OptionDecl declares one option of a recipe.
type OptionDecl struct {
	Kind    OptionKind
	Values  []string // allowed values, Enum only
	Default string
}

// Normalize canonicalizes a raw option value. Boolean spellings are
// lowercased so "True" and "true" compare equal; anything else is kept.
func Normalize(value string) string {
	v := strings.TrimSpace(value)
	switch strings.ToLower(v) {
	case "true":
		return "true"
	case "false":
		return "false"
	}
	return v
}

// Check validates value against the declared domain and returns its
// canonical form.
func (d OptionDecl) Check(value string) (string, error) {
	v := Normalize(value)
	switch d.Kind {
	case Bool:
		if v != "true" && v != "false" {
			return "", fmt.Errorf("value %q is not a boolean", value)
		}
	case Enum:
		if !slices.Contains(d.Values, v) {
			return "", fmt.Errorf("value %q not in %v", value, d.Values)
		}
	}
	return v, nil
}

// Options maps option keys to canonical values.
type Options map[string]string

// Keys returns the option keys sorted alphabetically.
func (o Options) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of o.
func (o Options) Clone() Options {
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// String returns "k1=v1,k2=v2" with keys sorted.
func (o Options) String() string {
	parts := make([]string, 0, len(o))
	for _, k := range o.Keys() {
		parts = append(parts, k+"="+o[k])
	}
	return strings.Join(parts, ",")
}

// Bool reports whether option key is set to true.
func (o Options) Bool(key string) bool {
	return o[key] == "true"
}

// Override assigns Value to option Key of package Package.
type Override struct {
	Package string
	Key     string
	Value   string
}

func (o Override) String() string {
	return fmt.Sprintf("%s:%s=%s", o.Package, o.Key, o.Value)
}

// ParseOverride parses "pkg:key=value".
func ParseOverride(s string) (Override, error) {
	pkg, kv, ok := strings.Cut(s, ":")
	if !ok || pkg == "" {
		return Override{}, fmt.Errorf("invalid option %q: expected pkg:key=value", s)
	}
	key, value, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return Override{}, fmt.Errorf("invalid option %q: expected pkg:key=value", s)
	}
	return Override{Package: pkg, Key: key, Value: Normalize(value)}, nil
}
