// Package options holds the override table built during resolution and the
// validation of option values against recipe declarations.
package options

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/goplus/kiln/recipe"
)

// SourceUser is the source of overrides given on the command line.
const SourceUser = "user"

// Entry is one value in the override table.
type Entry struct {
	Value  string
	Source string // consumer ref or SourceUser
}

type key struct {
	pkg, opt string
}

// Table maps (package name, option key) to the value assigned by the first
// consumer that set it. The zero value is ready to use.
type Table struct {
	entries map[key]Entry
	order   []key
}

// Add records value for option opt of pkg on behalf of source. Adding the
// same value again is a no-op and keeps the first source; a different value
// is an OptionConflictError.
func (t *Table) Add(pkg, opt, value, source string) error {
	if t.entries == nil {
		t.entries = make(map[key]Entry)
	}
	value = recipe.Normalize(value)
	k := key{pkg, opt}
	if old, ok := t.entries[k]; ok {
		if old.Value == value {
			return nil
		}
		return &OptionConflictError{
			Package: pkg,
			Key:     opt,
			First:   old,
			Second:  Entry{Value: value, Source: source},
		}
	}
	t.entries[k] = Entry{Value: value, Source: source}
	t.order = append(t.order, k)
	return nil
}

// Get returns the entry for option opt of pkg.
func (t *Table) Get(pkg, opt string) (Entry, bool) {
	e, ok := t.entries[key{pkg, opt}]
	return e, ok
}

// Entries returns the entries addressed to pkg keyed by option.
func (t *Table) Entries(pkg string) map[string]Entry {
	ret := make(map[string]Entry)
	for k, e := range t.entries {
		if k.pkg == pkg {
			ret[k.opt] = e
		}
	}
	return ret
}

// Packages returns the package names with at least one entry, in insertion
// order.
func (t *Table) Packages() []string {
	var pkgs []string
	for _, k := range t.order {
		if !slices.Contains(pkgs, k.pkg) {
			pkgs = append(pkgs, k.pkg)
		}
	}
	return pkgs
}

// All returns every entry as an override, in insertion order.
func (t *Table) All() []recipe.Override {
	ret := make([]recipe.Override, 0, len(t.order))
	for _, k := range t.order {
		ret = append(ret, recipe.Override{Package: k.pkg, Key: k.opt, Value: t.entries[k].Value})
	}
	return ret
}

// Clone returns a copy of t.
func (t *Table) Clone() *Table {
	c := &Table{order: slices.Clone(t.order)}
	if t.entries != nil {
		c.entries = maps.Clone(t.entries)
	}
	return c
}

// Equal reports whether t and o hold the same values, ignoring sources and
// insertion order.
func (t *Table) Equal(o *Table) bool {
	if len(t.entries) != len(o.entries) {
		return false
	}
	for k, e := range t.entries {
		if oe, ok := o.entries[k]; !ok || oe.Value != e.Value {
			return false
		}
	}
	return true
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.order)
}

// Normalize canonicalizes a raw option value.
func Normalize(value string) string {
	return recipe.Normalize(value)
}

// Validate checks value against decl and returns its canonical form.
func Validate(decl recipe.OptionDecl, value string) (string, error) {
	return decl.Check(value)
}

// OptionConflictError reports two incompatible values for the same option.
type OptionConflictError struct {
	Package string
	Key     string
	First   Entry
	Second  Entry
}

func (e *OptionConflictError) Error() string {
	return fmt.Sprintf("option conflict on %s:%s: %s sets %q, %s sets %q",
		e.Package, e.Key, e.First.Source, e.First.Value, e.Second.Source, e.Second.Value)
}

// InvalidOptionError reports an assignment to an undeclared option or a
// value outside its domain.
type InvalidOptionError struct {
	Package string
	Key     string
	Value   string
	Source  string
	Err     error
}

func (e *InvalidOptionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "invalid option %s:%s=%s", e.Package, e.Key, e.Value)
	if e.Source != "" {
		fmt.Fprintf(&b, " (from %s)", e.Source)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *InvalidOptionError) Unwrap() error {
	return e.Err
}
