package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/kiln/recipe"
)

// Workspace holds the folders of one node build.
type Workspace struct {
	// Root contains SourceDir, BuildDir and the stage scopes.
	Root       string
	RecipeDir  string
	SourceDir  string
	BuildDir   string
	PackageDir string
}

// Environment is the node-local process environment produced by Generate.
// It is layered over a snapshot of the invoking process environment and
// never modifies the environment of the current process.
type Environment struct {
	base []string
	vars map[string]string
}

// NewEnvironment returns an environment layered over base, typically
// os.Environ().
func NewEnvironment(base []string) *Environment {
	return &Environment{
		base: slices.Clone(base),
		vars: make(map[string]string),
	}
}

// Get returns the value of key.
func (e *Environment) Get(key string) string {
	if v, ok := e.vars[key]; ok {
		return v
	}
	prefix := key + "="
	for i := len(e.base) - 1; i >= 0; i-- {
		if strings.HasPrefix(e.base[i], prefix) {
			return e.base[i][len(prefix):]
		}
	}
	return ""
}

// Set sets key to value.
func (e *Environment) Set(key, value string) {
	e.vars[key] = value
}

// PrependPath adds dir in front of the path list key.
func (e *Environment) PrependPath(key, dir string) {
	old := e.Get(key)
	if old == "" {
		e.Set(key, dir)
		return
	}
	for _, p := range filepath.SplitList(old) {
		if p == dir {
			return
		}
	}
	e.Set(key, dir+string(os.PathListSeparator)+old)
}

// AppendFlag appends flag to the space separated list key.
func (e *Environment) AppendFlag(key, flag string) {
	old := e.Get(key)
	if old == "" {
		e.Set(key, flag)
		return
	}
	if slices.Contains(strings.Fields(old), flag) {
		return
	}
	e.Set(key, old+" "+flag)
}

// Use makes the headers and libraries of a runtime dependency visible to
// compilers, linkers, pkg-config and CMake.
func (e *Environment) Use(info *recipe.PackageInfo) {
	e.PrependPath("CMAKE_PREFIX_PATH", info.Root)
	for _, dir := range info.IncludeDirs {
		e.AppendFlag("CPPFLAGS", "-I"+info.Abs(dir))
	}
	for _, dir := range info.LibDirs {
		lib := info.Abs(dir)
		e.AppendFlag("LDFLAGS", "-L"+lib)
		e.PrependPath("LD_LIBRARY_PATH", lib)
		if fi, err := os.Stat(filepath.Join(lib, "pkgconfig")); err == nil && fi.IsDir() {
			e.PrependPath("PKG_CONFIG_PATH", filepath.Join(lib, "pkgconfig"))
		}
	}
	for _, def := range info.Defines {
		e.AppendFlag("CPPFLAGS", "-D"+def)
	}
}

// UseTool puts the executables of a tool dependency on PATH.
func (e *Environment) UseTool(info *recipe.PackageInfo) {
	for _, dir := range info.BinDirs {
		e.PrependPath("PATH", info.Abs(dir))
	}
}

// Merge sets every variable of vars.
func (e *Environment) Merge(vars map[string]string) {
	for k, v := range vars {
		e.Set(k, v)
	}
}

// Vars returns the variables set on top of the base environment.
func (e *Environment) Vars() map[string]string {
	ret := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		ret[k] = v
	}
	return ret
}

// Environ returns the complete environment in os.Environ form.
func (e *Environment) Environ() []string {
	env := make([]string, 0, len(e.base)+len(e.vars))
	for _, kv := range e.base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := e.vars[k]; !ok {
			env = append(env, kv)
		}
	}
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		env = append(env, k+"="+e.vars[k])
	}
	return env
}

// Scope materializes e for one stage of a node: a private temporary folder
// exported as TMPDIR and an env script listing the generated variables.
// The caller must Close the scope when the stage ends.
func (e *Environment) Scope(st recipe.Stage, ws *Workspace) (*Scope, error) {
	root := ws.Root
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(root, ".scope-"+st.String()+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scope for %s: %w", st, err)
	}
	tmp := filepath.Join(dir, "tmp")
	if err := os.Mkdir(tmp, 0o700); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	sc := &Scope{
		Stage:     st,
		Dir:       dir,
		TempDir:   tmp,
		Script:    filepath.Join(dir, "env.sh"),
		Workspace: ws,
	}
	if err := os.WriteFile(sc.Script, []byte(e.script()), 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	sc.env = append(e.Environ(), "TMPDIR="+tmp, "TMP="+tmp, "TEMP="+tmp, "KILN_ENV_SCRIPT="+sc.Script)
	return sc, nil
}

func (e *Environment) script() string {
	var b strings.Builder
	b.WriteString("# generated by kiln\n")
	keys := make([]string, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s\n", k, shellQuote(e.vars[k]))
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Scope is the environment of one running stage.
type Scope struct {
	Stage     recipe.Stage
	Dir       string
	TempDir   string
	Script    string
	Workspace *Workspace

	// Info receives the package metadata in the package-info stage.
	Info *recipe.PackageInfo

	env []string
}

// Env returns the process environment of the stage.
func (s *Scope) Env() []string {
	return slices.Clone(s.env)
}

// Close removes the scope folder.
func (s *Scope) Close() error {
	return os.RemoveAll(s.Dir)
}
