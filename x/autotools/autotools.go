// Package autotools wraps the classic configure/make/make-install workflow.
package autotools

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/goplus/kiln/internal/config"
	"github.com/goplus/kiln/recipe"
)

// triples maps os and arch settings to GNU target triples for --host.
var triples = map[[2]string]string{
	{"Linux", "x86_64"}:   "x86_64-linux-gnu",
	{"Linux", "x86"}:      "i686-linux-gnu",
	{"Linux", "armv8"}:    "aarch64-linux-gnu",
	{"Linux", "armv7"}:    "arm-linux-gnueabihf",
	{"Macos", "x86_64"}:   "x86_64-apple-darwin",
	{"Macos", "armv8"}:    "aarch64-apple-darwin",
	{"Windows", "x86_64"}: "x86_64-w64-mingw32",
	{"Android", "armv8"}:  "aarch64-linux-android",
}

// AutoTools drives Autotools-style builds inside one recipe stage.
type AutoTools struct {
	ctx        *recipe.StageContext
	sourceDir  string
	buildDir   string
	installDir string
	jobs       int
	features   []string
	env        map[string]string
}

// New returns an AutoTools configuring the stage's source folder from its
// build folder and installing into its package folder.
func New(c *recipe.StageContext) *AutoTools {
	return &AutoTools{
		ctx:        c,
		sourceDir:  c.SourceDir,
		buildDir:   c.BuildDir,
		installDir: c.PackageDir,
		jobs:       runtime.NumCPU(),
		env:        make(map[string]string),
	}
}

// Jobs sets the make parallelism. It defaults to the number of CPUs.
func (a *AutoTools) Jobs(n int) {
	if n > 0 {
		a.jobs = n
	}
}

// Enable passes --enable-feature or --disable-feature to configure.
func (a *AutoTools) Enable(feature string, on bool) {
	if on {
		a.features = append(a.features, "--enable-"+feature)
	} else {
		a.features = append(a.features, "--disable-"+feature)
	}
}

// EnableOption passes --enable-feature or --disable-feature following the
// boolean recipe option name. Options the recipe does not declare are
// ignored.
func (a *AutoTools) EnableOption(feature, name string) {
	if v, ok := a.ctx.Options[name]; ok {
		a.Enable(feature, v == "true")
	}
}

// With passes --with-pkg=value to configure, or --without-pkg when value
// is empty.
func (a *AutoTools) With(pkg, value string) {
	if value == "" {
		a.features = append(a.features, "--without-"+pkg)
	} else {
		a.features = append(a.features, "--with-"+pkg+"="+value)
	}
}

// host returns the --host triple when the os or arch setting names another
// platform than the host.
func (a *AutoTools) host() string {
	target := [2]string{a.ctx.Setting("os"), a.ctx.Setting("arch")}
	if target[0] == "" || target[1] == "" {
		return ""
	}
	h := config.HostSettings()
	if target == [2]string{h["os"], h["arch"]} {
		return ""
	}
	return triples[target]
}

// Source overrides the source directory.
func (a *AutoTools) Source(dir string) { a.sourceDir = dir }

// Env sets key=value for every command spawned later by a.
func (a *AutoTools) Env(key, value string) {
	a.env[key] = value
}

// Use adds include/lib/pkgconfig paths of a built dependency to the
// environment of the commands spawned by a.
func (a *AutoTools) Use(info *recipe.PackageInfo) {
	for _, dir := range info.IncludeDirs {
		a.appendFlag("CPPFLAGS", "-I"+info.Abs(dir))
	}
	for _, dir := range info.LibDirs {
		libDir := info.Abs(dir)
		a.appendFlag("LDFLAGS", "-L"+libDir)
		pkgconfigDir := filepath.Join(libDir, "pkgconfig")
		if _, err := os.Stat(pkgconfigDir); err == nil {
			a.prependPath("PKG_CONFIG_PATH", pkgconfigDir)
		}
	}
}

// Autoreconf regenerates the configure script in the source directory.
func (a *AutoTools) Autoreconf(args ...string) error {
	if len(args) == 0 {
		args = []string{"-fi"}
	}
	return a.run(a.sourceDir, "autoreconf", args)
}

// Configure runs <sourceDir>/configure inside buildDir.
// --prefix is prepended automatically when installDir is set, followed by
// --host when cross compiling, --enable-shared/--disable-shared when the
// recipe has a shared option and the features set on a. Extra flags are
// appended last.
func (a *AutoTools) Configure(args ...string) error {
	dir := a.workDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	exe := filepath.Join(a.sourceDir, "configure")
	if dir == "." {
		exe = "./configure"
	}
	var flags []string
	if a.installDir != "" {
		flags = append(flags, "--prefix="+a.installDir)
	}
	if host := a.host(); host != "" {
		flags = append(flags, "--host="+host)
	}
	if v, ok := a.ctx.Options["shared"]; ok {
		if v == "true" {
			flags = append(flags, "--enable-shared", "--disable-static")
		} else {
			flags = append(flags, "--disable-shared", "--enable-static")
		}
	}
	flags = append(flags, a.features...)
	return a.run(dir, exe, append(flags, args...))
}

// Build runs "make" with optional extra arguments.
func (a *AutoTools) Build(args ...string) error {
	return a.run(a.workDir(), "make", append([]string{"-j" + strconv.Itoa(a.jobs)}, args...))
}

// Install runs "make install" with optional extra arguments appended.
func (a *AutoTools) Install(args ...string) error {
	return a.run(a.workDir(), "make", append([]string{"install"}, args...))
}

// OutputDir returns installDir if set, otherwise buildDir.
func (a *AutoTools) OutputDir() string {
	if a.installDir != "" {
		return a.installDir
	}
	return a.buildDir
}

func (a *AutoTools) workDir() string {
	if a.buildDir == "" {
		return "."
	}
	return a.buildDir
}

func (a *AutoTools) run(dir, name string, args []string) error {
	cmd := a.ctx.Command(dir, name, args...)
	if len(a.env) > 0 {
		cmd.Env = mergeEnv(slices.Clone(cmd.Env), a.env)
	}
	return a.ctx.Run(cmd)
}

// getenv looks key up in a's overrides, then in the stage environment.
func (a *AutoTools) getenv(key string) string {
	if v, ok := a.env[key]; ok {
		return v
	}
	return a.ctx.Getenv(key)
}

// prependPath prepends value to a PATH-style variable.
func (a *AutoTools) prependPath(key, value string) {
	if cur := a.getenv(key); cur != "" {
		value += string(os.PathListSeparator) + cur
	}
	a.env[key] = value
}

// appendFlag appends a space-separated flag to a variable.
func (a *AutoTools) appendFlag(key, flag string) {
	if cur := a.getenv(key); cur != "" {
		flag = cur + " " + flag
	}
	a.env[key] = flag
}

// mergeEnv returns base with every key in overrides replaced or appended.
func mergeEnv(base []string, overrides map[string]string) []string {
	idx := make(map[string]int, len(base))
	for i, kv := range base {
		if k, _, ok := strings.Cut(kv, "="); ok {
			idx[k] = i
		}
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := overrides[k]
		if i, ok := idx[k]; ok {
			base[i] = k + "=" + v
		} else {
			base = append(base, k+"="+v)
		}
	}
	return base
}
