// Package cmake wraps the cmake configure/build/install workflow.
package cmake

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/goplus/kiln/internal/config"
	"github.com/goplus/kiln/recipe"
)

// systemNames maps the os setting to CMAKE_SYSTEM_NAME.
var systemNames = map[string]string{
	"Linux":   "Linux",
	"Macos":   "Darwin",
	"Windows": "Windows",
	"FreeBSD": "FreeBSD",
	"Android": "Android",
	"iOS":     "iOS",
}

// processors maps the arch setting to CMAKE_SYSTEM_PROCESSOR.
var processors = map[string]string{
	"x86_64": "x86_64",
	"x86":    "i686",
	"armv8":  "aarch64",
	"armv7":  "armv7-a",
}

type cacheEntry struct {
	key   string
	typ   string
	value string
}

// CMake drives CMake-based builds inside one recipe stage. Cache entries
// are passed in the order they were first defined.
type CMake struct {
	ctx        *recipe.StageContext
	sourceDir  string
	buildDir   string
	installDir string
	generator  string
	buildType  string
	jobs       int
	prefixPath []string
	entries    []cacheEntry
}

// New returns a CMake building the stage's source folder into its build
// folder and installing into its package folder. The build type follows the
// build_type setting; shared and fPIC options map to BUILD_SHARED_LIBS and
// CMAKE_POSITION_INDEPENDENT_CODE. When the os or arch setting names
// another platform than the host, the target system is defined for cross
// compilation.
func New(c *recipe.StageContext) *CMake {
	m := &CMake{
		ctx:        c,
		sourceDir:  c.SourceDir,
		buildDir:   c.BuildDir,
		installDir: c.PackageDir,
		buildType:  c.Setting("build_type"),
		jobs:       runtime.NumCPU(),
	}
	if v, ok := c.Options["shared"]; ok {
		m.DefineBool("BUILD_SHARED_LIBS", v == "true")
	}
	if v, ok := c.Options["fPIC"]; ok {
		m.DefineBool("CMAKE_POSITION_INDEPENDENT_CODE", v == "true")
	}
	host := config.HostSettings()
	if target := c.Setting("os"); target != "" && target != host["os"] {
		if name, ok := systemNames[target]; ok {
			m.Define("CMAKE_SYSTEM_NAME", name)
		}
	}
	if arch := c.Setting("arch"); arch != "" && arch != host["arch"] {
		if proc, ok := processors[arch]; ok {
			m.Define("CMAKE_SYSTEM_PROCESSOR", proc)
		}
	}
	return m
}

// Source overrides the source directory.
func (c *CMake) Source(dir string) { c.sourceDir = dir }

// Generator sets the CMake generator (e.g. "Ninja", "Unix Makefiles").
func (c *CMake) Generator(name string) { c.generator = name }

// BuildType overrides CMAKE_BUILD_TYPE.
func (c *CMake) BuildType(name string) { c.buildType = name }

// Jobs sets the build parallelism. It defaults to the number of CPUs.
func (c *CMake) Jobs(n int) {
	if n > 0 {
		c.jobs = n
	}
}

// Toolchain sets CMAKE_TOOLCHAIN_FILE.
func (c *CMake) Toolchain(path string) { c.Define("CMAKE_TOOLCHAIN_FILE", path) }

// Define sets the cache entry key of type STRING.
func (c *CMake) Define(key, value string) {
	c.set(key, "STRING", value)
}

// DefineBool sets the cache entry key of type BOOL.
func (c *CMake) DefineBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	c.set(key, "BOOL", v)
}

// DefineOption sets the BOOL cache entry key from the boolean recipe
// option name. Options the recipe does not declare are ignored.
func (c *CMake) DefineOption(key, name string) {
	if v, ok := c.ctx.Options[name]; ok {
		c.DefineBool(key, v == "true")
	}
}

func (c *CMake) set(key, typ, value string) {
	for i := range c.entries {
		if c.entries[i].key == key {
			c.entries[i].typ, c.entries[i].value = typ, value
			return
		}
	}
	c.entries = append(c.entries, cacheEntry{key, typ, value})
}

// Use makes a dependency package visible to find_package and find_library.
func (c *CMake) Use(info *recipe.PackageInfo) {
	c.prefixPath = append(c.prefixPath, info.Root)
}

// Configure generates the build tree. Extra args are appended last.
func (c *CMake) Configure(args ...string) error {
	if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
		return err
	}
	cmd := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.generator != "" {
		cmd = append(cmd, "-G", c.generator)
	}
	if c.buildType != "" {
		c.Define("CMAKE_BUILD_TYPE", c.buildType)
	}
	if c.installDir != "" {
		c.Define("CMAKE_INSTALL_PREFIX", c.installDir)
	}
	if len(c.prefixPath) > 0 {
		c.Define("CMAKE_PREFIX_PATH", strings.Join(c.prefixPath, ";"))
	}
	cmd = append(cmd, c.cacheArgs()...)
	return c.cmake(append(cmd, args...))
}

// Build builds the given targets, or the default one when none is given.
func (c *CMake) Build(targets ...string) error {
	cmd := []string{"--build", c.buildDir, "--parallel", strconv.Itoa(c.jobs)}
	if c.buildType != "" {
		cmd = append(cmd, "--config", c.buildType)
	}
	if len(targets) > 0 {
		cmd = append(cmd, "--target")
		cmd = append(cmd, targets...)
	}
	return c.cmake(cmd)
}

// Install installs the build tree into the package folder.
func (c *CMake) Install(args ...string) error {
	cmd := []string{"--install", c.buildDir}
	if c.installDir != "" {
		cmd = append(cmd, "--prefix", c.installDir)
	}
	if c.buildType != "" {
		cmd = append(cmd, "--config", c.buildType)
	}
	return c.cmake(append(cmd, args...))
}

// OutputDir returns the package folder, or the build folder when the
// stage has none.
func (c *CMake) OutputDir() string {
	if c.installDir != "" {
		return c.installDir
	}
	return c.buildDir
}

func (c *CMake) cmake(args []string) error {
	return c.ctx.ExecIn(c.buildDir, "cmake", args...)
}

func (c *CMake) cacheArgs() []string {
	if len(c.entries) == 0 {
		return nil
	}
	args := make([]string, len(c.entries))
	for i, e := range c.entries {
		args[i] = "-D" + e.key + ":" + e.typ + "=" + e.value
	}
	return args
}
