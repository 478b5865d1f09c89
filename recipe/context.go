package recipe

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// PackageInfo is the link/include metadata a package exports to consumers.
type PackageInfo struct {
	Root        string   `json:"root"`
	Libs        []string `json:"libs,omitempty"`
	IncludeDirs []string `json:"include_dirs,omitempty"`
	LibDirs     []string `json:"lib_dirs,omitempty"`
	BinDirs     []string `json:"bin_dirs,omitempty"`
	Defines     []string `json:"defines,omitempty"`
}

// DefaultPackageInfo returns the conventional layout (include, lib, bin)
// of a package rooted at root, keeping only directories that exist.
func DefaultPackageInfo(root string) *PackageInfo {
	info := &PackageInfo{Root: root}
	exists := func(name string) bool {
		fi, err := os.Stat(filepath.Join(root, name))
		return err == nil && fi.IsDir()
	}
	if exists("include") {
		info.IncludeDirs = append(info.IncludeDirs, "include")
	}
	if exists("lib") {
		info.LibDirs = append(info.LibDirs, "lib")
	}
	if exists("bin") {
		info.BinDirs = append(info.BinDirs, "bin")
	}
	return info
}

// Abs resolves a directory of info relative to its root.
func (p *PackageInfo) Abs(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(p.Root, dir)
}

// Runner runs a prepared command.
type Runner func(cmd *exec.Cmd) error

// StageContext is passed to every non-configure stage of a recipe.
type StageContext struct {
	Context  context.Context
	Ref      Ref
	Stage    Stage
	Settings map[string]string
	Options  Options

	RecipeDir  string
	SourceDir  string
	BuildDir   string
	PackageDir string

	// Env is the complete environment of processes started by the stage.
	Env []string

	Stdout io.Writer
	Stderr io.Writer

	// Info collects the exported metadata during the package-info stage.
	Info *PackageInfo

	Runner Runner

	vars map[string]string
}

// Setting returns the value of settings axis name.
func (c *StageContext) Setting(name string) string {
	return c.Settings[name]
}

// Option returns the resolved value of option key.
func (c *StageContext) Option(key string) string {
	return c.Options[key]
}

// Getenv looks key up in the stage environment.
func (c *StageContext) Getenv(key string) string {
	prefix := key + "="
	for i := len(c.Env) - 1; i >= 0; i-- {
		if strings.HasPrefix(c.Env[i], prefix) {
			return c.Env[i][len(prefix):]
		}
	}
	return ""
}

// Setenv sets key in the stage environment. Variables set by the generate
// stage are kept for the remaining stages of the package.
func (c *StageContext) Setenv(key, value string) {
	c.Env = append(slices.Clip(c.Env), key+"="+value)
	if c.vars == nil {
		c.vars = make(map[string]string)
	}
	c.vars[key] = value
}

// Vars returns the variables set with Setenv.
func (c *StageContext) Vars() map[string]string {
	return c.vars
}

// Command prepares name with the stage environment, running in dir.
func (c *StageContext) Command(dir, name string, args ...string) *exec.Cmd {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = c.Env
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd
}

// Exec runs name in the build folder.
func (c *StageContext) Exec(name string, args ...string) error {
	return c.ExecIn(c.BuildDir, name, args...)
}

// ExecIn runs name in dir.
func (c *StageContext) ExecIn(dir, name string, args ...string) error {
	return c.Run(c.Command(dir, name, args...))
}

// Run runs a command prepared by Command.
func (c *StageContext) Run(cmd *exec.Cmd) error {
	if c.Runner != nil {
		return c.Runner(cmd)
	}
	return cmd.Run()
}
