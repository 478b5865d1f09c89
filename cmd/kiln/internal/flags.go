package internal

import (
	"fmt"
	"maps"
	"strings"

	"github.com/goplus/kiln/internal/engine"
	"github.com/goplus/kiln/internal/env"
	"github.com/goplus/kiln/internal/index"
	"github.com/goplus/kiln/internal/loader"
	"github.com/goplus/kiln/internal/vcs"
	"github.com/goplus/kiln/recipe"
	"github.com/spf13/cobra"
)

// planFlags are the flags shared by the commands that resolve a graph.
type planFlags struct {
	options     []string
	exports     []string
	settings    []string
	lockfileOut string
}

func (f *planFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringArrayVar(&f.options, "option", nil, "Override an option, as pkg:key=value")
	fs.StringArrayVar(&f.exports, "export-local", nil, "Register a recipe for this run, as path[@user/channel]")
	fs.StringArrayVarP(&f.settings, "setting", "s", nil, "Set a settings axis, as axis=value")
	fs.StringVar(&f.lockfileOut, "lockfile-out", "", "Write the resolved graph to a lock file")
}

// request builds the engine request for the root recipes in args.
func (f *planFlags) request(args []string) (*engine.Request, error) {
	req := &engine.Request{Roots: args}
	for _, s := range f.options {
		o, err := recipe.ParseOverride(s)
		if err != nil {
			return nil, err
		}
		req.Options = append(req.Options, o)
	}
	for _, s := range f.exports {
		ex, err := engine.ParseLocalExport(s)
		if err != nil {
			return nil, err
		}
		req.Exports = append(req.Exports, ex)
	}
	var base map[string]string
	if cfg != nil {
		base = cfg.Settings
	}
	settings, err := parseSettings(base, f.settings)
	if err != nil {
		return nil, err
	}
	req.Settings = settings
	return req, nil
}

// parseSettings overlays "axis=value" pairs on a copy of base.
func parseSettings(base map[string]string, pairs []string) (map[string]string, error) {
	settings := maps.Clone(base)
	if settings == nil {
		settings = make(map[string]string, len(pairs))
	}
	for _, p := range pairs {
		axis, value, ok := strings.Cut(p, "=")
		if !ok || axis == "" || value == "" {
			return nil, fmt.Errorf("invalid setting %q: expected axis=value", p)
		}
		settings[axis] = value
	}
	return settings, nil
}

// openIndex opens the persistent recipe index.
func openIndex() (*index.Index, error) {
	dir := ""
	if cfg != nil {
		dir = cfg.Index.Dir
	}
	if dir == "" {
		var err error
		if dir, err = env.IndexDir(); err != nil {
			return nil, fmt.Errorf("failed to locate index: %w", err)
		}
	}
	return index.New(dir, loader.New(), vcs.NewGitVCS()), nil
}

func newEngine() (*engine.Engine, error) {
	idx, err := openIndex()
	if err != nil {
		return nil, err
	}
	return engine.New(loader.New(), idx), nil
}
