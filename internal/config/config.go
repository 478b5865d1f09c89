// Package config loads kiln's optional HCL configuration file.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Config is the effective configuration of one invocation.
type Config struct {
	Jobs     int
	Settings map[string]string
	Index    Index
	Store    *Store
}

// Index configures the persistent recipe index.
type Index struct {
	Dir    string `hcl:"dir,optional"`
	Remote string `hcl:"remote,optional"`
	Ref    string `hcl:"ref,optional"`
}

// Store configures the remote package store used by --publish.
type Store struct {
	Bucket    string `hcl:"bucket"`
	Endpoint  string `hcl:"endpoint,optional"`
	Region    string `hcl:"region,optional"`
	Prefix    string `hcl:"prefix,optional"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
}

type fileRoot struct {
	Jobs     *int              `hcl:"jobs,optional"`
	Settings map[string]string `hcl:"settings,optional"`
	Index    *Index            `hcl:"index,block"`
	Store    *Store            `hcl:"store,block"`
	Remain   hcl.Body          `hcl:",remain"`
}

// Default returns the configuration used when no file is present. Settings
// describe the host.
func Default() *Config {
	return &Config{
		Jobs:     runtime.NumCPU(),
		Settings: HostSettings(),
	}
}

// HostSettings returns the settings axes of the running host.
func HostSettings() map[string]string {
	s := map[string]string{"build_type": "Release"}
	switch runtime.GOOS {
	case "linux":
		s["os"], s["compiler"] = "Linux", "gcc"
	case "darwin":
		s["os"], s["compiler"] = "Macos", "apple-clang"
	case "windows":
		s["os"], s["compiler"] = "Windows", "msvc"
	default:
		s["os"], s["compiler"] = runtime.GOOS, "gcc"
	}
	switch runtime.GOARCH {
	case "amd64":
		s["arch"] = "x86_64"
	case "arm64":
		s["arch"] = "armv8"
	case "386":
		s["arch"] = "x86"
	default:
		s["arch"] = runtime.GOARCH
	}
	return s
}

// Load reads the configuration file at path on top of Default. A missing
// file is not an error unless required is set.
func Load(path string, required bool) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, diags)
	}
	if err := cfg.decode(file.Body); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration source src, named filename in diagnostics.
func Parse(src []byte, filename string) (*Config, error) {
	cfg := Default()
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	if err := cfg.decode(file.Body); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(body hcl.Body) error {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return diags
	}
	if root.Jobs != nil {
		if *root.Jobs < 1 {
			return fmt.Errorf("jobs must be positive, got %d", *root.Jobs)
		}
		c.Jobs = *root.Jobs
	}
	maps.Copy(c.Settings, root.Settings)
	if root.Index != nil {
		c.Index = *root.Index
	}
	c.Store = root.Store
	return nil
}
