package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Jobs != runtime.NumCPU() {
		t.Errorf("Jobs = %d", cfg.Jobs)
	}
	for _, axis := range []string{"os", "arch", "compiler", "build_type"} {
		if cfg.Settings[axis] == "" {
			t.Errorf("setting %q is empty", axis)
		}
	}
	if cfg.Store != nil {
		t.Error("no store is configured by default")
	}
}

func TestParse(t *testing.T) {
	src := `
jobs = 3

settings = {
  build_type = "Debug"
  compiler   = "clang"
}

index {
  remote = "https://github.com/example/recipes.git"
  ref    = "main"
}

store {
  bucket   = "packages"
  endpoint = "https://r2.example.com"
  region   = "auto"
}
`
	cfg, err := Parse([]byte(src), "config.hcl")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Jobs != 3 {
		t.Errorf("Jobs = %d, want 3", cfg.Jobs)
	}
	if cfg.Settings["build_type"] != "Debug" || cfg.Settings["compiler"] != "clang" {
		t.Errorf("Settings = %v", cfg.Settings)
	}
	if cfg.Settings["os"] == "" {
		t.Error("host os setting should be kept")
	}
	if cfg.Index.Ref != "main" || cfg.Index.Remote == "" {
		t.Errorf("Index = %+v", cfg.Index)
	}
	if cfg.Store == nil || cfg.Store.Bucket != "packages" || cfg.Store.Region != "auto" {
		t.Errorf("Store = %+v", cfg.Store)
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"zero jobs":        `jobs = 0`,
		"store bucket":     `store { region = "auto" }`,
		"syntax":           `jobs = `,
		"unknown in index": `index { branch = "x" }`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src), "config.hcl"); err == nil {
				t.Errorf("Parse(%q) should fail", src)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.hcl")

	cfg, err := Load(missing, false)
	if err != nil {
		t.Fatalf("Load(missing, false) error = %v", err)
	}
	if cfg.Jobs != runtime.NumCPU() {
		t.Errorf("Jobs = %d", cfg.Jobs)
	}
	if _, err := Load(missing, true); err == nil {
		t.Error("Load(missing, true) should fail")
	}

	path := filepath.Join(dir, "config.hcl")
	if err := os.WriteFile(path, []byte("jobs = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Jobs != 2 {
		t.Errorf("Jobs = %d, want 2", cfg.Jobs)
	}
}
