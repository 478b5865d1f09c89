package internal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/kiln/internal/config"
	"github.com/goplus/kiln/internal/lock"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", errors.New("cyclic requirement"), exitResolve},
		{"failures", &ExitError{Code: exitFailures}, exitFailures},
		{"wrapped", fmt.Errorf("build: %w", &ExitError{Code: exitFailures}), exitFailures},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

const toolRecipe = `recipe "toolx" {
  version  = "1.0"
  settings = ["os", "arch"]

  option "shared" {
    default = false
  }
}
`

const consumerRecipe = `recipe "consumer" {
  version = "2.0"

  tool_requires "toolx/1.0@user/stable" {}
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveCommand(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "toolx", "recipe.hcl")
	consumer := filepath.Join(dir, "consumer", "recipe.hcl")
	cfgFile := filepath.Join(dir, "config.hcl")
	lockFile := filepath.Join(dir, "kiln.lock")
	writeFile(t, tool, toolRecipe)
	writeFile(t, consumer, consumerRecipe)
	writeFile(t, cfgFile, fmt.Sprintf("index {\n  dir = %q\n}\n", filepath.Join(dir, "index")))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"resolve", "--config", cfgFile, "--json",
		"--export-local", tool + "@user/stable",
		"--option", "toolx:shared=True",
		"-s", "os=Linux", "-s", "arch=armv8",
		"--lockfile-out", lockFile,
		consumer,
	})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("resolve error = %v", err)
	}

	var f lock.File
	if err := json.Unmarshal(out.Bytes(), &f); err != nil {
		t.Fatalf("output is not a lock file: %v\n%s", err, out.String())
	}
	if len(f.Nodes) != 2 {
		t.Fatalf("nodes = %+v", f.Nodes)
	}
	toolNode := f.Nodes[0]
	if toolNode.Ref.String() != "toolx/1.0@user/stable" {
		t.Errorf("first node = %s", toolNode.Ref)
	}
	if toolNode.Options["shared"] != "true" {
		t.Errorf("shared = %q, want true", toolNode.Options["shared"])
	}
	if toolNode.Settings["arch"] != "armv8" {
		t.Errorf("settings = %v", toolNode.Settings)
	}
	written, err := lock.Read(lockFile)
	if err != nil {
		t.Fatal(err)
	}
	if written.Nodes[1].PackageID != f.Nodes[1].PackageID {
		t.Errorf("lock file differs from output")
	}
}

func TestPrintPlanText(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "toolx", "recipe.hcl")
	writeFile(t, tool, toolRecipe)

	f := planFlags{settings: []string{"os=Linux", "arch=x86_64"}}
	req, err := f.request([]string{tool})
	if err != nil {
		t.Fatal(err)
	}
	saved := cfg
	cfg = &config.Config{Index: config.Index{Dir: filepath.Join(dir, "index")}}
	defer func() { cfg = saved }()
	eng, err := newEngine()
	if err != nil {
		t.Fatal(err)
	}
	p, err := eng.Plan(t.Context(), req)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	printPlan(&out, p)
	for _, want := range []string{"Resolved 1 packages", "toolx/1.0", "arch=x86_64,os=Linux", "shared=false"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}
