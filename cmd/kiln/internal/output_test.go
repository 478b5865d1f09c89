package internal

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goplus/kiln/internal/build"
	"github.com/goplus/kiln/internal/engine"
	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/recipe"
)

func packageTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "include", "z.h"), "#define Z 1\n")
	writeFile(t, filepath.Join(dir, "lib", "libz.so.1"), "elf")
	if err := os.Symlink("libz.so.1", filepath.Join(dir, "lib", "libz.so")); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestOutputResultDir(t *testing.T) {
	src := packageTree(t)
	dest := filepath.Join(t.TempDir(), "out")
	if err := outputResult(src, dest); err != nil {
		t.Fatalf("outputResult() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "include", "z.h"))
	if err != nil || string(data) != "#define Z 1\n" {
		t.Errorf("z.h = %q, %v", data, err)
	}
	link, err := os.Readlink(filepath.Join(dest, "lib", "libz.so"))
	if err != nil || link != "libz.so.1" {
		t.Errorf("libz.so -> %q, %v", link, err)
	}
}

func TestOutputResultZip(t *testing.T) {
	src := packageTree(t)
	dest := filepath.Join(t.TempDir(), "out.zip")
	if err := outputResult(src, dest); err != nil {
		t.Fatalf("outputResult() error = %v", err)
	}
	r, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	for _, want := range []string{"include/z.h", "lib/libz.so.1", "lib/libz.so"} {
		if !names[want] {
			t.Errorf("zip missing %s, has %v", want, names)
		}
	}
}

func TestPrintReport(t *testing.T) {
	a := recipe.MustParseRef("a/1.0")
	b := recipe.MustParseRef("b/1.0")
	c := recipe.MustParseRef("c/1.0")
	r := &build.Report{Results: []*build.NodeResult{
		{Ref: a, Status: graph.Failed, Err: errors.New("build failed with status 1")},
		{Ref: b, Status: graph.Built, Cached: true},
		{Ref: c, Status: graph.Failed, Err: &build.BlockedError{Ref: c, By: a}},
	}}
	r.Results[1].Duration = time.Second

	var out bytes.Buffer
	printReport(&out, r)
	s := out.String()
	for _, want := range []string{"Built packages:", "b/1.0", "cached", "a/1.0: build failed with status 1", "blocked by a/1.0"} {
		if !strings.Contains(s, want) {
			t.Errorf("report missing %q:\n%s", want, s)
		}
	}
}

func TestParseSettings(t *testing.T) {
	base := map[string]string{"os": "Linux", "arch": "x86_64"}
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"none", nil, base, false},
		{"override", []string{"arch=armv8"}, map[string]string{"os": "Linux", "arch": "armv8"}, false},
		{"new axis", []string{"build_type=Debug"}, map[string]string{"os": "Linux", "arch": "x86_64", "build_type": "Debug"}, false},
		{"missing value", []string{"arch="}, nil, true},
		{"missing equals", []string{"arch"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSettings(base, tt.pairs)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseSettings() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
	if base["arch"] != "x86_64" {
		t.Errorf("base modified: %v", base)
	}
}

func TestPlanFlagsRequest(t *testing.T) {
	f := planFlags{
		options: []string{"zlib:shared=True"},
		exports: []string{"recipes/zlib@user/stable"},
	}
	req, err := f.request([]string{"app"})
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Options) != 1 || req.Options[0].Package != "zlib" || req.Options[0].Key != "shared" {
		t.Errorf("Options = %+v", req.Options)
	}
	if len(req.Exports) != 1 || req.Exports[0].User != "user" {
		t.Errorf("Exports = %+v", req.Exports)
	}

	for _, bad := range []planFlags{
		{options: []string{"shared=true"}},
		{exports: []string{"recipes/zlib@user"}},
		{settings: []string{"os"}},
	} {
		if _, err := bad.request([]string{"app"}); err == nil {
			t.Errorf("request(%+v) succeeded", bad)
		}
	}
}

func TestPlanLockfileRejectsOverrides(t *testing.T) {
	defer func(f planFlags, l string) { buildFlags, buildLockfile = f, l }(buildFlags, buildLockfile)
	buildLockfile = filepath.Join(t.TempDir(), "kiln.lock")

	for _, f := range []planFlags{
		{options: []string{"zlib:shared=True"}},
		{settings: []string{"os=Linux"}},
	} {
		buildFlags = f
		_, err := plan(context.Background(), nil, &engine.Request{})
		if err == nil || !strings.Contains(err.Error(), "--lockfile") {
			t.Errorf("plan(%+v) error = %v", f, err)
		}
	}
}
