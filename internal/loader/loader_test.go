package loader

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/kiln/recipe"
)

func TestLoadHCL(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "softhsm2", "recipe.hcl"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Ref.String() != "softhsm2/2.6.1" {
		t.Errorf("Ref = %s", d.Ref)
	}
	if d.Metadata.License != "BSD-2-Clause" {
		t.Errorf("License = %q", d.Metadata.License)
	}
	if got := strings.Join(d.Settings, ","); got != "os,compiler,build_type,arch" {
		t.Errorf("Settings = %s", got)
	}
	if decl := d.Options["crypto_backend"]; decl.Kind != recipe.Enum || decl.Default != "openssl" {
		t.Errorf("crypto_backend = %+v", decl)
	}
	if defs := d.Defaults(); defs["shared"] != "false" {
		t.Errorf("Defaults() = %v", defs)
	}
	if len(d.Runtime()) != 2 || len(d.Tools()) != 4 {
		t.Fatalf("requires = %+v", d.Requires)
	}
	if d.Runtime()[0].Options["shared"] != "true" {
		t.Errorf("openssl edge options = %v", d.Runtime()[0].Options)
	}
	if d.Source.Git == nil || d.Source.Git.Ref != "2.6.1" {
		t.Errorf("Source = %+v", d.Source)
	}
	want := "{requirements,build-requirements,configure,generate,source,build,package,package-info}"
	if got := d.Stages.String(); got != want {
		t.Errorf("Stages = %s, want %s", got, want)
	}
	if !filepath.IsAbs(d.Dir) || filepath.Base(d.Dir) != "softhsm2" {
		t.Errorf("Dir = %q", d.Dir)
	}
}

func TestHCLConfigure(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "softhsm2"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		os   string
		opts recipe.Options
		want string
	}{
		{"Linux", recipe.Options{"shared": "true", "crypto_backend": "openssl"}, "true"},
		{"Windows", recipe.Options{"shared": "true", "crypto_backend": "openssl"}, "false"},
		{"Linux", d.Defaults(), "false"},
	}
	for _, tt := range tests {
		c, err := d.Configure(map[string]string{"os": tt.os}, tt.opts)
		if err != nil {
			t.Fatalf("Configure(%s) error = %v", tt.os, err)
		}
		self := c.SelfOptions()
		if len(self) != 1 || self[0].Key != "shared" || self[0].Value != tt.want {
			t.Errorf("Configure(%s, %v) self = %v, want shared=%s", tt.os, tt.opts, self, tt.want)
		}
	}
}

func TestHCLOverrides(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "aos-core", "recipe.hcl"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Ref.Name != "aos-core" || d.Ref.Version != "" {
		t.Errorf("Ref = %+v", d.Ref)
	}
	if len(d.Exports) != 1 || d.Exports[0].User != "user" || d.Exports[0].Channel != "stable" {
		t.Errorf("Exports = %+v", d.Exports)
	}
	if r := d.Requires[0].Ref; r.User != "user" || r.Channel != "stable" {
		t.Errorf("first requirement = %s", r)
	}
	c, err := d.Configure(map[string]string{"os": "Linux"}, d.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, o := range c.Overrides() {
		got = append(got, o.String())
	}
	want := "openssl:no_dso=false,openssl:shared=true,poco:enable_data_mysql=false"
	if strings.Join(got, ",") != want {
		t.Errorf("Overrides() = %v, want %s", got, want)
	}
}

func TestHCLRunStage(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "aos-core"))
	if err != nil {
		t.Fatal(err)
	}
	build := t.TempDir()
	var cmds []string
	var dirs []string
	c := &recipe.StageContext{
		Settings:  map[string]string{"build_type": "Release"},
		Options:   recipe.Options{},
		SourceDir: "/src",
		BuildDir:  build,
		Runner: func(cmd *exec.Cmd) error {
			cmds = append(cmds, strings.Join(cmd.Args, " "))
			dirs = append(dirs, cmd.Dir)
			return nil
		},
	}
	if err := d.Impl.Run(recipe.StageBuild, c); err != nil {
		t.Fatalf("Run(build) error = %v", err)
	}
	want := []string{
		"cmake -S /src -B " + build,
		"cmake --build " + build + " --config Release",
	}
	if strings.Join(cmds, "\n") != strings.Join(want, "\n") {
		t.Errorf("commands = %q, want %q", cmds, want)
	}
	if dirs[0] != filepath.Join(build, "out") {
		t.Errorf("workdir = %q", dirs[0])
	}
}

func TestHCLGenerateAndPackage(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "softhsm2"))
	if err != nil {
		t.Fatal(err)
	}
	src, pkg := t.TempDir(), t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "LICENSE"), []byte("BSD"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	var cmds []string
	c := &recipe.StageContext{
		Settings:   map[string]string{},
		Options:    recipe.Options{"shared": "false", "crypto_backend": "botan"},
		SourceDir:  src,
		BuildDir:   t.TempDir(),
		PackageDir: pkg,
		Stdout:     &out,
		Runner: func(cmd *exec.Cmd) error {
			cmds = append(cmds, strings.Join(cmd.Args, " "))
			return nil
		},
	}
	if err := d.Impl.Run(recipe.StageGenerate, c); err != nil {
		t.Fatal(err)
	}
	if got := c.Vars()["SOFTHSM2_BACKEND"]; got != "botan" {
		t.Errorf("SOFTHSM2_BACKEND = %q", got)
	}

	if err := d.Impl.Run(recipe.StageBuild, c); err != nil {
		t.Fatal(err)
	}
	if len(cmds) != 3 || cmds[0] != "autoreconf -fi" || !strings.Contains(cmds[1], "--with-crypto-backend=botan") {
		t.Errorf("build commands = %q", cmds)
	}

	if err := d.Impl.Run(recipe.StagePackage, c); err != nil {
		t.Fatal(err)
	}
	if data, err := os.ReadFile(filepath.Join(pkg, "licenses", "LICENSE")); err != nil || string(data) != "BSD" {
		t.Errorf("licenses/LICENSE = %q, %v", data, err)
	}

	c.Info = recipe.DefaultPackageInfo(pkg)
	if err := d.Impl.Run(recipe.StagePackageInfo, c); err != nil {
		t.Fatal(err)
	}
	if strings.Join(c.Info.Libs, ",") != "softhsm2" {
		t.Errorf("Libs = %v", c.Info.Libs)
	}
}

func TestLoadArchiveSource(t *testing.T) {
	d, err := Load(filepath.Join("testdata", "pkcs11provider", "recipe.hcl"))
	if err != nil {
		t.Fatal(err)
	}
	a := d.Source.Archive
	if a == nil || a.StripComponents != 1 || !strings.HasSuffix(a.URL, "pkcs11-provider-1.0.tar.xz") {
		t.Errorf("Archive = %+v", a)
	}
	if d.Stages.Has(recipe.StageBuild) {
		t.Error("recipe without build block must not implement build")
	}
}

func TestLoadErrors(t *testing.T) {
	for _, path := range []string{
		filepath.Join("testdata", "bad", "recipe.hcl"),
		filepath.Join("testdata", "missing.hcl"),
		filepath.Join("testdata", "scripted", "README.txt"),
		"testdata",
	} {
		if _, err := Load(path); err == nil {
			t.Errorf("Load(%s) should fail", path)
		}
	}
}

func TestPeek(t *testing.T) {
	ref, err := Peek(filepath.Join("testdata", "pkcs11provider", "recipe.hcl"))
	if err != nil {
		t.Fatal(err)
	}
	if ref.String() != "pkcs11provider/1.0" {
		t.Errorf("Peek() = %s", ref)
	}
}

func TestPeekGox(t *testing.T) {
	ref, err := Peek(filepath.Join("testdata", "scripted", "demo_recipe.gox"))
	if err != nil {
		t.Fatal(err)
	}
	if ref.String() != "demo/0.3.1" {
		t.Errorf("Peek() = %s", ref)
	}
}

func TestLoadGox(t *testing.T) {
	if os.Getenv("KILN_TEST_GOX") == "" {
		t.Skip("set KILN_TEST_GOX=1 to interpret scripted recipes")
	}
	d, err := Load(filepath.Join("testdata", "scripted", "demo_recipe.gox"))
	if err != nil {
		t.Fatal(err)
	}
	if d.Ref.String() != "demo/0.3.1" || len(d.Runtime()) != 1 {
		t.Errorf("Definition = %+v", d)
	}
}

func TestFindRecipe(t *testing.T) {
	got, err := FindRecipe(filepath.Join("testdata", "scripted"))
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "demo_recipe.gox" {
		t.Errorf("FindRecipe() = %s", got)
	}
	if !IsRecipeFile("recipe.hcl") || IsRecipeFile("config.hcl") {
		t.Error("IsRecipeFile mismatch")
	}
}
