package recipe

import (
	"path/filepath"
	"testing"
)

func TestRecipeAppDefinition(t *testing.T) {
	var app RecipeApp
	app.Name("softhsm2")
	app.Version("2.6.1")
	app.Settings("os", "compiler", "build_type", "arch")
	app.Option("shared", "bool", "False")
	app.Option("crypto", "enum", "openssl", "openssl", "botan")
	app.Requires("openssl/3.2.1", "shared=True", "no_dso=False")
	app.Requires("sqlite3/3.45.0")
	app.ToolRequires("autoconf/2.71")
	app.License("BSD-2-Clause & ISC")
	app.GitSource("https://github.com/softhsm/SoftHSMv2.git", "2.6.1")
	app.OnConfigure(func(c *ConfigureContext) {
		c.Override("openssl", "shared", "True")
	})
	app.OnBuild(func(c *StageContext) error { return nil })

	path := filepath.Join("recipes", "softhsm2_recipe.gox")
	d, err := app.Definition(path, "softhsm2")
	if err != nil {
		t.Fatalf("Definition() error = %v", err)
	}
	if d.Ref.String() != "softhsm2/2.6.1" {
		t.Errorf("Ref = %s", d.Ref)
	}
	if d.Dir != "recipes" {
		t.Errorf("Dir = %q", d.Dir)
	}
	if got, want := d.Stages.String(), "{requirements,build-requirements,configure,source,build}"; got != want {
		t.Errorf("Stages = %s, want %s", got, want)
	}
	if len(d.Runtime()) != 2 || len(d.Tools()) != 1 {
		t.Fatalf("requirements = %+v", d.Requires)
	}
	if opts := d.Requires[0].Options; opts["shared"] != "true" || opts["no_dso"] != "false" {
		t.Errorf("openssl overrides = %v", opts)
	}
	if defs := d.Defaults(); defs["shared"] != "false" || defs["crypto"] != "openssl" {
		t.Errorf("Defaults() = %v", defs)
	}

	c, err := d.Configure(map[string]string{"os": "Linux"}, d.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if ov := c.Overrides(); len(ov) != 1 || ov[0].String() != "openssl:shared=true" {
		t.Errorf("Overrides() = %v", ov)
	}
}

func TestRecipeAppDefinitionErrors(t *testing.T) {
	t.Run("bad option kind", func(t *testing.T) {
		var app RecipeApp
		app.Name("x")
		app.Option("shared", "float", "1")
		if _, err := app.Definition("x_recipe.gox", "x"); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("bad requirement", func(t *testing.T) {
		var app RecipeApp
		app.Requires("zlib/[>=1.2]")
		if _, err := app.Definition("x_recipe.gox", "x"); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("default out of domain", func(t *testing.T) {
		var app RecipeApp
		app.Option("crypto", "enum", "wolfssl", "openssl")
		if _, err := app.Definition("x_recipe.gox", "x"); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("name from file", func(t *testing.T) {
		var app RecipeApp
		d, err := app.Definition("consumer_recipe.gox", "consumer")
		if err != nil {
			t.Fatal(err)
		}
		if d.Ref.Name != "consumer" || d.Ref.Version != "" {
			t.Errorf("Ref = %+v", d.Ref)
		}
	})
}

func TestConfigureSelfOption(t *testing.T) {
	var app RecipeApp
	app.Name("lib")
	app.Version("1.0")
	app.Option("fPIC", "bool", "true")
	app.OnConfigure(func(c *ConfigureContext) {
		if c.Setting("os") == "Windows" {
			c.Override("lib", "fPIC", "false")
		}
	})
	d, err := app.Definition("lib_recipe.gox", "lib")
	if err != nil {
		t.Fatal(err)
	}
	c, err := d.Configure(map[string]string{"os": "Windows"}, d.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	self := c.SelfOptions()
	if len(self) != 1 || self[0].Key != "fPIC" || self[0].Value != "false" {
		t.Errorf("SelfOptions() = %v", self)
	}
	if len(c.Overrides()) != 0 {
		t.Errorf("Overrides() = %v", c.Overrides())
	}
	if c.Option("fPIC") != "false" {
		t.Errorf("Option(fPIC) = %q", c.Option("fPIC"))
	}
}

func TestDefinitionValidateSelfRequirement(t *testing.T) {
	tests := []struct {
		req     string
		wantErr bool
	}{
		{"softhsm/2.6.1", true},
		{"softhsm/2.6.1@user/stable", false},
		{"softhsm/2.5.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			d := &Definition{
				Ref:      MustParseRef("softhsm/2.6.1"),
				Requires: []Requirement{{Ref: MustParseRef(tt.req), Kind: Runtime}},
			}
			if err := d.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
