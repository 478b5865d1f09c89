package recipe

import "testing"

func TestOptionDeclCheck(t *testing.T) {
	tests := []struct {
		name    string
		decl    OptionDecl
		value   string
		want    string
		wantErr bool
	}{
		{"bool true", OptionDecl{Kind: Bool}, "true", "true", false},
		{"bool python spelling", OptionDecl{Kind: Bool}, "True", "true", false},
		{"bool False", OptionDecl{Kind: Bool}, "False", "false", false},
		{"bool invalid", OptionDecl{Kind: Bool}, "yes", "", true},
		{"enum ok", OptionDecl{Kind: Enum, Values: []string{"openssl", "mbedtls"}}, "mbedtls", "mbedtls", false},
		{"enum out of domain", OptionDecl{Kind: Enum, Values: []string{"openssl"}}, "wolfssl", "", true},
		{"string anything", OptionDecl{Kind: String}, "/opt/hsm", "/opt/hsm", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.decl.Check(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Check(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Check(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseOptionKind(t *testing.T) {
	for in, want := range map[string]OptionKind{"bool": Bool, "Boolean": Bool, "enum": Enum, "string": String, "ANY": String} {
		got, err := ParseOptionKind(in)
		if err != nil || got != want {
			t.Errorf("ParseOptionKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseOptionKind("float"); err == nil {
		t.Error("ParseOptionKind(float) should fail")
	}
}

func TestParseOverride(t *testing.T) {
	o, err := ParseOverride("sharedlib:shared=True")
	if err != nil {
		t.Fatal(err)
	}
	if o.Package != "sharedlib" || o.Key != "shared" || o.Value != "true" {
		t.Errorf("got %+v", o)
	}
	if o.String() != "sharedlib:shared=true" {
		t.Errorf("String() = %q", o.String())
	}
	for _, bad := range []string{"shared=true", ":shared=true", "pkg:=x", "pkg:shared"} {
		if _, err := ParseOverride(bad); err == nil {
			t.Errorf("ParseOverride(%q) should fail", bad)
		}
	}
}

func TestOptionsString(t *testing.T) {
	o := Options{"shared": "true", "fPIC": "false", "backend": "openssl"}
	if got, want := o.String(), "backend=openssl,fPIC=false,shared=true"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	c := o.Clone()
	c["shared"] = "false"
	if !o.Bool("shared") {
		t.Error("Clone must not alias the original")
	}
}
