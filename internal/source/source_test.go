package source

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goplus/kiln/internal/artifact"
	"github.com/goplus/kiln/internal/graph"
	"github.com/goplus/kiln/recipe"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

func tarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(tw, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func compress(t *testing.T, ext string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch ext {
	case ".tar.gz":
		w = pgzip.NewWriter(&buf)
	case ".tar.xz":
		w, err = xz.NewWriter(&buf)
	case ".tar.zst":
		w, err = zstd.NewWriter(&buf)
	case ".tar":
		return data
	}
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	data := tarball(t, map[string]string{
		"softhsm-2.6.1/configure":   "#!/bin/sh",
		"softhsm-2.6.1/src/main.cc": "int main() {}",
	})
	for _, ext := range []string{".tar.gz", ".tar.xz", ".tar.zst", ".tar"} {
		t.Run(ext, func(t *testing.T) {
			file := filepath.Join(t.TempDir(), "softhsm"+ext)
			if err := os.WriteFile(file, compress(t, ext, data), 0o644); err != nil {
				t.Fatal(err)
			}
			dest := t.TempDir()
			if err := Extract(file, dest, 1); err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			got, err := os.ReadFile(filepath.Join(dest, "src", "main.cc"))
			if err != nil || string(got) != "int main() {}" {
				t.Errorf("src/main.cc = %q, %v", got, err)
			}
		})
	}
}

func TestExtractErrors(t *testing.T) {
	dir := t.TempDir()
	evil := filepath.Join(dir, "evil.tar")
	if err := os.WriteFile(evil, tarball(t, map[string]string{"../../etc/passwd": "x"}), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Extract(evil, filepath.Join(dir, "out"), 0); err == nil {
		t.Error("Extract() should reject entries escaping the destination")
	}
	zip := filepath.Join(dir, "src.zip")
	if err := os.WriteFile(zip, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Extract(zip, filepath.Join(dir, "out"), 0); err == nil {
		t.Error("Extract() should reject unknown formats")
	}
}

func archiveNode(url, digest string) *graph.Node {
	def := &recipe.Definition{
		Ref: recipe.MustParseRef("pkcs11provider/1.0"),
		Source: recipe.SourceSpec{Archive: &recipe.ArchiveSource{
			URL:             url,
			Blake3:          digest,
			StripComponents: 1,
		}},
	}
	return graph.NewNode(def, nil)
}

func TestFetchArchive(t *testing.T) {
	body := compress(t, ".tar.gz", tarball(t, map[string]string{"pkcs11-provider-1.0/meson.build": "project()"}))
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(body)
	}))
	defer srv.Close()

	tmp := filepath.Join(t.TempDir(), "src.tar.gz")
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		t.Fatal(err)
	}
	digest, err := artifact.FileDigest(tmp)
	if err != nil {
		t.Fatal(err)
	}

	f := &Fetcher{Client: srv.Client(), CacheDir: t.TempDir()}
	url := srv.URL + "/pkcs11-provider-1.0.tar.gz"
	for i := 0; i < 2; i++ {
		target := t.TempDir()
		if err := f.Fetch(context.Background(), archiveNode(url, digest), target); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(target, "meson.build")); err != nil {
			t.Errorf("meson.build not extracted: %v", err)
		}
	}
	if hits != 1 {
		t.Errorf("downloaded %d times, want 1", hits)
	}

	bad := &Fetcher{Client: srv.Client(), CacheDir: t.TempDir()}
	if err := bad.Fetch(context.Background(), archiveNode(url, "00"), t.TempDir()); err == nil {
		t.Error("Fetch() should fail on a digest mismatch")
	}
}

type mockVCS struct {
	tags   []string
	synced string
}

func (m *mockVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	m.synced = ref
	return os.MkdirAll(dir, 0o755)
}

func (m *mockVCS) Tags(ctx context.Context, remote string) ([]string, error) { return m.tags, nil }

func (m *mockVCS) Latest(ctx context.Context, remote string) (string, error) { return "", nil }

func (m *mockVCS) Head(ctx context.Context, dir string) (string, error) { return "", nil }

func TestFetchGit(t *testing.T) {
	m := &mockVCS{tags: []string{"2.6.0", "2.6.1", "v3.0"}}
	def := &recipe.Definition{
		Ref:    recipe.MustParseRef("softhsm2/2.6.1"),
		Source: recipe.SourceSpec{Git: &recipe.GitSource{URL: "https://github.com/opendnssec/SoftHSMv2.git"}},
	}
	f := &Fetcher{VCS: m}
	if err := f.Fetch(context.Background(), graph.NewNode(def, nil), t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if m.synced != "2.6.1" {
		t.Errorf("synced %q, want 2.6.1", m.synced)
	}

	def.Source.Git.Ref = "develop"
	if err := f.Fetch(context.Background(), graph.NewNode(def, nil), t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if m.synced != "develop" {
		t.Errorf("synced %q, want develop", m.synced)
	}

	def = def.WithRef(recipe.MustParseRef("softhsm2/9.9"))
	def.Source.Git.Ref = ""
	if err := f.Fetch(context.Background(), graph.NewNode(def, nil), t.TempDir()); err == nil {
		t.Error("Fetch() should fail without a matching tag")
	}
}

func TestFetchPath(t *testing.T) {
	recipeDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(recipeDir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(recipeDir, "src", "CMakeLists.txt"), []byte("project(app)"), 0o644); err != nil {
		t.Fatal(err)
	}
	def := &recipe.Definition{
		Ref:    recipe.MustParseRef("app/1.0"),
		Dir:    recipeDir,
		Source: recipe.SourceSpec{Path: "src"},
	}
	target := filepath.Join(t.TempDir(), "source")
	if err := (&Fetcher{}).Fetch(context.Background(), graph.NewNode(def, nil), target); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(target, "CMakeLists.txt")); err != nil {
		t.Errorf("CMakeLists.txt not copied: %v", err)
	}
}
