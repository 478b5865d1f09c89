package artifact

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/goplus/kiln/internal/config"
	"github.com/goplus/kiln/recipe"
	"github.com/klauspost/compress/zstd"
)

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func listArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)
	files := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		files[hdr.Name] = string(data)
	}
	return files
}

func TestPack(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"include/zlib.h": "#define ZLIB_VERSION",
		"lib/libz.a":     "!<arch>",
	})
	dst := filepath.Join(t.TempDir(), "pkg.tar.zst")
	digest, err := Pack(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if want, err := FileDigest(dst); err != nil || want != digest {
		t.Errorf("Pack() digest = %s, FileDigest() = %s, %v", digest, want, err)
	}
	if len(digest) != 64 {
		t.Errorf("digest length = %d", len(digest))
	}
	files := listArchive(t, dst)
	var names []string
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	want := []string{"include/", "include/zlib.h", "lib/", "lib/libz.a"}
	if !slices.Equal(names, want) {
		t.Errorf("archive entries = %v, want %v", names, want)
	}
	if files["lib/libz.a"] != "!<arch>" {
		t.Errorf("lib/libz.a = %q", files["lib/libz.a"])
	}

	again := filepath.Join(t.TempDir(), "pkg.tar.zst")
	d2, err := Pack(src, again)
	if err != nil {
		t.Fatal(err)
	}
	if d2 != digest {
		t.Error("packing the same tree twice produced different digests")
	}
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"files/lib/libz.a": "!<arch>"})
	archive := "0123.tar.zst"
	digest, err := Pack(filepath.Join(dir, "files"), filepath.Join(dir, archive))
	if err != nil {
		t.Fatal(err)
	}
	m := &Manifest{
		Ref:       recipe.MustParseRef("zlib/1.3.1@user/stable"),
		PackageID: "0123",
		Options:   recipe.Options{"shared": "false"},
		Archive:   archive,
		Digest:    digest,
		Info:      &recipe.PackageInfo{Root: filepath.Join(dir, "files"), LibDirs: []string{"lib"}},
	}
	if err := WriteManifest(dir, m); err != nil {
		t.Fatal(err)
	}
	got, err := ReadManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Ref != m.Ref || got.Options["shared"] != "false" || got.Info.LibDirs[0] != "lib" {
		t.Errorf("ReadManifest() = %+v", got)
	}
	if !got.Verify(dir) {
		t.Error("Verify() = false for an intact archive")
	}
	if err := os.WriteFile(filepath.Join(dir, archive), []byte("corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got.Verify(dir) {
		t.Error("Verify() = true for a modified archive")
	}
}

func TestS3StoreKey(t *testing.T) {
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))
	s, err := NewS3Store(t.Context(), &config.Store{
		Bucket:    "packages",
		Endpoint:  "http://127.0.0.1:9000",
		Prefix:    "/kiln/",
		AccessKey: "key",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Key("zlib/1.3.1/0123.tar.zst"); got != "kiln/zlib/1.3.1/0123.tar.zst" {
		t.Errorf("Key() = %q", got)
	}
	if _, err := NewS3Store(t.Context(), &config.Store{}); err == nil {
		t.Error("NewS3Store without bucket should fail")
	}
}
