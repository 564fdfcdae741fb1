package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "oir.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("writing oir.toml: %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "calculator"
version = "0.3.0"

[source]
dirs = ["src", "lib"]
entry = "Main.Run"

[engine]
max-call-depth = 256
divide-policy = "throw"

[image]
output = "calc.oimg"
store = "methods.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Project.Name != "calculator" || m.Project.Version != "0.3.0" {
		t.Errorf("project = %+v", m.Project)
	}
	if len(m.Source.Dirs) != 2 || m.Source.Dirs[1] != "lib" {
		t.Errorf("source dirs = %v", m.Source.Dirs)
	}
	if m.Source.Entry != "Main.Run" {
		t.Errorf("entry = %q", m.Source.Entry)
	}
	if m.Engine.MaxCallDepth != 256 || m.Engine.DividePolicy != "throw" {
		t.Errorf("engine = %+v", m.Engine)
	}
	if m.Image.Output != "calc.oimg" || m.Image.Store != "methods.db" {
		t.Errorf("image = %+v", m.Image)
	}
	if !filepath.IsAbs(m.Dir) {
		t.Errorf("Dir = %q, want absolute", m.Dir)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Engine.DividePolicy != "fault" {
		t.Errorf("default divide-policy = %q, want fault", m.Engine.DividePolicy)
	}
}

func TestLoadRejectsBadDividePolicy(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[engine]
divide-policy = "panic"
`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("Load accepted an unknown divide-policy")
	}
	if !strings.Contains(err.Error(), "divide-policy") {
		t.Errorf("error %q, want divide-policy mention", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load of an empty directory succeeded")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[project]
name = "nested"
`)
	deep := filepath.Join(root, "src", "inner")
	if err := os.MkdirAll(deep, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	m, err := FindAndLoad(deep)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad = nil, want the manifest above")
	}
	if m.Project.Name != "nested" {
		t.Errorf("project name = %q, want nested", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m != nil {
		t.Errorf("FindAndLoad = %+v, want nil when no manifest exists", m)
	}
}

func TestSourceFiles(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[source]
dirs = ["src"]
`)
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, name := range []string{"main.oir", "sub/util.oir", "README.md"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("module M {}"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	m, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	files, err := m.SourceFiles()
	if err != nil {
		t.Fatalf("SourceFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("SourceFiles = %v, want the two .oir files", files)
	}
	for _, f := range files {
		if filepath.Ext(f) != ".oir" {
			t.Errorf("non-source file listed: %s", f)
		}
		if !filepath.IsAbs(f) {
			t.Errorf("relative path listed: %s", f)
		}
	}
}
