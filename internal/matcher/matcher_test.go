package matcher

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTree creates empty files under dir, making parents as needed.
func writeTree(t *testing.T, dir string, paths []string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(dir, p)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(full, []byte("key: value\n"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
}

func TestFindRecursive(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, []string{
		"a.yaml",
		"sub/b.yml",
		"sub/deep/c.yaml",
		"notes.txt",
		"config.json",
	})

	m := New(DefaultConfig(), nil)
	got, err := m.Find(dir, true)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Find() = %v, want 3 files", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("results not sorted: %v", got)
		}
	}
}

func TestFindNonRecursive(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, []string{"a.yaml", "sub/b.yaml"})

	m := New(DefaultConfig(), nil)
	got, err := m.Find(dir, false)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "a.yaml" {
		t.Errorf("Find() = %v, want only a.yaml", got)
	}
}

func TestFindSkipsExcludedDirs(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, []string{
		"a.yaml",
		".git/config.yaml",
		"node_modules/pkg/values.yaml",
	})

	m := New(DefaultConfig(), nil)
	got, err := m.Find(dir, true)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "a.yaml" {
		t.Errorf("Find() = %v, want only a.yaml", got)
	}
}

func TestFindExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, []string{"values.yaml", "values.generated.yaml"})

	cfg := DefaultConfig()
	cfg.ExcludePatterns = []string{"*.generated.yaml"}
	m := New(cfg, nil)
	got, err := m.Find(dir, true)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 1 || filepath.Base(got[0]) != "values.yaml" {
		t.Errorf("Find() = %v, want only values.yaml", got)
	}
}

func TestFindSingleFileRoot(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, []string{"a.yaml", "b.txt"})

	m := New(DefaultConfig(), nil)
	got, err := m.Find(filepath.Join(dir, "a.yaml"), true)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Find() = %v, want the file itself", got)
	}

	got, err = m.Find(filepath.Join(dir, "b.txt"), true)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Find() = %v, want no match for non-YAML file", got)
	}
}

func TestFindMissingRoot(t *testing.T) {
	m := New(DefaultConfig(), nil)
	if _, err := m.Find(filepath.Join(t.TempDir(), "missing"), true); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestFindIncludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, []string{"en.yaml", "de.yaml", "fr.yaml"})

	cfg := DefaultConfig()
	cfg.IncludePatterns = []string{"en.yaml", "de.yaml"}
	m := New(cfg, nil)
	got, err := m.Find(dir, true)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Find() = %v, want en.yaml and de.yaml", got)
	}
}
