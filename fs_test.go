package mimic_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/benbjohnson/mimic"
	"github.com/google/go-cmp/cmp"
)

func TestMapFileSystem(t *testing.T) {
	t.Run("Exists", func(t *testing.T) {
		fs := mimic.NewMapFileSystem("/home")
		fs.Add("/etc/passwd")
		if !fs.Exists("/etc/passwd") {
			t.Fatal("expected file")
		} else if fs.Exists("/etc/shadow") {
			t.Fatal("expected no file")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		fs := mimic.NewMapFileSystem("/home")
		fs.Add("/tmp/a")
		if err := fs.Delete("/tmp/a"); err != nil {
			t.Fatal(err)
		} else if fs.Exists("/tmp/a") {
			t.Fatal("expected no file")
		}

		if err := fs.Delete("/tmp/a"); err == nil {
			t.Fatal("expected error")
		} else if got, exp := err.Error(), "delete /tmp/a: file does not exist"; got != exp {
			t.Fatalf("unexpected error: %q, expected %q", got, exp)
		}
	})

	t.Run("Getwd", func(t *testing.T) {
		fs := mimic.NewMapFileSystem("/home")
		if cwd, err := fs.Getwd(); err != nil {
			t.Fatal(err)
		} else if got, exp := cwd, "/home"; got != exp {
			t.Fatalf("unexpected cwd: %s, expected %s", got, exp)
		}

		// An empty working directory defaults to the root.
		fs = mimic.NewMapFileSystem("")
		if cwd, err := fs.Getwd(); err != nil {
			t.Fatal(err)
		} else if got, exp := cwd, "/"; got != exp {
			t.Fatalf("unexpected cwd: %s, expected %s", got, exp)
		}
	})

	t.Run("Paths", func(t *testing.T) {
		fs := mimic.NewMapFileSystem("/")
		fs.Add("/c")
		fs.Add("/a")
		fs.Add("/b")
		if diff := cmp.Diff(fs.Paths(), []string{"/a", "/b", "/c"}); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestOSFileSystem(t *testing.T) {
	fs := mimic.NewOSFileSystem()

	path := filepath.Join(t.TempDir(), "x")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !fs.Exists(path) {
		t.Fatal("expected file")
	}
	if err := fs.Delete(path); err != nil {
		t.Fatal(err)
	} else if fs.Exists(path) {
		t.Fatal("expected no file")
	}

	if cwd, err := fs.Getwd(); err != nil {
		t.Fatal(err)
	} else if cwd == "" {
		t.Fatal("expected working directory")
	}
}
