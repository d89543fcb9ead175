package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquireCreatesScratchDirectory(t *testing.T) {
	ws, err := Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer ws.Release()

	info, err := os.Stat(ws.Root)
	if err != nil || !info.IsDir() {
		t.Fatalf("workspace root missing: %v", err)
	}
	if !strings.Contains(filepath.Base(ws.Root), "repocheck-") {
		t.Fatalf("root %q lacks the repocheck prefix", ws.Root)
	}
	if filepath.Dir(ws.RepoDir) != ws.Root {
		t.Fatalf("RepoDir %q not directly under Root %q", ws.RepoDir, ws.Root)
	}
}

func TestAcquireIsolation(t *testing.T) {
	a, err := Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer a.Release()
	b, err := Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer b.Release()

	if a.Root == b.Root {
		t.Fatalf("two acquisitions share root %q", a.Root)
	}
}

func TestReleaseRemovesEverything(t *testing.T) {
	ws, err := Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := os.MkdirAll(ws.RepoDir, 0o755); err != nil {
		t.Fatalf("mkdir repo dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws.RepoDir, "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ws.Release()
	if _, err := os.Stat(ws.Root); !os.IsNotExist(err) {
		t.Fatalf("workspace still present after release: %v", err)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	ws, err := Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	ws.Release()
	ws.Release() // must not panic or error

	var nilWS *Workspace
	nilWS.Release() // nil receiver is a no-op
}
