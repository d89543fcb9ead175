package detect

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, root, name string, size int) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDetectMajority(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.py", 4000)
	writeFile(t, root, "util.py", 3000)
	writeFile(t, root, "index.js", 1000)
	writeFile(t, root, "README.md", 9000)

	det := Detect(root)
	if det.Primary != LangPython {
		t.Fatalf("primary = %q, want python", det.Primary)
	}
	want := map[string]float64{
		LangPython:     0.875,
		LangJavaScript: 0.125,
	}
	if diff := cmp.Diff(want, det.Distribution); diff != "" {
		t.Fatalf("distribution mismatch (-want +got):\n%s", diff)
	}
	if det.Confidence != det.Distribution[LangPython] {
		t.Fatalf("confidence %v != winner share %v", det.Confidence, det.Distribution[LangPython])
	}
}

func TestDetectEmptyTree(t *testing.T) {
	det := Detect(t.TempDir())
	if det.Primary != LangUnknown {
		t.Fatalf("primary = %q, want unknown", det.Primary)
	}
	if det.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", det.Confidence)
	}
	if len(det.Distribution) != 0 {
		t.Fatalf("distribution = %v, want empty", det.Distribution)
	}
}

func TestDetectSkipsVendoredDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.py", 100)
	writeFile(t, root, "node_modules/lib/huge.js", 100000)
	writeFile(t, root, "vendor/dep/dep.go", 100000)
	writeFile(t, root, ".git/objects/blob.java", 100000)

	det := Detect(root)
	if det.Primary != LangPython {
		t.Fatalf("primary = %q, want python (vendored trees must be excluded)", det.Primary)
	}
}

func TestDetectTieBreak(t *testing.T) {
	root := t.TempDir()
	// Identical byte counts: the fixed ordering prefers go over python.
	writeFile(t, root, "main.go", 500)
	writeFile(t, root, "main.py", 500)

	det := Detect(root)
	if det.Primary != LangGo {
		t.Fatalf("primary = %q, want go on an exact tie", det.Primary)
	}
}

func TestDetectTypeScriptOverJavaScriptOnTie(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.ts", 500)
	writeFile(t, root, "app.js", 500)

	det := Detect(root)
	if det.Primary != LangTypeScript {
		t.Fatalf("primary = %q, want typescript on an exact tie", det.Primary)
	}
}

func TestDetectRustCounted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib.rs", 900)
	writeFile(t, root, "helper.py", 100)

	det := Detect(root)
	if det.Primary != LangRust {
		t.Fatalf("primary = %q, want rust", det.Primary)
	}
	if det.Distribution[LangRust] != 0.9 {
		t.Fatalf("rust share = %v, want 0.9", det.Distribution[LangRust])
	}
}
