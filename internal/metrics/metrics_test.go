package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validRecord() *Record {
	r := NewRecord()
	r.Repository.URL = "https://example.com/repo.git"
	r.Repository.CommitSHA = strings.Repeat("a", 40)
	r.Repository.PrimaryLanguage = "python"
	r.Repository.LanguageDistribution = map[string]float64{"python": 1.0}
	r.Repository.ClonedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.Execution.Timestamp = r.Repository.ClonedAt
	return r
}

func TestNewRecordValidates(t *testing.T) {
	r := NewRecord()
	r.Repository.PrimaryLanguage = "unknown"
	if err := r.Validate(); err != nil {
		t.Fatalf("fresh record should validate, got: %v", err)
	}
}

func TestValidateRejectsBadLanguage(t *testing.T) {
	r := validRecord()
	r.Repository.PrimaryLanguage = "rust"
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation failure for rust descriptor tag")
	}
}

func TestValidateRejectsNullArrays(t *testing.T) {
	r := validRecord()
	r.Metrics.CodeQuality.LintResults.Issues = nil
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation failure for null issues array")
	}

	r = validRecord()
	r.Execution.Errors = nil
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation failure for null errors array")
	}
}

func TestValidateRejectsOutOfRangeCoverage(t *testing.T) {
	r := validRecord()
	bad := 101.0
	r.Metrics.Testing.CoverageReport.Percentage = &bad
	if err := r.Validate(); err == nil {
		t.Fatal("expected validation failure for coverage > 100")
	}
}

func TestAddToolUsedDeduplicates(t *testing.T) {
	r := NewRecord()
	r.AddToolUsed("ruff")
	r.AddToolUsed("ruff")
	r.AddToolUsed("none")
	r.AddToolUsed("")
	if len(r.Execution.ToolsUsed) != 1 {
		t.Fatalf("tools_used = %v, want exactly [ruff]", r.Execution.ToolsUsed)
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	r := validRecord()
	first, err := CanonicalJSON(r)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	second, err := CanonicalJSON(r)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("canonical rendering is not deterministic")
	}
	if !bytes.HasSuffix(first, []byte("\n")) {
		t.Fatal("canonical rendering must end with a newline")
	}
	if bytes.Contains(first, []byte("\r")) {
		t.Fatal("canonical rendering must use UNIX newlines")
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"zebra": 1, "alpha": 2, "mid": 3})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	s := string(out)
	if strings.Index(s, "alpha") > strings.Index(s, "mid") ||
		strings.Index(s, "mid") > strings.Index(s, "zebra") {
		t.Fatalf("keys not sorted:\n%s", s)
	}
}

func TestWriteCanonicalFileCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "out.json")
	if err := WriteCanonicalFile(path, map[string]any{"k": "v"}); err != nil {
		t.Fatalf("WriteCanonicalFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Fatal("written artifact must end with a newline")
	}
}

func TestToTreeShapes(t *testing.T) {
	r := validRecord()
	tree, err := r.ToTree()
	if err != nil {
		t.Fatalf("ToTree: %v", err)
	}

	metricsNode, ok := tree["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("metrics node missing or wrong type: %T", tree["metrics"])
	}
	cq, ok := metricsNode["code_quality"].(map[string]any)
	if !ok {
		t.Fatal("code_quality node missing")
	}
	lint, ok := cq["lint_results"].(map[string]any)
	if !ok {
		t.Fatal("lint_results node missing")
	}
	// Absent tool renders as explicit null, not a missing key.
	if v, present := lint["passed"]; !present || v != nil {
		t.Fatalf("lint_results.passed = %v (present=%t), want explicit null", v, present)
	}
	if _, ok := lint["issues"].([]any); !ok {
		t.Fatalf("lint_results.issues should be an array, got %T", lint["issues"])
	}
}
