package runner

import (
	"os"
	"path/filepath"
	"testing"

	"repocheck/internal/metrics"
)

func TestNotFoundRecord(t *testing.T) {
	rec := notFoundRecord("ruff", "flake8")
	if rec.State != StateNotFound {
		t.Fatalf("state = %s, want not_found", rec.State)
	}
	if rec.Tool != "none" {
		t.Fatalf("tool = %q, want none", rec.Tool)
	}
	if rec.ExitStatus != -1 {
		t.Fatalf("exit status = %d, want -1", rec.ExitStatus)
	}
}

func TestParseFlake8(t *testing.T) {
	output := `./app.py:10:1: E302 expected 2 blank lines, got 1
./app.py:25:80: E501 line too long (88 > 79 characters)
not a lint line
`
	issues := parseFlake8(output)
	if len(issues) != 2 {
		t.Fatalf("parsed %d issues, want 2", len(issues))
	}
	if issues[0].File != "./app.py" || issues[0].Line != 10 || issues[0].Code != "E302" {
		t.Fatalf("first issue = %+v", issues[0])
	}
	if issues[1].Message != "line too long (88 > 79 characters)" {
		t.Fatalf("second issue message = %q", issues[1].Message)
	}
}

func TestParseGoVet(t *testing.T) {
	stderr := `# example.com/pkg
pkg/handler.go:42:2: unreachable code
pkg/handler.go:77:9: printf: non-constant format string
`
	issues := parseGoVet(stderr)
	if len(issues) != 2 {
		t.Fatalf("parsed %d issues, want 2", len(issues))
	}
	if issues[0].File != "pkg/handler.go" || issues[0].Line != 42 {
		t.Fatalf("first issue = %+v", issues[0])
	}
}

func TestParseCheckstyle(t *testing.T) {
	output := `Starting audit...
[WARN] /src/Main.java:12:5: Missing a Javadoc comment. [JavadocMethod]
[ERROR] /src/Main.java:30: Line is longer than 100 characters. [LineLength]
Audit done.
`
	issues := parseCheckstyle(output)
	if len(issues) != 2 {
		t.Fatalf("parsed %d issues, want 2", len(issues))
	}
	if issues[0].Severity != "warn" || issues[0].Code != "JavadocMethod" {
		t.Fatalf("first issue = %+v", issues[0])
	}
	if issues[1].Line != 30 || issues[1].Severity != "error" {
		t.Fatalf("second issue = %+v", issues[1])
	}
}

func TestPytestSummaryRegexes(t *testing.T) {
	output := "........F\n12 passed, 1 failed, 2 errors in 3.21s\nTOTAL    240    36    85%\n"

	if m := pytestPassed.FindStringSubmatch(output); m == nil || m[1] != "12" {
		t.Fatalf("passed match = %v", m)
	}
	if m := pytestFailed.FindStringSubmatch(output); m == nil || m[1] != "1" {
		t.Fatalf("failed match = %v", m)
	}
	if m := pytestErrors.FindStringSubmatch(output); m == nil || m[1] != "2" {
		t.Fatalf("errors match = %v", m)
	}
	if m := coverageTotal.FindStringSubmatch(output); m == nil || m[1] != "85" {
		t.Fatalf("coverage match = %v", m)
	}
}

func TestJestSummaryRegex(t *testing.T) {
	output := "Tests:       2 failed, 14 passed, 16 total\n"
	m := jestSummary.FindStringSubmatch(output)
	if m == nil {
		t.Fatal("jest summary did not match")
	}
	if m[1] != "2" || m[3] != "14" || m[4] != "16" {
		t.Fatalf("jest summary groups = %v", m[1:])
	}

	// No failures: the failed group is empty.
	output = "Tests:       16 passed, 16 total\n"
	m = jestSummary.FindStringSubmatch(output)
	if m == nil || m[1] != "" || m[3] != "16" {
		t.Fatalf("jest all-pass groups = %v", m)
	}
}

func TestMochaSummaryRegexes(t *testing.T) {
	output := "  42 passing (850ms)\n  3 failing\n"
	if m := mochaPassing.FindStringSubmatch(output); m == nil || m[1] != "42" {
		t.Fatalf("passing match = %v", m)
	}
	if m := mochaFailing.FindStringSubmatch(output); m == nil || m[1] != "3" {
		t.Fatalf("failing match = %v", m)
	}
}

func TestGoTestRegexes(t *testing.T) {
	output := `=== RUN   TestAlpha
--- PASS: TestAlpha (0.00s)
=== RUN   TestBeta
--- FAIL: TestBeta (0.01s)
--- PASS: TestGamma (0.00s)
ok      example.com/pkg 0.015s  coverage: 81.5% of statements
`
	if got := len(goTestPassOnly.FindAllString(output, -1)); got != 2 {
		t.Fatalf("pass count = %d, want 2", got)
	}
	if got := len(goTestFail.FindAllString(output, -1)); got != 1 {
		t.Fatalf("fail count = %d, want 1", got)
	}
	if m := goCoverage.FindStringSubmatch(output); m == nil || m[1] != "81.5" {
		t.Fatalf("coverage match = %v", m)
	}
}

func TestSurefireSummaryRegex(t *testing.T) {
	output := `[INFO] Tests run: 24, Failures: 1, Errors: 2, Skipped: 0
[INFO] Tests run: 10, Failures: 0, Errors: 0, Skipped: 1
`
	matches := surefireSummary.FindAllStringSubmatch(output, -1)
	if len(matches) != 2 {
		t.Fatalf("matched %d summary lines, want 2", len(matches))
	}
	if matches[0][1] != "24" || matches[0][2] != "1" || matches[0][3] != "2" {
		t.Fatalf("first summary groups = %v", matches[0][1:])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  short  ", 100); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	long := truncate("abcdefghij", 4)
	if long != "abcd... [truncated]" {
		t.Fatalf("truncate long = %q", long)
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

const richReadme = `# myproject

[![build](https://img.shields.io/badge/build-passing-green)](https://ci.example.com)

A tool that does a thing, explained here in enough words that the length
heuristic sees a real document and not a stub. It processes inputs, produces
outputs, and generally behaves like software. This paragraph continues for a
while to push the word count over the first threshold of the quality score,
which requires a reasonable amount of prose before awarding points.

## Installation

` + "```bash\npip install myproject\n```" + `

## Usage

` + "```python\nimport myproject\nmyproject.run()\n```" + `

## API Reference

See [the docs](https://example.com/docs) for details.
`

func TestAnalyzeDocumentationRichReadme(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"README.md": richReadme})

	doc := AnalyzeDocumentation(root)
	if !doc.ReadmePresent {
		t.Fatal("README.md not detected")
	}
	if !doc.SetupInstructions {
		t.Fatal("Installation heading not detected")
	}
	if !doc.UsageExamples {
		t.Fatal("Usage section not detected")
	}
	if !doc.APIDocumentation {
		t.Fatal("API Reference heading not detected")
	}
	if doc.ReadmeQualityScore < 0.6 {
		t.Fatalf("quality score = %v, want >= 0.6 for a rich README", doc.ReadmeQualityScore)
	}
}

func TestAnalyzeDocumentationMissingReadme(t *testing.T) {
	doc := AnalyzeDocumentation(t.TempDir())
	if doc.ReadmePresent {
		t.Fatal("phantom README detected")
	}
	if doc.ReadmeQualityScore != 0 {
		t.Fatalf("quality score = %v, want 0", doc.ReadmeQualityScore)
	}
}

func TestAnalyzeDocumentationDocsDirectory(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md":     "# tiny\n",
		"docs/index.md": "# API\n",
	})

	doc := AnalyzeDocumentation(root)
	if !doc.APIDocumentation {
		t.Fatal("docs/ directory with markdown should count as API documentation")
	}
}

func TestAnalyzeDocumentationEmptyDocsDirIgnored(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"README.md": "# tiny\n"})
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0o755); err != nil {
		t.Fatal(err)
	}

	doc := AnalyzeDocumentation(root)
	if doc.APIDocumentation {
		t.Fatal("empty docs/ directory must not count as API documentation")
	}
}

func TestDetectTestMetaPython(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tests/test_app.py":             "def test_x(): pass\n",
		"tests/test_util.py":            "def test_y(): pass\n",
		"app.py":                        "x = 1\n",
		"pytest.ini":                    "[pytest]\n",
		".coveragerc":                   "[run]\n",
		".github/workflows/ci.yml":      "on: push\n",
		"node_modules/pkg/test_skip.py": "ignored\n",
	})

	var tst metrics.Testing
	DetectTestMeta(root, "python", &tst)
	if tst.TestFilesDetected != 2 {
		t.Fatalf("test files = %d, want 2", tst.TestFilesDetected)
	}
	if !tst.TestConfigDetected {
		t.Fatal("pytest.ini not detected")
	}
	if !tst.CoverageConfigDetected {
		t.Fatal(".coveragerc not detected")
	}
	if tst.CIPlatform != "github_actions" {
		t.Fatalf("ci platform = %q, want github_actions", tst.CIPlatform)
	}
}

func TestDetectTestMetaNode(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/app.test.ts":  "test('x', () => {})\n",
		"src/util.spec.ts": "test('y', () => {})\n",
		"package.json":     `{"scripts": {"test": "jest"}}`,
	})

	var tst metrics.Testing
	DetectTestMeta(root, "typescript", &tst)
	if tst.TestFilesDetected != 2 {
		t.Fatalf("test files = %d, want 2", tst.TestFilesDetected)
	}
	if !tst.TestConfigDetected {
		t.Fatal("package.json test script not detected")
	}
	if tst.CIPlatform != "none" {
		t.Fatalf("ci platform = %q, want none", tst.CIPlatform)
	}
}

func TestPlaceholderTestScriptIgnored(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"package.json": `{"scripts": {"test": "echo \"Error: no test specified\" && exit 1"}}`,
	})

	var tst metrics.Testing
	DetectTestMeta(root, "javascript", &tst)
	if tst.TestConfigDetected {
		t.Fatal("npm's placeholder test script must not count as test config")
	}
}

func TestCalculateTestingScore(t *testing.T) {
	coverage := 80.0
	tst := &metrics.Testing{
		TestExecution: metrics.TestExecution{
			TestsRun: 10, TestsPassed: 10,
		},
		CoverageReport:         metrics.CoverageReport{Percentage: &coverage},
		TestFilesDetected:      5,
		TestConfigDetected:     true,
		CoverageConfigDetected: true,
		CIPlatform:             "github_actions",
	}

	// 40*1.0 + 30*0.8 + 15 + 7.5 + 7.5 = 94
	if got := CalculateTestingScore(tst); got != 94 {
		t.Fatalf("score = %v, want 94", got)
	}
}

func TestCalculateTestingScoreEmpty(t *testing.T) {
	tst := &metrics.Testing{CIPlatform: "none"}
	if got := CalculateTestingScore(tst); got != 0 {
		t.Fatalf("score = %v, want 0", got)
	}
}

func TestCalculateTestingScoreCoverageConfigCounts(t *testing.T) {
	// Coverage configuration alone fills the config bucket.
	tst := &metrics.Testing{CoverageConfigDetected: true, CIPlatform: "none"}
	if got := CalculateTestingScore(tst); got != 7.5 {
		t.Fatalf("score = %v, want 7.5", got)
	}
}

func TestCalculateTestingScorePartialFailures(t *testing.T) {
	tst := &metrics.Testing{
		TestExecution: metrics.TestExecution{
			TestsRun: 10, TestsPassed: 5, TestsFailed: 5,
		},
		TestFilesDetected: 3,
		CIPlatform:        "none",
	}
	// 40*0.5 + 15 = 35
	if got := CalculateTestingScore(tst); got != 35 {
		t.Fatalf("score = %v, want 35", got)
	}
}

func TestForLanguage(t *testing.T) {
	cases := map[string]bool{
		"python": true, "javascript": true, "typescript": true,
		"java": true, "go": true, "unknown": false, "rust": false,
	}
	for lang, wantRunner := range cases {
		r := ForLanguage(lang, nil, nil)
		if (r != nil) != wantRunner {
			t.Errorf("ForLanguage(%q) = %v, want runner=%t", lang, r, wantRunner)
		}
		if r != nil && r.Language() != lang {
			t.Errorf("ForLanguage(%q).Language() = %q", lang, r.Language())
		}
	}
}

func TestDetectNodeFramework(t *testing.T) {
	pkg := &packageJSON{DevDependencies: map[string]string{"mocha": "^10.0.0"}}
	if got := detectNodeFramework(pkg); got != "mocha" {
		t.Fatalf("framework = %q, want mocha", got)
	}
	if got := detectNodeFramework(&packageJSON{}); got != "none" {
		t.Fatalf("framework = %q, want none", got)
	}
}
