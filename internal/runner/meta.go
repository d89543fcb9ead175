package runner

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"repocheck/internal/metrics"
)

// skipDirs are never descended into during meta detection.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"target": true, "build": true, "dist": true,
	"__pycache__": true, ".venv": true, "venv": true,
}

// testConfigFiles maps config file names to the language they belong to; an
// empty language means any.
var testConfigFiles = map[string]string{
	"pytest.ini":       "python",
	"tox.ini":          "python",
	"setup.cfg":        "python",
	"jest.config.js":   "javascript",
	"jest.config.ts":   "typescript",
	"vitest.config.js": "javascript",
	"vitest.config.ts": "typescript",
	"karma.conf.js":    "javascript",
	".mocharc.yml":     "javascript",
	".mocharc.json":    "javascript",
	"phpunit.xml":      "",
	"build.gradle":     "java",
	"build.gradle.kts": "java",
	"pom.xml":          "java",
}

// coverageConfigFiles indicate a configured coverage tool.
var coverageConfigFiles = []string{
	".coveragerc", "codecov.yml", ".codecov.yml", ".nycrc",
	".nycrc.json", "jacoco.xml", "coverage.xml",
}

// ciProbes map a repository path to the CI platform it implies, checked in
// order so the record holds a single stable answer.
var ciProbes = []struct {
	path     string
	platform string
	isDir    bool
}{
	{".github/workflows", "github_actions", true},
	{".gitlab-ci.yml", "gitlab_ci", false},
	{".circleci/config.yml", "circleci", false},
	{"Jenkinsfile", "jenkins", false},
	{".travis.yml", "travis", false},
	{"azure-pipelines.yml", "azure_pipelines", false},
}

// DetectTestMeta fills the static half of the testing dimension: test files
// on disk, test and coverage configuration, and the CI platform.
func DetectTestMeta(root, language string, testing *metrics.Testing) {
	testing.TestFilesDetected = countTestFiles(root, language)
	testing.TestConfigDetected = hasTestConfig(root, language)
	testing.CoverageConfigDetected = hasCoverageConfig(root)
	testing.CIPlatform = detectCIPlatform(root)
}

// isTestFile applies per-language naming conventions.
func isTestFile(name, language string) bool {
	lower := strings.ToLower(name)
	switch language {
	case "python":
		return (strings.HasPrefix(lower, "test_") || strings.HasSuffix(lower, "_test.py")) &&
			strings.HasSuffix(lower, ".py")
	case "javascript", "typescript":
		for _, suffix := range []string{".test.js", ".spec.js", ".test.jsx", ".spec.jsx",
			".test.ts", ".spec.ts", ".test.tsx", ".spec.tsx", ".test.mjs"} {
			if strings.HasSuffix(lower, suffix) {
				return true
			}
		}
		return false
	case "java":
		return strings.HasSuffix(name, "Test.java") || strings.HasSuffix(name, "Tests.java") ||
			strings.HasPrefix(name, "Test") && strings.HasSuffix(name, ".java")
	case "go":
		return strings.HasSuffix(lower, "_test.go")
	default:
		// Unknown language: accept the union of common conventions.
		return strings.HasPrefix(lower, "test_") ||
			strings.Contains(lower, ".test.") ||
			strings.Contains(lower, ".spec.") ||
			strings.HasSuffix(lower, "_test.go") ||
			strings.HasSuffix(name, "Test.java")
	}
}

func countTestFiles(root, language string) int {
	count := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if isTestFile(d.Name(), language) {
			count++
		}
		return nil
	})
	return count
}

func hasTestConfig(root, language string) bool {
	for name, lang := range testConfigFiles {
		if lang != "" && lang != language {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return true
		}
	}
	// pyproject.toml counts only when it configures pytest.
	if language == "python" {
		if data, err := os.ReadFile(filepath.Join(root, "pyproject.toml")); err == nil {
			if strings.Contains(string(data), "[tool.pytest") {
				return true
			}
		}
	}
	// package.json counts only when it declares a real test script.
	if language == "javascript" || language == "typescript" {
		if pkg, ok := readPackageJSON(root); ok {
			script := pkg.Scripts["test"]
			if script != "" && !strings.Contains(script, "no test specified") {
				return true
			}
		}
	}
	return false
}

func hasCoverageConfig(root string) bool {
	for _, name := range coverageConfigFiles {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return true
		}
	}
	if data, err := os.ReadFile(filepath.Join(root, "pyproject.toml")); err == nil {
		if strings.Contains(string(data), "[tool.coverage") {
			return true
		}
	}
	return false
}

func detectCIPlatform(root string) string {
	for _, probe := range ciProbes {
		info, err := os.Stat(filepath.Join(root, probe.path))
		if err != nil {
			continue
		}
		if probe.isDir && !info.IsDir() {
			continue
		}
		if probe.isDir {
			// An empty workflows directory is not CI.
			entries, err := os.ReadDir(filepath.Join(root, probe.path))
			if err != nil || len(entries) == 0 {
				continue
			}
		}
		return probe.platform
	}
	return "none"
}

// CalculateTestingScore derives the 0..100 composite testing score:
// 40 points scaled by pass ratio, 30 by coverage percentage, 15 for test
// files existing on disk, 7.5 for test or coverage configuration, 7.5 for CI.
func CalculateTestingScore(t *metrics.Testing) float64 {
	score := 0.0

	if t.TestExecution.TestsRun > 0 {
		ratio := float64(t.TestExecution.TestsPassed) / float64(t.TestExecution.TestsRun)
		score += 40 * ratio
	}
	if t.CoverageReport.Percentage != nil {
		score += 30 * (*t.CoverageReport.Percentage / 100)
	}
	if t.TestFilesDetected > 0 {
		score += 15
	}
	if t.TestConfigDetected || t.CoverageConfigDetected {
		score += 7.5
	}
	if t.CIPlatform != "none" && t.CIPlatform != "" {
		score += 7.5
	}

	if score > 100 {
		score = 100
	}
	return score
}
