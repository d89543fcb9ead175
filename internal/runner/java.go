package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"repocheck/internal/metrics"
	"repocheck/internal/toolexec"
)

// JavaRunner handles Maven and Gradle repositories. Build-system detection is
// file based: pom.xml means Maven, build.gradle or build.gradle.kts means
// Gradle, and a wrapper script in the repository wins over a global install.
type JavaRunner struct {
	exec *toolexec.Executor
	log  *zap.Logger
}

func NewJavaRunner(exec *toolexec.Executor, log *zap.Logger) *JavaRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &JavaRunner{exec: exec, log: log}
}

func (r *JavaRunner) Language() string { return "java" }

type javaBuildSystem struct {
	name   string
	binary string
	// local is true when the binary is a wrapper script inside the repo.
	local bool
}

func detectBuildSystem(dir string) (javaBuildSystem, bool) {
	fileExists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}

	if fileExists("pom.xml") {
		if fileExists("mvnw") {
			return javaBuildSystem{name: "maven", binary: "./mvnw", local: true}, true
		}
		if path, ok := toolexec.LookupTool("mvn"); ok {
			return javaBuildSystem{name: "maven", binary: path}, true
		}
		return javaBuildSystem{name: "maven"}, false
	}
	if fileExists("build.gradle") || fileExists("build.gradle.kts") {
		if fileExists("gradlew") {
			return javaBuildSystem{name: "gradle", binary: "./gradlew", local: true}, true
		}
		if path, ok := toolexec.LookupTool("gradle"); ok {
			return javaBuildSystem{name: "gradle", binary: path}, true
		}
		return javaBuildSystem{name: "gradle"}, false
	}
	return javaBuildSystem{}, false
}

// RunLinting runs checkstyle when available. There is no universal Java lint
// fallback worth a misleading record.
func (r *JavaRunner) RunLinting(ctx context.Context, dir string) (metrics.LintResults, ToolRecord) {
	out := metrics.LintResults{ToolUsed: "none", Issues: []metrics.LintIssue{}}

	path, ok := toolexec.LookupTool("checkstyle")
	if !ok {
		return out, notFoundRecord("checkstyle")
	}

	config := "/google_checks.xml"
	for _, candidate := range []string{"checkstyle.xml", "config/checkstyle/checkstyle.xml"} {
		if _, err := os.Stat(filepath.Join(dir, candidate)); err == nil {
			config = candidate
			break
		}
	}

	cmd := toolexec.Command{
		Binary:           path,
		Arguments:        []string{"-c", config, "src"},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("checkstyle", cmd, res)
	if rec.State != StateCompleted {
		return out, rec
	}

	out.ToolUsed = "checkstyle"
	out.Issues = parseCheckstyle(res.Stdout)
	out.IssuesCount = len(out.Issues)
	out.Passed = boolPtr(res.ExitCode == 0)
	return out, rec
}

var checkstyleLine = regexp.MustCompile(`^\[(WARN|ERROR|INFO)\]\s+(.+?):(\d+)(?::\d+)?:\s+(.*?)(?:\s+\[(\w+)\])?$`)

func parseCheckstyle(output string) []metrics.LintIssue {
	issues := []metrics.LintIssue{}
	for _, line := range strings.Split(output, "\n") {
		m := checkstyleLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		issues = append(issues, metrics.LintIssue{
			File:     m[2],
			Line:     atoi(m[3]),
			Code:     m[5],
			Message:  m[4],
			Severity: strings.ToLower(m[1]),
		})
	}
	return issues
}

// RunBuild compiles without running tests: `mvn compile` or `gradle
// assemble`.
func (r *JavaRunner) RunBuild(ctx context.Context, dir string) (*bool, metrics.BuildDetails, ToolRecord) {
	details := metrics.BuildDetails{ToolUsed: "none"}

	system, ok := detectBuildSystem(dir)
	if !ok {
		probed := "mvn, gradle"
		if system.name != "" {
			probed = system.name
		}
		return nil, details, notFoundRecord(probed)
	}

	var args []string
	switch system.name {
	case "maven":
		args = []string{"-B", "-q", "compile"}
	case "gradle":
		args = []string{"--console=plain", "assemble"}
	}

	cmd := toolexec.Command{
		Binary:           system.binary,
		Arguments:        args,
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor(system.name+" build", cmd, res)
	if rec.State != StateCompleted {
		return nil, details, rec
	}
	details.ToolUsed = system.name
	details.Output = truncate(res.Output(), 4000)
	return boolPtr(res.ExitCode == 0), details, rec
}

// surefireSummary matches Maven surefire and Gradle test result lines.
var surefireSummary = regexp.MustCompile(`Tests run:\s*(\d+),\s*Failures:\s*(\d+),\s*Errors:\s*(\d+)`)

// RunTests runs the build system's test goal and sums surefire summary lines.
func (r *JavaRunner) RunTests(ctx context.Context, dir string) (metrics.TestExecution, metrics.CoverageReport, ToolRecord) {
	exec := metrics.TestExecution{Framework: "none", ToolUsed: "none"}
	cov := metrics.CoverageReport{ToolUsed: "none"}

	system, ok := detectBuildSystem(dir)
	if !ok {
		return exec, cov, notFoundRecord("mvn", "gradle")
	}

	var args []string
	switch system.name {
	case "maven":
		args = []string{"-B", "test"}
	case "gradle":
		args = []string{"--console=plain", "test"}
	}

	cmd := toolexec.Command{
		Binary:           system.binary,
		Arguments:        args,
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor(system.name+" test", cmd, res)
	if rec.State != StateCompleted {
		return exec, cov, rec
	}

	exec.Framework = "junit"
	exec.ToolUsed = system.name
	for _, m := range surefireSummary.FindAllStringSubmatch(res.Output(), -1) {
		run, failures, errors := atoi(m[1]), atoi(m[2]), atoi(m[3])
		exec.TestsRun += run
		exec.TestsFailed += failures + errors
	}
	exec.TestsPassed = exec.TestsRun - exec.TestsFailed
	if exec.TestsPassed < 0 {
		exec.TestsPassed = 0
	}
	return exec, cov, rec
}

// trivyOutput is the Results list of `trivy fs --format json`.
type trivyOutput struct {
	Results []struct {
		Vulnerabilities []struct {
			VulnerabilityID string `json:"VulnerabilityID"`
			PkgName         string `json:"PkgName"`
			Severity        string `json:"Severity"`
		} `json:"Vulnerabilities"`
	} `json:"Results"`
}

// RunSecurityAudit scans the dependency tree with trivy, then grype.
func (r *JavaRunner) RunSecurityAudit(ctx context.Context, dir string) (metrics.SecurityAudit, metrics.DependencyAudit, ToolRecord) {
	audit := metrics.SecurityAudit{ToolUsed: "none"}
	deps := metrics.DependencyAudit{ToolUsed: "none"}

	if path, ok := toolexec.LookupTool("trivy"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"fs", "--format", "json", "--quiet", "."},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("trivy", cmd, res)
		if rec.State != StateCompleted {
			return audit, deps, rec
		}

		audit.ToolUsed = "trivy"
		deps.ToolUsed = "trivy"

		var parsed trivyOutput
		if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
			audit.Details = truncate(res.Output(), 2000)
			return audit, deps, rec
		}
		packages := map[string]bool{}
		for _, result := range parsed.Results {
			for _, v := range result.Vulnerabilities {
				audit.VulnerabilitiesFound++
				if v.Severity == "HIGH" || v.Severity == "CRITICAL" {
					audit.HighSeverityCount++
				}
				packages[v.PkgName] = true
			}
		}
		audit.Details = fmt.Sprintf("%d findings, %d high or critical", audit.VulnerabilitiesFound, audit.HighSeverityCount)
		deps.Details = fmt.Sprintf("%d vulnerable packages", len(packages))
		return audit, deps, rec
	}

	if path, ok := toolexec.LookupTool("grype"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"dir:.", "-o", "json", "-q"},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("grype", cmd, res)
		if rec.State != StateCompleted {
			return audit, deps, rec
		}

		audit.ToolUsed = "grype"
		deps.ToolUsed = "grype"

		var parsed struct {
			Matches []struct {
				Vulnerability struct {
					Severity string `json:"severity"`
				} `json:"vulnerability"`
			} `json:"matches"`
		}
		if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
			audit.Details = truncate(res.Output(), 2000)
			return audit, deps, rec
		}
		audit.VulnerabilitiesFound = len(parsed.Matches)
		for _, m := range parsed.Matches {
			severity := strings.ToLower(m.Vulnerability.Severity)
			if severity == "high" || severity == "critical" {
				audit.HighSeverityCount++
			}
		}
		audit.Details = fmt.Sprintf("%d findings, %d high or critical", audit.VulnerabilitiesFound, audit.HighSeverityCount)
		return audit, deps, rec
	}

	return audit, deps, notFoundRecord("trivy", "grype")
}
