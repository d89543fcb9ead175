package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"repocheck/internal/metrics"
	"repocheck/internal/toolexec"
)

// PythonRunner drives the Python toolchain: ruff/flake8, uv/`-m build`,
// pytest, pip-audit, and ruff/black for formatting.
type PythonRunner struct {
	exec *toolexec.Executor
	log  *zap.Logger

	// interpreter is the resolved runtime executable, probed once at
	// construction. Never a hard-coded name: systems without a python3
	// alias resolve to whatever is actually on PATH.
	interpreter string
}

// NewPythonRunner creates the runner, resolving the interpreter up front.
func NewPythonRunner(exec *toolexec.Executor, log *zap.Logger) *PythonRunner {
	if log == nil {
		log = zap.NewNop()
	}
	interpreter, _ := toolexec.LookupTool("python3", "python")
	return &PythonRunner{exec: exec, log: log, interpreter: interpreter}
}

func (r *PythonRunner) Language() string { return "python" }

// ruffIssue is the subset of ruff's JSON output we consume.
type ruffIssue struct {
	Filename string `json:"filename"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Location struct {
		Row int `json:"row"`
	} `json:"location"`
}

// RunLinting probes ruff first, then flake8.
func (r *PythonRunner) RunLinting(ctx context.Context, dir string) (metrics.LintResults, ToolRecord) {
	out := metrics.LintResults{ToolUsed: "none", Issues: []metrics.LintIssue{}}

	if path, ok := toolexec.LookupTool("ruff"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"check", ".", "--output-format", "json"},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("ruff", cmd, res)
		rec.Version = toolVersion(ctx, r.exec, path)
		if rec.State != StateCompleted {
			return out, rec
		}

		out.ToolUsed = "ruff"
		var issues []ruffIssue
		if err := json.Unmarshal([]byte(res.Stdout), &issues); err != nil {
			// Unknown shape: degrade to exit-code semantics plus raw text.
			out.Passed = boolPtr(res.ExitCode == 0)
			out.IssuesCount = countNonEmptyLines(res.Stdout)
			return out, rec
		}
		for _, issue := range issues {
			out.Issues = append(out.Issues, metrics.LintIssue{
				File:    issue.Filename,
				Line:    issue.Location.Row,
				Code:    issue.Code,
				Message: issue.Message,
			})
		}
		out.IssuesCount = len(issues)
		out.Passed = boolPtr(len(issues) == 0)
		return out, rec
	}

	if path, ok := toolexec.LookupTool("flake8"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"."},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("flake8", cmd, res)
		if rec.State != StateCompleted {
			return out, rec
		}
		out.ToolUsed = "flake8"
		out.Issues = parseFlake8(res.Stdout)
		out.IssuesCount = len(out.Issues)
		out.Passed = boolPtr(res.ExitCode == 0)
		return out, rec
	}

	return out, notFoundRecord("ruff", "flake8")
}

var flake8Line = regexp.MustCompile(`^(.+?):(\d+):\d+:\s+(\S+)\s+(.*)$`)

func parseFlake8(output string) []metrics.LintIssue {
	issues := []metrics.LintIssue{}
	for _, line := range strings.Split(output, "\n") {
		m := flake8Line.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		row, _ := strconv.Atoi(m[2])
		issues = append(issues, metrics.LintIssue{File: m[1], Line: row, Code: m[3], Message: m[4]})
	}
	return issues
}

// RunBuild probes `uv build`, then `<interpreter> -m build`.
func (r *PythonRunner) RunBuild(ctx context.Context, dir string) (*bool, metrics.BuildDetails, ToolRecord) {
	details := metrics.BuildDetails{ToolUsed: "none"}

	if path, ok := toolexec.LookupTool("uv"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"build"},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("uv", cmd, res)
		if rec.State != StateCompleted {
			return nil, details, rec
		}
		details.ToolUsed = "uv build"
		details.Output = truncate(res.Output(), 4000)
		return boolPtr(res.ExitCode == 0), details, rec
	}

	if r.interpreter != "" {
		cmd := toolexec.Command{
			Binary:           r.interpreter,
			Arguments:        []string{"-m", "build", "--no-isolation"},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("python -m build", cmd, res)
		if rec.State != StateCompleted {
			return nil, details, rec
		}
		// The build module itself may be uninstalled; that is tool-missing,
		// not a failed build.
		if res.ExitCode != 0 && strings.Contains(res.Stderr, "No module named build") {
			rec.State = StateNotFound
			rec.Tool = "none"
			rec.Message = "build module not installed"
			return nil, details, rec
		}
		details.ToolUsed = "python -m build"
		details.Output = truncate(res.Output(), 4000)
		return boolPtr(res.ExitCode == 0), details, rec
	}

	return nil, details, notFoundRecord("uv", "python -m build")
}

var (
	pytestPassed  = regexp.MustCompile(`(\d+) passed`)
	pytestFailed  = regexp.MustCompile(`(\d+) failed`)
	pytestErrors  = regexp.MustCompile(`(\d+) error`)
	coverageTotal = regexp.MustCompile(`TOTAL\s+\d+\s+\d+\s+(\d+)%`)
)

// RunTests runs pytest and parses its terse summary. Coverage appears when
// the repository configures pytest-cov; otherwise it stays null.
func (r *PythonRunner) RunTests(ctx context.Context, dir string) (metrics.TestExecution, metrics.CoverageReport, ToolRecord) {
	exec := metrics.TestExecution{Framework: "none", ToolUsed: "none"}
	cov := metrics.CoverageReport{ToolUsed: "none"}

	path, ok := toolexec.LookupTool("pytest")
	if !ok {
		return exec, cov, notFoundRecord("pytest")
	}

	cmd := toolexec.Command{
		Binary:           path,
		Arguments:        []string{"-q", "--color=no"},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("pytest", cmd, res)
	rec.Version = toolVersion(ctx, r.exec, path)
	if rec.State != StateCompleted {
		return exec, cov, rec
	}

	exec.Framework = "pytest"
	exec.ToolUsed = "pytest"
	output := res.Output()
	if m := pytestPassed.FindStringSubmatch(output); m != nil {
		exec.TestsPassed, _ = strconv.Atoi(m[1])
	}
	if m := pytestFailed.FindStringSubmatch(output); m != nil {
		exec.TestsFailed, _ = strconv.Atoi(m[1])
	}
	if m := pytestErrors.FindStringSubmatch(output); m != nil {
		exec.TestsFailed += atoi(m[1])
	}
	exec.TestsRun = exec.TestsPassed + exec.TestsFailed

	if m := coverageTotal.FindStringSubmatch(output); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		cov.Percentage = &pct
		cov.ToolUsed = "pytest-cov"
	}
	return exec, cov, rec
}

// pipAuditOutput is the subset of pip-audit's JSON we consume.
type pipAuditOutput struct {
	Dependencies []struct {
		Name  string `json:"name"`
		Vulns []struct {
			ID string `json:"id"`
		} `json:"vulns"`
	} `json:"dependencies"`
}

// RunSecurityAudit runs pip-audit over the environment description.
func (r *PythonRunner) RunSecurityAudit(ctx context.Context, dir string) (metrics.SecurityAudit, metrics.DependencyAudit, ToolRecord) {
	audit := metrics.SecurityAudit{ToolUsed: "none"}
	deps := metrics.DependencyAudit{ToolUsed: "none"}

	path, ok := toolexec.LookupTool("pip-audit")
	if !ok {
		return audit, deps, notFoundRecord("pip-audit")
	}

	cmd := toolexec.Command{
		Binary:           path,
		Arguments:        []string{"--format", "json", "--progress-spinner", "off"},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("pip-audit", cmd, res)
	if rec.State != StateCompleted {
		return audit, deps, rec
	}

	audit.ToolUsed = "pip-audit"
	deps.ToolUsed = "pip-audit"

	var parsed pipAuditOutput
	if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
		audit.Details = truncate(res.Output(), 2000)
		return audit, deps, rec
	}

	vulnerable := 0
	for _, dep := range parsed.Dependencies {
		audit.VulnerabilitiesFound += len(dep.Vulns)
		if len(dep.Vulns) > 0 {
			vulnerable++
		}
	}
	// pip-audit does not grade severity in this format; treat every finding
	// as potentially high until proven otherwise.
	audit.HighSeverityCount = audit.VulnerabilitiesFound
	audit.Details = fmt.Sprintf("%d vulnerabilities across %d dependencies", audit.VulnerabilitiesFound, vulnerable)
	deps.Details = fmt.Sprintf("%d of %d dependencies vulnerable", vulnerable, len(parsed.Dependencies))
	return audit, deps, rec
}

// RunFormattingCheck probes `ruff format --check`, then `black --check`.
func (r *PythonRunner) RunFormattingCheck(ctx context.Context, dir string) (*bool, ToolRecord) {
	if path, ok := toolexec.LookupTool("ruff"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"format", "--check", "."},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("ruff format", cmd, res)
		if rec.State != StateCompleted {
			return nil, rec
		}
		return boolPtr(res.ExitCode == 0), rec
	}

	if path, ok := toolexec.LookupTool("black"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"--check", "--quiet", "."},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("black", cmd, res)
		if rec.State != StateCompleted {
			return nil, rec
		}
		return boolPtr(res.ExitCode == 0), rec
	}

	return nil, notFoundRecord("ruff", "black")
}

func countNonEmptyLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
