package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"repocheck/internal/metrics"
	"repocheck/internal/toolexec"
)

// NodeRunner covers JavaScript and TypeScript repositories. Both share the
// same npm-centric toolchain; only the language tag differs.
type NodeRunner struct {
	exec     *toolexec.Executor
	log      *zap.Logger
	language string
}

func NewNodeRunner(exec *toolexec.Executor, log *zap.Logger, language string) *NodeRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &NodeRunner{exec: exec, log: log, language: language}
}

func (r *NodeRunner) Language() string { return r.language }

// packageJSON is the subset of package.json we inspect for scripts and
// dev-dependency framework hints.
type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func readPackageJSON(dir string) (*packageJSON, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, false
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, false
	}
	return &pkg, true
}

// eslintFile is one entry of eslint's JSON formatter output.
type eslintFile struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   string `json:"ruleId"`
		Severity int    `json:"severity"`
		Message  string `json:"message"`
		Line     int    `json:"line"`
	} `json:"messages"`
}

// RunLinting runs eslint with the JSON formatter.
func (r *NodeRunner) RunLinting(ctx context.Context, dir string) (metrics.LintResults, ToolRecord) {
	out := metrics.LintResults{ToolUsed: "none", Issues: []metrics.LintIssue{}}

	path, ok := toolexec.LookupTool("eslint")
	if !ok {
		// Repo-local install via npx, only when eslint is declared.
		if pkg, found := readPackageJSON(dir); found && (pkg.DevDependencies["eslint"] != "" || pkg.Dependencies["eslint"] != "") {
			if npx, haveNpx := toolexec.LookupTool("npx"); haveNpx {
				return r.runESLint(ctx, dir, npx, []string{"--no-install", "eslint", ".", "--format", "json"})
			}
		}
		return out, notFoundRecord("eslint")
	}
	return r.runESLint(ctx, dir, path, []string{".", "--format", "json"})
}

func (r *NodeRunner) runESLint(ctx context.Context, dir, binary string, args []string) (metrics.LintResults, ToolRecord) {
	out := metrics.LintResults{ToolUsed: "none", Issues: []metrics.LintIssue{}}

	cmd := toolexec.Command{Binary: binary, Arguments: args, WorkingDirectory: dir}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("eslint", cmd, res)
	if rec.State != StateCompleted {
		return out, rec
	}

	out.ToolUsed = "eslint"
	var files []eslintFile
	if err := json.Unmarshal([]byte(res.Stdout), &files); err != nil {
		out.Passed = boolPtr(res.ExitCode == 0)
		return out, rec
	}
	for _, f := range files {
		for _, m := range f.Messages {
			severity := "warning"
			if m.Severity == 2 {
				severity = "error"
			}
			out.Issues = append(out.Issues, metrics.LintIssue{
				File: f.FilePath, Line: m.Line, Code: m.RuleID,
				Message: m.Message, Severity: severity,
			})
		}
	}
	out.IssuesCount = len(out.Issues)
	out.Passed = boolPtr(len(out.Issues) == 0)
	return out, rec
}

// RunBuild runs `npm run build` when the script exists; a repository without
// a build script is buildless, not broken.
func (r *NodeRunner) RunBuild(ctx context.Context, dir string) (*bool, metrics.BuildDetails, ToolRecord) {
	details := metrics.BuildDetails{ToolUsed: "none"}

	pkg, found := readPackageJSON(dir)
	if !found || pkg.Scripts["build"] == "" {
		rec := notFoundRecord("npm run build")
		rec.Message = "no build script in package.json"
		return nil, details, rec
	}

	npm, ok := toolexec.LookupTool("npm")
	if !ok {
		return nil, details, notFoundRecord("npm")
	}

	cmd := toolexec.Command{
		Binary:           npm,
		Arguments:        []string{"run", "build"},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("npm run build", cmd, res)
	if rec.State != StateCompleted {
		return nil, details, rec
	}
	details.ToolUsed = "npm run build"
	details.Output = truncate(res.Output(), 4000)
	return boolPtr(res.ExitCode == 0), details, rec
}

var (
	jestSummary  = regexp.MustCompile(`Tests:\s+(?:(\d+) failed, )?(?:(\d+) skipped, )?(\d+) passed, (\d+) total`)
	mochaPassing = regexp.MustCompile(`(\d+) passing`)
	mochaFailing = regexp.MustCompile(`(\d+) failing`)
	jestCoverage = regexp.MustCompile(`All files\s*\|\s*([\d.]+)`)
)

// RunTests runs `npm test` and recognizes jest and mocha summaries.
func (r *NodeRunner) RunTests(ctx context.Context, dir string) (metrics.TestExecution, metrics.CoverageReport, ToolRecord) {
	exec := metrics.TestExecution{Framework: "none", ToolUsed: "none"}
	cov := metrics.CoverageReport{ToolUsed: "none"}

	pkg, found := readPackageJSON(dir)
	if !found || pkg.Scripts["test"] == "" {
		rec := notFoundRecord("npm test")
		rec.Message = "no test script in package.json"
		return exec, cov, rec
	}

	npm, ok := toolexec.LookupTool("npm")
	if !ok {
		return exec, cov, notFoundRecord("npm")
	}

	cmd := toolexec.Command{
		Binary:           npm,
		Arguments:        []string{"test", "--", "--ci"},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("npm test", cmd, res)
	if rec.State != StateCompleted {
		return exec, cov, rec
	}

	exec.ToolUsed = "npm test"
	output := res.Output()

	if m := jestSummary.FindStringSubmatch(output); m != nil {
		exec.Framework = "jest"
		exec.TestsFailed = atoi(m[1])
		exec.TestsPassed = atoi(m[3])
		exec.TestsRun = atoi(m[4])
	} else if m := mochaPassing.FindStringSubmatch(output); m != nil {
		exec.Framework = "mocha"
		exec.TestsPassed = atoi(m[1])
		if f := mochaFailing.FindStringSubmatch(output); f != nil {
			exec.TestsFailed = atoi(f[1])
		}
		exec.TestsRun = exec.TestsPassed + exec.TestsFailed
	} else {
		exec.Framework = detectNodeFramework(pkg)
	}

	if m := jestCoverage.FindStringSubmatch(output); m != nil {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err == nil && pct >= 0 && pct <= 100 {
			cov.Percentage = &pct
			cov.ToolUsed = "jest --coverage"
		}
	}
	return exec, cov, rec
}

func detectNodeFramework(pkg *packageJSON) string {
	for _, name := range []string{"jest", "mocha", "vitest", "ava", "tap"} {
		if pkg.DevDependencies[name] != "" || pkg.Dependencies[name] != "" {
			return name
		}
	}
	return "none"
}

// npmAuditOutput is the metadata block of `npm audit --json`.
type npmAuditOutput struct {
	Metadata struct {
		Vulnerabilities struct {
			Low      int `json:"low"`
			Moderate int `json:"moderate"`
			High     int `json:"high"`
			Critical int `json:"critical"`
			Total    int `json:"total"`
		} `json:"vulnerabilities"`
	} `json:"metadata"`
}

// RunSecurityAudit runs `npm audit --json`. Nonzero exit just means findings
// exist, so only the parse outcome matters.
func (r *NodeRunner) RunSecurityAudit(ctx context.Context, dir string) (metrics.SecurityAudit, metrics.DependencyAudit, ToolRecord) {
	audit := metrics.SecurityAudit{ToolUsed: "none"}
	deps := metrics.DependencyAudit{ToolUsed: "none"}

	npm, ok := toolexec.LookupTool("npm")
	if !ok {
		return audit, deps, notFoundRecord("npm")
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		rec := notFoundRecord("npm audit")
		rec.Message = "no package.json"
		return audit, deps, rec
	}

	cmd := toolexec.Command{
		Binary:           npm,
		Arguments:        []string{"audit", "--json"},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("npm audit", cmd, res)
	if rec.State != StateCompleted {
		return audit, deps, rec
	}

	audit.ToolUsed = "npm audit"
	deps.ToolUsed = "npm audit"

	var parsed npmAuditOutput
	if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
		audit.Details = truncate(res.Output(), 2000)
		return audit, deps, rec
	}
	v := parsed.Metadata.Vulnerabilities
	audit.VulnerabilitiesFound = v.Total
	audit.HighSeverityCount = v.High + v.Critical
	audit.Details = fmt.Sprintf("low=%d moderate=%d high=%d critical=%d", v.Low, v.Moderate, v.High, v.Critical)
	deps.Details = fmt.Sprintf("%d vulnerable dependency paths", v.Total)
	return audit, deps, rec
}

// RunFormattingCheck runs `prettier --check`.
func (r *NodeRunner) RunFormattingCheck(ctx context.Context, dir string) (*bool, ToolRecord) {
	path, ok := toolexec.LookupTool("prettier")
	if !ok {
		if npx, haveNpx := toolexec.LookupTool("npx"); haveNpx {
			if pkg, found := readPackageJSON(dir); found && (pkg.DevDependencies["prettier"] != "" || pkg.Dependencies["prettier"] != "") {
				cmd := toolexec.Command{
					Binary:           npx,
					Arguments:        []string{"--no-install", "prettier", "--check", "."},
					WorkingDirectory: dir,
				}
				res := r.exec.Run(ctx, cmd)
				rec := recordFor("prettier", cmd, res)
				if rec.State != StateCompleted {
					return nil, rec
				}
				return boolPtr(res.ExitCode == 0), rec
			}
		}
		return nil, notFoundRecord("prettier")
	}

	cmd := toolexec.Command{
		Binary:           path,
		Arguments:        []string{"--check", "."},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("prettier", cmd, res)
	if rec.State != StateCompleted {
		return nil, rec
	}
	return boolPtr(res.ExitCode == 0), rec
}
