package runner

import (
	"bufio"
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

// GoRunner drives the Go toolchain plus the usual companions: golangci-lint,
// govulncheck and gofmt.
type GoRunner struct {
	exec *toolexec.Executor
	log  *zap.Logger
}

func NewGoRunner(exec *toolexec.Executor, log *zap.Logger) *GoRunner {
	if log == nil {
		log = zap.NewNop()
	}
	return &GoRunner{exec: exec, log: log}
}

func (r *GoRunner) Language() string { return "go" }

// golangciOutput is the Issues array of `golangci-lint run --out-format json`.
type golangciOutput struct {
	Issues []struct {
		FromLinter string `json:"FromLinter"`
		Text       string `json:"Text"`
		Severity   string `json:"Severity"`
		Pos        struct {
			Filename string `json:"Filename"`
			Line     int    `json:"Line"`
		} `json:"Pos"`
	} `json:"Issues"`
}

// RunLinting prefers golangci-lint, falling back to `go vet`.
func (r *GoRunner) RunLinting(ctx context.Context, dir string) (metrics.LintResults, ToolRecord) {
	out := metrics.LintResults{ToolUsed: "none", Issues: []metrics.LintIssue{}}

	if path, ok := toolexec.LookupTool("golangci-lint"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"run", "--out-format", "json", "./..."},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("golangci-lint", cmd, res)
		rec.Version = toolVersion(ctx, r.exec, path, "version")
		if rec.State != StateCompleted {
			return out, rec
		}

		out.ToolUsed = "golangci-lint"
		var parsed golangciOutput
		if err := json.Unmarshal([]byte(res.Stdout), &parsed); err != nil {
			out.Passed = boolPtr(res.ExitCode == 0)
			return out, rec
		}
		for _, issue := range parsed.Issues {
			out.Issues = append(out.Issues, metrics.LintIssue{
				File:     issue.Pos.Filename,
				Line:     issue.Pos.Line,
				Code:     issue.FromLinter,
				Message:  issue.Text,
				Severity: issue.Severity,
			})
		}
		out.IssuesCount = len(out.Issues)
		out.Passed = boolPtr(len(out.Issues) == 0)
		return out, rec
	}

	if path, ok := toolexec.LookupTool("go"); ok {
		cmd := toolexec.Command{
			Binary:           path,
			Arguments:        []string{"vet", "./..."},
			WorkingDirectory: dir,
		}
		res := r.exec.Run(ctx, cmd)
		rec := recordFor("go vet", cmd, res)
		if rec.State != StateCompleted {
			return out, rec
		}
		out.ToolUsed = "go vet"
		out.Issues = parseGoVet(res.Stderr)
		out.IssuesCount = len(out.Issues)
		out.Passed = boolPtr(res.ExitCode == 0)
		return out, rec
	}

	return out, notFoundRecord("golangci-lint", "go vet")
}

var goVetLine = regexp.MustCompile(`^(.+\.go):(\d+):\d+:\s+(.*)$`)

func parseGoVet(stderr string) []metrics.LintIssue {
	issues := []metrics.LintIssue{}
	scanner := bufio.NewScanner(strings.NewReader(stderr))
	for scanner.Scan() {
		m := goVetLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		line, _ := strconv.Atoi(m[2])
		issues = append(issues, metrics.LintIssue{File: m[1], Line: line, Message: m[3]})
	}
	return issues
}

// RunBuild runs `go build ./...`.
func (r *GoRunner) RunBuild(ctx context.Context, dir string) (*bool, metrics.BuildDetails, ToolRecord) {
	details := metrics.BuildDetails{ToolUsed: "none"}

	path, ok := toolexec.LookupTool("go")
	if !ok {
		return nil, details, notFoundRecord("go")
	}

	cmd := toolexec.Command{
		Binary:           path,
		Arguments:        []string{"build", "./..."},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("go build", cmd, res)
	rec.Version = toolVersion(ctx, r.exec, path, "version")
	if rec.State != StateCompleted {
		return nil, details, rec
	}
	details.ToolUsed = "go build"
	details.Output = truncate(res.Output(), 4000)
	return boolPtr(res.ExitCode == 0), details, rec
}

var (
	goTestFail     = regexp.MustCompile(`(?m)^--- FAIL: `)
	goTestPassOnly = regexp.MustCompile(`(?m)^--- PASS: `)
	goCoverage     = regexp.MustCompile(`coverage:\s+([\d.]+)% of statements`)
)

// RunTests runs `go test -v -cover ./...` and counts per-test result lines.
// Coverage lines appear per package; we average them.
func (r *GoRunner) RunTests(ctx context.Context, dir string) (metrics.TestExecution, metrics.CoverageReport, ToolRecord) {
	exec := metrics.TestExecution{Framework: "none", ToolUsed: "none"}
	cov := metrics.CoverageReport{ToolUsed: "none"}

	path, ok := toolexec.LookupTool("go")
	if !ok {
		return exec, cov, notFoundRecord("go")
	}

	cmd := toolexec.Command{
		Binary:           path,
		Arguments:        []string{"test", "-v", "-cover", "./..."},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("go test", cmd, res)
	if rec.State != StateCompleted {
		return exec, cov, rec
	}

	exec.Framework = "go test"
	exec.ToolUsed = "go test"
	output := res.Output()
	exec.TestsPassed = len(goTestPassOnly.FindAllString(output, -1))
	exec.TestsFailed = len(goTestFail.FindAllString(output, -1))
	exec.TestsRun = exec.TestsPassed + exec.TestsFailed

	if matches := goCoverage.FindAllStringSubmatch(output, -1); len(matches) > 0 {
		sum := 0.0
		for _, m := range matches {
			pct, _ := strconv.ParseFloat(m[1], 64)
			sum += pct
		}
		avg := sum / float64(len(matches))
		cov.Percentage = &avg
		cov.ToolUsed = "go test -cover"
	}
	return exec, cov, rec
}

// govulncheckFinding is one streamed finding object of `govulncheck -json`.
type govulncheckFinding struct {
	Finding *struct {
		OSV   string `json:"osv"`
		Trace []struct {
			Module string `json:"module"`
		} `json:"trace"`
	} `json:"finding"`
}

// RunSecurityAudit runs `govulncheck -json` and counts distinct OSV IDs.
func (r *GoRunner) RunSecurityAudit(ctx context.Context, dir string) (metrics.SecurityAudit, metrics.DependencyAudit, ToolRecord) {
	audit := metrics.SecurityAudit{ToolUsed: "none"}
	deps := metrics.DependencyAudit{ToolUsed: "none"}

	path, ok := toolexec.LookupTool("govulncheck")
	if !ok {
		return audit, deps, notFoundRecord("govulncheck")
	}

	cmd := toolexec.Command{
		Binary:           path,
		Arguments:        []string{"-json", "./..."},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("govulncheck", cmd, res)
	if rec.State != StateCompleted {
		return audit, deps, rec
	}

	audit.ToolUsed = "govulncheck"
	deps.ToolUsed = "govulncheck"

	osvs := map[string]bool{}
	modules := map[string]bool{}
	decoder := json.NewDecoder(strings.NewReader(res.Stdout))
	for decoder.More() {
		var entry govulncheckFinding
		if err := decoder.Decode(&entry); err != nil {
			break
		}
		if entry.Finding == nil {
			continue
		}
		osvs[entry.Finding.OSV] = true
		for _, t := range entry.Finding.Trace {
			if t.Module != "" {
				modules[t.Module] = true
			}
		}
	}
	audit.VulnerabilitiesFound = len(osvs)
	// govulncheck reports only reachable vulnerabilities, all actionable.
	audit.HighSeverityCount = len(osvs)
	audit.Details = fmt.Sprintf("%d reachable vulnerabilities", len(osvs))
	deps.Details = fmt.Sprintf("%d modules with reachable vulnerabilities", len(modules))
	return audit, deps, rec
}

// RunFormattingCheck runs `gofmt -l`; any listed file means noncompliance.
func (r *GoRunner) RunFormattingCheck(ctx context.Context, dir string) (*bool, ToolRecord) {
	path, ok := toolexec.LookupTool("gofmt")
	if !ok {
		return nil, notFoundRecord("gofmt")
	}

	cmd := toolexec.Command{
		Binary:           path,
		Arguments:        []string{"-l", "."},
		WorkingDirectory: dir,
	}
	res := r.exec.Run(ctx, cmd)
	rec := recordFor("gofmt", cmd, res)
	if rec.State != StateCompleted {
		return nil, rec
	}
	clean := res.ExitCode == 0 && strings.TrimSpace(res.Stdout) == ""
	return boolPtr(clean), rec
}
