// Package runner hosts the per-language tool runners. A runner is a set of
// optional capabilities (lint, build, test, security audit, formatting); the
// orchestrator discovers what a runner can do through type assertions and
// stays oblivious to which languages exist.
//
// Every capability call produces exactly one ToolRecord, even when the
// preferred binary is absent: tool-missing is an outcome, not an error.
package runner

import (
	"context"
	"strings"
	"time"

	"repocheck/internal/metrics"
	"repocheck/internal/toolexec"
)

// State is the final state of one tool invocation.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateNotFound  State = "not_found"
)

// ToolRecord describes one external tool invocation: the command line, the
// captured output and the final state.
type ToolRecord struct {
	Tool        string        `json:"tool"`
	Version     string        `json:"version,omitempty"`
	CommandLine string        `json:"command_line,omitempty"`
	ExitStatus  int           `json:"exit_status"`
	Stdout      string        `json:"stdout,omitempty"`
	Stderr      string        `json:"stderr,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	State       State         `json:"state"`
	Message     string        `json:"message,omitempty"`
}

// Runner is the minimal surface every language runner has.
type Runner interface {
	Language() string
}

// Linter runs the language's preferred linter.
type Linter interface {
	RunLinting(ctx context.Context, dir string) (metrics.LintResults, ToolRecord)
}

// Builder attempts a build. The first return is build_success: nil when no
// build tool was available.
type Builder interface {
	RunBuild(ctx context.Context, dir string) (*bool, metrics.BuildDetails, ToolRecord)
}

// Tester runs the repository's own test suite and extracts coverage when the
// output carries it.
type Tester interface {
	RunTests(ctx context.Context, dir string) (metrics.TestExecution, metrics.CoverageReport, ToolRecord)
}

// SecurityAuditor runs a vulnerability scan over the dependency set.
type SecurityAuditor interface {
	RunSecurityAudit(ctx context.Context, dir string) (metrics.SecurityAudit, metrics.DependencyAudit, ToolRecord)
}

// FormattingChecker verifies formatting compliance. nil means no formatter
// was available to ask.
type FormattingChecker interface {
	RunFormattingCheck(ctx context.Context, dir string) (*bool, ToolRecord)
}

// notFoundRecord is the uniform record for an absent binary.
func notFoundRecord(probed ...string) ToolRecord {
	return ToolRecord{
		Tool:       "none",
		ExitStatus: -1,
		State:      StateNotFound,
		Message:    "no tool available (probed: " + strings.Join(probed, ", ") + ")",
	}
}

// recordFor normalizes a toolexec result into a ToolRecord.
func recordFor(tool string, cmd toolexec.Command, res *toolexec.Result) ToolRecord {
	rec := ToolRecord{
		Tool:        tool,
		CommandLine: cmd.CommandString(),
		ExitStatus:  res.ExitCode,
		Stdout:      res.Stdout,
		Stderr:      res.Stderr,
		Elapsed:     res.Duration,
		State:       StateCompleted,
	}
	switch {
	case res.TimedOut || res.Canceled:
		rec.State = StateTimedOut
		rec.Message = "killed at deadline"
	case res.Err != nil:
		rec.State = StateFailed
		rec.Message = res.Err.Error()
	}
	return rec
}

// toolVersion best-effort queries `<binary> --version` and returns the first
// output line. Failures yield an empty version.
func toolVersion(ctx context.Context, exec *toolexec.Executor, binary string, args ...string) string {
	if len(args) == 0 {
		args = []string{"--version"}
	}
	res := exec.Run(ctx, toolexec.Command{
		Binary:    binary,
		Arguments: args,
		Timeout:   10 * time.Second,
	})
	if res.Err != nil || res.ExitCode != 0 {
		return ""
	}
	line := strings.TrimSpace(res.Stdout)
	if line == "" {
		line = strings.TrimSpace(res.Stderr)
	}
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return line
}

func boolPtr(b bool) *bool { return &b }

// truncate caps free-form detail strings stored in the metrics record.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "... [truncated]"
}
