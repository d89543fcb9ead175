// Package metrics defines the unified, schema-conformant metrics record that
// every tool runner writes into and the checklist evaluator reads from.
// Missing tool outputs appear as explicit nulls or "none", never as absent
// keys.
package metrics

import (
	"encoding/json"
	"fmt"
	"time"
)

// Repository is the immutable descriptor captured at clone time.
type Repository struct {
	URL                  string             `json:"url"`
	CommitSHA            string             `json:"commit_sha"`
	PrimaryLanguage      string             `json:"primary_language"`
	LanguageDistribution map[string]float64 `json:"language_distribution"`
	ClonedAt             time.Time          `json:"cloned_at"`
	SizeMB               float64            `json:"size_mb"`
}

// LintIssue is one normalized linter finding.
type LintIssue struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// LintResults is the lint subregion of code quality.
type LintResults struct {
	ToolUsed    string      `json:"tool_used"`
	Passed      *bool       `json:"passed"`
	IssuesCount int         `json:"issues_count"`
	Issues      []LintIssue `json:"issues"`
}

// BuildDetails records how the build was attempted.
type BuildDetails struct {
	ToolUsed string `json:"tool_used"`
	Output   string `json:"output,omitempty"`
}

// SecurityAudit is the vulnerability-scan subregion.
type SecurityAudit struct {
	ToolUsed             string `json:"tool_used"`
	VulnerabilitiesFound int    `json:"vulnerabilities_found"`
	HighSeverityCount    int    `json:"high_severity_count"`
	Details              string `json:"details,omitempty"`
}

// DependencyAudit summarizes dependency health.
type DependencyAudit struct {
	ToolUsed string `json:"tool_used"`
	Details  string `json:"details,omitempty"`
}

// CodeQuality is the code-quality dimension of the record.
type CodeQuality struct {
	LintResults          LintResults     `json:"lint_results"`
	BuildSuccess         *bool           `json:"build_success"`
	BuildDetails         BuildDetails    `json:"build_details"`
	SecurityAudit        SecurityAudit   `json:"security_audit"`
	DependencyAudit      DependencyAudit `json:"dependency_audit"`
	FormattingCompliance *bool           `json:"formatting_compliance"`
}

// TestExecution is the outcome of running the repository's own tests.
type TestExecution struct {
	Framework   string `json:"framework"`
	TestsRun    int    `json:"tests_run"`
	TestsPassed int    `json:"tests_passed"`
	TestsFailed int    `json:"tests_failed"`
	ToolUsed    string `json:"tool_used"`
}

// CoverageReport holds the measured coverage, nil when unavailable.
type CoverageReport struct {
	Percentage *float64 `json:"percentage"`
	ToolUsed   string   `json:"tool_used"`
}

// Testing is the testing dimension of the record.
type Testing struct {
	TestExecution          TestExecution  `json:"test_execution"`
	CoverageReport         CoverageReport `json:"coverage_report"`
	TestFilesDetected      int            `json:"test_files_detected"`
	TestConfigDetected     bool           `json:"test_config_detected"`
	CoverageConfigDetected bool           `json:"coverage_config_detected"`
	CIPlatform             string         `json:"ci_platform"`
	CalculatedScore        float64        `json:"calculated_score"`
}

// Documentation is the documentation dimension of the record.
type Documentation struct {
	ReadmePresent      bool    `json:"readme_present"`
	ReadmeQualityScore float64 `json:"readme_quality_score"`
	APIDocumentation   bool    `json:"api_documentation"`
	SetupInstructions  bool    `json:"setup_instructions"`
	UsageExamples      bool    `json:"usage_examples"`
}

// Metrics groups the three scored dimensions.
type Metrics struct {
	CodeQuality   CodeQuality   `json:"code_quality"`
	Testing       Testing       `json:"testing"`
	Documentation Documentation `json:"documentation"`
}

// ExecutionError is one soft failure collected during the run.
type ExecutionError struct {
	Tool    string `json:"tool,omitempty"`
	Phase   string `json:"phase"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"`
}

// Execution carries run-level bookkeeping.
type Execution struct {
	ToolsUsed       []string         `json:"tools_used"`
	Errors          []ExecutionError `json:"errors"`
	DurationSeconds float64          `json:"duration_seconds"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Record is the complete metrics record written to submission.json.
type Record struct {
	Repository Repository `json:"repository"`
	Metrics    Metrics    `json:"metrics"`
	Execution  Execution  `json:"execution"`
}

// NewRecord returns a record with every subregion initialized to its explicit
// "tool absent" shape, so a run that dispatches nothing still validates.
func NewRecord() *Record {
	return &Record{
		Metrics: Metrics{
			CodeQuality: CodeQuality{
				LintResults:     LintResults{ToolUsed: "none", Issues: []LintIssue{}},
				BuildDetails:    BuildDetails{ToolUsed: "none"},
				SecurityAudit:   SecurityAudit{ToolUsed: "none"},
				DependencyAudit: DependencyAudit{ToolUsed: "none"},
			},
			Testing: Testing{
				TestExecution:  TestExecution{Framework: "none", ToolUsed: "none"},
				CoverageReport: CoverageReport{ToolUsed: "none"},
				CIPlatform:     "none",
			},
		},
		Execution: Execution{
			ToolsUsed: []string{},
			Errors:    []ExecutionError{},
		},
	}
}

// AddError appends a soft failure to execution.errors.
func (r *Record) AddError(tool, phase, kind, message string) {
	r.Execution.Errors = append(r.Execution.Errors, ExecutionError{
		Tool: tool, Phase: phase, Kind: kind, Message: message,
	})
}

// AddToolUsed records a dispatched tool name once.
func (r *Record) AddToolUsed(tool string) {
	if tool == "" || tool == "none" {
		return
	}
	for _, t := range r.Execution.ToolsUsed {
		if t == tool {
			return
		}
	}
	r.Execution.ToolsUsed = append(r.Execution.ToolsUsed, tool)
}

// validLanguages is the closed descriptor tag set.
var validLanguages = map[string]bool{
	"python": true, "javascript": true, "typescript": true,
	"java": true, "go": true, "unknown": true,
}

// Validate checks the record against the declared schema. A violation here is
// fatal: downstream judges depend on the shape bit-for-bit.
func (r *Record) Validate() error {
	if !validLanguages[r.Repository.PrimaryLanguage] {
		return fmt.Errorf("schema mismatch: primary_language %q is not a recognized tag", r.Repository.PrimaryLanguage)
	}
	if r.Metrics.CodeQuality.LintResults.ToolUsed == "" {
		return fmt.Errorf("schema mismatch: lint_results.tool_used must be a tool name or \"none\"")
	}
	if r.Metrics.CodeQuality.LintResults.Issues == nil {
		return fmt.Errorf("schema mismatch: lint_results.issues must be an array, not null")
	}
	if r.Metrics.Testing.TestExecution.ToolUsed == "" {
		return fmt.Errorf("schema mismatch: test_execution.tool_used must be a tool name or \"none\"")
	}
	if p := r.Metrics.Testing.CoverageReport.Percentage; p != nil && (*p < 0 || *p > 100) {
		return fmt.Errorf("schema mismatch: coverage percentage %.2f out of range", *p)
	}
	if q := r.Metrics.Documentation.ReadmeQualityScore; q < 0 || q > 1 {
		return fmt.Errorf("schema mismatch: readme_quality_score %.2f out of [0,1]", q)
	}
	if s := r.Metrics.Testing.CalculatedScore; s < 0 || s > 100 {
		return fmt.Errorf("schema mismatch: testing calculated_score %.2f out of [0,100]", s)
	}
	if r.Execution.ToolsUsed == nil || r.Execution.Errors == nil {
		return fmt.Errorf("schema mismatch: execution arrays must not be null")
	}
	return nil
}

// ToTree renders the record as a generic JSON tree (maps, slices, float64,
// string, bool, nil) for path resolution by the checklist evaluator. The
// evaluator never mutates the record; it only reads this copy.
func (r *Record) ToTree() (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("unmarshal record tree: %w", err)
	}
	return tree, nil
}
