// Package pipeline orchestrates one evaluation run: workspace acquisition,
// clone, language detection, concurrent tool dispatch, checklist evaluation
// and artifact writing. The pipeline owns failure classification; the CLI
// only maps the returned kind to an exit code.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repocheck/internal/checklist"
	"repocheck/internal/config"
	"repocheck/internal/detect"
	"repocheck/internal/evidence"
	"repocheck/internal/fetch"
	"repocheck/internal/metrics"
	"repocheck/internal/rubric"
	"repocheck/internal/runner"
	"repocheck/internal/scorecard"
	"repocheck/internal/toolexec"
	"repocheck/internal/workspace"
)

// Kind classifies a run failure for exit-code mapping.
type Kind int

const (
	KindNone Kind = iota
	// KindInvalidInput covers bad URLs, bad flags and bad rubric files.
	KindInvalidInput
	// KindFetch covers clone failures of every flavor.
	KindFetch
	// KindInternal covers workspace, schema and artifact failures.
	KindInternal
	// KindGlobalTimeout means the whole-run deadline expired. Partial
	// artifacts are still written before this is returned.
	KindGlobalTimeout
)

// RunError is a classified pipeline failure.
type RunError struct {
	Kind Kind
	Err  error
}

func (e *RunError) Error() string { return e.Err.Error() }
func (e *RunError) Unwrap() error { return e.Err }

func failure(kind Kind, err error) *RunError {
	return &RunError{Kind: kind, Err: err}
}

// Pipeline runs evaluations.
type Pipeline struct {
	opts config.Options
	log  *zap.Logger
}

// New creates a pipeline with validated options.
func New(opts config.Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{opts: opts, log: log}
}

// Run evaluates one repository and writes all artifacts into the output
// directory. The returned error, if any, is always a *RunError.
func (p *Pipeline) Run(ctx context.Context, url, revision string) error {
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	record := metrics.NewRecord()
	record.Repository.URL = url
	record.Repository.LanguageDistribution = map[string]float64{}

	ws, err := workspace.Acquire(p.log)
	if err != nil {
		return failure(KindInternal, err)
	}
	defer ws.Release()

	exec := toolexec.NewExecutor(toolexec.Config{
		DefaultTimeout: p.opts.ToolTimeout,
	}, p.log)

	// Fetch. A failure here still produces a submission.json carrying the
	// error, so downstream consumers see why the record is empty.
	fetcher := fetch.NewFetcher(exec, fetch.Config{MaxSizeMB: p.opts.MaxRepoSizeMB}, p.log)
	fetchResult, err := fetcher.Fetch(ctx, url, revision, ws.RepoDir)
	if err != nil {
		if ctx.Err() != nil {
			record.AddError("git", "fetch", "global_timeout", "run deadline expired during clone")
			p.finishRecord(record, started)
			p.writeSubmission(record)
			return failure(KindGlobalTimeout, fmt.Errorf("run deadline expired during clone"))
		}
		var fe *fetch.Error
		if errors.As(err, &fe) {
			record.AddError("git", "fetch", string(fe.Kind), fe.Message)
			p.finishRecord(record, started)
			p.writeSubmission(record)
			if fe.Kind == fetch.KindInvalidURL {
				return failure(KindInvalidInput, err)
			}
			return failure(KindFetch, err)
		}
		return failure(KindInternal, err)
	}

	record.Repository.CommitSHA = fetchResult.CommitSHA
	record.Repository.ClonedAt = fetchResult.ClonedAt
	record.Repository.SizeMB = round2(fetchResult.SizeMB)

	// Detect. Rust repositories are tallied in the distribution but the
	// descriptor tag set is closed, so a rust majority degrades to unknown.
	detection := detect.Detect(ws.RepoDir)
	record.Repository.PrimaryLanguage = descriptorLanguage(detection.Primary)
	record.Repository.LanguageDistribution = detection.Distribution
	p.log.Info("language detected",
		zap.String("primary", record.Repository.PrimaryLanguage),
		zap.Float64("confidence", detection.Confidence))

	// Tool dispatch.
	p.runTools(ctx, exec, ws.RepoDir, record)

	// Static analysis runs even for unknown languages.
	record.Metrics.Documentation = runner.AnalyzeDocumentation(ws.RepoDir)
	runner.DetectTestMeta(ws.RepoDir, record.Repository.PrimaryLanguage, &record.Metrics.Testing)
	record.Metrics.Testing.CalculatedScore = runner.CalculateTestingScore(&record.Metrics.Testing)

	timedOut := ctx.Err() != nil
	if timedOut {
		record.AddError("", "pipeline", "global_timeout", "run deadline expired during tool execution")
	}

	p.finishRecord(record, started)

	if err := record.Validate(); err != nil {
		return failure(KindInternal, err)
	}
	if err := p.writeSubmission(record); err != nil {
		return err
	}

	if p.opts.EnableChecklist {
		if err := p.runChecklist(record); err != nil {
			return err
		}
	}

	if timedOut {
		return failure(KindGlobalTimeout, fmt.Errorf("run deadline expired after %s", p.opts.Timeout))
	}
	return nil
}

// runTools dispatches every capability the language runner exposes. The
// capabilities are independent, so they run concurrently, bounded by CPU
// count; each writes into its own record region.
func (p *Pipeline) runTools(ctx context.Context, exec *toolexec.Executor, dir string, record *metrics.Record) {
	r := runner.ForLanguage(record.Repository.PrimaryLanguage, exec, p.log)
	if r == nil {
		p.log.Info("no toolchain integration for language",
			zap.String("language", record.Repository.PrimaryLanguage))
		return
	}

	type toolOutcome struct {
		record runner.ToolRecord
		phase  string
		apply  func()
	}
	outcomes := make(chan toolOutcome, 8)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	if linter, ok := r.(runner.Linter); ok {
		g.Go(func() error {
			results, rec := linter.RunLinting(gctx, dir)
			outcomes <- toolOutcome{rec, "lint", func() {
				record.Metrics.CodeQuality.LintResults = results
			}}
			return nil
		})
	}
	if builder, ok := r.(runner.Builder); ok {
		g.Go(func() error {
			success, details, rec := builder.RunBuild(gctx, dir)
			outcomes <- toolOutcome{rec, "build", func() {
				record.Metrics.CodeQuality.BuildSuccess = success
				record.Metrics.CodeQuality.BuildDetails = details
			}}
			return nil
		})
	}
	if tester, ok := r.(runner.Tester); ok {
		g.Go(func() error {
			execution, coverage, rec := tester.RunTests(gctx, dir)
			outcomes <- toolOutcome{rec, "test", func() {
				record.Metrics.Testing.TestExecution = execution
				record.Metrics.Testing.CoverageReport = coverage
			}}
			return nil
		})
	}
	if auditor, ok := r.(runner.SecurityAuditor); ok {
		g.Go(func() error {
			audit, deps, rec := auditor.RunSecurityAudit(gctx, dir)
			outcomes <- toolOutcome{rec, "security", func() {
				record.Metrics.CodeQuality.SecurityAudit = audit
				record.Metrics.CodeQuality.DependencyAudit = deps
			}}
			return nil
		})
	}
	if checker, ok := r.(runner.FormattingChecker); ok {
		g.Go(func() error {
			compliant, rec := checker.RunFormattingCheck(gctx, dir)
			outcomes <- toolOutcome{rec, "format", func() {
				record.Metrics.CodeQuality.FormattingCompliance = compliant
			}}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	// Record mutation happens only here, on a single goroutine.
	for outcome := range outcomes {
		outcome.apply()
		rec := outcome.record
		record.AddToolUsed(rec.Tool)
		switch rec.State {
		case runner.StateFailed:
			record.AddError(rec.Tool, outcome.phase, "tool_failure", rec.Message)
		case runner.StateTimedOut:
			record.AddError(rec.Tool, outcome.phase, "timeout", rec.Message)
		}
		p.log.Debug("tool finished",
			zap.String("phase", outcome.phase),
			zap.String("tool", rec.Tool),
			zap.String("state", string(rec.State)),
			zap.Duration("elapsed", rec.Elapsed))
	}
}

// runChecklist executes the rubric stage and writes its artifacts.
func (p *Pipeline) runChecklist(record *metrics.Record) error {
	r, err := rubric.Load(p.opts.ChecklistConfig)
	if err != nil {
		return failure(KindInvalidInput, err)
	}

	tree, err := record.ToTree()
	if err != nil {
		return failure(KindInternal, err)
	}

	tracker := evidence.NewTracker(p.log)
	evaluator := checklist.NewEvaluator(r, tracker, p.log)
	// Evidence timestamps derive from the record, not the wall clock, so
	// re-evaluating the same record reproduces the artifacts byte for byte.
	evaluator.PinTimestamp(record.Execution.Timestamp)
	items := evaluator.Evaluate(tree)

	if _, err := tracker.Persist(p.opts.OutputDir, record.Execution.Timestamp); err != nil {
		return failure(KindInternal, err)
	}

	sc := scorecard.Build(record, items, tracker.Summary(), r)

	if p.opts.Format == config.FormatJSON || p.opts.Format == config.FormatBoth {
		path := filepath.Join(p.opts.OutputDir, "score_input.json")
		if err := metrics.WriteCanonicalFile(path, sc); err != nil {
			return failure(KindInternal, err)
		}
	}
	if p.opts.Format == config.FormatMarkdown || p.opts.Format == config.FormatBoth {
		path := filepath.Join(p.opts.OutputDir, "evaluation_report.md")
		if err := writeReport(path, sc); err != nil {
			return failure(KindInternal, err)
		}
	}

	p.log.Info("evaluation complete",
		zap.Float64("total_score", sc.TotalScore),
		zap.String("grade", scorecard.Grade(sc.ScorePercentage)))
	return nil
}

func (p *Pipeline) finishRecord(record *metrics.Record, started time.Time) {
	record.Execution.DurationSeconds = round2(time.Since(started).Seconds())
	record.Execution.Timestamp = time.Now().UTC()
	if record.Repository.PrimaryLanguage == "" {
		record.Repository.PrimaryLanguage = "unknown"
	}
}

func (p *Pipeline) writeSubmission(record *metrics.Record) *RunError {
	path := filepath.Join(p.opts.OutputDir, "submission.json")
	if err := metrics.WriteCanonicalFile(path, record); err != nil {
		return failure(KindInternal, err)
	}
	p.log.Info("metrics record written", zap.String("path", path))
	return nil
}

func writeReport(path string, sc *scorecard.Scorecard) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(scorecard.RenderMarkdown(sc)), 0o644); err != nil {
		return fmt.Errorf("write evaluation report: %w", err)
	}
	return nil
}

// descriptorLanguage maps a detected language onto the closed descriptor tag
// set.
func descriptorLanguage(detected string) string {
	switch detected {
	case detect.LangPython, detect.LangJavaScript, detect.LangTypeScript,
		detect.LangJava, detect.LangGo:
		return detected
	default:
		return "unknown"
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
