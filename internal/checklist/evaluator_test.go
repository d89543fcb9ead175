package checklist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repocheck/internal/evidence"
	"repocheck/internal/metrics"
	"repocheck/internal/rubric"
)

func lintTree(passed any, issuesCount float64) map[string]any {
	return map[string]any{
		"metrics": map[string]any{
			"code_quality": map[string]any{
				"lint_results": map[string]any{
					"tool_used":    "ruff",
					"passed":       passed,
					"issues_count": issuesCount,
					"issues":       []any{},
				},
			},
		},
	}
}

func lintItem(maxPoints int) rubric.Item {
	return rubric.Item{
		ID:        "lint_check",
		Name:      "Linting",
		Dimension: rubric.DimensionCodeQuality,
		MaxPoints: maxPoints,
		Criteria: rubric.Criteria{
			Met:     []string{"passed == true"},
			Partial: []string{"passed == false AND issues_count <= 10"},
			Unmet:   []string{"passed == false", "tool_used == \"none\""},
		},
		MetricsMapping: rubric.MetricsMapping{
			SourcePath: "metrics.code_quality.lint_results",
		},
	}
}

func evaluate(t *testing.T, item rubric.Item, tree map[string]any) (ScoredItem, *evidence.Tracker) {
	t.Helper()
	r := &rubric.Rubric{ChecklistItems: []rubric.Item{item}}
	tracker := evidence.NewTracker(nil)
	items := NewEvaluator(r, tracker, nil).Evaluate(tree)
	require.Len(t, items, 1)
	return items[0], tracker
}

func TestItemMet(t *testing.T) {
	scored, _ := evaluate(t, lintItem(10), lintTree(true, 0))

	assert.Equal(t, StatusMet, scored.EvaluationStatus)
	assert.Equal(t, 10.0, scored.Score)
	assert.Equal(t, "passed == true", scored.EvaluationDetails["matched_criterion"])
	// One criterion was enough: evaluation stops after the met list matches.
	assert.Equal(t, 1, scored.EvaluationDetails["criteria_evaluated"])
	require.NotEmpty(t, scored.EvidenceReferences)
	assert.Equal(t, 1.0, scored.EvidenceReferences[0].Confidence)
}

func TestItemPartial(t *testing.T) {
	scored, _ := evaluate(t, lintItem(10), lintTree(false, 4))

	assert.Equal(t, StatusPartial, scored.EvaluationStatus)
	assert.Equal(t, 5.0, scored.Score)
	// The failed met criterion still produced evidence.
	assert.GreaterOrEqual(t, len(scored.EvidenceReferences), 2)
}

func TestPartialPointsRounded(t *testing.T) {
	// Odd maximums award a flat 50% rounded to one decimal.
	scored, _ := evaluate(t, lintItem(5), lintTree(false, 4))
	assert.Equal(t, StatusPartial, scored.EvaluationStatus)
	assert.Equal(t, 2.5, scored.Score)
}

func TestItemUnmet(t *testing.T) {
	scored, _ := evaluate(t, lintItem(10), lintTree(false, 200))

	assert.Equal(t, StatusUnmet, scored.EvaluationStatus)
	assert.Equal(t, 0.0, scored.Score)
}

func TestNoCriterionMatches(t *testing.T) {
	item := lintItem(10)
	item.Criteria.Unmet = []string{"issues_count > 1000"}
	scored, _ := evaluate(t, item, lintTree(false, 200))

	// Nothing matched anywhere: default is unmet, zero points.
	assert.Equal(t, StatusUnmet, scored.EvaluationStatus)
	assert.Equal(t, 0.0, scored.Score)
	assert.Equal(t, "no criterion list matched", scored.EvaluationDetails["reason"])
}

func TestMissingSourceSubtree(t *testing.T) {
	tree := map[string]any{"metrics": map[string]any{}}
	scored, _ := evaluate(t, lintItem(10), tree)

	assert.Equal(t, StatusUnmet, scored.EvaluationStatus)
	assert.Equal(t, 0.0, scored.Score)
	require.Len(t, scored.EvidenceReferences, 1)
	assert.Equal(t, 0.7, scored.EvidenceReferences[0].Confidence)
	assert.Equal(t, "metrics subtree missing", scored.EvaluationDetails["reason"])
}

func TestNullValueDegradesConfidence(t *testing.T) {
	// Tool absent: passed is an explicit null. The unmet tool_used criterion
	// matches, and every reference that observed the null carries 0.7.
	scored, _ := evaluate(t, lintItem(10), map[string]any{
		"metrics": map[string]any{
			"code_quality": map[string]any{
				"lint_results": map[string]any{
					"tool_used":    "none",
					"passed":       nil,
					"issues_count": float64(0),
					"issues":       []any{},
				},
			},
		},
	})

	assert.Equal(t, StatusUnmet, scored.EvaluationStatus)
	var sawDegraded bool
	for _, ref := range scored.EvidenceReferences {
		if ref.Confidence == 0.7 {
			sawDegraded = true
		}
	}
	assert.True(t, sawDegraded, "null observation should degrade confidence to 0.7")
}

func TestUnparsableCriterion(t *testing.T) {
	item := lintItem(10)
	item.Criteria.Met = []string{"passed === true"}
	scored, _ := evaluate(t, item, lintTree(true, 0))

	// The malformed criterion is false with confidence 0.3; evaluation
	// continues with the remaining lists.
	require.NotEmpty(t, scored.EvidenceReferences)
	assert.Equal(t, 0.3, scored.EvidenceReferences[0].Confidence)
	assert.NotEqual(t, StatusMet, scored.EvaluationStatus)
}

func TestLengthMisuseConfidence(t *testing.T) {
	item := lintItem(10)
	item.Criteria.Met = []string{"issues_count.length == 0"}
	item.Criteria.Partial = nil
	item.Criteria.Unmet = nil
	scored, _ := evaluate(t, item, lintTree(true, 0))

	assert.Equal(t, StatusUnmet, scored.EvaluationStatus)
	require.NotEmpty(t, scored.EvidenceReferences)
	assert.Equal(t, 0.5, scored.EvidenceReferences[0].Confidence)
}

func TestDocumentationItemsUseFileCheckSource(t *testing.T) {
	item := rubric.Item{
		ID:        "readme",
		Name:      "README",
		Dimension: rubric.DimensionDocumentation,
		MaxPoints: 10,
		Criteria:  rubric.Criteria{Met: []string{"readme_present == true"}},
		MetricsMapping: rubric.MetricsMapping{
			SourcePath: "metrics.documentation",
		},
	}
	tree := map[string]any{
		"metrics": map[string]any{
			"documentation": map[string]any{"readme_present": true},
		},
	}
	scored, tracker := evaluate(t, item, tree)

	assert.Equal(t, StatusMet, scored.EvaluationStatus)
	require.NotEmpty(t, scored.EvidenceReferences)
	assert.Equal(t, evidence.SourceFileCheck, scored.EvidenceReferences[0].SourceType)

	summary := tracker.Summary()
	require.Len(t, summary, 1)
	assert.Equal(t, "file_check", summary[0].SourceType)
}

func TestTotalScore(t *testing.T) {
	items := []ScoredItem{{Score: 10}, {Score: 2.5}, {Score: 0}}
	assert.Equal(t, 12.5, TotalScore(items))
}

// healthyRecord is a record where every default-rubric item should be met.
func healthyRecord(t *testing.T) *metrics.Record {
	t.Helper()
	record := metrics.NewRecord()
	record.Repository.PrimaryLanguage = "python"

	cq := &record.Metrics.CodeQuality
	cq.LintResults.ToolUsed = "ruff"
	passed := true
	cq.LintResults.Passed = &passed
	cq.BuildSuccess = &passed
	cq.BuildDetails.ToolUsed = "uv build"
	cq.SecurityAudit.ToolUsed = "pip-audit"
	cq.FormattingCompliance = &passed

	tst := &record.Metrics.Testing
	tst.TestExecution = metrics.TestExecution{
		Framework: "pytest", TestsRun: 24, TestsPassed: 24, ToolUsed: "pytest",
	}
	coverage := 85.0
	tst.CoverageReport = metrics.CoverageReport{Percentage: &coverage, ToolUsed: "pytest-cov"}
	tst.TestFilesDetected = 6
	tst.TestConfigDetected = true
	tst.CIPlatform = "github_actions"

	doc := &record.Metrics.Documentation
	doc.ReadmePresent = true
	doc.ReadmeQualityScore = 0.85
	doc.SetupInstructions = true
	doc.UsageExamples = true
	doc.APIDocumentation = true

	record.Execution.Timestamp = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	return record
}

func TestDefaultRubricHealthyRecordFullMarks(t *testing.T) {
	r, err := rubric.Load("")
	require.NoError(t, err)
	tree, err := healthyRecord(t).ToTree()
	require.NoError(t, err)

	items := NewEvaluator(r, evidence.NewTracker(nil), nil).Evaluate(tree)
	require.Len(t, items, len(r.ChecklistItems))

	byDimension := map[string]float64{}
	for _, item := range items {
		assert.Equal(t, StatusMet, item.EvaluationStatus, "item %s", item.ID)
		byDimension[item.Dimension] += item.Score
	}
	assert.Equal(t, 40.0, byDimension[rubric.DimensionCodeQuality])
	assert.Equal(t, 35.0, byDimension[rubric.DimensionTesting])
	assert.Equal(t, 25.0, byDimension[rubric.DimensionDocumentation])
	assert.Equal(t, 100.0, TotalScore(items))
}

func TestRepeatedEvaluationByteIdentical(t *testing.T) {
	r, err := rubric.Load("")
	require.NoError(t, err)
	record := healthyRecord(t)
	tree, err := record.ToTree()
	require.NoError(t, err)

	score := func() []byte {
		ev := NewEvaluator(r, evidence.NewTracker(nil), nil)
		ev.PinTimestamp(record.Execution.Timestamp)
		data, err := metrics.CanonicalJSON(ev.Evaluate(tree))
		require.NoError(t, err)
		return data
	}

	first := score()
	second := score()
	assert.Equal(t, string(first), string(second),
		"scored items must be byte-identical across identical evaluations")
}

func TestResolverRooting(t *testing.T) {
	tree := lintTree(true, 0)
	r := newTreeResolver(tree, "metrics.code_quality.lint_results")

	// Relative to the source path.
	v, found := r.Resolve("passed")
	require.True(t, found)
	assert.Equal(t, true, v)

	// Absolute: first segment is a top-level record key.
	v, found = r.Resolve("metrics.code_quality.lint_results.issues_count")
	require.True(t, found)
	assert.Equal(t, float64(0), v)

	// Absent leaf.
	_, found = r.Resolve("no_such_field")
	assert.False(t, found)

	// Traversing through a scalar fails cleanly.
	_, found = r.Resolve("passed.deeper")
	assert.False(t, found)
}
