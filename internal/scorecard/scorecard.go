// Package scorecard derives the final scorecard from scored checklist items,
// the repository descriptor and the evidence summary, and renders the human
// report.
package scorecard

import (
	"fmt"
	"math"
	"time"

	"repocheck/internal/checklist"
	"repocheck/internal/evidence"
	"repocheck/internal/metrics"
	"repocheck/internal/rubric"
)

// Version identifies the evaluator in evaluation metadata.
const Version = "1.0.0"

// CategoryBreakdown summarizes one dimension.
type CategoryBreakdown struct {
	Awarded    float64 `json:"awarded"`
	Max        int     `json:"max"`
	Percentage float64 `json:"percentage"`
	Grade      string  `json:"grade"`
}

// Metadata carries versions, timings and the tool inventory.
type Metadata struct {
	EvaluatorVersion string    `json:"evaluator_version"`
	EvaluatedAt      time.Time `json:"evaluated_at"`
	DurationSeconds  float64   `json:"duration_seconds"`
	ToolsUsed        []string  `json:"tools_used"`
	RubricItems      int       `json:"rubric_items"`
}

// Scorecard is the final record consumed by downstream judges.
type Scorecard struct {
	RepositoryInfo     metrics.Repository           `json:"repository_info"`
	ChecklistItems     []checklist.ScoredItem       `json:"checklist_items"`
	TotalScore         float64                      `json:"total_score"`
	MaxPossibleScore   int                          `json:"max_possible_score"`
	ScorePercentage    float64                      `json:"score_percentage"`
	CategoryBreakdowns map[string]CategoryBreakdown `json:"category_breakdowns"`
	EvaluationMetadata Metadata                     `json:"evaluation_metadata"`
	EvidenceSummary    []evidence.SummaryEntry      `json:"evidence_summary"`
}

// Grade maps a percentage to a letter grade using the fixed thresholds.
func Grade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}

// Build assembles the scorecard. Item order equals rubric order.
func Build(record *metrics.Record, items []checklist.ScoredItem, summary []evidence.SummaryEntry, r *rubric.Rubric) *Scorecard {
	total := checklist.TotalScore(items)

	breakdowns := map[string]CategoryBreakdown{
		rubric.DimensionCodeQuality:   {},
		rubric.DimensionTesting:       {},
		rubric.DimensionDocumentation: {},
	}
	for _, item := range items {
		b := breakdowns[item.Dimension]
		b.Awarded += item.Score
		b.Max += item.MaxPoints
		breakdowns[item.Dimension] = b
	}
	for dim, b := range breakdowns {
		if b.Max > 0 {
			b.Percentage = round1(b.Awarded / float64(b.Max) * 100)
		}
		b.Grade = Grade(b.Percentage)
		b.Awarded = round1(b.Awarded)
		breakdowns[dim] = b
	}

	if summary == nil {
		summary = []evidence.SummaryEntry{}
	}

	return &Scorecard{
		RepositoryInfo:     record.Repository,
		ChecklistItems:     items,
		TotalScore:         round1(total),
		MaxPossibleScore:   100,
		ScorePercentage:    round1(total / 100 * 100),
		CategoryBreakdowns: breakdowns,
		EvaluationMetadata: Metadata{
			EvaluatorVersion: Version,
			EvaluatedAt:      record.Execution.Timestamp,
			DurationSeconds:  record.Execution.DurationSeconds,
			ToolsUsed:        record.Execution.ToolsUsed,
			RubricItems:      len(items),
		},
		EvidenceSummary: summary,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func formatScore(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
