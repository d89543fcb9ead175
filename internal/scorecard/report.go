package scorecard

import (
	"fmt"
	"sort"
	"strings"
)

// RenderMarkdown renders the scorecard as the evaluation report. Section
// order is fixed: Overview, Category Breakdown, Per-item details, Evidence
// appendix.
func RenderMarkdown(sc *Scorecard) string {
	var b strings.Builder

	b.WriteString("# Repository Quality Evaluation\n\n")

	// Overview
	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- Repository: %s\n", sc.RepositoryInfo.URL)
	fmt.Fprintf(&b, "- Commit: `%s`\n", sc.RepositoryInfo.CommitSHA)
	fmt.Fprintf(&b, "- Primary language: %s\n", sc.RepositoryInfo.PrimaryLanguage)
	fmt.Fprintf(&b, "- Total score: **%s / %d** (%s%%, grade %s)\n",
		formatScore(sc.TotalScore), sc.MaxPossibleScore,
		formatScore(sc.ScorePercentage), Grade(sc.ScorePercentage))
	fmt.Fprintf(&b, "- Evaluated: %s with repocheck %s\n\n",
		sc.EvaluationMetadata.EvaluatedAt.Format("2006-01-02 15:04:05 UTC"),
		sc.EvaluationMetadata.EvaluatorVersion)

	// Category Breakdown
	b.WriteString("## Category Breakdown\n\n")
	b.WriteString("| Dimension | Awarded | Max | Percentage | Grade |\n")
	b.WriteString("|---|---|---|---|---|\n")
	dims := make([]string, 0, len(sc.CategoryBreakdowns))
	for dim := range sc.CategoryBreakdowns {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		cb := sc.CategoryBreakdowns[dim]
		fmt.Fprintf(&b, "| %s | %s | %d | %s%% | %s |\n",
			dim, formatScore(cb.Awarded), cb.Max, formatScore(cb.Percentage), cb.Grade)
	}
	b.WriteString("\n")

	// Per-item details, in rubric order.
	b.WriteString("## Per-item details\n\n")
	for _, item := range sc.ChecklistItems {
		fmt.Fprintf(&b, "### %s (%s)\n\n", item.Name, item.ID)
		fmt.Fprintf(&b, "- Dimension: %s\n", item.Dimension)
		fmt.Fprintf(&b, "- Status: **%s**\n", item.EvaluationStatus)
		fmt.Fprintf(&b, "- Score: %s / %d\n", formatScore(item.Score), item.MaxPoints)
		if matched, ok := item.EvaluationDetails["matched_criterion"]; ok {
			fmt.Fprintf(&b, "- Matched criterion: `%v`\n", matched)
		}
		if reason, ok := item.EvaluationDetails["reason"]; ok {
			fmt.Fprintf(&b, "- Note: %v\n", reason)
		}
		b.WriteString("\n")
	}

	// Evidence appendix
	b.WriteString("## Evidence appendix\n\n")
	if len(sc.EvidenceSummary) == 0 {
		b.WriteString("No evidence recorded.\n")
	} else {
		b.WriteString("| Item | Dimension | Source | Entries | Min confidence |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, entry := range sc.EvidenceSummary {
			fmt.Fprintf(&b, "| %s | %s | %s | %d | %.1f |\n",
				entry.ItemID, entry.Dimension, entry.SourceType, entry.Count, entry.MinConfidence)
		}
	}
	b.WriteString("\n")

	return b.String()
}
