// Package rubric loads and validates the declarative checklist
// configuration. The rubric content is external data: the evaluator must
// faithfully interpret whatever rubric it is configured with, so validation
// checks structure, not content.
package rubric

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Dimensions recognized on checklist items.
const (
	DimensionCodeQuality   = "code_quality"
	DimensionTesting       = "testing"
	DimensionDocumentation = "documentation"
)

// Criteria holds the three ordered expression lists of one item. A status is
// satisfied when any of its expressions evaluates true.
type Criteria struct {
	Met     []string `yaml:"met"`
	Partial []string `yaml:"partial"`
	Unmet   []string `yaml:"unmet"`
}

// MetricsMapping roots an item's criteria at a subtree of the metrics record.
type MetricsMapping struct {
	SourcePath     string   `yaml:"source_path"`
	RequiredFields []string `yaml:"required_fields"`
}

// Item is one checklist item.
type Item struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	Dimension      string         `yaml:"dimension"`
	MaxPoints      int            `yaml:"max_points"`
	Criteria       Criteria       `yaml:"criteria"`
	MetricsMapping MetricsMapping `yaml:"metrics_mapping"`
}

// Rubric is the full checklist configuration. Unknown top-level keys in the
// file are ignored.
type Rubric struct {
	ChecklistItems []Item `yaml:"checklist_items"`
}

//go:embed default_rubric.yaml
var defaultRubricYAML []byte

// Default returns the built-in eleven-item rubric.
func Default() (*Rubric, error) {
	return parse(defaultRubricYAML, "embedded default rubric")
}

// Load reads a rubric file, falling back to the default when path is empty.
func Load(path string) (*Rubric, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}
	return parse(data, path)
}

func parse(data []byte, source string) (*Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rubric %s: %w", source, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rubric %s: %w", source, err)
	}
	return &r, nil
}

var validDimensions = map[string]bool{
	DimensionCodeQuality:   true,
	DimensionTesting:       true,
	DimensionDocumentation: true,
}

// Validate enforces the structural invariants: unique ids, recognized
// dimensions, non-negative points summing to exactly 100, and at least one
// non-empty criterion list per item.
func (r *Rubric) Validate() error {
	if len(r.ChecklistItems) == 0 {
		return fmt.Errorf("no checklist_items")
	}

	seen := make(map[string]bool, len(r.ChecklistItems))
	total := 0
	for i, item := range r.ChecklistItems {
		if item.ID == "" {
			return fmt.Errorf("item %d has no id", i)
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate item id %q", item.ID)
		}
		seen[item.ID] = true

		if !validDimensions[item.Dimension] {
			return fmt.Errorf("item %q has unknown dimension %q", item.ID, item.Dimension)
		}
		if item.MaxPoints < 0 {
			return fmt.Errorf("item %q has negative max_points", item.ID)
		}
		if len(item.Criteria.Met)+len(item.Criteria.Partial)+len(item.Criteria.Unmet) == 0 {
			return fmt.Errorf("item %q has no criteria", item.ID)
		}
		total += item.MaxPoints
	}

	if total != 100 {
		return fmt.Errorf("max_points sum to %d, must be exactly 100", total)
	}
	return nil
}
