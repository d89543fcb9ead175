// Package config holds the run options for an evaluation. Options come from
// CLI flags, optionally overridden by a YAML config file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Format selects which artifacts the run writes.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatBoth     Format = "both"
)

// Options is the full set of knobs for one evaluation run.
type Options struct {
	// OutputDir receives submission.json, score_input.json, the report and
	// the evidence tree.
	OutputDir string `yaml:"output_dir"`

	// Format is json, markdown or both.
	Format Format `yaml:"format"`

	// Timeout bounds the whole run, clone included.
	Timeout time.Duration `yaml:"timeout"`

	// ToolTimeout bounds each external tool invocation.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// EnableChecklist turns on the rubric evaluation stage. Off, the run
	// stops after submission.json.
	EnableChecklist bool `yaml:"enable_checklist"`

	// ChecklistConfig points at a custom rubric YAML; empty means the
	// embedded default rubric.
	ChecklistConfig string `yaml:"checklist_config"`

	// MaxRepoSizeMB rejects oversized clones.
	MaxRepoSizeMB float64 `yaml:"max_repo_size_mb"`

	// Verbose switches the logger to debug level.
	Verbose bool `yaml:"verbose"`
}

// Default returns the options used when nothing is specified.
func Default() Options {
	return Options{
		OutputDir:       "output",
		Format:          FormatBoth,
		Timeout:         300 * time.Second,
		ToolTimeout:     60 * time.Second,
		EnableChecklist: true,
		MaxRepoSizeMB:   100,
	}
}

// fileOptions mirrors Options for YAML decoding. Pointer fields make absent
// keys distinguishable from zero values, and durations are parsed from
// strings like "120s".
type fileOptions struct {
	OutputDir       *string  `yaml:"output_dir"`
	Format          *string  `yaml:"format"`
	Timeout         *string  `yaml:"timeout"`
	ToolTimeout     *string  `yaml:"tool_timeout"`
	EnableChecklist *bool    `yaml:"enable_checklist"`
	ChecklistConfig *string  `yaml:"checklist_config"`
	MaxRepoSizeMB   *float64 `yaml:"max_repo_size_mb"`
	Verbose         *bool    `yaml:"verbose"`
}

// LoadFile overlays a YAML config file onto the receiver. Absent keys keep
// their current values.
func (o *Options) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var f fileOptions
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if f.OutputDir != nil {
		o.OutputDir = *f.OutputDir
	}
	if f.Format != nil {
		o.Format = Format(*f.Format)
	}
	if f.Timeout != nil {
		d, err := time.ParseDuration(*f.Timeout)
		if err != nil {
			return fmt.Errorf("config %s: bad timeout: %w", path, err)
		}
		o.Timeout = d
	}
	if f.ToolTimeout != nil {
		d, err := time.ParseDuration(*f.ToolTimeout)
		if err != nil {
			return fmt.Errorf("config %s: bad tool_timeout: %w", path, err)
		}
		o.ToolTimeout = d
	}
	if f.EnableChecklist != nil {
		o.EnableChecklist = *f.EnableChecklist
	}
	if f.ChecklistConfig != nil {
		o.ChecklistConfig = *f.ChecklistConfig
	}
	if f.MaxRepoSizeMB != nil {
		o.MaxRepoSizeMB = *f.MaxRepoSizeMB
	}
	if f.Verbose != nil {
		o.Verbose = *f.Verbose
	}
	return nil
}

// Validate rejects option combinations the pipeline cannot honor.
func (o *Options) Validate() error {
	switch o.Format {
	case FormatJSON, FormatMarkdown, FormatBoth:
	default:
		return fmt.Errorf("invalid format %q: want json, markdown or both", o.Format)
	}
	if o.OutputDir == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", o.Timeout)
	}
	if o.ToolTimeout <= 0 {
		return fmt.Errorf("tool timeout must be positive, got %s", o.ToolTimeout)
	}
	if o.MaxRepoSizeMB <= 0 {
		return fmt.Errorf("max repo size must be positive, got %.1f", o.MaxRepoSizeMB)
	}
	return nil
}
