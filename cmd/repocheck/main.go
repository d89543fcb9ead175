// repocheck clones a repository, runs the available quality tooling, and
// scores the result against a checklist rubric.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"repocheck/internal/config"
	"repocheck/internal/logging"
	"repocheck/internal/pipeline"
)

// Exit codes consumed by calling automation.
const (
	exitOK            = 0
	exitInvalidInput  = 2
	exitFetchFailure  = 3
	exitInternalError = 4
	exitGlobalTimeout = 5
)

var (
	flagOutputDir       string
	flagFormat          string
	flagTimeoutSeconds  int
	flagToolTimeoutSecs int
	flagEnableChecklist bool
	flagChecklistConfig string
	flagConfigFile      string
	flagMaxRepoSizeMB   float64
	flagRevision        string
	flagVerbose         bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "repocheck <repository-url>",
	Short: "repocheck - repository quality scorecard",
	Long: `repocheck evaluates the engineering quality of a git repository.

It clones the repository, detects the primary language, runs the available
linters, build tools, test suites, security scanners and formatters, and
reduces their output to a unified metrics record. A declarative checklist
rubric is then scored against that record, producing a point total, letter
grades per dimension, and a full evidence trail.

Artifacts written to the output directory:
  submission.json       unified metrics record
  score_input.json      scored checklist with category breakdowns
  evaluation_report.md  human-readable report
  evidence/             per-item audit trail`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(flagVerbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := buildOptions(cmd)
		if err != nil {
			return &pipeline.RunError{Kind: pipeline.KindInvalidInput, Err: err}
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		return pipeline.New(opts, logger).Run(ctx, args[0], flagRevision)
	},
}

func buildOptions(cmd *cobra.Command) (config.Options, error) {
	opts := config.Default()
	if flagConfigFile != "" {
		if err := opts.LoadFile(flagConfigFile); err != nil {
			return opts, err
		}
	}

	// Only flags the user set explicitly win over the config file.
	changed := cmd.Flags().Changed
	if changed("output-dir") {
		opts.OutputDir = flagOutputDir
	}
	if changed("format") {
		opts.Format = config.Format(flagFormat)
	}
	if changed("timeout-seconds") {
		opts.Timeout = time.Duration(flagTimeoutSeconds) * time.Second
	}
	if changed("tool-timeout") {
		opts.ToolTimeout = time.Duration(flagToolTimeoutSecs) * time.Second
	}
	if changed("enable-checklist") {
		opts.EnableChecklist = flagEnableChecklist
	}
	if changed("checklist-config") {
		opts.ChecklistConfig = flagChecklistConfig
	}
	if changed("max-repo-size") {
		opts.MaxRepoSizeMB = flagMaxRepoSizeMB
	}
	if flagVerbose {
		opts.Verbose = true
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func init() {
	defaults := config.Default()

	rootCmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", defaults.OutputDir,
		"directory for generated artifacts")
	rootCmd.Flags().StringVarP(&flagFormat, "format", "f", string(defaults.Format),
		"artifact format: json, markdown or both")
	rootCmd.Flags().IntVar(&flagTimeoutSeconds, "timeout-seconds", int(defaults.Timeout.Seconds()),
		"whole-run timeout in seconds, clone included")
	rootCmd.Flags().IntVar(&flagToolTimeoutSecs, "tool-timeout", int(defaults.ToolTimeout.Seconds()),
		"per-tool timeout in seconds")
	rootCmd.Flags().BoolVar(&flagEnableChecklist, "enable-checklist", defaults.EnableChecklist,
		"run the checklist rubric after metrics collection")
	rootCmd.Flags().StringVar(&flagChecklistConfig, "checklist-config", "",
		"custom rubric YAML (default: embedded rubric)")
	rootCmd.Flags().StringVar(&flagConfigFile, "config", "",
		"YAML config file overlaying the defaults")
	rootCmd.Flags().Float64Var(&flagMaxRepoSizeMB, "max-repo-size", defaults.MaxRepoSizeMB,
		"reject working trees larger than this many MB")
	rootCmd.Flags().StringVar(&flagRevision, "revision", "",
		"commit SHA, branch or tag to evaluate (default: default branch tip)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false,
		"enable debug logging")
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}

	fmt.Fprintf(os.Stderr, "repocheck: %v\n", err)

	var re *pipeline.RunError
	if errors.As(err, &re) {
		switch re.Kind {
		case pipeline.KindInvalidInput:
			os.Exit(exitInvalidInput)
		case pipeline.KindFetch:
			os.Exit(exitFetchFailure)
		case pipeline.KindGlobalTimeout:
			os.Exit(exitGlobalTimeout)
		default:
			os.Exit(exitInternalError)
		}
	}
	// Flag parse errors and other cobra-level failures are bad input.
	os.Exit(exitInvalidInput)
}
