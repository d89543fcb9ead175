// Package toolexec is the lowest-level execution layer of the analysis
// pipeline. It runs external analysis tools (linters, builders, test
// frameworks, auditors) with wall-clock timeouts, captures their output with
// size caps, and guarantees that timed-out tools take their whole process
// group down with them.
package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Command describes a single external tool invocation.
type Command struct {
	// Binary is the executable to run (absolute path or PATH-resolvable name).
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set, in KEY=VALUE form. Merged with the
	// executor's allowed pass-through environment.
	Environment []string `json:"environment,omitempty"`

	// Timeout bounds the wall-clock run time. Zero means the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxOutputBytes caps captured stdout and stderr each. Zero means the
	// executor default.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`
}

// CommandString returns the full command line for display and records.
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// Result is the comprehensive outcome of one tool invocation.
type Result struct {
	// ExitCode is the tool's exit code, -1 when it never ran or was killed.
	ExitCode int `json:"exit_code"`

	// Stdout and Stderr are the captured streams. Each command gets its own
	// buffers, so concurrent invocations never interleave.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Duration is the wall-clock run time.
	Duration time.Duration `json:"duration"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// TimedOut indicates the command was killed because its deadline elapsed.
	TimedOut bool `json:"timed_out"`

	// Canceled indicates the surrounding pipeline was canceled mid-run.
	Canceled bool `json:"canceled"`

	// Truncated indicates output exceeded the cap and was cut.
	Truncated bool `json:"truncated"`

	// Err holds any infrastructure-level failure (spawn error). A tool that
	// ran and exited non-zero has Err == nil and a non-zero ExitCode.
	Err error `json:"-"`
}

// Output returns stdout and stderr joined, stdout first.
func (r *Result) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// Config holds executor defaults. All values are explicit; there is no
// process-global state.
type Config struct {
	DefaultTimeout     time.Duration
	MaxOutputBytes     int64
	AllowedEnvironment []string
}

// DefaultConfig returns sensible executor defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 60 * time.Second,
		MaxOutputBytes: 10 * 1024 * 1024,
		AllowedEnvironment: []string{
			"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR",
			"GOPATH", "GOROOT", "GOBIN", "GOCACHE", "GOMODCACHE",
			"JAVA_HOME", "MAVEN_OPTS", "NODE_ENV", "VIRTUAL_ENV",
		},
	}
}

// Executor runs commands directly on the host.
type Executor struct {
	config Config
	log    *zap.Logger
}

// NewExecutor creates an executor with the given config and logger.
func NewExecutor(config Config, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultConfig().DefaultTimeout
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = DefaultConfig().MaxOutputBytes
	}
	if config.AllowedEnvironment == nil {
		config.AllowedEnvironment = DefaultConfig().AllowedEnvironment
	}
	return &Executor{config: config, log: log}
}

// Run executes a command and always returns a Result, even on spawn failure.
// A non-zero exit is not an error here; callers decide what it means.
func (e *Executor) Run(ctx context.Context, cmd Command) *Result {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}
	maxOutput := cmd.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = e.config.MaxOutputBytes
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.Command(cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	setupProcessGroup(execCmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	result := &Result{ExitCode: -1, StartedAt: time.Now().UTC()}

	e.log.Debug("running tool",
		zap.String("command", cmd.CommandString()),
		zap.Duration("timeout", timeout))

	if err := execCmd.Start(); err != nil {
		result.FinishedAt = time.Now().UTC()
		result.Err = fmt.Errorf("start %s: %w", cmd.Binary, err)
		return result
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- execCmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-execCtx.Done():
		// Deadline or cancellation: take down the whole process group so
		// tool-spawned children (test workers, compilers) do not linger.
		if err := killProcessGroup(execCmd); err != nil {
			e.log.Warn("kill process group failed",
				zap.String("binary", cmd.Binary), zap.Error(err))
		}
		waitErr = <-waitDone
		if ctx.Err() == context.Canceled {
			result.Canceled = true
		} else {
			result.TimedOut = true
		}
	}

	result.FinishedAt = time.Now().UTC()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Truncated = stdoutLimited.truncated || stderrLimited.truncated

	switch {
	case result.TimedOut || result.Canceled:
		// Exit state of a killed group is meaningless; leave ExitCode -1.
	case waitErr == nil:
		result.ExitCode = 0
	default:
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.Err = waitErr
		}
	}

	e.log.Debug("tool finished",
		zap.String("binary", cmd.Binary),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("duration", result.Duration))

	return result
}

// buildEnvironment assembles the child environment from the allow-list plus
// command-specific variables.
func (e *Executor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))
	for _, key := range e.config.AllowedEnvironment {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	return append(env, cmdEnv...)
}

// LookupTool probes candidate binary names in preference order and returns the
// resolved path of the first one present on PATH. It never shells out to a
// `which`-style utility; exec.LookPath is portable across platforms.
func LookupTool(candidates ...string) (string, bool) {
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// limitedWriter caps total bytes written, discarding the excess while
// reporting full writes so the child never sees a short-write error.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}
	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
