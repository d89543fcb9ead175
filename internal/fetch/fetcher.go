// Package fetch clones the target repository at a specific revision into the
// workspace. It drives the git binary through toolexec and classifies
// failures into the fatal kinds the CLI maps to exit codes.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"repocheck/internal/toolexec"
)

// Kind classifies a fetch failure. All kinds are fatal for the pipeline.
type Kind string

const (
	KindInvalidURL   Kind = "invalid_url"
	KindAuthRequired Kind = "auth_required"
	KindNotFound     Kind = "not_found"
	KindTimeout      Kind = "timeout"
	KindTooLarge     Kind = "too_large"
	KindGitFailure   Kind = "git_failure"
)

// Error is a classified fetch failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch failed (%s): %s", e.Kind, e.Message)
}

// Result describes a successful fetch.
type Result struct {
	// CommitSHA is the fully resolved 40-hex commit identifier.
	CommitSHA string

	// ClonedAt is the UTC clone timestamp.
	ClonedAt time.Time

	// SizeMB is the working-tree size in megabytes (excluding .git).
	SizeMB float64
}

// Config bounds the fetch.
type Config struct {
	// MaxSizeMB caps the cloned working tree. Zero means the 100 MB default.
	MaxSizeMB float64
}

// DefaultConfig returns the default fetch limits.
func DefaultConfig() Config {
	return Config{MaxSizeMB: 100}
}

// Fetcher clones repositories via the git binary.
type Fetcher struct {
	exec   *toolexec.Executor
	config Config
	log    *zap.Logger
}

// NewFetcher creates a fetcher. The executor carries the timeout discipline;
// the fetcher only classifies outcomes.
func NewFetcher(exec *toolexec.Executor, config Config, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = DefaultConfig().MaxSizeMB
	}
	return &Fetcher{exec: exec, config: config, log: log}
}

var urlPattern = regexp.MustCompile(`^(https?://|git@|ssh://|file://|/|\./)`)

var shaPattern = regexp.MustCompile(`^[0-9a-f]{40}$`)

// Fetch clones url at revision into dest. An empty revision resolves to the
// default branch tip; the concrete SHA is always recorded.
func (f *Fetcher) Fetch(ctx context.Context, url, revision, dest string) (*Result, error) {
	if strings.TrimSpace(url) == "" || !urlPattern.MatchString(url) {
		return nil, &Error{Kind: KindInvalidURL, Message: fmt.Sprintf("unsupported repository URL %q", url)}
	}

	f.log.Info("cloning repository",
		zap.String("url", url), zap.String("revision", revision))

	if revision == "" {
		if err := f.git(ctx, "", "clone", "--depth", "1", "--quiet", url, dest); err != nil {
			return nil, err
		}
	} else {
		// A pinned revision may not be reachable by a shallow branch clone,
		// so init+fetch the revision directly, falling back to a full fetch
		// for servers that refuse fetching unadvertised objects.
		if err := f.git(ctx, "", "init", "--quiet", dest); err != nil {
			return nil, err
		}
		if err := f.git(ctx, dest, "remote", "add", "origin", url); err != nil {
			return nil, err
		}
		if err := f.git(ctx, dest, "fetch", "--depth", "1", "--quiet", "origin", revision); err != nil {
			if ferr := f.git(ctx, dest, "fetch", "--quiet", "origin"); ferr != nil {
				return nil, err
			}
		}
		checkoutTarget := "FETCH_HEAD"
		if shaPattern.MatchString(revision) {
			checkoutTarget = revision
		}
		if err := f.git(ctx, dest, "checkout", "--quiet", checkoutTarget); err != nil {
			return nil, &Error{Kind: KindNotFound, Message: fmt.Sprintf("revision %q not found", revision)}
		}
	}

	sha, err := f.resolveHead(ctx, dest)
	if err != nil {
		return nil, err
	}

	sizeMB, err := treeSizeMB(dest)
	if err != nil {
		return nil, &Error{Kind: KindGitFailure, Message: fmt.Sprintf("sizing working tree: %v", err)}
	}
	if sizeMB > f.config.MaxSizeMB {
		return nil, &Error{Kind: KindTooLarge, Message: fmt.Sprintf("working tree is %.1f MB, cap is %.0f MB", sizeMB, f.config.MaxSizeMB)}
	}

	f.log.Info("repository cloned",
		zap.String("commit", sha), zap.Float64("size_mb", sizeMB))

	return &Result{
		CommitSHA: sha,
		ClonedAt:  time.Now().UTC(),
		SizeMB:    sizeMB,
	}, nil
}

// git runs one git subcommand with interactive authentication disabled and
// classifies the failure.
func (f *Fetcher) git(ctx context.Context, dir string, args ...string) error {
	res := f.exec.Run(ctx, toolexec.Command{
		Binary:           "git",
		Arguments:        args,
		WorkingDirectory: dir,
		Environment: []string{
			"GIT_TERMINAL_PROMPT=0",
			"GIT_ASKPASS=true",
			"GIT_SSH_COMMAND=ssh -oBatchMode=yes",
		},
	})

	switch {
	case res.TimedOut || res.Canceled:
		return &Error{Kind: KindTimeout, Message: fmt.Sprintf("git %s exceeded the deadline", args[0])}
	case res.Err != nil:
		return &Error{Kind: KindGitFailure, Message: res.Err.Error()}
	case res.ExitCode != 0:
		return classifyGitFailure(args[0], res.Stderr)
	}
	return nil
}

func (f *Fetcher) resolveHead(ctx context.Context, dir string) (string, error) {
	res := f.exec.Run(ctx, toolexec.Command{
		Binary:           "git",
		Arguments:        []string{"rev-parse", "HEAD"},
		WorkingDirectory: dir,
	})
	if res.TimedOut || res.Canceled {
		return "", &Error{Kind: KindTimeout, Message: "git rev-parse exceeded the deadline"}
	}
	if res.Err != nil || res.ExitCode != 0 {
		return "", &Error{Kind: KindGitFailure, Message: strings.TrimSpace(res.Stderr)}
	}
	sha := strings.TrimSpace(res.Stdout)
	if !shaPattern.MatchString(sha) {
		return "", &Error{Kind: KindGitFailure, Message: fmt.Sprintf("rev-parse returned %q, expected a 40-hex SHA", sha)}
	}
	return sha, nil
}

// classifyGitFailure maps git stderr to a failure kind.
func classifyGitFailure(subcommand, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "terminal prompts disabled"),
		strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "could not read username"),
		strings.Contains(lower, "permission denied"):
		return &Error{Kind: KindAuthRequired, Message: firstLine(stderr)}
	case strings.Contains(lower, "not found"),
		strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "could not resolve host"),
		strings.Contains(lower, "couldn't find remote ref"):
		return &Error{Kind: KindNotFound, Message: firstLine(stderr)}
	default:
		return &Error{Kind: KindGitFailure, Message: fmt.Sprintf("git %s: %s", subcommand, firstLine(stderr))}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "no output"
	}
	return s
}

// treeSizeMB sums the working-tree bytes, skipping .git.
func treeSizeMB(root string) (float64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return float64(total) / (1024 * 1024), nil
}
