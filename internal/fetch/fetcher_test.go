package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"repocheck/internal/toolexec"
)

func TestFetchRejectsInvalidURLs(t *testing.T) {
	f := NewFetcher(toolexec.NewExecutor(toolexec.DefaultConfig(), nil), DefaultConfig(), nil)

	for _, url := range []string{"", "   ", "not a url", "ftp://example.com/repo"} {
		_, err := f.Fetch(context.Background(), url, "", t.TempDir())
		var fe *Error
		if !errors.As(err, &fe) {
			t.Fatalf("url %q: expected *Error, got %v", url, err)
		}
		if fe.Kind != KindInvalidURL {
			t.Fatalf("url %q: kind = %s, want invalid_url", url, fe.Kind)
		}
	}
}

func TestClassifyGitFailure(t *testing.T) {
	cases := []struct {
		stderr string
		want   Kind
	}{
		{"fatal: could not read Username for 'https://github.com': terminal prompts disabled", KindAuthRequired},
		{"remote: HTTP Basic: Access denied. Authentication failed", KindAuthRequired},
		{"git@github.com: Permission denied (publickey).", KindAuthRequired},
		{"remote: Repository not found.", KindNotFound},
		{"fatal: repository 'https://example.com/x.git/' does not exist", KindNotFound},
		{"fatal: unable to access: Could not resolve host: no.such.host", KindNotFound},
		{"fatal: couldn't find remote ref refs/heads/nope", KindNotFound},
		{"error: RPC failed; curl 56 recv failure", KindGitFailure},
	}
	for _, tc := range cases {
		err := classifyGitFailure("clone", tc.stderr)
		var fe *Error
		if !errors.As(err, &fe) {
			t.Fatalf("stderr %q: got %T", tc.stderr, err)
		}
		if fe.Kind != tc.want {
			t.Fatalf("stderr %q: kind = %s, want %s", tc.stderr, fe.Kind, tc.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("alpha\nbeta\n"); got != "alpha" {
		t.Fatalf("firstLine = %q", got)
	}
	if got := firstLine("  solo  "); got != "solo" {
		t.Fatalf("firstLine = %q", got)
	}
	if got := firstLine(""); got != "no output" {
		t.Fatalf("firstLine empty = %q", got)
	}
}

func TestTreeSizeSkipsGitDir(t *testing.T) {
	root := t.TempDir()
	write := func(rel string, size int) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("src/main.py", 1024*1024)
	write(".git/objects/pack/huge.pack", 50*1024*1024)

	size, err := treeSizeMB(root)
	if err != nil {
		t.Fatalf("treeSizeMB: %v", err)
	}
	if size < 0.9 || size > 1.1 {
		t.Fatalf("size = %.2f MB, want ~1 (the .git contents must be excluded)", size)
	}
}

func TestFetchLocalRepository(t *testing.T) {
	if _, ok := toolexec.LookupTool("git"); !ok {
		t.Skip("git not on PATH")
	}

	exec := toolexec.NewExecutor(toolexec.DefaultConfig(), nil)

	// Build a tiny source repository to clone from.
	src := t.TempDir()
	run := func(args ...string) {
		res := exec.Run(context.Background(), toolexec.Command{
			Binary:           "git",
			Arguments:        args,
			WorkingDirectory: src,
			Environment: []string{
				"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
				"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com",
			},
		})
		if res.ExitCode != 0 {
			t.Fatalf("git %v: %s", args, res.Stderr)
		}
	}
	if err := os.WriteFile(filepath.Join(src, "main.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("init", "--quiet")
	run("add", ".")
	run("commit", "--quiet", "-m", "initial")

	f := NewFetcher(exec, DefaultConfig(), nil)
	dest := filepath.Join(t.TempDir(), "clone")
	result, err := f.Fetch(context.Background(), src, "", dest)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(result.CommitSHA) != 40 {
		t.Fatalf("commit SHA = %q, want 40 hex characters", result.CommitSHA)
	}
	if result.SizeMB <= 0 {
		t.Fatalf("size = %v, want > 0", result.SizeMB)
	}
	if _, err := os.Stat(filepath.Join(dest, "main.py")); err != nil {
		t.Fatalf("cloned file missing: %v", err)
	}
}

func TestFetchRejectsOversizedTree(t *testing.T) {
	if _, ok := toolexec.LookupTool("git"); !ok {
		t.Skip("git not on PATH")
	}

	exec := toolexec.NewExecutor(toolexec.DefaultConfig(), nil)
	src := t.TempDir()
	run := func(args ...string) {
		res := exec.Run(context.Background(), toolexec.Command{
			Binary:           "git",
			Arguments:        args,
			WorkingDirectory: src,
			Environment: []string{
				"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
				"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com",
			},
		})
		if res.ExitCode != 0 {
			t.Fatalf("git %v: %s", args, res.Stderr)
		}
	}
	if err := os.WriteFile(filepath.Join(src, "blob.bin"), []byte(strings.Repeat("a", 2*1024*1024)), 0o644); err != nil {
		t.Fatal(err)
	}
	run("init", "--quiet")
	run("add", ".")
	run("commit", "--quiet", "-m", "big")

	f := NewFetcher(exec, Config{MaxSizeMB: 1}, nil)
	_, err := f.Fetch(context.Background(), src, "", filepath.Join(t.TempDir(), "clone"))
	var fe *Error
	if !errors.As(err, &fe) || fe.Kind != KindTooLarge {
		t.Fatalf("expected too_large, got %v", err)
	}
}
