package vcs

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func gitIn(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Avery", "GIT_AUTHOR_EMAIL=avery@example.com",
		"GIT_COMMITTER_NAME=Avery", "GIT_COMMITTER_EMAIL=avery@example.com",
		"GIT_CONFIG_NOSYSTEM=1", "HOME="+dir,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(content)
}

func commitAll(t *testing.T, dir, message string) {
	t.Helper()
	gitIn(t, dir, "add", "-A")
	gitIn(t, dir, "commit", "--quiet", "-m", message)
}

// cliFixture builds an upstream repository and a fork with two branches:
// "conflict" edits fip-0001.md against a diverged master, "clean" only adds a
// document.
func cliFixture(t *testing.T) (upstream, fork string) {
	t.Helper()
	root := t.TempDir()
	upstream = filepath.Join(root, "upstream")
	fork = filepath.Join(root, "fork")
	if err := os.MkdirAll(upstream, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	gitIn(t, upstream, "init", "--quiet")
	gitIn(t, upstream, "symbolic-ref", "HEAD", "refs/heads/master")
	writeFile(t, upstream, "FIPS/fip-0001.md", "original\n")
	commitAll(t, upstream, "baseline")

	gitIn(t, root, "clone", "--quiet", upstream, fork)
	gitIn(t, fork, "switch", "--quiet", "-c", "conflict")
	writeFile(t, fork, "FIPS/fip-0001.md", "fork edit\n")
	writeFile(t, fork, "FIPS/fip-0099.md", "new proposal\n")
	commitAll(t, fork, "conflicting proposal")
	gitIn(t, fork, "switch", "--quiet", "master")
	gitIn(t, fork, "switch", "--quiet", "-c", "clean")
	writeFile(t, fork, "FIPS/fip-0100.md", "another proposal\n")
	commitAll(t, fork, "clean proposal")

	writeFile(t, upstream, "FIPS/fip-0001.md", "upstream edit\n")
	writeFile(t, upstream, "README.md", "# FIPs\n")
	commitAll(t, upstream, "diverge")
	return upstream, fork
}

func TestCLIReconcileSequence(t *testing.T) {
	requireGit(t)
	upstream, fork := cliFixture(t)
	ctx := context.Background()
	cli := NewCLI(time.Minute, nil)
	work := filepath.Join(t.TempDir(), "work")

	if err := cli.Clone(ctx, upstream, work); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if err := cli.AddRemote(ctx, work, "pull-7", fork); err != nil {
		t.Fatalf("AddRemote() error = %v", err)
	}
	if err := cli.AddRemote(ctx, work, "pull-7", fork); !errors.Is(err, ErrRemoteExists) {
		t.Fatalf("second AddRemote() error = %v, want ErrRemoteExists", err)
	}
	if err := cli.Fetch(ctx, work, "pull-7"); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if err := cli.CreateBranchFromRemote(ctx, work, "pull-7-branch", "pull-7/conflict"); err != nil {
		t.Fatalf("CreateBranchFromRemote(conflict) error = %v", err)
	}
	if err := cli.Merge(ctx, work, "master", "nothing"); !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("Merge() error = %v, want ErrMergeConflict", err)
	}
	if err := cli.ResetMerge(ctx, work); err != nil {
		t.Fatalf("ResetMerge() error = %v", err)
	}
	if err := cli.QuitMerge(ctx, work); err != nil {
		t.Fatalf("QuitMerge() error = %v", err)
	}
	if got := readFile(t, work, "FIPS/fip-0001.md"); got != "fork edit\n" {
		t.Fatalf("expected branch tip after reset, got %q", got)
	}
	if got := readFile(t, work, "FIPS/fip-0099.md"); got != "new proposal\n" {
		t.Fatalf("new document missing after reset, got %q", got)
	}

	if err := cli.CreateBranchFromRemote(ctx, work, "pull-8-branch", "pull-7/clean"); err != nil {
		t.Fatalf("CreateBranchFromRemote(clean) error = %v", err)
	}
	if err := cli.Merge(ctx, work, "master", "nothing"); err != nil {
		t.Fatalf("clean Merge() error = %v", err)
	}
	if got := readFile(t, work, "FIPS/fip-0001.md"); got != "upstream edit\n" {
		t.Fatalf("expected baseline content after merge, got %q", got)
	}
	if got := readFile(t, work, "FIPS/fip-0100.md"); got != "another proposal\n" {
		t.Fatalf("branch document missing after merge, got %q", got)
	}
}

func TestCLICommandErrors(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	cli := NewCLI(time.Minute, nil)

	err := cli.Clone(ctx, filepath.Join(t.TempDir(), "missing"), filepath.Join(t.TempDir(), "work"))
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) || cmdErr.Op != "clone" {
		t.Fatalf("Clone() error = %v, want *CommandError for clone", err)
	}

	upstream, _ := cliFixture(t)
	work := filepath.Join(t.TempDir(), "work")
	if err := cli.Clone(ctx, upstream, work); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if err := cli.CreateBranchFromRemote(ctx, work, "pull-9-branch", "pull-9/feature"); err == nil {
		t.Fatal("expected error for missing remote ref")
	}
}

func TestCLITimeout(t *testing.T) {
	requireGit(t)
	cli := NewCLI(time.Nanosecond, nil)
	err := cli.Clone(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "work"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Clone() error = %v, want ErrTimeout", err)
	}
}
